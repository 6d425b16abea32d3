package wsproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coder/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Encoding indicates which wire encoding is used for WebSocket messages.
type Encoding uint8

const (
	EncodingJSON Encoding = iota
	EncodingMsgPack
)

func (e Encoding) String() string {
	switch e {
	case EncodingMsgPack:
		return "msgpack"
	default:
		return "json"
	}
}

const (
	magic0  = byte('K')
	magic1  = byte('B')
	version = byte(1)

	// msgpack field names follow the json tags, so both encodings carry the
	// same keys
	structTag = "json"
)

// PreferredEncoding parses a comma-separated preference list (e.g. "msgpack,json").
// Returns EncodingJSON if list is empty/unknown.
func PreferredEncoding(list string) Encoding {
	for _, p := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "msgpack":
			return EncodingMsgPack
		case "json":
			return EncodingJSON
		}
	}
	return EncodingJSON
}

// Marshal encodes v for WebSocket transport.
// JSON is sent as a text message without envelope.
// MsgPack is sent as a binary message: [magic][version][encoding][payload].
func Marshal(v any, enc Encoding) (websocket.MessageType, []byte, error) {
	if enc == EncodingJSON {
		data, err := json.Marshal(v)
		return websocket.MessageText, data, err
	}

	var buf bytes.Buffer
	buf.Write([]byte{magic0, magic1, version, byte(enc)})

	encoder := msgpack.NewEncoder(&buf)
	encoder.SetCustomStructTag(structTag)
	encoder.SetOmitEmpty(true)
	if err := encoder.Encode(v); err != nil {
		return websocket.MessageBinary, nil, err
	}
	return websocket.MessageBinary, buf.Bytes(), nil
}

// Unmarshal decodes a WebSocket frame into v and reports the encoding used.
func Unmarshal(typ websocket.MessageType, data []byte, v any) (Encoding, error) {
	switch typ {
	case websocket.MessageText:
		return EncodingJSON, json.Unmarshal(data, v)

	case websocket.MessageBinary:
		if len(data) < 4 || data[0] != magic0 || data[1] != magic1 {
			return EncodingMsgPack, errors.New("binary message missing KB envelope")
		}
		if data[2] != version {
			return EncodingMsgPack, fmt.Errorf("unsupported ws envelope version: %d", data[2])
		}
		enc := Encoding(data[3])
		payload := data[4:]
		switch enc {
		case EncodingMsgPack:
			decoder := msgpack.NewDecoder(bytes.NewReader(payload))
			decoder.SetCustomStructTag(structTag)
			return enc, decoder.Decode(v)
		case EncodingJSON:
			return enc, json.Unmarshal(payload, v)
		default:
			return enc, fmt.Errorf("unknown ws encoding: %d", enc)
		}

	default:
		return EncodingJSON, fmt.Errorf("unsupported websocket message type: %v", typ)
	}
}
