//go:build !sonic

package syncsdk

import (
	"github.com/goccy/go-json"
)

var (
	jsonMarshal   = json.Marshal
	jsonUnmarshal = json.Unmarshal
)
