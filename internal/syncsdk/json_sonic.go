//go:build sonic

package syncsdk

import (
	"github.com/bytedance/sonic"
)

var (
	jsonMarshal   = sonic.Marshal
	jsonUnmarshal = sonic.Unmarshal
)
