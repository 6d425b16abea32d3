package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretAttr(t *testing.T) {
	short := SecretAttr("token", "abc")
	assert.Equal(t, "token", short.Key)
	assert.Equal(t, "*****", short.Value.String())

	assert.Equal(t, "eyJh*****", SecretAttr("token", "eyJhbGciOi").Value.String())
}

func TestSecretAttr_NeverLogsTheToken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("control plane start", SecretAttr("token", "cp-token-0123456789"))

	assert.Contains(t, buf.String(), "token=cp-t*****")
	assert.NotContains(t, buf.String(), "0123456789")
}
