package utils

import "log/slog"

// SecretAttr logs only the first four characters of a token, so two log lines
// can still be told apart without leaking the credential.
func SecretAttr(key, secret string) slog.Attr {
	if len(secret) <= 4 {
		return slog.String(key, "*****")
	}
	return slog.String(key, secret[:4]+"*****")
}
