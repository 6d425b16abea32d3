package utils

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// local@domain.tld with no whitespace and no path separators, since the
// address also names the user's data directory
var emailRegex = regexp.MustCompile(`^[^\s@/\\]+@[^\s@/\\]+\.[^\s@/\\]+$`)

var (
	ErrEmailEmpty   = errors.New("account email is required (set `email` in the config or KBSYNC_EMAIL)")
	ErrEmailInvalid = errors.New("account email is not a plain address like alice@example.com")
)

// ValidateEmail checks the account email a knowledge base store belongs to.
// Display names ("Alice <alice@example.com>") are rejected.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmailEmpty
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailInvalid
	}

	// ParseAddress follows RFC 5322 and accepts dotless domains
	if !emailRegex.MatchString(email) {
		return ErrEmailInvalid
	}

	return nil
}
