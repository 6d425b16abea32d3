package workspace

import (
	"regexp"
)

// kb guids end up as directory names, so path separators and dots are rejected
var regexKbGUID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// IsValidKbGUID checks that a knowledge base guid is safe to use as a path segment
func IsValidKbGUID(kbGUID string) bool {
	return regexKbGUID.MatchString(kbGUID)
}
