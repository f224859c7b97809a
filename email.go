package podauth

import (
	"net/mail"
	"strings"
)

// NormalizeEmail trims, parses and lower cases an address. Every lookup
// and insert goes through it, so emails are case insensitive.
func NormalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingEmail
	}

	parsed, err := mail.ParseAddress(raw)
	if err != nil {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(parsed.Address), nil
}
