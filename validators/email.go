// Package validators contains validators found throughout the application
// that have been abstracted away from the main code
package validators

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrEmailEmpty   = errors.New("no email address provided")
	ErrEmailInvalid = errors.New("invalid email address provided")
	ErrEmailTooLong = errors.New("email address is too long")
)

func EmailValidator(e string) error {
	if e == "" {
		return ErrEmailEmpty
	}

	if len(e) > 254 {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(e)
	if err != nil {
		return ErrEmailInvalid
	}

	// Reject display-name forms like "Bob <bob@x.com>", only the bare
	// address is stored
	if addr.Address != e {
		return ErrEmailInvalid
	}

	return nil
}

// NormalizeEmail lowercases an address so comparisons and unique indexes
// behave the same everywhere.
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
