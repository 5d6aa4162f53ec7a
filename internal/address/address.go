// Package address validates recipient mailbox addresses before a send.
package address

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalid is returned for missing or malformed addresses.
var ErrInvalid = errors.New("invalid email address")

// Validate trims raw and checks it is a bare addr-spec with a dotted domain.
// Display-name forms ("Name <a@b.c>") are rejected; the registry stores bare
// addresses only.
func Validate(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", ErrInvalid
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || parsed.Name != "" {
		return "", ErrInvalid
	}
	if !IsValidDomain(Domain(addr)) {
		return "", ErrInvalid
	}
	return addr, nil
}

// Domain returns the part after the last @, or "" when there is none.
func Domain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return email[i+1:]
}

// IsValidDomain checks that the domain is non-empty, has at least one dot and
// neither starts nor ends with one.
func IsValidDomain(domain string) bool {
	if domain == "" {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	return strings.Contains(domain, ".")
}
