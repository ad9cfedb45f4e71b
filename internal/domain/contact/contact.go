// Package contact holds recipient identities keyed by phone number.
package contact

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("contact not found")
	// ErrInvalidPhone is returned for numbers that cannot be a WhatsApp recipient.
	ErrInvalidPhone = errors.New("invalid phone number")
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// Contact is a phone number identity. Phone is unique and normalized.
type Contact struct {
	ID           uuid.UUID
	Phone        string
	Name         string
	Tags         []string
	LastSeenAt   *time.Time
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizePhone strips separators and a WhatsApp JID suffix, replaces a local
// leading 0 with countryCode and checks the digit count. The result has no "+".
func NormalizePhone(raw, countryCode string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}

	digits := b.String()
	if strings.HasPrefix(digits, "0") && countryCode != "" {
		digits = strings.TrimLeft(countryCode, "+") + strings.TrimPrefix(digits, "0")
	}

	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", ErrInvalidPhone
	}
	return digits, nil
}
