package conversation

import (
	"strings"

	"github.com/tallyline/backend/internal/domain/shared"
)

// Address is a canonical sender identity: digits only, with country code
type Address string

// ErrInvalidAddress is returned when a sender identity cannot be normalized
var ErrInvalidAddress = shared.NewDomainError("INVALID_ADDRESS", "Sender address is not a valid phone number")

const (
	minAddressDigits = 7
	maxAddressDigits = 15
)

// NormalizeAddress strips every non-digit and expands local formats.
// A leading "00" international prefix is dropped; a single leading "0"
// is replaced by defaultCountryCode.
func NormalizeAddress(raw, defaultCountryCode string) (Address, error) {
	digits := onlyDigits(raw)
	switch {
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		digits = onlyDigits(defaultCountryCode) + digits[1:]
	}
	if len(digits) < minAddressDigits || len(digits) > maxAddressDigits {
		return "", ErrInvalidAddress
	}
	return Address(digits), nil
}

// String implements fmt.Stringer
func (a Address) String() string {
	return string(a)
}

// Masked hides all but the last four digits, for logs
func (a Address) Masked() string {
	s := string(a)
	if len(s) <= 4 {
		return s
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func onlyDigits(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
