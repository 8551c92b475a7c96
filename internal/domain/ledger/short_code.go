package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// ShortCodeAlphabet leaves out 0, O, 1, I and L
	ShortCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	ShortCodeLength   = 6
)

// GenerateShortCode draws a random code from ShortCodeAlphabet.
// Uniqueness is the caller's concern.
func GenerateShortCode() (string, error) {
	max := big.NewInt(int64(len(ShortCodeAlphabet)))
	var sb strings.Builder
	sb.Grow(ShortCodeLength)
	for i := 0; i < ShortCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to draw short code: %w", err)
		}
		sb.WriteByte(ShortCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeShortCode upper-cases and trims user input
func NormalizeShortCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsShortCode reports whether s (after normalization) is shaped like a short code
func IsShortCode(s string) bool {
	s = NormalizeShortCode(s)
	if len(s) != ShortCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(ShortCodeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
