package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountRE = regexp.MustCompile(`^(?:ngn|₦|n)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*([km])?$`)
	choiceRE = regexp.MustCompile(`^[0-9]{1,2}$`)

	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
)

// ParseAmount reads a positive money amount the way merchants type it:
// "50000", "50,000", "50k", "1.5m", optionally prefixed with ₦, N or NGN.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".")
	m := amountRE.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	switch m[2] {
	case "k":
		d = d.Mul(thousand)
	case "m":
		d = d.Mul(million)
	}
	if !d.IsPositive() {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

// parseChoice reads a bare menu number
func parseChoice(s string) (int, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "."))
	if !choiceRE.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
