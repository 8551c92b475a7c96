package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how a payment was settled
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodProvider PaymentMethod = "provider"
	PaymentMethodOther    PaymentMethod = "other"
)

// IsValid returns true if the method is a known value
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCard, PaymentMethodProvider, PaymentMethodOther:
		return true
	}
	return false
}

// ParsePaymentMethod maps the words merchants type to a method.
// "provider" is reserved for webhook-driven payments and is not accepted here.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash":
		return PaymentMethodCash, true
	case "transfer", "bank", "trf":
		return PaymentMethodTransfer, true
	case "card", "pos":
		return PaymentMethodCard, true
	case "other":
		return PaymentMethodOther, true
	}
	return "", false
}

// Payment is one append-only entry in an invoice's payment history
type Payment struct {
	ID                uuid.UUID       `json:"id"`
	Amount            decimal.Decimal `json:"amount"`
	Method            PaymentMethod   `json:"method"`
	PaidAt            time.Time       `json:"paid_at"`
	ExternalReference string          `json:"external_reference,omitempty"`
}

// Payments is a slice of Payment that implements GORM Scanner/Valuer for JSON storage
type Payments []Payment

// Value implements driver.Valuer interface for GORM to store as JSON
func (p Payments) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSON
func (p *Payments) Scan(value interface{}) error {
	if value == nil {
		*p = Payments{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan Payments: unsupported type")
	}

	if len(bytes) == 0 {
		*p = Payments{}
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// Sum returns the total of all payment amounts
func (p Payments) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, pay := range p {
		sum = sum.Add(pay.Amount)
	}
	return sum
}

// HasReference reports whether a payment with the external reference exists
func (p Payments) HasReference(ref string) bool {
	if ref == "" {
		return false
	}
	for _, pay := range p {
		if pay.ExternalReference == ref {
			return true
		}
	}
	return false
}
