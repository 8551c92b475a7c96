package ledger

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/shared"
)

// AggregateTypeInvoice is the aggregate type carried by invoice events
const AggregateTypeInvoice = "Invoice"

const maxCustomerNameLength = 100

// InvoiceStatus is derived from the payments and the total, never stored as truth
type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// Ledger errors
var (
	ErrInvalidAmount      = shared.NewDomainError("INVALID_AMOUNT", "Amount must be positive")
	ErrInvalidMethod      = shared.NewDomainError("INVALID_METHOD", "Unknown payment method")
	ErrInvalidCustomer    = shared.NewDomainError("INVALID_CUSTOMER", "Customer name is required")
	ErrInvalidShortCode   = shared.NewDomainError("INVALID_SHORT_CODE", "Short code is malformed")
	ErrDuplicateShortCode = shared.NewDomainError("DUPLICATE_SHORT_CODE", "Short code already assigned")
)

// StatusFor computes the status for a total and the sum paid against it.
// Overpayment counts as paid.
func StatusFor(total, paid decimal.Decimal) InvoiceStatus {
	switch {
	case paid.LessThanOrEqual(decimal.Zero):
		return InvoiceStatusUnpaid
	case paid.LessThan(total):
		return InvoiceStatusPartial
	default:
		return InvoiceStatusPaid
	}
}

// Invoice is an amount a counterparty owes a merchant, plus its payment history
type Invoice struct {
	shared.BaseAggregateRoot
	MerchantID   uuid.UUID
	ShortCode    string
	CustomerName string
	Description  string
	Total        decimal.Decimal
	Payments     Payments
	Confirmed    bool
	ConfirmedAt  *time.Time
	DueDate      *time.Time
}

// NewInvoice creates an unpaid invoice. The short code must already be drawn.
func NewInvoice(merchantID uuid.UUID, shortCode, customerName, description string, total decimal.Decimal, dueDate *time.Time) (*Invoice, error) {
	if merchantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MERCHANT", "Merchant ID cannot be empty")
	}
	if !IsShortCode(shortCode) {
		return nil, ErrInvalidShortCode
	}
	name, err := cleanCustomerName(customerName)
	if err != nil {
		return nil, err
	}
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		MerchantID:        merchantID,
		ShortCode:         NormalizeShortCode(shortCode),
		CustomerName:      name,
		Description:       strings.TrimSpace(description),
		Total:             total,
		Payments:          Payments{},
		DueDate:           dueDate,
	}
	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))
	return inv, nil
}

// Status returns the status recomputed from the full payment list
func (i *Invoice) Status() InvoiceStatus {
	return StatusFor(i.Total, i.Payments.Sum())
}

// AmountPaid returns the sum of all payments
func (i *Invoice) AmountPaid() decimal.Decimal {
	return i.Payments.Sum()
}

// Balance returns what is still owed, never negative
func (i *Invoice) Balance() decimal.Decimal {
	bal := i.Total.Sub(i.Payments.Sum())
	if bal.IsNegative() {
		return decimal.Zero
	}
	return bal
}

// IsOpen returns true while something is still owed
func (i *Invoice) IsOpen() bool {
	return i.Status() != InvoiceStatusPaid
}

// ApplyPayment appends a payment. A payment carrying an external reference that
// is already on the invoice is ignored and applied is false; unreferenced
// payments are always appended.
func (i *Invoice) ApplyPayment(amount decimal.Decimal, method PaymentMethod, paidAt time.Time, externalReference string) (applied bool, err error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return false, ErrInvalidAmount
	}
	if !method.IsValid() {
		return false, ErrInvalidMethod
	}
	ref := strings.TrimSpace(externalReference)
	if i.Payments.HasReference(ref) {
		return false, nil
	}
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	previous := i.Status()
	pay := Payment{
		ID:                uuid.New(),
		Amount:            amount,
		Method:            method,
		PaidAt:            paidAt,
		ExternalReference: ref,
	}
	i.Payments = append(i.Payments, pay)
	i.Touch(time.Now())
	i.IncrementVersion()

	i.AddDomainEvent(NewPaymentAppliedEvent(i, pay, previous))
	return true, nil
}

// Confirm marks the invoice confirmed. Returns false when it already was.
func (i *Invoice) Confirm() bool {
	if i.Confirmed {
		return false
	}
	now := time.Now()
	i.Confirmed = true
	i.ConfirmedAt = &now
	i.Touch(now)
	i.IncrementVersion()

	i.AddDomainEvent(NewInvoiceConfirmedEvent(i))
	return true
}

// RenameCustomer changes the counterparty name shown on the invoice
func (i *Invoice) RenameCustomer(name string) (bool, error) {
	cleaned, err := cleanCustomerName(name)
	if err != nil {
		return false, err
	}
	if cleaned == i.CustomerName {
		return false, nil
	}
	old := i.CustomerName
	i.CustomerName = cleaned
	i.Touch(time.Now())
	i.IncrementVersion()

	i.AddDomainEvent(NewInvoiceUpdatedEvent(i, InvoiceFieldCustomerName, old, cleaned))
	return true, nil
}

// SetDueDate changes the due date
func (i *Invoice) SetDueDate(due time.Time) bool {
	due = truncateDay(due)
	if i.DueDate != nil && i.DueDate.Equal(due) {
		return false
	}
	old := ""
	if i.DueDate != nil {
		old = i.DueDate.Format(time.DateOnly)
	}
	i.DueDate = &due
	i.Touch(time.Now())
	i.IncrementVersion()

	i.AddDomainEvent(NewInvoiceUpdatedEvent(i, InvoiceFieldDueDate, old, due.Format(time.DateOnly)))
	return true
}

func cleanCustomerName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", ErrInvalidCustomer
	}
	if utf8.RuneCountInString(name) > maxCustomerNameLength {
		return "", shared.NewDomainError("INVALID_CUSTOMER", "Customer name cannot exceed 100 characters")
	}
	return name, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
