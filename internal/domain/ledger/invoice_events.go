package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/shared"
)

// Event type names
const (
	EventTypeInvoiceCreated   = "InvoiceCreated"
	EventTypePaymentApplied   = "PaymentApplied"
	EventTypeInvoiceConfirmed = "InvoiceConfirmed"
	EventTypeInvoiceUpdated   = "InvoiceUpdated"
)

// Fields reported by InvoiceUpdatedEvent
const (
	InvoiceFieldCustomerName = "customer_name"
	InvoiceFieldDueDate      = "due_date"
)

// InvoiceCreatedEvent is raised when a new invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	MerchantID   uuid.UUID       `json:"merchant_id"`
	ShortCode    string          `json:"short_code"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, AggregateTypeInvoice, inv.ID),
		MerchantID:      inv.MerchantID,
		ShortCode:       inv.ShortCode,
		CustomerName:    inv.CustomerName,
		Total:           inv.Total,
		DueDate:         inv.DueDate,
	}
}

// PaymentAppliedEvent is raised when a payment is appended to an invoice
type PaymentAppliedEvent struct {
	shared.BaseDomainEvent
	MerchantID        uuid.UUID       `json:"merchant_id"`
	ShortCode         string          `json:"short_code"`
	CustomerName      string          `json:"customer_name"`
	PaymentID         uuid.UUID       `json:"payment_id"`
	Amount            decimal.Decimal `json:"amount"`
	Method            PaymentMethod   `json:"method"`
	ExternalReference string          `json:"external_reference,omitempty"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	Balance           decimal.Decimal `json:"balance"`
	PreviousStatus    InvoiceStatus   `json:"previous_status"`
	Status            InvoiceStatus   `json:"status"`
}

// NewPaymentAppliedEvent creates a new PaymentAppliedEvent
func NewPaymentAppliedEvent(inv *Invoice, pay Payment, previous InvoiceStatus) *PaymentAppliedEvent {
	return &PaymentAppliedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypePaymentApplied, AggregateTypeInvoice, inv.ID),
		MerchantID:        inv.MerchantID,
		ShortCode:         inv.ShortCode,
		CustomerName:      inv.CustomerName,
		PaymentID:         pay.ID,
		Amount:            pay.Amount,
		Method:            pay.Method,
		ExternalReference: pay.ExternalReference,
		AmountPaid:        inv.AmountPaid(),
		Balance:           inv.Balance(),
		PreviousStatus:    previous,
		Status:            inv.Status(),
	}
}

// InvoiceConfirmedEvent is raised the first time an invoice is confirmed
type InvoiceConfirmedEvent struct {
	shared.BaseDomainEvent
	MerchantID   uuid.UUID `json:"merchant_id"`
	ShortCode    string    `json:"short_code"`
	CustomerName string    `json:"customer_name"`
	ConfirmedAt  time.Time `json:"confirmed_at"`
}

// NewInvoiceConfirmedEvent creates a new InvoiceConfirmedEvent
func NewInvoiceConfirmedEvent(inv *Invoice) *InvoiceConfirmedEvent {
	confirmedAt := time.Now()
	if inv.ConfirmedAt != nil {
		confirmedAt = *inv.ConfirmedAt
	}
	return &InvoiceConfirmedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceConfirmed, AggregateTypeInvoice, inv.ID),
		MerchantID:      inv.MerchantID,
		ShortCode:       inv.ShortCode,
		CustomerName:    inv.CustomerName,
		ConfirmedAt:     confirmedAt,
	}
}

// InvoiceUpdatedEvent is raised when invoice metadata changes
type InvoiceUpdatedEvent struct {
	shared.BaseDomainEvent
	MerchantID uuid.UUID `json:"merchant_id"`
	ShortCode  string    `json:"short_code"`
	Field      string    `json:"field"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
}

// NewInvoiceUpdatedEvent creates a new InvoiceUpdatedEvent
func NewInvoiceUpdatedEvent(inv *Invoice, field, oldValue, newValue string) *InvoiceUpdatedEvent {
	return &InvoiceUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceUpdated, AggregateTypeInvoice, inv.ID),
		MerchantID:      inv.MerchantID,
		ShortCode:       inv.ShortCode,
		Field:           field,
		OldValue:        oldValue,
		NewValue:        newValue,
	}
}
