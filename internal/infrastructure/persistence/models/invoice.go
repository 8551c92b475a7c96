package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/ledger"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Status and AmountPaid are denormalized from Payments for listing queries
// and are rewritten on every save.
type InvoiceModel struct {
	AggregateModel
	MerchantID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_invoice_merchant_status,priority:1"`
	ShortCode    string          `gorm:"type:varchar(6);not null;uniqueIndex:idx_invoice_short_code"`
	CustomerName string          `gorm:"type:varchar(100);not null"`
	Description  string          `gorm:"type:varchar(500)"`
	Total        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	AmountPaid   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Status       string          `gorm:"type:varchar(16);not null;default:'unpaid';index:idx_invoice_merchant_status,priority:2"`
	Payments     ledger.Payments `gorm:"type:text;not null"`
	Confirmed    bool            `gorm:"not null;default:false"`
	ConfirmedAt  *time.Time
	DueDate      *time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *ledger.Invoice {
	payments := m.Payments
	if payments == nil {
		payments = ledger.Payments{}
	}
	return &ledger.Invoice{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		MerchantID:        m.MerchantID,
		ShortCode:         m.ShortCode,
		CustomerName:      m.CustomerName,
		Description:       m.Description,
		Total:             m.Total,
		Payments:          payments,
		Confirmed:         m.Confirmed,
		ConfirmedAt:       m.ConfirmedAt,
		DueDate:           m.DueDate,
	}
}

// FromDomain populates the persistence model from a domain Invoice.
func (m *InvoiceModel) FromDomain(inv *ledger.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.MerchantID = inv.MerchantID
	m.ShortCode = inv.ShortCode
	m.CustomerName = inv.CustomerName
	m.Description = inv.Description
	m.Total = inv.Total
	m.AmountPaid = inv.AmountPaid()
	m.Status = string(inv.Status())
	m.Payments = inv.Payments
	m.Confirmed = inv.Confirmed
	m.ConfirmedAt = inv.ConfirmedAt
	m.DueDate = inv.DueDate
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *ledger.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}
