package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenInvoiceFilter narrows an open-invoice lookup
type OpenInvoiceFilter struct {
	// NameContains is a case-insensitive substring of the customer name
	NameContains string
	Limit        int
}

// MerchantSummary aggregates a merchant's ledger
type MerchantSummary struct {
	OpenCount        int64
	PaidCount        int64
	TotalOutstanding decimal.Decimal
}

// InvoiceRepository persists invoices
type InvoiceRepository interface {
	// FindByID returns shared.ErrNotFound when absent
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindByShortCode returns shared.ErrNotFound when absent
	FindByShortCode(ctx context.Context, code string) (*Invoice, error)
	ExistsByShortCode(ctx context.Context, code string) (bool, error)
	// FindOpenByMerchant returns unpaid and partial invoices, newest first
	FindOpenByMerchant(ctx context.Context, merchantID uuid.UUID, filter OpenInvoiceFilter) ([]Invoice, error)
	Summarize(ctx context.Context, merchantID uuid.UUID) (*MerchantSummary, error)
	// Create inserts a new invoice; ErrDuplicateShortCode when the code is taken
	Create(ctx context.Context, inv *Invoice) error
	// SaveWithLock updates the invoice only if nobody else saved since it was loaded;
	// shared.ErrConcurrencyConflict otherwise
	SaveWithLock(ctx context.Context, inv *Invoice) error
}
