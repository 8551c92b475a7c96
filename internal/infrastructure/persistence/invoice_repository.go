package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const defaultOpenInvoiceLimit = 10

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by its internal ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByShortCode finds an invoice by its short code, case-insensitively
func (r *GormInvoiceRepository) FindByShortCode(ctx context.Context, code string) (*ledger.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).Where("short_code = ?", ledger.NormalizeShortCode(code)).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsByShortCode checks if a short code is already assigned
func (r *GormInvoiceRepository) ExistsByShortCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("short_code = ?", ledger.NormalizeShortCode(code)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindOpenByMerchant returns the merchant's unpaid and partial invoices, newest first
func (r *GormInvoiceRepository) FindOpenByMerchant(ctx context.Context, merchantID uuid.UUID, filter ledger.OpenInvoiceFilter) ([]ledger.Invoice, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOpenInvoiceLimit
	}

	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("merchant_id = ? AND status IN ?", merchantID, openStatuses())
	if name := strings.TrimSpace(filter.NameContains); name != "" {
		query = query.Where(`LOWER(customer_name) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(name))+"%")
	}

	var rows []models.InvoiceModel
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	invoices := make([]ledger.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, nil
}

// Summarize aggregates the merchant's ledger in one query
func (r *GormInvoiceRepository) Summarize(ctx context.Context, merchantID uuid.UUID) (*ledger.MerchantSummary, error) {
	var row struct {
		OpenCount   int64
		PaidCount   int64
		Outstanding decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Select(`COALESCE(SUM(CASE WHEN status <> ? THEN 1 ELSE 0 END), 0) AS open_count,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS paid_count,
			SUM(CASE WHEN status <> ? THEN total - amount_paid ELSE 0 END) AS outstanding`,
			ledger.InvoiceStatusPaid, ledger.InvoiceStatusPaid, ledger.InvoiceStatusPaid).
		Where("merchant_id = ?", merchantID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	summary := &ledger.MerchantSummary{
		OpenCount:        row.OpenCount,
		PaidCount:        row.PaidCount,
		TotalOutstanding: decimal.Zero,
	}
	if row.Outstanding.Valid {
		summary.TotalOutstanding = row.Outstanding.Decimal
	}
	return summary, nil
}

// Create inserts a new invoice
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *ledger.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateShortCode
		}
		return err
	}
	return nil
}

// SaveWithLock saves with optimistic locking (checks version)
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, inv *ledger.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version-1).
		Updates(map[string]interface{}{
			"customer_name": model.CustomerName,
			"description":   model.Description,
			"amount_paid":   model.AmountPaid,
			"status":        model.Status,
			"payments":      model.Payments,
			"confirmed":     model.Confirmed,
			"confirmed_at":  model.ConfirmedAt,
			"due_date":      model.DueDate,
			"version":       model.Version,
			"updated_at":    model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func openStatuses() []string {
	return []string{string(ledger.InvoiceStatusUnpaid), string(ledger.InvoiceStatusPartial)}
}

// escapeLike escapes LIKE wildcards so s matches as a literal substring
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

var _ ledger.InvoiceRepository = (*GormInvoiceRepository)(nil)
