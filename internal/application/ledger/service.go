package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts bounds the optimistic read-modify-write loop
	DefaultMaxAttempts = 8
	// DefaultListLimit caps open-balance listings
	DefaultListLimit = 10
)

// InvoiceRef identifies an invoice by internal ID or short code.
// A non-nil MerchantID restricts the lookup to that merchant's invoices.
type InvoiceRef struct {
	Ref        string
	MerchantID uuid.UUID
}

// ByRef references any invoice
func ByRef(ref string) InvoiceRef {
	return InvoiceRef{Ref: ref}
}

// ByMerchantRef references an invoice owned by merchantID
func ByMerchantRef(merchantID uuid.UUID, ref string) InvoiceRef {
	return InvoiceRef{Ref: ref, MerchantID: merchantID}
}

// PaymentInput describes one payment to record
type PaymentInput struct {
	Amount            decimal.Decimal
	Method            ledger.PaymentMethod
	ExternalReference string
	PaidAt            time.Time
}

// CreateInvoiceInput describes a new invoice
type CreateInvoiceInput struct {
	MerchantID     uuid.UUID
	CustomerName   string
	Description    string
	Total          decimal.Decimal
	InitialPayment *PaymentInput
	DueDate        *time.Time
}

// Service is the single writer of invoice state
type Service struct {
	repo        ledger.InvoiceRepository
	publisher   shared.EventPublisher
	metrics     *telemetry.LedgerMetrics
	logger      *zap.Logger
	newCode     func() (string, error)
	maxAttempts int
}

// ServiceConfig holds the collaborators of the ledger service
type ServiceConfig struct {
	Repo      ledger.InvoiceRepository
	Publisher shared.EventPublisher
	Metrics   *telemetry.LedgerMetrics
	Logger    *zap.Logger
	// MaxAttempts defaults to DefaultMaxAttempts
	MaxAttempts int
	// CodeGenerator defaults to ledger.GenerateShortCode
	CodeGenerator func() (string, error)
}

// NewService creates a new ledger Service
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:        cfg.Repo,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		newCode:     cfg.CodeGenerator,
		maxAttempts: cfg.MaxAttempts,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.newCode == nil {
		s.newCode = ledger.GenerateShortCode
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	return s
}

// CreateInvoice creates an invoice under a fresh short code, applying the
// initial payment when one is given. Short codes are drawn until one is free;
// only context cancellation ends the search.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*ledger.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "create_invoice",
		telemetry.SpanAttrMerchantID, in.MerchantID.String())
	defer span.End()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("failed to draw short code: %w", err)
		}
		exists, err := s.repo.ExistsByShortCode(ctx, code)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to check short code: %w", err)
		}
		if exists {
			continue
		}

		inv, err := ledger.NewInvoice(in.MerchantID, code, in.CustomerName, in.Description, in.Total, in.DueDate)
		if err != nil {
			return nil, err
		}
		if p := in.InitialPayment; p != nil && p.Amount.IsPositive() {
			if _, err := inv.ApplyPayment(p.Amount, p.Method, p.PaidAt, p.ExternalReference); err != nil {
				return nil, err
			}
		}

		err = s.repo.Create(ctx, inv)
		if errors.Is(err, ledger.ErrDuplicateShortCode) {
			// lost the race for the code between the check and the insert
			continue
		}
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to create invoice: %w", err)
		}

		telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, inv.ID.String(), telemetry.SpanAttrShortCode, inv.ShortCode)
		s.metrics.RecordInvoiceCreated(ctx)
		s.logger.Info("Invoice created",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("short_code", inv.ShortCode),
			zap.String("merchant_id", inv.MerchantID.String()),
			zap.String("total", inv.Total.String()),
		)
		s.publish(ctx, inv)
		return inv, nil
	}
}

// ApplyPayment records a payment. A payment whose external reference is
// already on the invoice is a no-op that returns the current invoice and
// applied=false.
func (s *Service) ApplyPayment(ctx context.Context, ref InvoiceRef, in PaymentInput) (*ledger.Invoice, bool, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "apply_payment",
		telemetry.SpanAttrAmount, in.Amount.String(),
		telemetry.SpanAttrExternalRef, in.ExternalReference)
	defer span.End()

	inv, applied, err := s.mutate(ctx, ref, func(inv *ledger.Invoice) (bool, error) {
		return inv.ApplyPayment(in.Amount, in.Method, in.PaidAt, in.ExternalReference)
	})
	switch {
	case err != nil:
		telemetry.RecordError(span, err)
		s.metrics.RecordPayment(ctx, string(in.Method), outcomeFor(err))
		return nil, false, err
	case !applied:
		s.metrics.RecordPayment(ctx, string(in.Method), "duplicate")
		s.logger.Info("Payment already recorded",
			zap.String("short_code", inv.ShortCode),
			zap.String("external_reference", in.ExternalReference),
		)
	default:
		s.metrics.RecordPayment(ctx, string(in.Method), "applied")
		s.logger.Info("Payment applied",
			zap.String("short_code", inv.ShortCode),
			zap.String("amount", in.Amount.String()),
			zap.String("method", string(in.Method)),
			zap.String("status", string(inv.Status())),
		)
	}
	return inv, applied, nil
}

// ConfirmInvoice marks the invoice confirmed. Confirming twice changes nothing.
func (s *Service) ConfirmInvoice(ctx context.Context, ref InvoiceRef) (*ledger.Invoice, bool, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "confirm_invoice")
	defer span.End()

	inv, changed, err := s.mutate(ctx, ref, func(inv *ledger.Invoice) (bool, error) {
		return inv.Confirm(), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return inv, changed, err
}

// RenameCustomer changes the counterparty name on the invoice
func (s *Service) RenameCustomer(ctx context.Context, ref InvoiceRef, name string) (*ledger.Invoice, bool, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "rename_customer")
	defer span.End()

	inv, changed, err := s.mutate(ctx, ref, func(inv *ledger.Invoice) (bool, error) {
		return inv.RenameCustomer(name)
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return inv, changed, err
}

// SetDueDate changes the invoice due date
func (s *Service) SetDueDate(ctx context.Context, ref InvoiceRef, due time.Time) (*ledger.Invoice, bool, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "set_due_date")
	defer span.End()

	inv, changed, err := s.mutate(ctx, ref, func(inv *ledger.Invoice) (bool, error) {
		return inv.SetDueDate(due), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return inv, changed, err
}

// FindByRef resolves a reference to an invoice; shared.ErrNotFound when nothing matches
func (s *Service) FindByRef(ctx context.Context, ref InvoiceRef) (*ledger.Invoice, error) {
	raw := strings.TrimSpace(ref.Ref)

	var (
		inv *ledger.Invoice
		err error
	)
	if id, perr := uuid.Parse(raw); perr == nil {
		inv, err = s.repo.FindByID(ctx, id)
	} else if ledger.IsShortCode(raw) {
		inv, err = s.repo.FindByShortCode(ctx, raw)
	} else {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ref.MerchantID != uuid.Nil && inv.MerchantID != ref.MerchantID {
		return nil, shared.ErrNotFound
	}
	return inv, nil
}

// ListOpen returns the merchant's open invoices whose customer name contains
// nameFilter, newest first
func (s *Service) ListOpen(ctx context.Context, merchantID uuid.UUID, nameFilter string, limit int) ([]ledger.Invoice, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.repo.FindOpenByMerchant(ctx, merchantID, ledger.OpenInvoiceFilter{
		NameContains: strings.TrimSpace(nameFilter),
		Limit:        limit,
	})
}

// Summarize returns the merchant's open count, paid count and outstanding total
func (s *Service) Summarize(ctx context.Context, merchantID uuid.UUID) (*ledger.MerchantSummary, error) {
	return s.repo.Summarize(ctx, merchantID)
}

// mutate runs the optimistic read-modify-write loop. fn reports whether it
// changed the invoice; unchanged invoices are not saved and emit nothing.
func (s *Service) mutate(ctx context.Context, ref InvoiceRef, fn func(*ledger.Invoice) (bool, error)) (*ledger.Invoice, bool, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		inv, err := s.FindByRef(ctx, ref)
		if err != nil {
			return nil, false, err
		}

		changed, err := fn(inv)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return inv, false, nil
		}

		err = s.repo.SaveWithLock(ctx, inv)
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			s.logger.Debug("Invoice changed underneath, retrying",
				zap.String("short_code", inv.ShortCode),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to save invoice: %w", err)
		}

		s.publish(ctx, inv)
		return inv, true, nil
	}

	s.logger.Warn("Giving up on contended invoice",
		zap.String("ref", ref.Ref),
		zap.Int("attempts", s.maxAttempts),
	)
	return nil, false, shared.ErrConcurrencyConflict
}

// publish hands committed events to the bus. Failures are logged; the
// mutation already stands.
func (s *Service) publish(ctx context.Context, inv *ledger.Invoice) {
	events := inv.GetDomainEvents()
	inv.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish invoice events",
			zap.String("short_code", inv.ShortCode),
			zap.Error(err),
		)
	}
}

func outcomeFor(err error) string {
	switch {
	case shared.IsNotFound(err):
		return "not_found"
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidMethod):
		return "invalid"
	default:
		return "error"
	}
}
