package reconciliation

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	ledgerapp "github.com/tallyline/backend/internal/application/ledger"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// EventChargeSuccess is the only provider event that moves money
const EventChargeSuccess = "charge.success"

var (
	// ErrSignatureMismatch is returned before any parsing when the body is not signed with our secret
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	// ErrInvalidPayload is returned for a correctly signed body that cannot be used
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

// Outcome describes what a delivery did to the ledger
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeUnknownInvoice Outcome = "unknown_invoice"
)

// PaymentApplier records payments against invoices
type PaymentApplier interface {
	ApplyPayment(ctx context.Context, ref ledgerapp.InvoiceRef, in ledgerapp.PaymentInput) (*ledger.Invoice, bool, error)
}

// WebhookResult is the acknowledgement of one delivery
type WebhookResult struct {
	Outcome   Outcome
	Event     string
	Reference string
	ShortCode string
	Invoice   *ledger.Invoice
}

// webhookPayload is the provider's charge event
type webhookPayload struct {
	Event string      `json:"event" validate:"required"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	Reference string `json:"reference"`
	// Amount is in minor units (kobo)
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Channel  string          `json:"channel"`
	PaidAt   string          `json:"paid_at"`
	Metadata webhookMetadata `json:"metadata"`
}

type webhookMetadata struct {
	InvoiceCode string `json:"invoice_code"`
}

// chargeFields are the parts of a charge.success event that must be present
type chargeFields struct {
	Reference   string `validate:"required,max=200"`
	Amount      int64  `validate:"gt=0"`
	InvoiceCode string `validate:"required"`
}

// WebhookService reconciles provider payment webhooks into the ledger
type WebhookService struct {
	ledger   PaymentApplier
	secret   []byte
	validate *validator.Validate
	metrics  *telemetry.LedgerMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewWebhookService creates a new WebhookService. An empty secret rejects
// every delivery.
func NewWebhookService(applier PaymentApplier, secret string, metrics *telemetry.LedgerMetrics, logger *zap.Logger) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookService{
		ledger:   applier,
		secret:   []byte(secret),
		validate: validator.New(),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Process verifies, decodes and applies one delivery. Retried deliveries of
// the same reference are acknowledged as duplicates without a second payment.
// Only storage failures are returned as plain errors; those are safe to retry.
func (s *WebhookService) Process(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "process_webhook")
	defer span.End()

	if !s.verify(rawBody, signature) {
		s.metrics.RecordWebhook(ctx, "signature_mismatch")
		s.logger.Error("Rejected payment webhook with invalid signature",
			zap.Bool("security_event", true),
			zap.Bool("signature_present", signature != ""),
			zap.Int("body_bytes", len(rawBody)),
		)
		return nil, ErrSignatureMismatch
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		s.metrics.RecordWebhook(ctx, "invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := s.validate.Struct(payload); err != nil {
		s.metrics.RecordWebhook(ctx, "invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	result := &WebhookResult{Event: payload.Event, Reference: payload.Data.Reference}
	if payload.Event != EventChargeSuccess {
		result.Outcome = OutcomeIgnored
		s.metrics.RecordWebhook(ctx, string(OutcomeIgnored))
		s.logger.Info("Ignoring payment webhook event", zap.String("event", payload.Event))
		return result, nil
	}

	data := payload.Data
	code := strings.TrimSpace(data.Metadata.InvoiceCode)
	if err := s.validate.Struct(chargeFields{Reference: data.Reference, Amount: data.Amount, InvoiceCode: code}); err != nil {
		s.metrics.RecordWebhook(ctx, "invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	result.ShortCode = ledger.NormalizeShortCode(code)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrShortCode, result.ShortCode,
		telemetry.SpanAttrExternalRef, data.Reference,
	)

	inv, applied, err := s.ledger.ApplyPayment(ctx, ledgerapp.ByRef(code), ledgerapp.PaymentInput{
		Amount:            decimal.New(data.Amount, -2),
		Method:            ledger.PaymentMethodProvider,
		ExternalReference: data.Reference,
		PaidAt:            s.paidAt(data.PaidAt),
	})
	switch {
	case shared.IsNotFound(err):
		result.Outcome = OutcomeUnknownInvoice
		s.metrics.RecordWebhook(ctx, string(OutcomeUnknownInvoice))
		s.logger.Warn("Payment webhook references an unknown invoice",
			zap.String("short_code", result.ShortCode),
			zap.String("reference", data.Reference),
		)
		return result, nil
	case err != nil:
		telemetry.RecordError(span, err)
		s.metrics.RecordWebhook(ctx, "failed")
		return nil, fmt.Errorf("failed to apply provider payment %s: %w", data.Reference, err)
	}

	result.Invoice = inv
	if applied {
		result.Outcome = OutcomeApplied
	} else {
		result.Outcome = OutcomeDuplicate
	}
	s.metrics.RecordWebhook(ctx, string(result.Outcome))
	s.logger.Info("Payment webhook processed",
		zap.String("outcome", string(result.Outcome)),
		zap.String("short_code", inv.ShortCode),
		zap.String("reference", data.Reference),
		zap.String("currency", data.Currency),
		zap.String("channel", data.Channel),
	)
	return result, nil
}

// verify compares the hex HMAC-SHA512 of the body in constant time
func (s *WebhookService) verify(body []byte, signature string) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, s.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (s *WebhookService) paidAt(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return s.now()
}

// Sign returns the signature a provider would send for body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
