package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	ledgerapp "github.com/tallyline/backend/internal/application/ledger"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/config"
	"github.com/tallyline/backend/internal/infrastructure/persistence"
)

const testSecret = "sk_test_webhook"

func newLedger(t *testing.T) (*ledgerapp.Service, *persistence.GormInvoiceRepository) {
	t.Helper()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: persistence.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.AutoMigrate())

	repo := persistence.NewGormInvoiceRepository(db.DB)
	return ledgerapp.NewService(ledgerapp.ServiceConfig{Repo: repo}), repo
}

func chargeBody(t *testing.T, event, reference, code string, kobo int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": event,
		"data": map[string]any{
			"reference": reference,
			"amount":    kobo,
			"currency":  "NGN",
			"channel":   "card",
			"paid_at":   "2026-03-01T10:00:00Z",
			"metadata":  map[string]any{"invoice_code": code},
		},
	})
	require.NoError(t, err)
	return body
}

// mockApplier is a mock implementation of PaymentApplier
type mockApplier struct {
	mock.Mock
}

func (m *mockApplier) ApplyPayment(ctx context.Context, ref ledgerapp.InvoiceRef, in ledgerapp.PaymentInput) (*ledger.Invoice, bool, error) {
	args := m.Called(ctx, ref, in)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*ledger.Invoice), args.Bool(1), args.Error(2)
}

func TestWebhookService_ManualPlusRetriedWebhookSettlesOnce(t *testing.T) {
	ctx := context.Background()
	svc, repo := newLedger(t)
	merchantID := uuid.New()

	inv, err := svc.CreateInvoice(ctx, ledgerapp.CreateInvoiceInput{
		MerchantID:   merchantID,
		CustomerName: "Tunde",
		Total:        decimal.NewFromInt(50000),
	})
	require.NoError(t, err)
	_, _, err = svc.ApplyPayment(ctx, ledgerapp.ByRef(inv.ShortCode), ledgerapp.PaymentInput{
		Amount: decimal.NewFromInt(30000),
		Method: ledger.PaymentMethodCash,
	})
	require.NoError(t, err)

	webhooks := NewWebhookService(svc, testSecret, nil, nil)
	body := chargeBody(t, EventChargeSuccess, "R1", inv.ShortCode, 2_000_000)

	first, err := webhooks.Process(ctx, body, Sign(testSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, first.Outcome)

	second, err := webhooks.Process(ctx, body, Sign(testSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	stored, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.InvoiceStatusPaid, stored.Status())
	assert.True(t, decimal.NewFromInt(50000).Equal(stored.AmountPaid()))
	require.Len(t, stored.Payments, 2)
	assert.Equal(t, ledger.PaymentMethodProvider, stored.Payments[1].Method)
	assert.Equal(t, "R1", stored.Payments[1].ExternalReference)
}

func TestWebhookService_ConcurrentDeliveriesApplyOnce(t *testing.T) {
	ctx := context.Background()
	svc, repo := newLedger(t)
	inv, err := svc.CreateInvoice(ctx, ledgerapp.CreateInvoiceInput{
		MerchantID:   uuid.New(),
		CustomerName: "Kemi",
		Total:        decimal.NewFromInt(10000),
	})
	require.NoError(t, err)

	webhooks := NewWebhookService(svc, testSecret, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		for _, ref := range []string{"R1", "R2"} {
			wg.Add(1)
			go func(ref string) {
				defer wg.Done()
				body := chargeBody(t, EventChargeSuccess, ref, inv.ShortCode, 100_000)
				_, err := webhooks.Process(ctx, body, Sign(testSecret, body))
				assert.NoError(t, err)
			}(ref)
		}
	}
	wg.Wait()

	stored, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Payments, 2)
	assert.True(t, decimal.NewFromInt(2000).Equal(stored.AmountPaid()))
}

func TestWebhookService_Signature(t *testing.T) {
	ctx := context.Background()
	applier := &mockApplier{}
	webhooks := NewWebhookService(applier, testSecret, nil, nil)
	body := chargeBody(t, EventChargeSuccess, "R1", "K7P2QX", 100)

	tests := map[string]string{
		"missing":      "",
		"wrong secret": Sign("other", body),
		"not hex":      "not-a-signature",
		"truncated":    Sign(testSecret, body)[:64],
	}
	for name, sig := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := webhooks.Process(ctx, body, sig)
			assert.ErrorIs(t, err, ErrSignatureMismatch)
		})
	}

	t.Run("checked before parsing", func(t *testing.T) {
		_, err := webhooks.Process(ctx, []byte("not json"), "")
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("empty secret rejects everything", func(t *testing.T) {
		_, err := NewWebhookService(applier, "", nil, nil).Process(ctx, body, Sign("", body))
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	applier.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookService_Payloads(t *testing.T) {
	ctx := context.Background()

	t.Run("other events are ignored", func(t *testing.T) {
		applier := &mockApplier{}
		body := chargeBody(t, "transfer.success", "R9", "K7P2QX", 100)
		res, err := NewWebhookService(applier, testSecret, nil, nil).Process(ctx, body, Sign(testSecret, body))
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, res.Outcome)
		applier.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("amount is converted from minor units", func(t *testing.T) {
		applier := &mockApplier{}
		applier.On("ApplyPayment", mock.Anything, ledgerapp.ByRef("k7p2qx"), mock.MatchedBy(func(in ledgerapp.PaymentInput) bool {
			return in.Amount.Equal(decimal.RequireFromString("1234.56")) &&
				in.Method == ledger.PaymentMethodProvider &&
				in.ExternalReference == "R5"
		})).Return(&ledger.Invoice{ShortCode: "K7P2QX"}, true, nil)

		body := chargeBody(t, EventChargeSuccess, "R5", "k7p2qx", 123456)
		res, err := NewWebhookService(applier, testSecret, nil, nil).Process(ctx, body, Sign(testSecret, body))
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, res.Outcome)
		assert.Equal(t, "K7P2QX", res.ShortCode)
		applier.AssertExpectations(t)
	})

	t.Run("unknown invoice is acknowledged", func(t *testing.T) {
		applier := &mockApplier{}
		applier.On("ApplyPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil, false, shared.ErrNotFound)

		body := chargeBody(t, EventChargeSuccess, "R6", "ZZZZZZ", 100)
		res, err := NewWebhookService(applier, testSecret, nil, nil).Process(ctx, body, Sign(testSecret, body))
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnknownInvoice, res.Outcome)
	})

	t.Run("storage failure is returned for retry", func(t *testing.T) {
		applier := &mockApplier{}
		boom := errors.New("connection refused")
		applier.On("ApplyPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil, false, boom)

		body := chargeBody(t, EventChargeSuccess, "R7", "K7P2QX", 100)
		_, err := NewWebhookService(applier, testSecret, nil, nil).Process(ctx, body, Sign(testSecret, body))
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrInvalidPayload)
	})

	invalid := map[string][]byte{
		"not json":        []byte(`{"event":`),
		"no event":        []byte(`{"data":{}}`),
		"no reference":    chargeBody(t, EventChargeSuccess, "", "K7P2QX", 100),
		"zero amount":     chargeBody(t, EventChargeSuccess, "R8", "K7P2QX", 0),
		"no invoice code": chargeBody(t, EventChargeSuccess, "R8", "", 100),
	}
	for name, body := range invalid {
		t.Run(fmt.Sprintf("invalid: %s", name), func(t *testing.T) {
			_, err := NewWebhookService(&mockApplier{}, testSecret, nil, nil).Process(ctx, body, Sign(testSecret, body))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}
