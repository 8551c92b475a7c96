package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/config"
	"github.com/tallyline/backend/internal/infrastructure/persistence"
)

func TestChannelNotifier(t *testing.T) {
	ctx := context.Background()
	merchant := &conversation.Merchant{ID: uuid.New(), Address: "2348031234567", Name: "Ada"}

	t.Run("provider payment reaches the merchant", func(t *testing.T) {
		merchants := &mockMerchants{}
		merchants.On("FindByID", mock.Anything, merchant.ID).Return(merchant, nil)
		sender := &mockSender{}
		sender.On("SendText", mock.Anything, merchant.Address,
			"Payment received: Tunde paid ₦20,000 online for ABC234. Balance is now ₦30,000.").Return(nil)

		n := NewChannelNotifier(merchants, sender)
		err := n.Notify(ctx, paymentEvent(merchant.ID, ledger.PaymentMethodProvider, 20000, ledger.InvoiceStatusPartial, 30000))

		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("settling payment says fully paid", func(t *testing.T) {
		merchants := &mockMerchants{}
		merchants.On("FindByID", mock.Anything, merchant.ID).Return(merchant, nil)
		sender := &mockSender{}
		sender.On("SendText", mock.Anything, merchant.Address,
			"Payment received: Tunde paid ₦50,000 online for ABC234. The invoice is now fully paid.").Return(nil)

		err := NewChannelNotifier(merchants, sender).
			Notify(ctx, paymentEvent(merchant.ID, ledger.PaymentMethodProvider, 50000, ledger.InvoiceStatusPaid, 0))

		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("confirmation reaches the merchant", func(t *testing.T) {
		merchants := &mockMerchants{}
		merchants.On("FindByID", mock.Anything, merchant.ID).Return(merchant, nil)
		sender := &mockSender{}
		sender.On("SendText", mock.Anything, merchant.Address, "Tunde confirmed invoice ABC234.").Return(nil)

		err := NewChannelNotifier(merchants, sender).
			Notify(ctx, ledger.NewInvoiceConfirmedEvent(testInvoice(merchant.ID)))

		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("cash payments stay quiet", func(t *testing.T) {
		merchants := &mockMerchants{}
		sender := &mockSender{}

		err := NewChannelNotifier(merchants, sender).
			Notify(ctx, paymentEvent(merchant.ID, ledger.PaymentMethodCash, 1000, ledger.InvoiceStatusPartial, 49000))

		require.NoError(t, err)
		merchants.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown merchant is an error", func(t *testing.T) {
		merchants := &mockMerchants{}
		merchants.On("FindByID", mock.Anything, merchant.ID).Return(nil, shared.ErrNotFound)

		err := NewChannelNotifier(merchants, &mockSender{}).
			Notify(ctx, ledger.NewInvoiceConfirmedEvent(testInvoice(merchant.ID)))

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("send failure is returned", func(t *testing.T) {
		merchants := &mockMerchants{}
		merchants.On("FindByID", mock.Anything, merchant.ID).Return(merchant, nil)
		sender := &mockSender{}
		sender.On("SendText", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("rate limited"))

		err := NewChannelNotifier(merchants, sender).
			Notify(ctx, ledger.NewInvoiceConfirmedEvent(testInvoice(merchant.ID)))

		assert.EqualError(t, err, "rate limited")
	})
}

func TestInAppNotifier(t *testing.T) {
	ctx := context.Background()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: persistence.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.AutoMigrate())
	repo := persistence.NewGormNotificationRepository(db.DB)
	n := NewInAppNotifier(repo)
	merchantID := uuid.New()

	payment := paymentEvent(merchantID, ledger.PaymentMethodProvider, 20000, ledger.InvoiceStatusPaid, 0)
	require.NoError(t, n.Notify(ctx, payment))
	// a redelivered event is already on the dashboard
	require.NoError(t, n.Notify(ctx, payment))
	require.NoError(t, n.Notify(ctx, conversation.NewSupportRequestedEvent(
		&conversation.Merchant{ID: merchantID, Address: "2348031234567"}, "talk to a human")))
	// not something the dashboard shows
	require.NoError(t, n.Notify(ctx, ledger.NewInvoiceUpdatedEvent(testInvoice(merchantID), ledger.InvoiceFieldDueDate, "", "2026-04-01")))

	got, err := repo.ListByMerchant(ctx, merchantID, false, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byType := map[string]string{}
	for _, note := range got {
		byType[note.EventType] = note.Title
		if note.EventType == ledger.EventTypePaymentApplied {
			assert.Equal(t, payment.EventID(), note.EventID)
			assert.Equal(t, "Tunde paid ₦20,000 by provider. Balance ₦0.", note.Body)
		}
	}
	assert.Equal(t, "Invoice ABC234 fully paid", byType[ledger.EventTypePaymentApplied])
	assert.Equal(t, "Support requested", byType[conversation.EventTypeSupportRequested])
}
