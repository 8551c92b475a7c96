package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoice(t *testing.T, total int64) *Invoice {
	t.Helper()
	inv, err := NewInvoice(uuid.New(), "ABC234", "John Okafor", "2 bags of rice", decimal.NewFromInt(total), nil)
	require.NoError(t, err)
	inv.ClearDomainEvents()
	return inv
}

func TestNewInvoice(t *testing.T) {
	t.Run("creates unpaid invoice and raises created event", func(t *testing.T) {
		inv, err := NewInvoice(uuid.New(), "abc234", "  John   Okafor ", "rice", decimal.NewFromInt(50000), nil)
		require.NoError(t, err)
		assert.Equal(t, "ABC234", inv.ShortCode)
		assert.Equal(t, "John Okafor", inv.CustomerName)
		assert.Equal(t, InvoiceStatusUnpaid, inv.Status())
		assert.Equal(t, 1, inv.Version)
		require.Len(t, inv.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeInvoiceCreated, inv.GetDomainEvents()[0].EventType())
	})

	tests := []struct {
		name     string
		merchant uuid.UUID
		code     string
		customer string
		total    decimal.Decimal
		wantErr  error
	}{
		{"nil merchant", uuid.Nil, "ABC234", "John", decimal.NewFromInt(10), nil},
		{"bad code", uuid.New(), "ABC10I", "John", decimal.NewFromInt(10), ErrInvalidShortCode},
		{"empty customer", uuid.New(), "ABC234", "   ", decimal.NewFromInt(10), ErrInvalidCustomer},
		{"zero total", uuid.New(), "ABC234", "John", decimal.Zero, ErrInvalidAmount},
		{"negative total", uuid.New(), "ABC234", "John", decimal.NewFromInt(-5), ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInvoice(tt.merchant, tt.code, tt.customer, "", tt.total, nil)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	total := decimal.NewFromInt(50000)
	assert.Equal(t, InvoiceStatusUnpaid, StatusFor(total, decimal.Zero))
	assert.Equal(t, InvoiceStatusPartial, StatusFor(total, decimal.NewFromInt(1)))
	assert.Equal(t, InvoiceStatusPartial, StatusFor(total, decimal.NewFromInt(49999)))
	assert.Equal(t, InvoiceStatusPaid, StatusFor(total, total))
	assert.Equal(t, InvoiceStatusPaid, StatusFor(total, decimal.NewFromInt(60000)))
}

func TestInvoice_ApplyPayment(t *testing.T) {
	t.Run("status follows payments after every call", func(t *testing.T) {
		inv := newTestInvoice(t, 50000)
		steps := []struct {
			amount int64
			want   InvoiceStatus
		}{
			{10000, InvoiceStatusPartial},
			{20000, InvoiceStatusPartial},
			{20000, InvoiceStatusPaid},
			{5000, InvoiceStatusPaid},
		}
		for _, s := range steps {
			applied, err := inv.ApplyPayment(decimal.NewFromInt(s.amount), PaymentMethodCash, time.Time{}, "")
			require.NoError(t, err)
			assert.True(t, applied)
			assert.Equal(t, s.want, inv.Status())
		}
		assert.True(t, inv.Balance().IsZero())
		assert.Equal(t, "55000", inv.AmountPaid().String())
	})

	t.Run("referenced payment is idempotent", func(t *testing.T) {
		inv := newTestInvoice(t, 50000)
		_, err := inv.ApplyPayment(decimal.NewFromInt(30000), PaymentMethodCash, time.Time{}, "")
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusPartial, inv.Status())
		assert.Equal(t, "20000", inv.Balance().String())

		applied, err := inv.ApplyPayment(decimal.NewFromInt(20000), PaymentMethodProvider, time.Time{}, "R1")
		require.NoError(t, err)
		assert.True(t, applied)
		version := inv.Version

		applied, err = inv.ApplyPayment(decimal.NewFromInt(20000), PaymentMethodProvider, time.Time{}, "R1")
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, version, inv.Version)

		require.Len(t, inv.Payments, 2)
		assert.Equal(t, "", inv.Payments[0].ExternalReference)
		assert.Equal(t, "R1", inv.Payments[1].ExternalReference)
		assert.Equal(t, InvoiceStatusPaid, inv.Status())
		assert.Len(t, inv.GetDomainEvents(), 2)
	})

	t.Run("unreferenced duplicates are both kept", func(t *testing.T) {
		inv := newTestInvoice(t, 50000)
		for i := 0; i < 2; i++ {
			applied, err := inv.ApplyPayment(decimal.NewFromInt(1000), PaymentMethodCash, time.Time{}, "")
			require.NoError(t, err)
			assert.True(t, applied)
		}
		assert.Len(t, inv.Payments, 2)
	})

	t.Run("rejects non-positive amount and unknown method", func(t *testing.T) {
		inv := newTestInvoice(t, 50000)
		_, err := inv.ApplyPayment(decimal.Zero, PaymentMethodCash, time.Time{}, "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = inv.ApplyPayment(decimal.NewFromInt(1), PaymentMethod("barter"), time.Time{}, "")
		assert.ErrorIs(t, err, ErrInvalidMethod)
		assert.Empty(t, inv.Payments)
	})

	t.Run("event carries the status transition", func(t *testing.T) {
		inv := newTestInvoice(t, 100)
		_, err := inv.ApplyPayment(decimal.NewFromInt(100), PaymentMethodTransfer, time.Time{}, "")
		require.NoError(t, err)
		evt, ok := inv.GetDomainEvents()[0].(*PaymentAppliedEvent)
		require.True(t, ok)
		assert.Equal(t, InvoiceStatusUnpaid, evt.PreviousStatus)
		assert.Equal(t, InvoiceStatusPaid, evt.Status)
	})
}

func TestInvoice_Confirm(t *testing.T) {
	inv := newTestInvoice(t, 100)

	assert.True(t, inv.Confirm())
	require.NotNil(t, inv.ConfirmedAt)
	first := *inv.ConfirmedAt
	version := inv.Version

	assert.False(t, inv.Confirm())
	assert.True(t, inv.Confirmed)
	assert.Equal(t, first, *inv.ConfirmedAt)
	assert.Equal(t, version, inv.Version)
	assert.Len(t, inv.GetDomainEvents(), 1)
}

func TestInvoice_RenameAndDueDate(t *testing.T) {
	inv := newTestInvoice(t, 100)

	changed, err := inv.RenameCustomer("John O.")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "John O.", inv.CustomerName)

	changed, err = inv.RenameCustomer("John O.")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = inv.RenameCustomer("")
	assert.ErrorIs(t, err, ErrInvalidCustomer)

	due := time.Date(2026, 3, 1, 15, 4, 0, 0, time.UTC)
	assert.True(t, inv.SetDueDate(due))
	assert.False(t, inv.SetDueDate(due.Add(2*time.Hour)))
	assert.Equal(t, "2026-03-01", inv.DueDate.Format(time.DateOnly))
	assert.Equal(t, InvoiceStatusUnpaid, inv.Status())
}

func TestPayments_ValueScan(t *testing.T) {
	inv := newTestInvoice(t, 100)
	_, err := inv.ApplyPayment(decimal.NewFromInt(40), PaymentMethodCash, time.Time{}, "R9")
	require.NoError(t, err)

	v, err := inv.Payments.Value()
	require.NoError(t, err)

	var got Payments
	require.NoError(t, got.Scan(v))
	require.Len(t, got, 1)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "R9", got[0].ExternalReference)

	var empty Payments
	require.NoError(t, empty.Scan(nil))
	assert.Empty(t, empty)
	assert.Error(t, empty.Scan(42))
}
