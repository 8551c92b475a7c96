package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
)

// mockNotifier is a mock implementation of Notifier
type mockNotifier struct {
	mock.Mock
	name string
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Notify(ctx context.Context, event shared.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// recordingNotifier keeps the order events arrive in
type recordingNotifier struct {
	mu    sync.Mutex
	ids   []uuid.UUID
	block chan struct{}
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, event shared.DomainEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, event.EventID())
	return nil
}

func (r *recordingNotifier) received() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.ids...)
}

// mockMerchants is a mock implementation of conversation.MerchantRepository
type mockMerchants struct {
	mock.Mock
}

func (m *mockMerchants) FindByAddress(ctx context.Context, addr conversation.Address) (*conversation.Merchant, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Merchant), args.Error(1)
}

func (m *mockMerchants) FindByID(ctx context.Context, id uuid.UUID) (*conversation.Merchant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Merchant), args.Error(1)
}

// mockSender is a mock implementation of the reply sender
type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, to conversation.Address, text string) error {
	args := m.Called(ctx, to, text)
	return args.Error(0)
}

func testInvoice(merchantID uuid.UUID) *ledger.Invoice {
	inv, err := ledger.NewInvoice(merchantID, "ABC234", "Tunde", "rice", decimal.NewFromInt(50000), nil)
	if err != nil {
		panic(err)
	}
	return inv
}

func paymentEvent(merchantID uuid.UUID, method ledger.PaymentMethod, amount int64, status ledger.InvoiceStatus, balance int64) *ledger.PaymentAppliedEvent {
	e := ledger.NewPaymentAppliedEvent(testInvoice(merchantID), ledger.Payment{
		ID:     uuid.New(),
		Amount: decimal.NewFromInt(amount),
		Method: method,
	}, ledger.InvoiceStatusUnpaid)
	e.Status = status
	e.Balance = decimal.NewFromInt(balance)
	return e
}
