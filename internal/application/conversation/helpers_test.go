package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	ledgerapp "github.com/tallyline/backend/internal/application/ledger"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/cache"
	"github.com/tallyline/backend/internal/infrastructure/config"
	"github.com/tallyline/backend/internal/infrastructure/persistence"
)

const testAddress = conversation.Address("2348031234567")

// mockClassifier is a mock implementation of conversation.Classifier
type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, req conversation.ClassifyRequest) (*conversation.Intent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Intent), args.Error(1)
}

// mockSender is a mock implementation of ReplySender
type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, to conversation.Address, text string) error {
	args := m.Called(ctx, to, text)
	return args.Error(0)
}

// sentTexts returns the texts passed to SendText, in order
func (m *mockSender) sentTexts() []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method == "SendText" {
			out = append(out, c.Arguments.String(2))
		}
	}
	return out
}

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture wires a router and gateway over an in-memory sqlite ledger
type fixture struct {
	db         *persistence.Database
	ledger     *ledgerapp.Service
	invoices   *persistence.GormInvoiceRepository
	merchant   *conversation.Merchant
	classifier *mockClassifier
	sender     *mockSender
	publisher  *recordingPublisher
	sessions   *cache.InMemorySessionStore
	dedup      *cache.InMemoryIdempotencyStore
	clock      *fakeClock
	router     *Router
	gateway    *Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: persistence.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.AutoMigrate())

	merchant := &conversation.Merchant{
		ID:           uuid.New(),
		Address:      testAddress,
		Name:         "Ada",
		BusinessName: "Ada Provisions",
		CreatedAt:    time.Now(),
	}
	merchants := persistence.NewGormMerchantRepository(db.DB)
	require.NoError(t, merchants.Create(context.Background(), merchant))

	f := &fixture{
		db:         db,
		invoices:   persistence.NewGormInvoiceRepository(db.DB),
		merchant:   merchant,
		classifier: &mockClassifier{},
		sender:     &mockSender{},
		publisher:  &recordingPublisher{},
		clock:      newFakeClock(),
	}
	f.sessions = cache.NewInMemorySessionStoreWithClock(f.clock.Now)
	f.dedup = cache.NewInMemoryIdempotencyStoreWithClock(f.clock.Now)
	f.ledger = ledgerapp.NewService(ledgerapp.ServiceConfig{Repo: f.invoices, Publisher: f.publisher})
	f.router = NewRouter(RouterConfig{
		Ledger:            f.ledger,
		Classifier:        f.classifier,
		Publisher:         f.publisher,
		ClassifierTimeout: 200 * time.Millisecond,
		Now:               f.clock.Now,
	})
	f.gateway = NewGateway(GatewayConfig{
		Dedup:     f.dedup,
		Sessions:  f.sessions,
		Merchants: merchants,
		Router:    f.router,
		Sender:    f.sender,
		Now:       f.clock.Now,
	})
	f.sender.On("SendText", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return f
}

// createInvoice seeds an invoice directly through the ledger
func (f *fixture) createInvoice(t *testing.T, name string, total int64) *ledger.Invoice {
	t.Helper()
	inv, err := f.ledger.CreateInvoice(context.Background(), ledgerapp.CreateInvoiceInput{
		MerchantID:   f.merchant.ID,
		CustomerName: name,
		Total:        decimal.NewFromInt(total),
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) reload(t *testing.T, inv *ledger.Invoice) *ledger.Invoice {
	t.Helper()
	got, err := f.invoices.FindByID(context.Background(), inv.ID)
	require.NoError(t, err)
	return got
}

// expectIntent makes the classifier answer every call with intent
func (f *fixture) expectIntent(intent *conversation.Intent) *mock.Call {
	return f.classifier.On("Classify", mock.Anything, mock.Anything).Return(intent, nil)
}

func (f *fixture) turn(text string, session *conversation.Session) Turn {
	return Turn{Address: testAddress, Text: text, Merchant: f.merchant, Session: session}
}

func (f *fixture) session(state conversation.SessionState) *conversation.Session {
	return conversation.NewSession(testAddress, state, DefaultSessionTTL, f.clock.Now())
}

func (f *fixture) textMessage(id, text string) InboundMessage {
	return InboundMessage{ID: id, SenderAddress: "+" + string(testAddress), Text: text, MessageType: MessageTypeText}
}

func amount(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func ledgerRef(f *fixture, code string) ledgerapp.InvoiceRef {
	return ledgerapp.ByMerchantRef(f.merchant.ID, code)
}

func paymentOf(v int64) ledgerapp.PaymentInput {
	return ledgerapp.PaymentInput{Amount: decimal.NewFromInt(v), Method: ledger.PaymentMethodCash}
}
