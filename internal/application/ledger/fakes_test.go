package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
)

// memInvoiceRepo is an in-memory InvoiceRepository with real version checks
type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]ledger.Invoice

	// conflictsLeft forces that many SaveWithLock calls to fail
	conflictsLeft int
	// takenCodes are reported as existing by ExistsByShortCode
	takenCodes map[string]bool
	// racedCodes pass the existence check but fail on insert
	racedCodes map[string]bool
	saves      int
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{
		invoices:   make(map[uuid.UUID]ledger.Invoice),
		takenCodes: make(map[string]bool),
		racedCodes: make(map[string]bool),
	}
}

func clone(inv ledger.Invoice) *ledger.Invoice {
	inv.Payments = append(ledger.Payments{}, inv.Payments...)
	inv.ClearDomainEvents()
	return &inv
}

func (r *memInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return clone(inv), nil
}

func (r *memInvoiceRepo) FindByShortCode(_ context.Context, code string) (*ledger.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code = ledger.NormalizeShortCode(code)
	for _, inv := range r.invoices {
		if inv.ShortCode == code {
			return clone(inv), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memInvoiceRepo) ExistsByShortCode(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.takenCodes[code] {
		return true, nil
	}
	for _, inv := range r.invoices {
		if inv.ShortCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *memInvoiceRepo) FindOpenByMerchant(_ context.Context, merchantID uuid.UUID, filter ledger.OpenInvoiceFilter) ([]ledger.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Invoice
	for _, inv := range r.invoices {
		if inv.MerchantID != merchantID || !inv.IsOpen() {
			continue
		}
		if filter.NameContains != "" && !strings.Contains(strings.ToLower(inv.CustomerName), strings.ToLower(filter.NameContains)) {
			continue
		}
		out = append(out, *clone(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memInvoiceRepo) Summarize(_ context.Context, merchantID uuid.UUID) (*ledger.MerchantSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &ledger.MerchantSummary{TotalOutstanding: decimal.Zero}
	for _, inv := range r.invoices {
		if inv.MerchantID != merchantID {
			continue
		}
		if inv.IsOpen() {
			s.OpenCount++
			s.TotalOutstanding = s.TotalOutstanding.Add(inv.Balance())
		} else {
			s.PaidCount++
		}
	}
	return s, nil
}

func (r *memInvoiceRepo) Create(_ context.Context, inv *ledger.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.racedCodes[inv.ShortCode] {
		return ledger.ErrDuplicateShortCode
	}
	for _, existing := range r.invoices {
		if existing.ShortCode == inv.ShortCode {
			return ledger.ErrDuplicateShortCode
		}
	}
	r.invoices[inv.ID] = *clone(*inv)
	return nil
}

func (r *memInvoiceRepo) SaveWithLock(_ context.Context, inv *ledger.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return shared.ErrConcurrencyConflict
	}
	current, ok := r.invoices[inv.ID]
	if !ok || current.Version != inv.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.invoices[inv.ID] = *clone(*inv)
	return nil
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

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// sequenceCodes returns a generator yielding codes in order
func sequenceCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}
