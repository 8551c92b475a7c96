package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tallyline/backend/internal/domain/ledger"
)

// MaxChoiceOptions caps the numbered menu shown during disambiguation
const MaxChoiceOptions = 5

// Flow tags the variant of a live session
type Flow string

const (
	FlowAwaitingPaymentChoice Flow = "awaiting_payment_choice"
	FlowAwaitingRenameChoice  Flow = "awaiting_rename_choice"
	FlowAwaitingDueDateChoice Flow = "awaiting_due_date_choice"
	FlowActiveContext         Flow = "active_context"
	FlowCollectingInfo        Flow = "collecting_info"
)

// SessionState is one variant of the per-address state machine.
// Idle is represented by the absence of a session.
type SessionState interface {
	Flow() Flow
	sessionState()
}

// ChoiceState is a session state holding an outstanding numbered menu
type ChoiceState interface {
	SessionState
	ChoiceOptions() []ChoiceOption
}

// ChoiceOption is one line of a disambiguation menu
type ChoiceOption struct {
	InvoiceID    uuid.UUID       `json:"invoice_id"`
	ShortCode    string          `json:"short_code"`
	CustomerName string          `json:"customer_name"`
	Balance      decimal.Decimal `json:"balance"`
}

// AwaitingPaymentChoice defers a payment until the merchant picks an invoice.
// A nil Amount settles the selected invoice's full balance.
type AwaitingPaymentChoice struct {
	Options []ChoiceOption       `json:"options"`
	Amount  *decimal.Decimal     `json:"amount,omitempty"`
	Method  ledger.PaymentMethod `json:"method"`
}

// AwaitingRenameChoice defers a customer rename
type AwaitingRenameChoice struct {
	Options []ChoiceOption `json:"options"`
	NewName string         `json:"new_name"`
}

// AwaitingDueDateChoice defers a due date change
type AwaitingDueDateChoice struct {
	Options []ChoiceOption `json:"options"`
	DueDate time.Time      `json:"due_date"`
}

// ActiveContext remembers the last invoice created so follow-ups can omit the name
type ActiveContext struct {
	LastInvoiceID uuid.UUID `json:"last_invoice_id"`
	ShortCode     string    `json:"short_code"`
}

// MissingField names what a CollectingInfo session is waiting for
type MissingField string

const (
	MissingTotal MissingField = "total"
	MissingName  MissingField = "name"
)

// InvoiceDraft holds the fields gathered so far for an invoice
type InvoiceDraft struct {
	CustomerName string           `json:"customer_name,omitempty"`
	Description  string           `json:"description,omitempty"`
	Total        *decimal.Decimal `json:"total,omitempty"`
	AmountPaid   *decimal.Decimal `json:"amount_paid,omitempty"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
}

// CollectingInfo waits for the one field that kept a creation from completing
type CollectingInfo struct {
	Draft   InvoiceDraft `json:"draft"`
	Missing MissingField `json:"missing"`
}

func (AwaitingPaymentChoice) Flow() Flow { return FlowAwaitingPaymentChoice }
func (AwaitingRenameChoice) Flow() Flow  { return FlowAwaitingRenameChoice }
func (AwaitingDueDateChoice) Flow() Flow { return FlowAwaitingDueDateChoice }
func (ActiveContext) Flow() Flow         { return FlowActiveContext }
func (CollectingInfo) Flow() Flow        { return FlowCollectingInfo }

func (AwaitingPaymentChoice) sessionState() {}
func (AwaitingRenameChoice) sessionState()  {}
func (AwaitingDueDateChoice) sessionState() {}
func (ActiveContext) sessionState()         {}
func (CollectingInfo) sessionState()        {}

func (s AwaitingPaymentChoice) ChoiceOptions() []ChoiceOption { return s.Options }
func (s AwaitingRenameChoice) ChoiceOptions() []ChoiceOption  { return s.Options }
func (s AwaitingDueDateChoice) ChoiceOptions() []ChoiceOption { return s.Options }

// Session is the single live state row for an address
type Session struct {
	Address   Address
	State     SessionState
	ExpiresAt time.Time
}

// NewSession starts a session that expires ttl after now
func NewSession(addr Address, state SessionState, ttl time.Duration, now time.Time) *Session {
	return &Session{
		Address:   addr,
		State:     state,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the session is dead at now
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Choice returns the outstanding menu, if the session holds one
func (s *Session) Choice() (ChoiceState, bool) {
	if s == nil || s.State == nil {
		return nil, false
	}
	cs, ok := s.State.(ChoiceState)
	return cs, ok
}

// Describe renders the session as a short line of context for the classifier,
// such as "last invoice K7P2QX". It is empty for a nil session.
func (s *Session) Describe() string {
	if s == nil || s.State == nil {
		return ""
	}
	switch st := s.State.(type) {
	case ActiveContext:
		return "last invoice " + st.ShortCode
	case CollectingInfo:
		return describeDraft(st)
	case AwaitingPaymentChoice:
		return "choosing which invoice gets a payment: " + describeOptions(st.Options)
	case AwaitingRenameChoice:
		return fmt.Sprintf("choosing which invoice to rename to %q: %s", st.NewName, describeOptions(st.Options))
	case AwaitingDueDateChoice:
		return fmt.Sprintf("choosing which invoice is due %s: %s", st.DueDate.Format("2006-01-02"), describeOptions(st.Options))
	}
	return string(s.State.Flow())
}

func describeDraft(st CollectingInfo) string {
	parts := []string{"drafting an invoice"}
	if st.Draft.CustomerName != "" {
		parts = append(parts, "for "+st.Draft.CustomerName)
	}
	if st.Draft.Total != nil {
		parts = append(parts, "total "+st.Draft.Total.String())
	}
	if st.Draft.Description != "" {
		parts = append(parts, "item "+st.Draft.Description)
	}
	return strings.Join(parts, ", ") + ", waiting for " + string(st.Missing)
}

func describeOptions(opts []ChoiceOption) string {
	lines := make([]string, len(opts))
	for i, o := range opts {
		lines[i] = fmt.Sprintf("%d) %s (%s)", i+1, o.CustomerName, o.ShortCode)
	}
	return strings.Join(lines, ", ")
}

// SessionStore keeps at most one session per address.
// Get returns nil, nil for an absent or expired session; expiry is always
// checked at read time.
type SessionStore interface {
	Get(ctx context.Context, addr Address) (*Session, error)
	// Put replaces any existing session for the address
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, addr Address) error
}

type sessionEnvelope struct {
	Address   Address         `json:"address"`
	Flow      Flow            `json:"flow"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// MarshalSession encodes a session with its flow tag
func MarshalSession(s *Session) ([]byte, error) {
	if s.State == nil {
		return nil, fmt.Errorf("session for %s has no state", s.Address.Masked())
	}
	payload, err := json.Marshal(s.State)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sessionEnvelope{
		Address:   s.Address,
		Flow:      s.State.Flow(),
		Payload:   payload,
		ExpiresAt: s.ExpiresAt,
	})
}

// UnmarshalSession decodes a session produced by MarshalSession
func UnmarshalSession(data []byte) (*Session, error) {
	var env sessionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	var state SessionState
	var err error
	switch env.Flow {
	case FlowAwaitingPaymentChoice:
		state, err = decodeState[AwaitingPaymentChoice](env.Payload)
	case FlowAwaitingRenameChoice:
		state, err = decodeState[AwaitingRenameChoice](env.Payload)
	case FlowAwaitingDueDateChoice:
		state, err = decodeState[AwaitingDueDateChoice](env.Payload)
	case FlowActiveContext:
		state, err = decodeState[ActiveContext](env.Payload)
	case FlowCollectingInfo:
		state, err = decodeState[CollectingInfo](env.Payload)
	default:
		return nil, fmt.Errorf("unknown session flow %q", env.Flow)
	}
	if err != nil {
		return nil, err
	}

	return &Session{Address: env.Address, State: state, ExpiresAt: env.ExpiresAt}, nil
}

func decodeState[T SessionState](payload json.RawMessage) (SessionState, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}
