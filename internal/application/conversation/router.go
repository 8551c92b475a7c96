package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	ledgerapp "github.com/tallyline/backend/internal/application/ledger"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultClassifierTimeout bounds one classifier call
	DefaultClassifierTimeout = 8 * time.Second
	// DefaultMinConfidence is the floor under which an intent is ignored
	DefaultMinConfidence = 0.35
	// MaxChoiceOptions caps a disambiguation menu
	MaxChoiceOptions = 5

	maxContextBalances = 10
	maxNameWords       = 3
)

// LedgerService is the subset of the ledger engine the router drives
type LedgerService interface {
	CreateInvoice(ctx context.Context, in ledgerapp.CreateInvoiceInput) (*ledger.Invoice, error)
	ApplyPayment(ctx context.Context, ref ledgerapp.InvoiceRef, in ledgerapp.PaymentInput) (*ledger.Invoice, bool, error)
	ConfirmInvoice(ctx context.Context, ref ledgerapp.InvoiceRef) (*ledger.Invoice, bool, error)
	RenameCustomer(ctx context.Context, ref ledgerapp.InvoiceRef, name string) (*ledger.Invoice, bool, error)
	SetDueDate(ctx context.Context, ref ledgerapp.InvoiceRef, due time.Time) (*ledger.Invoice, bool, error)
	FindByRef(ctx context.Context, ref ledgerapp.InvoiceRef) (*ledger.Invoice, error)
	ListOpen(ctx context.Context, merchantID uuid.UUID, nameFilter string, limit int) ([]ledger.Invoice, error)
	Summarize(ctx context.Context, merchantID uuid.UUID) (*ledger.MerchantSummary, error)
}

// SessionDirective tells the gateway what to do with the stored session
type SessionDirective int

const (
	// KeepSession leaves the stored session as it was
	KeepSession SessionDirective = iota
	// ReplaceSession stores Result.Next with a fresh TTL
	ReplaceSession
	// ClearSession returns the address to idle
	ClearSession
)

// Turn is one inbound text from a known merchant
type Turn struct {
	Address  conversation.Address
	Text     string
	Merchant *conversation.Merchant
	// Session is nil when the address is idle
	Session *conversation.Session
}

// Result is the outcome of routing one turn: exactly one reply and at most
// one ledger mutation.
type Result struct {
	Reply     string
	Mutated   bool
	Directive SessionDirective
	Next      conversation.SessionState
}

func keep(reply string) *Result {
	return &Result{Reply: reply, Directive: KeepSession}
}

func replaceWith(reply string, next conversation.SessionState, mutated bool) *Result {
	return &Result{Reply: reply, Mutated: mutated, Directive: ReplaceSession, Next: next}
}

// RouterConfig holds the collaborators of the router
type RouterConfig struct {
	Ledger     LedgerService
	Classifier conversation.Classifier
	Publisher  shared.EventPublisher
	Metrics    *telemetry.LedgerMetrics
	Logger     *zap.Logger
	// ClassifierTimeout defaults to DefaultClassifierTimeout
	ClassifierTimeout time.Duration
	// MinConfidence defaults to DefaultMinConfidence
	MinConfidence float64
	// ContextBalances caps the open-balance lines sent to the classifier
	ContextBalances int
	Now             func() time.Time
}

// Router turns merchant text into ledger operations and replies
type Router struct {
	ledger            LedgerService
	classifier        conversation.Classifier
	publisher         shared.EventPublisher
	metrics           *telemetry.LedgerMetrics
	logger            *zap.Logger
	classifierTimeout time.Duration
	minConfidence     float64
	contextBalances   int
	now               func() time.Time
}

// NewRouter creates a new Router
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		ledger:            cfg.Ledger,
		classifier:        cfg.Classifier,
		publisher:         cfg.Publisher,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		classifierTimeout: cfg.ClassifierTimeout,
		minConfidence:     cfg.MinConfidence,
		contextBalances:   cfg.ContextBalances,
		now:               cfg.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.classifierTimeout <= 0 {
		r.classifierTimeout = DefaultClassifierTimeout
	}
	if r.minConfidence <= 0 {
		r.minConfidence = DefaultMinConfidence
	}
	if r.contextBalances <= 0 {
		r.contextBalances = maxContextBalances
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Route handles one turn. A returned error means no reply could be built;
// the caller answers with an apology and leaves the session untouched.
func (r *Router) Route(ctx context.Context, turn Turn) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "conversation", "route",
		telemetry.SpanAttrMerchantID, turn.Merchant.ID.String())
	defer span.End()

	text := strings.TrimSpace(turn.Text)

	if choice, ok := turn.Session.Choice(); ok {
		if n, ok := parseChoice(text); ok {
			telemetry.SetAttributes(span, telemetry.SpanAttrFlow, string(choice.Flow()))
			return r.resolveChoice(ctx, turn, choice, n)
		}
	}

	if cmd, ok := parseCommand(text); ok {
		return r.runCommand(ctx, turn, cmd)
	}

	if turn.Session != nil {
		if draft, ok := turn.Session.State.(conversation.CollectingInfo); ok {
			if res, handled, err := r.continueDraft(ctx, turn, draft, text); handled || err != nil {
				return res, err
			}
		}
	}

	intent := r.classify(ctx, turn, text)
	if intent == nil {
		return keep(ReplyFallback), nil
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrIntent, string(intent.Type))

	switch intent.Type {
	case conversation.IntentCreateTransaction:
		return r.createFromIntent(ctx, turn, intent.Slots)
	case conversation.IntentCheckBalance:
		return r.checkBalance(ctx, turn, intent.Slots)
	case conversation.IntentUpdateRecord:
		return r.updateRecord(ctx, turn, intent.Slots)
	case conversation.IntentSupportRequest:
		r.publishSupport(ctx, turn, text)
		return keep(ReplySupport), nil
	default:
		return keep(cannedReply(intent.Slots.CannedReply)), nil
	}
}

// classify asks the classifier under a timeout. A nil intent means the
// deterministic fallback applies.
func (r *Router) classify(ctx context.Context, turn Turn, text string) *conversation.Intent {
	if r.classifier == nil {
		return nil
	}

	req := conversation.ClassifyRequest{
		Text:         text,
		MerchantName: turn.Merchant.DisplayName(),
	}
	if turn.Session != nil && turn.Session.State != nil {
		req.CurrentFlow = turn.Session.State.Flow()
		req.CurrentSession = turn.Session.Describe()
	}
	if open, err := r.ledger.ListOpen(ctx, turn.Merchant.ID, "", r.contextBalances); err == nil {
		for i := range open {
			req.OpenBalanceSummaries = append(req.OpenBalanceSummaries, balanceLine(&open[i]))
		}
	} else {
		r.logger.Warn("Failed to load open balances for classifier context", zap.Error(err))
	}

	cctx, cancel := context.WithTimeout(ctx, r.classifierTimeout)
	defer cancel()

	start := time.Now()
	intent, err := r.classifier.Classify(cctx, req)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		r.metrics.RecordClassifier(ctx, "", outcome, elapsed)
		r.logger.Warn("Classifier failed",
			zap.String("address", turn.Address.Masked()),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil
	case intent == nil || !intent.Type.IsValid():
		r.metrics.RecordClassifier(ctx, "", "invalid", elapsed)
		r.logger.Warn("Classifier returned an unknown intent", zap.String("address", turn.Address.Masked()))
		return nil
	case intent.Confidence < r.minConfidence:
		r.metrics.RecordClassifier(ctx, string(intent.Type), "low_confidence", elapsed)
		r.logger.Info("Classifier confidence below floor",
			zap.String("intent", string(intent.Type)),
			zap.Float64("confidence", intent.Confidence),
		)
		return nil
	}
	r.metrics.RecordClassifier(ctx, string(intent.Type), "ok", elapsed)
	return intent
}

func (r *Router) runCommand(ctx context.Context, turn Turn, cmd command) (*Result, error) {
	merchantID := turn.Merchant.ID

	switch cmd.kind {
	case cmdGreeting:
		return keep(greetingReply(turn.Merchant)), nil
	case cmdHelp:
		return keep(ReplyHelp), nil
	case cmdUsage:
		return keep(cmd.usage), nil
	case cmdStatus:
		summary, err := r.ledger.Summarize(ctx, merchantID)
		if err != nil {
			return nil, err
		}
		return keep(summaryReply(summary)), nil
	case cmdBalances:
		open, err := r.ledger.ListOpen(ctx, merchantID, cmd.filter, ledgerapp.DefaultListLimit)
		if err != nil {
			return nil, err
		}
		return keep(openListReply(open, cmd.filter)), nil
	case cmdPay:
		inv, applied, err := r.ledger.ApplyPayment(ctx, ledgerapp.ByMerchantRef(merchantID, cmd.code), ledgerapp.PaymentInput{
			Amount: cmd.amount,
			Method: cmd.method,
			PaidAt: r.now(),
		})
		if shared.IsNotFound(err) {
			return keep(notFoundCodeReply(cmd.code)), nil
		}
		if err != nil {
			return userErrorReply(err)
		}
		return &Result{Reply: paymentReply(inv, cmd.amount), Mutated: applied, Directive: KeepSession}, nil
	case cmdConfirm:
		inv, changed, err := r.ledger.ConfirmInvoice(ctx, ledgerapp.ByMerchantRef(merchantID, cmd.code))
		if shared.IsNotFound(err) {
			return keep(notFoundCodeReply(cmd.code)), nil
		}
		if err != nil {
			return nil, err
		}
		return &Result{Reply: confirmedReply(inv, changed), Mutated: changed, Directive: KeepSession}, nil
	}
	return keep(ReplyFallback), nil
}

// resolveChoice applies the deferred action to the selected option
func (r *Router) resolveChoice(ctx context.Context, turn Turn, choice conversation.ChoiceState, n int) (*Result, error) {
	options := choice.ChoiceOptions()
	if n < 1 || n > len(options) {
		return keep(invalidChoiceReply(len(options))), nil
	}
	target := options[n-1].InvoiceID.String()

	var (
		res *Result
		err error
	)
	switch s := choice.(type) {
	case conversation.AwaitingPaymentChoice:
		res, err = r.payInvoice(ctx, turn.Merchant.ID, target, s.Amount, s.Method)
	case conversation.AwaitingRenameChoice:
		res, err = r.renameInvoice(ctx, turn.Merchant.ID, target, s.NewName)
	case conversation.AwaitingDueDateChoice:
		res, err = r.setDueDate(ctx, turn.Merchant.ID, target, s.DueDate)
	default:
		return keep(ReplyFallback), nil
	}
	if err != nil {
		return nil, err
	}
	res.Directive = ClearSession
	res.Next = nil
	return res, nil
}

// continueDraft fills the missing field of a pending creation. handled is
// false when the text does not look like the missing field.
func (r *Router) continueDraft(ctx context.Context, turn Turn, state conversation.CollectingInfo, text string) (*Result, bool, error) {
	draft := state.Draft
	switch state.Missing {
	case conversation.MissingTotal:
		amount, ok := ParseAmount(text)
		if !ok {
			return nil, false, nil
		}
		draft.Total = &amount
	case conversation.MissingName:
		if !looksLikeName(text) {
			return nil, false, nil
		}
		draft.CustomerName = displayName(text)
	default:
		return nil, false, nil
	}
	res, err := r.createFromDraft(ctx, turn, draft)
	return res, true, err
}

func (r *Router) createFromIntent(ctx context.Context, turn Turn, slots conversation.Slots) (*Result, error) {
	var draft conversation.InvoiceDraft
	if turn.Session != nil {
		if pending, ok := turn.Session.State.(conversation.CollectingInfo); ok {
			draft = pending.Draft
		}
	}
	if name := strings.TrimSpace(slots.CounterpartyName); name != "" {
		draft.CustomerName = displayName(name)
	}
	if slots.Item != "" {
		draft.Description = strings.TrimSpace(slots.Item)
	}
	if slots.Total != nil {
		draft.Total = slots.Total
	}
	if slots.AmountPaid != nil {
		draft.AmountPaid = slots.AmountPaid
	}
	if slots.DueDate != nil {
		draft.DueDate = slots.DueDate
	}
	return r.createFromDraft(ctx, turn, draft)
}

// createFromDraft creates the invoice once total and name are known, and
// otherwise asks for what is missing without touching the ledger.
func (r *Router) createFromDraft(ctx context.Context, turn Turn, draft conversation.InvoiceDraft) (*Result, error) {
	if draft.Total == nil || !draft.Total.IsPositive() {
		draft.Total = nil
		return replaceWith(ReplyAskTotal, conversation.CollectingInfo{Draft: draft, Missing: conversation.MissingTotal}, false), nil
	}
	if strings.TrimSpace(draft.CustomerName) == "" {
		return replaceWith(ReplyAskName, conversation.CollectingInfo{Draft: draft, Missing: conversation.MissingName}, false), nil
	}

	in := ledgerapp.CreateInvoiceInput{
		MerchantID:   turn.Merchant.ID,
		CustomerName: draft.CustomerName,
		Description:  draft.Description,
		Total:        *draft.Total,
		DueDate:      draft.DueDate,
	}
	if draft.AmountPaid != nil && draft.AmountPaid.IsPositive() {
		in.InitialPayment = &ledgerapp.PaymentInput{
			Amount: *draft.AmountPaid,
			Method: ledger.PaymentMethodCash,
			PaidAt: r.now(),
		}
	}

	inv, err := r.ledger.CreateInvoice(ctx, in)
	if err != nil {
		return userErrorReply(err)
	}
	next := conversation.ActiveContext{LastInvoiceID: inv.ID, ShortCode: inv.ShortCode}
	return replaceWith(createdReply(inv), next, true), nil
}

func (r *Router) checkBalance(ctx context.Context, turn Turn, slots conversation.Slots) (*Result, error) {
	name := strings.TrimSpace(slots.CounterpartyName)
	if name == "" {
		if active, ok := activeContext(turn.Session); ok {
			inv, err := r.ledger.FindByRef(ctx, ledgerapp.ByMerchantRef(turn.Merchant.ID, active.LastInvoiceID.String()))
			switch {
			case err == nil:
				return keep(balanceReply(inv)), nil
			case !shared.IsNotFound(err):
				return nil, err
			}
		}
	}

	open, err := r.ledger.ListOpen(ctx, turn.Merchant.ID, name, ledgerapp.DefaultListLimit)
	if err != nil {
		return nil, err
	}
	if len(open) == 1 && name != "" {
		return keep(balanceReply(&open[0])), nil
	}
	return keep(openListReply(open, name)), nil
}

func (r *Router) updateRecord(ctx context.Context, turn Turn, slots conversation.Slots) (*Result, error) {
	action := slots.Action
	if action == "" {
		switch {
		case slots.AmountPaid != nil:
			action = conversation.UpdateActionPayment
		case strings.TrimSpace(slots.NewName) != "":
			action = conversation.UpdateActionRename
		case slots.DueDate != nil:
			action = conversation.UpdateActionDueDate
		default:
			return keep(ReplyWhatUpdate), nil
		}
	}

	// validate the action's own arguments before any lookup
	newName := strings.TrimSpace(slots.NewName)
	switch action {
	case conversation.UpdateActionPayment:
	case conversation.UpdateActionRename:
		if newName == "" {
			return keep(ReplyAskNewName), nil
		}
		newName = displayName(newName)
	case conversation.UpdateActionDueDate:
		if slots.DueDate == nil {
			return keep(ReplyAskDueDate), nil
		}
	default:
		return keep(ReplyWhatUpdate), nil
	}

	apply := func(ref string) (*Result, error) {
		switch action {
		case conversation.UpdateActionRename:
			return r.renameInvoice(ctx, turn.Merchant.ID, ref, newName)
		case conversation.UpdateActionDueDate:
			return r.setDueDate(ctx, turn.Merchant.ID, ref, *slots.DueDate)
		default:
			return r.payInvoice(ctx, turn.Merchant.ID, ref, slots.AmountPaid, ledger.PaymentMethodCash)
		}
	}

	name := strings.TrimSpace(slots.CounterpartyName)
	if name == "" {
		if active, ok := activeContext(turn.Session); ok {
			return apply(active.LastInvoiceID.String())
		}
		return keep(ReplyWhichInvoice), nil
	}

	matches, err := r.ledger.ListOpen(ctx, turn.Merchant.ID, name, MaxChoiceOptions)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return keep(notFoundNameReply(name)), nil
	case 1:
		return apply(matches[0].ID.String())
	}

	options := make([]conversation.ChoiceOption, 0, len(matches))
	for i := range matches {
		options = append(options, conversation.ChoiceOption{
			InvoiceID:    matches[i].ID,
			ShortCode:    matches[i].ShortCode,
			CustomerName: matches[i].CustomerName,
			Balance:      matches[i].Balance(),
		})
	}

	var next conversation.SessionState
	switch action {
	case conversation.UpdateActionRename:
		next = conversation.AwaitingRenameChoice{Options: options, NewName: newName}
	case conversation.UpdateActionDueDate:
		next = conversation.AwaitingDueDateChoice{Options: options, DueDate: *slots.DueDate}
	default:
		next = conversation.AwaitingPaymentChoice{Options: options, Amount: slots.AmountPaid, Method: ledger.PaymentMethodCash}
	}
	prompt := "I found more than one open balance for \"" + name + "\". Which one?"
	return replaceWith(menuReply(prompt, options), next, false), nil
}

// payInvoice records a payment; a nil amount settles the remaining balance
func (r *Router) payInvoice(ctx context.Context, merchantID uuid.UUID, ref string, amount *decimal.Decimal, method ledger.PaymentMethod) (*Result, error) {
	target := ledgerapp.ByMerchantRef(merchantID, ref)
	inv, err := r.ledger.FindByRef(ctx, target)
	if shared.IsNotFound(err) {
		return keep(ReplyInvoiceGone), nil
	}
	if err != nil {
		return nil, err
	}
	if !inv.IsOpen() {
		return keep(alreadyPaidReply(inv)), nil
	}

	pay := inv.Balance()
	if amount != nil {
		pay = *amount
	}
	if method == "" {
		method = ledger.PaymentMethodCash
	}
	updated, applied, err := r.ledger.ApplyPayment(ctx, target, ledgerapp.PaymentInput{
		Amount: pay,
		Method: method,
		PaidAt: r.now(),
	})
	if err != nil {
		return userErrorReply(err)
	}
	return &Result{Reply: paymentReply(updated, pay), Mutated: applied}, nil
}

func (r *Router) renameInvoice(ctx context.Context, merchantID uuid.UUID, ref, name string) (*Result, error) {
	inv, changed, err := r.ledger.RenameCustomer(ctx, ledgerapp.ByMerchantRef(merchantID, ref), name)
	if shared.IsNotFound(err) {
		return keep(ReplyInvoiceGone), nil
	}
	if err != nil {
		return userErrorReply(err)
	}
	return &Result{Reply: renamedReply(inv, changed), Mutated: changed}, nil
}

func (r *Router) setDueDate(ctx context.Context, merchantID uuid.UUID, ref string, due time.Time) (*Result, error) {
	inv, changed, err := r.ledger.SetDueDate(ctx, ledgerapp.ByMerchantRef(merchantID, ref), due)
	if shared.IsNotFound(err) {
		return keep(ReplyInvoiceGone), nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{Reply: dueDateReply(inv), Mutated: changed}, nil
}

func (r *Router) publishSupport(ctx context.Context, turn Turn, text string) {
	if r.publisher == nil {
		return
	}
	event := conversation.NewSupportRequestedEvent(turn.Merchant, text)
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Error("Failed to publish support request",
			zap.String("merchant_id", turn.Merchant.ID.String()),
			zap.Error(err),
		)
	}
}

func activeContext(s *conversation.Session) (conversation.ActiveContext, bool) {
	if s == nil {
		return conversation.ActiveContext{}, false
	}
	active, ok := s.State.(conversation.ActiveContext)
	return active, ok
}

// looksLikeName accepts a short run of words without digits
func looksLikeName(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > maxNameWords {
		return false
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// userErrorReply turns validation failures into a reply; anything else is
// returned for the apology path.
func userErrorReply(err error) (*Result, error) {
	var de *shared.DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case ledger.ErrInvalidAmount.Code, ledger.ErrInvalidMethod.Code, ledger.ErrInvalidCustomer.Code, shared.ErrInvalidInput.Code:
			return keep(de.Message + "."), nil
		}
	}
	return nil, err
}
