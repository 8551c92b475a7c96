package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/logger"
	"github.com/tallyline/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// MessageTypeText is the only message type the router understands
const MessageTypeText = "text"

const (
	// DefaultDedupTTL is how long an inbound message id is remembered
	DefaultDedupTTL = 10 * time.Minute
	// DefaultSessionTTL is the lifetime of a conversation session
	DefaultSessionTTL = 15 * time.Minute

	dedupKeyPrefix = "inbound:"
)

// InboundMessage is one message as delivered by the channel
type InboundMessage struct {
	ID            string
	SenderAddress string
	Text          string
	MessageType   string
}

// ReplySender delivers a text message to an address
type ReplySender interface {
	SendText(ctx context.Context, to conversation.Address, text string) error
}

// GatewayConfig holds the collaborators of the gateway
type GatewayConfig struct {
	Dedup     shared.IdempotencyStore
	Sessions  conversation.SessionStore
	Merchants conversation.MerchantRepository
	Router    *Router
	Sender    ReplySender
	Metrics   *telemetry.LedgerMetrics
	Logger    *zap.Logger
	// DedupTTL defaults to DefaultDedupTTL
	DedupTTL time.Duration
	// SessionTTL defaults to DefaultSessionTTL
	SessionTTL         time.Duration
	DefaultCountryCode string
	Now                func() time.Time
}

// Gateway is the entry point for inbound channel messages. It drops
// redeliveries, resolves the merchant, serializes turns per address and
// sends exactly one reply for every message it accepts.
type Gateway struct {
	dedup       shared.IdempotencyStore
	sessions    conversation.SessionStore
	merchants   conversation.MerchantRepository
	router      *Router
	sender      ReplySender
	metrics     *telemetry.LedgerMetrics
	logger      *zap.Logger
	locks       *KeyedMutex
	dedupTTL    time.Duration
	sessionTTL  time.Duration
	countryCode string
	now         func() time.Time
}

// NewGateway creates a new Gateway
func NewGateway(cfg GatewayConfig) *Gateway {
	g := &Gateway{
		dedup:       cfg.Dedup,
		sessions:    cfg.Sessions,
		merchants:   cfg.Merchants,
		router:      cfg.Router,
		sender:      cfg.Sender,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		locks:       NewKeyedMutex(),
		dedupTTL:    cfg.DedupTTL,
		sessionTTL:  cfg.SessionTTL,
		countryCode: cfg.DefaultCountryCode,
		now:         cfg.Now,
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.dedupTTL <= 0 {
		g.dedupTTL = DefaultDedupTTL
	}
	if g.sessionTTL <= 0 {
		g.sessionTTL = DefaultSessionTTL
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// HandleInbound processes one inbound message. When the dedup store fails the
// turn still runs and is handled at least once.
func (g *Gateway) HandleInbound(ctx context.Context, msg InboundMessage) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "conversation", "handle_inbound")
	defer span.End()

	addr, err := conversation.NormalizeAddress(msg.SenderAddress, g.countryCode)
	if err != nil {
		g.metrics.RecordInbound(ctx, "invalid_address")
		g.logger.Warn("Dropping message with invalid sender address",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return nil
	}
	ctx = logger.WithMessage(ctx, msg.ID, addr.Masked())
	log := logger.Enrich(ctx, g.logger)

	if msg.ID != "" {
		fresh, err := g.dedup.MarkProcessed(ctx, dedupKeyPrefix+msg.ID, g.dedupTTL)
		switch {
		case err != nil:
			telemetry.RecordError(span, err)
			g.metrics.RecordInbound(ctx, "dedup_error")
			log.Error("Failed to record inbound message, processing without dedup", zap.Error(err))
		case !fresh:
			g.metrics.RecordInbound(ctx, "duplicate")
			log.Debug("Dropping duplicate inbound message")
			return nil
		}
	}

	merchant, err := g.merchants.FindByAddress(ctx, addr)
	switch {
	case shared.IsNotFound(err):
		g.metrics.RecordInbound(ctx, "unknown_merchant")
		g.reply(ctx, log, addr, ReplyOnboarding)
		return nil
	case err != nil:
		telemetry.RecordError(span, err)
		g.metrics.RecordInbound(ctx, "failed")
		log.Error("Failed to look up merchant", zap.Error(err))
		g.reply(ctx, log, addr, ReplyApology)
		return nil
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrMerchantID, merchant.ID.String())

	if msg.MessageType != MessageTypeText {
		g.metrics.RecordInbound(ctx, "unsupported_type")
		g.reply(ctx, log, addr, ReplyTextOnly)
		return nil
	}

	reply, outcome := g.converse(ctx, log, addr, merchant, msg.Text)
	g.metrics.RecordInbound(ctx, outcome)
	g.reply(ctx, log, addr, reply)
	return nil
}

// converse runs one turn inside the address's critical section and returns
// the reply to send.
func (g *Gateway) converse(ctx context.Context, log *zap.Logger, addr conversation.Address, merchant *conversation.Merchant, text string) (string, string) {
	unlock := g.locks.Lock(string(addr))
	defer unlock()

	session, err := g.sessions.Get(ctx, addr)
	if err != nil {
		log.Error("Failed to load session", zap.Error(err))
		return ReplyApology, "failed"
	}

	res, err := g.router.Route(ctx, Turn{
		Address:  addr,
		Text:     text,
		Merchant: merchant,
		Session:  session,
	})
	if err != nil {
		log.Error("Failed to route message", zap.Error(err))
		return ReplyApology, "failed"
	}

	switch res.Directive {
	case ReplaceSession:
		if res.Next == nil {
			break
		}
		next := conversation.NewSession(addr, res.Next, g.sessionTTL, g.now())
		if err := g.sessions.Put(ctx, next); err != nil {
			log.Error("Failed to store session", zap.String("flow", string(res.Next.Flow())), zap.Error(err))
		}
	case ClearSession:
		if err := g.sessions.Delete(ctx, addr); err != nil {
			log.Error("Failed to clear session", zap.Error(err))
		}
	}

	if res.Mutated {
		return res.Reply, "mutated"
	}
	return res.Reply, "processed"
}

func (g *Gateway) reply(ctx context.Context, log *zap.Logger, addr conversation.Address, text string) {
	if err := g.sender.SendText(ctx, addr, text); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Reply abandoned", zap.Error(err))
			return
		}
		log.Error("Failed to send reply", zap.Error(err))
	}
}
