package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	convapp "github.com/tallyline/backend/internal/application/conversation"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
)

// ChannelNotifier tells the merchant over the chat channel about ledger
// changes they did not make themselves: provider payments and customer
// confirmations. Cash payments recorded in chat already got a reply.
type ChannelNotifier struct {
	merchants conversation.MerchantRepository
	sender    convapp.ReplySender
}

// NewChannelNotifier creates a new ChannelNotifier
func NewChannelNotifier(merchants conversation.MerchantRepository, sender convapp.ReplySender) *ChannelNotifier {
	return &ChannelNotifier{merchants: merchants, sender: sender}
}

// Name implements Notifier
func (n *ChannelNotifier) Name() string { return "channel" }

// Notify implements Notifier
func (n *ChannelNotifier) Notify(ctx context.Context, event shared.DomainEvent) error {
	merchantID, text, ok := channelMessage(event)
	if !ok {
		return nil
	}
	merchant, err := n.merchants.FindByID(ctx, merchantID)
	if err != nil {
		return fmt.Errorf("failed to find merchant %s: %w", merchantID, err)
	}
	return n.sender.SendText(ctx, merchant.Address, text)
}

func channelMessage(event shared.DomainEvent) (merchantID uuid.UUID, text string, ok bool) {
	switch e := event.(type) {
	case *ledger.PaymentAppliedEvent:
		if e.Method != ledger.PaymentMethodProvider {
			return merchantID, "", false
		}
		if e.Status == ledger.InvoiceStatusPaid {
			text = fmt.Sprintf("Payment received: %s paid %s online for %s. The invoice is now fully paid.",
				e.CustomerName, convapp.FormatAmount(e.Amount), e.ShortCode)
		} else {
			text = fmt.Sprintf("Payment received: %s paid %s online for %s. Balance is now %s.",
				e.CustomerName, convapp.FormatAmount(e.Amount), e.ShortCode, convapp.FormatAmount(e.Balance))
		}
		return e.MerchantID, text, true
	case *ledger.InvoiceConfirmedEvent:
		text = fmt.Sprintf("%s confirmed invoice %s.", e.CustomerName, e.ShortCode)
		return e.MerchantID, text, true
	}
	return merchantID, "", false
}

var _ Notifier = (*ChannelNotifier)(nil)
