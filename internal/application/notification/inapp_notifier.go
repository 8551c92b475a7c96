package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	convapp "github.com/tallyline/backend/internal/application/conversation"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/notification"
	"github.com/tallyline/backend/internal/domain/shared"
)

// InAppNotifier records events on the merchant dashboard
type InAppNotifier struct {
	repo notification.Repository
}

// NewInAppNotifier creates a new InAppNotifier
func NewInAppNotifier(repo notification.Repository) *InAppNotifier {
	return &InAppNotifier{repo: repo}
}

// Name implements Notifier
func (n *InAppNotifier) Name() string { return "in_app" }

// Notify implements Notifier. A notification already recorded for the event
// counts as delivered.
func (n *InAppNotifier) Notify(ctx context.Context, event shared.DomainEvent) error {
	merchantID, title, body, ok := inAppMessage(event)
	if !ok {
		return nil
	}
	note, err := notification.New(merchantID, event.EventID(), event.EventType(), title, body)
	if err != nil {
		return err
	}
	if err := n.repo.Create(ctx, note); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

func inAppMessage(event shared.DomainEvent) (uuid.UUID, string, string, bool) {
	switch e := event.(type) {
	case *ledger.InvoiceCreatedEvent:
		return e.MerchantID,
			fmt.Sprintf("Invoice %s created", e.ShortCode),
			fmt.Sprintf("%s owes %s.", e.CustomerName, convapp.FormatAmount(e.Total)),
			true
	case *ledger.PaymentAppliedEvent:
		title := fmt.Sprintf("Payment on %s", e.ShortCode)
		if e.Status == ledger.InvoiceStatusPaid {
			title = fmt.Sprintf("Invoice %s fully paid", e.ShortCode)
		}
		return e.MerchantID, title,
			fmt.Sprintf("%s paid %s by %s. Balance %s.",
				e.CustomerName, convapp.FormatAmount(e.Amount), e.Method, convapp.FormatAmount(e.Balance)),
			true
	case *ledger.InvoiceConfirmedEvent:
		return e.MerchantID,
			fmt.Sprintf("Invoice %s confirmed", e.ShortCode),
			fmt.Sprintf("%s confirmed the invoice.", e.CustomerName),
			true
	case *conversation.SupportRequestedEvent:
		return e.MerchantID, "Support requested", e.Text, true
	}
	return uuid.Nil, "", "", false
}

var _ Notifier = (*InAppNotifier)(nil)
