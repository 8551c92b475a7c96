package notification

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tallyline/backend/internal/domain/shared"
)

// Notification is an in-app message shown on the merchant dashboard
type Notification struct {
	ID         uuid.UUID
	MerchantID uuid.UUID
	EventID    uuid.UUID
	EventType  string
	Title      string
	Body       string
	ReadAt     *time.Time
	CreatedAt  time.Time
}

// New creates an unread notification for the event that caused it
func New(merchantID, eventID uuid.UUID, eventType, title, body string) (*Notification, error) {
	if merchantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MERCHANT", "Merchant ID cannot be empty")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Notification title is required")
	}
	return &Notification{
		ID:         uuid.New(),
		MerchantID: merchantID,
		EventID:    eventID,
		EventType:  eventType,
		Title:      title,
		Body:       strings.TrimSpace(body),
		CreatedAt:  time.Now(),
	}, nil
}

// IsRead returns true once the merchant has seen it
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Repository persists notifications
type Repository interface {
	// Create returns shared.ErrAlreadyExists when the event was already recorded for the merchant
	Create(ctx context.Context, n *Notification) error
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error
}
