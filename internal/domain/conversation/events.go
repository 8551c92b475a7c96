package conversation

import (
	"github.com/google/uuid"
	"github.com/tallyline/backend/internal/domain/shared"
)

// EventTypeSupportRequested is raised when a merchant asks for human help
const EventTypeSupportRequested = "SupportRequested"

// SupportRequestedEvent carries a merchant's support message to the fan-out
type SupportRequestedEvent struct {
	shared.BaseDomainEvent
	MerchantID uuid.UUID `json:"merchant_id"`
	Address    Address   `json:"address"`
	Text       string    `json:"text"`
}

// NewSupportRequestedEvent creates a new SupportRequestedEvent
func NewSupportRequestedEvent(m *Merchant, text string) *SupportRequestedEvent {
	return &SupportRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSupportRequested, "Merchant", m.ID),
		MerchantID:      m.ID,
		Address:         m.Address,
		Text:            text,
	}
}
