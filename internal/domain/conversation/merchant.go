package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Merchant binds an address to a display identity. It is owned by onboarding
// and is only read here.
type Merchant struct {
	ID           uuid.UUID
	Address      Address
	Name         string
	BusinessName string
	CreatedAt    time.Time
}

// DisplayName prefers the business name
func (m *Merchant) DisplayName() string {
	if m.BusinessName != "" {
		return m.BusinessName
	}
	return m.Name
}

// MerchantRepository looks up merchants
type MerchantRepository interface {
	// FindByAddress returns shared.ErrNotFound when no merchant is bound to the address
	FindByAddress(ctx context.Context, addr Address) (*Merchant, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Merchant, error)
}
