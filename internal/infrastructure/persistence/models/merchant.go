package models

import (
	"github.com/tallyline/backend/internal/domain/conversation"
)

// MerchantModel is the persistence model for a merchant bound to a channel address.
type MerchantModel struct {
	BaseModel
	Address      string `gorm:"type:varchar(15);not null;uniqueIndex:idx_merchant_address"`
	Name         string `gorm:"type:varchar(100);not null"`
	BusinessName string `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (MerchantModel) TableName() string {
	return "merchants"
}

// ToDomain converts the persistence model to a domain Merchant.
func (m *MerchantModel) ToDomain() *conversation.Merchant {
	return &conversation.Merchant{
		ID:           m.ID,
		Address:      conversation.Address(m.Address),
		Name:         m.Name,
		BusinessName: m.BusinessName,
		CreatedAt:    m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain Merchant.
func (m *MerchantModel) FromDomain(mer *conversation.Merchant) {
	m.ID = mer.ID
	m.Address = string(mer.Address)
	m.Name = mer.Name
	m.BusinessName = mer.BusinessName
	m.CreatedAt = mer.CreatedAt
	m.UpdatedAt = mer.CreatedAt
}
