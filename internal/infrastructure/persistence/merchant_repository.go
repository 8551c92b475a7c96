package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormMerchantRepository implements MerchantRepository using GORM
type GormMerchantRepository struct {
	db *gorm.DB
}

// NewGormMerchantRepository creates a new GormMerchantRepository
func NewGormMerchantRepository(db *gorm.DB) *GormMerchantRepository {
	return &GormMerchantRepository{db: db}
}

// FindByAddress finds the merchant bound to a channel address
func (r *GormMerchantRepository) FindByAddress(ctx context.Context, addr conversation.Address) (*conversation.Merchant, error) {
	var model models.MerchantModel
	if err := r.db.WithContext(ctx).Where("address = ?", string(addr)).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds a merchant by ID
func (r *GormMerchantRepository) FindByID(ctx context.Context, id uuid.UUID) (*conversation.Merchant, error) {
	var model models.MerchantModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create registers a merchant. Onboarding owns this path; it exists here for
// seeding and tests.
func (r *GormMerchantRepository) Create(ctx context.Context, m *conversation.Merchant) error {
	var model models.MerchantModel
	model.FromDomain(m)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

var _ conversation.MerchantRepository = (*GormMerchantRepository)(nil)
