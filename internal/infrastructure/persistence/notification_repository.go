package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tallyline/backend/internal/domain/notification"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const maxNotificationPage = 100

// GormNotificationRepository implements notification.Repository using GORM
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository creates a new GormNotificationRepository
func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// Create inserts a notification; the (merchant, event) pair is unique
func (r *GormNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	if err := r.db.WithContext(ctx).Create(models.NotificationModelFromDomain(n)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ListByMerchant returns the merchant's notifications, newest first
func (r *GormNotificationRepository) ListByMerchant(ctx context.Context, merchantID uuid.UUID, unreadOnly bool, limit int) ([]notification.Notification, error) {
	if limit <= 0 || limit > maxNotificationPage {
		limit = maxNotificationPage
	}
	query := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var rows []models.NotificationModel
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]notification.Notification, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// MarkRead sets read_at; marking an already-read notification keeps the first timestamp
func (r *GormNotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.NotificationModel{}).
		Where("id = ?", id).
		Where("read_at IS NULL").
		Update("read_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.NotificationModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
	}
	return nil
}

var _ notification.Repository = (*GormNotificationRepository)(nil)
