package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/tallyline/backend/internal/domain/notification"
)

// NotificationModel is the persistence model for in-app notifications.
type NotificationModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	MerchantID uuid.UUID `gorm:"type:uuid;not null;index:idx_notification_merchant;uniqueIndex:idx_notification_event,priority:1"`
	EventID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_notification_event,priority:2"`
	EventType  string    `gorm:"type:varchar(50);not null"`
	Title      string    `gorm:"type:varchar(200);not null"`
	Body       string    `gorm:"type:text"`
	ReadAt     *time.Time
	CreatedAt  time.Time `gorm:"not null;index:idx_notification_merchant"`
}

// TableName returns the table name for GORM
func (NotificationModel) TableName() string {
	return "notifications"
}

// ToDomain converts the persistence model to a domain Notification.
func (m *NotificationModel) ToDomain() *notification.Notification {
	return &notification.Notification{
		ID:         m.ID,
		MerchantID: m.MerchantID,
		EventID:    m.EventID,
		EventType:  m.EventType,
		Title:      m.Title,
		Body:       m.Body,
		ReadAt:     m.ReadAt,
		CreatedAt:  m.CreatedAt,
	}
}

// NotificationModelFromDomain creates a new persistence model from a domain Notification.
func NotificationModelFromDomain(n *notification.Notification) *NotificationModel {
	return &NotificationModel{
		ID:         n.ID,
		MerchantID: n.MerchantID,
		EventID:    n.EventID,
		EventType:  n.EventType,
		Title:      n.Title,
		Body:       n.Body,
		ReadAt:     n.ReadAt,
		CreatedAt:  n.CreatedAt,
	}
}
