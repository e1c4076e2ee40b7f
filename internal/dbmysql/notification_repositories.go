package dbmysql

import (
	"context"
	"fmt"
	"time"

	"wayfare/internal/common"

	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) common.NotificationRepository {
	return &notificationRepository{
		db: db,
	}
}

func (r *notificationRepository) Create(ctx context.Context, notification interface{}) error {
	notif, ok := notification.(*Notification)
	if !ok {
		return fmt.Errorf("invalid notification type")
	}

	if err := r.db.WithContext(ctx).Create(notif).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ByID(ctx context.Context, id string) (interface{}, error) {
	var notification Notification

	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&notification).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("notification not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return &notification, nil
}

func (r *notificationRepository) ByRecipient(
	ctx context.Context,
	recipientID string,
	limit, offset int,
) ([]interface{}, error) {
	var notifications []*Notification

	query := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to get user notifications: %w", err)
	}

	result := make([]interface{}, len(notifications)) // Convert to []interface{}
	for i, notif := range notifications {
		result[i] = notif
	}

	return result, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, recipientID string) error {
	result := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Updates(map[string]interface{}{
			"read":       true,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return common.NotAuthorized(fmt.Sprintf("notification not found or access denied: %s", id))
	}

	return nil
}

// MarkAllRead flips every unread notification for the recipient. The
// read flag only moves false -> true, so running it twice is a no-op.
func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	result := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND `read` = ?", recipientID, false).
		Updates(map[string]interface{}{
			"read":       true,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark all notifications as read: %w", result.Error)
	}

	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, id, recipientID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&Notification{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return common.NotAuthorized(fmt.Sprintf("notification not found or access denied: %s", id))
	}

	return nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("recipient_id = ? AND `read` = ?", recipientID, false).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}

	return count, nil
}
