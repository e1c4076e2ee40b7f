package dbmysql

import (
	"time"

	"wayfare/internal/common"
)

type Notification struct {
	ID          string                  `gorm:"primaryKey;size:36" json:"id"`
	RecipientID string                  `gorm:"not null;index;size:36" json:"recipientId"`
	SenderID    *string                 `gorm:"size:36" json:"senderId,omitempty"` // nil for system events
	Type        common.NotificationType `gorm:"not null;size:50" json:"type"`
	Content     string                  `gorm:"type:text" json:"content"`
	Read        bool                    `gorm:"not null;default:false;index" json:"read"`

	// Optional references to the entity that triggered the notification.
	PostID        *string `gorm:"size:36" json:"postId,omitempty"`
	ReportID      *string `gorm:"size:36" json:"reportId,omitempty"`
	SubjectUserID *string `gorm:"size:36" json:"subjectUserId,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
