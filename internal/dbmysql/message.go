package dbmysql

import (
	"time"

	"wayfare/internal/common"
)

type Message struct {
	ID         string               `gorm:"primaryKey;size:36" json:"id"`
	SenderID   string               `gorm:"not null;index;size:36" json:"senderId"`
	ReceiverID string               `gorm:"not null;index;size:36" json:"receiverId"`
	Body       string               `gorm:"not null;type:text" json:"body"`
	Kind       common.MessageKind   `gorm:"not null;size:10;default:'text'" json:"kind"`
	Status     common.MessageStatus `gorm:"not null;size:10;default:'sent'" json:"status"`
	Read       bool                 `gorm:"not null;default:false" json:"read"`

	// AttachmentID references a GridFS file for image/file kinds.
	AttachmentID *string `gorm:"size:36" json:"attachmentId,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
