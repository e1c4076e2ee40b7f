package dbmysql

import (
	"time"

	"wayfare/internal/common"
)

// ConversationEntry is one inbox row owned by OwnerID: the latest message
// exchanged with PeerID plus the owner's unread counter for that peer.
// One row per (owner, peer) pair; it only exists once a message has
// crossed the pair.
type ConversationEntry struct {
	OwnerID string `gorm:"primaryKey;size:36" json:"ownerId"`
	PeerID  string `gorm:"primaryKey;size:36" json:"peerId"`

	LastMessageID string               `gorm:"size:36" json:"lastMessageId"`
	LastBody      string               `gorm:"type:text" json:"lastBody"`
	LastKind      common.MessageKind   `gorm:"size:10" json:"lastKind"`
	LastStatus    common.MessageStatus `gorm:"size:10" json:"lastStatus"`
	LastSenderID  string               `gorm:"size:36" json:"lastSenderId"`
	LastMessageAt time.Time            `gorm:"index" json:"lastMessageAt"`
	UnreadCount   int                  `gorm:"not null;default:0" json:"unreadCount"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
