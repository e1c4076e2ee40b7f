package dbmysql

import (
	"time"

	"wayfare/internal/common"
)

// UserAccount is the directory row the realtime core resolves identity
// against. Account lifecycle (signup, profile edits) is owned elsewhere;
// this side only reads it.
type UserAccount struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	DisplayName string      `gorm:"size:100;not null" json:"displayName"`
	AvatarURL   string      `gorm:"size:255" json:"avatarUrl,omitempty"`
	Role        common.Role `gorm:"size:10;not null;default:'user';index" json:"role"`
	Active      bool        `gorm:"not null;default:true;index" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
