package dbmysql

import (
	"time"

	"wayfare/internal/common"
)

type CallSession struct {
	ChannelID  string            `gorm:"primaryKey;size:36" json:"channelId"`
	CallerID   string            `gorm:"not null;index:idx_caller_status;size:36" json:"callerId"`
	ReceiverID string            `gorm:"not null;index:idx_receiver_status;size:36" json:"receiverId"`
	Status     common.CallStatus `gorm:"not null;size:10;default:'pending';index:idx_caller_status;index:idx_receiver_status" json:"status"`

	StartTime  time.Time  `gorm:"not null" json:"startTime"`
	AcceptTime *time.Time `json:"acceptTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`

	// Duration in seconds, derived as EndTime - AcceptTime when both are
	// set; 0 for calls that never became active.
	Duration int `gorm:"default:0" json:"duration"`

	EndedBy *string              `gorm:"size:36" json:"endedBy,omitempty"`
	Reason  common.CallEndReason `gorm:"size:10" json:"reason,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Terminal reports whether the session reached an absorbing state.
func (c *CallSession) Terminal() bool {
	switch c.Status {
	case common.CallEnded, common.CallMissed, common.CallRejected:
		return true
	}
	return false
}
