package common

import (
	"time"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
)

type NotificationType string

const (
	LikeType      NotificationType = "like"
	CommentType   NotificationType = "comment"
	FollowType    NotificationType = "follow"
	MentionType   NotificationType = "mention"
	NewPostType   NotificationType = "new_post"
	NewReportType NotificationType = "new_report"
	SystemType    NotificationType = "system"
)

type CallStatus string

const (
	CallPending  CallStatus = "pending"
	CallActive   CallStatus = "active"
	CallEnded    CallStatus = "ended"
	CallMissed   CallStatus = "missed"
	CallRejected CallStatus = "rejected"
)

type CallEndReason string

const (
	ReasonCompleted CallEndReason = "completed"
	ReasonCanceled  CallEndReason = "canceled"
	ReasonTimeout   CallEndReason = "timeout"
	ReasonError     CallEndReason = "error"
	ReasonRejected  CallEndReason = "rejected"
)

// Live event names pushed over the transport.
const (
	EventReceiveMessage       = "receiveMessage"
	EventNewMessageNotif      = "newMessageNotification"
	EventMessageRead          = "messageRead"
	EventMessageStatusUpdated = "messageStatusUpdated"
	EventUserTyping           = "userTyping"
	EventUserStopTyping       = "userStopTyping"
	EventOnlineUsers          = "updateOnlineUsers"
	EventNewNotification      = "newNotification"
	EventIncomingCall         = "incoming_call"
	EventCallAccepted         = "call_accepted"
	EventCallRejected         = "call_rejected"
	EventCallTimeout          = "call_timeout"
	EventCallEnded            = "call_ended"
	EventSessionSuperseded    = "sessionSuperseded"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserInfo is the denormalized identity shape embedded in push payloads.
type UserInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        Role   `json:"role"`
}

// SubjectRefs points a notification at the entity that triggered it.
type SubjectRefs struct {
	PostID   *string `json:"postId,omitempty"`
	ReportID *string `json:"reportId,omitempty"`
	UserID   *string `json:"userId,omitempty"`
}

// ConversationView is one inbox row: peer, last message and unread counter.
type ConversationView struct {
	PeerID        string        `json:"peerId"`
	Peer          *UserInfo     `json:"peer,omitempty"`
	PeerOnline    bool          `json:"peerOnline"`
	LastMessageID string        `json:"lastMessageId"`
	LastBody      string        `json:"lastBody"`
	LastKind      MessageKind   `json:"lastKind"`
	LastStatus    MessageStatus `json:"lastStatus"`
	LastAt        time.Time     `json:"lastAt"`
	UnreadCount   int           `json:"unreadCount"`
}
