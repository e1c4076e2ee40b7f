package common

import (
	"context"
	"time"
)

// IdentityProvider is the narrow contract onto the external user store.
// The core never owns user rows; it only resolves display info and roles.
type IdentityProvider interface {
	Resolve(ctx context.Context, userID string) (*UserInfo, error)
	IsKnown(ctx context.Context, userID string) (bool, error)
	ByRole(ctx context.Context, role Role) ([]*UserInfo, error)
}

// PushTransport delivers live events to connections, fire-and-forget.
// Delivery failures are never fatal; persisted state stays authoritative.
type PushTransport interface {
	PushToConnection(handle string, event string, payload interface{}) error
	Broadcast(event string, payload interface{})
}

// Presence is the read side of the presence registry exposed to other
// components and to the REST layer.
type Presence interface {
	IsOnline(userID string) bool
	HandleOf(userID string) (string, bool)
	OnlineUsers() []string
}

// NotificationEvent is the fan-out unit handed to observers after the
// notification row has been persisted. Observers must not assume the
// recipient is reachable.
type NotificationEvent struct {
	NotificationID string
	RecipientID    string
	SenderID       *string
	Type           NotificationType
	Content        string
	Refs           SubjectRefs
	CreatedAt      time.Time
}

type Observer interface {
	Name() string
	Update(event NotificationEvent) error
}

type NotificationRepository interface {
	Create(ctx context.Context, notification interface{}) error
	ByID(ctx context.Context, id string) (interface{}, error)
	ByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]interface{}, error)
	MarkAsRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	Delete(ctx context.Context, id, recipientID string) error
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
}
