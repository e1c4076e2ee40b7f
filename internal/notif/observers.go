package notif

import (
	"context"
	"fmt"
	"log"

	"wayfare/internal/common"
)

// NotificationPayload is what a connected client receives on the
// newNotification event. Sender is denormalized so the client can render
// without a second lookup.
type NotificationPayload struct {
	ID        string                  `json:"id"`
	Type      common.NotificationType `json:"type"`
	Content   string                  `json:"content"`
	Sender    *common.UserInfo        `json:"sender,omitempty"`
	Refs      common.SubjectRefs      `json:"refs"`
	Read      bool                    `json:"read"`
	CreatedAt int64                   `json:"createdAt"`
}

// LivePushObserver pushes freshly persisted notifications to the
// recipient's live connection. Offline recipients are skipped; they pick
// the notification up from the store on their next fetch.
type LivePushObserver struct {
	presence common.Presence
	push     common.PushTransport
	identity common.IdentityProvider
}

func NewLivePushObserver(
	presence common.Presence,
	push common.PushTransport,
	identity common.IdentityProvider,
) *LivePushObserver {
	return &LivePushObserver{
		presence: presence,
		push:     push,
		identity: identity,
	}
}

func (o *LivePushObserver) Name() string {
	return "live_push_observer"
}

func (o *LivePushObserver) Update(event common.NotificationEvent) error {
	handle, ok := o.presence.HandleOf(event.RecipientID)
	if !ok {
		return nil
	}

	payload := NotificationPayload{
		ID:        event.NotificationID,
		Type:      event.Type,
		Content:   event.Content,
		Refs:      event.Refs,
		CreatedAt: event.CreatedAt.UnixMilli(),
	}

	if event.SenderID != nil {
		sender, err := o.identity.Resolve(context.Background(), *event.SenderID)
		if err != nil {
			// The row is already stored; push without sender info rather
			// than losing the live event.
			log.Printf("live push: resolving sender %s failed: %v", *event.SenderID, err)
		} else {
			payload.Sender = sender
		}
	}

	if err := o.push.PushToConnection(handle, common.EventNewNotification, payload); err != nil {
		return fmt.Errorf("failed to push notification %s: %w", event.NotificationID, err)
	}

	return nil
}
