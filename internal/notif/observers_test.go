package notif

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"wayfare/internal/common"
)

func TestLivePushObserver_Update(t *testing.T) {
	senderID := "user-a"
	event := common.NotificationEvent{
		NotificationID: "n1",
		RecipientID:    "user-b",
		SenderID:       &senderID,
		Type:           common.CommentType,
		Content:        "commented on your post",
		CreatedAt:      time.Now().UTC(),
	}

	t.Run("pushes to online recipient with sender info", func(t *testing.T) {
		presence := new(MockPresence)
		push := new(MockPushTransport)
		identity := new(MockIdentityProvider)

		sender := &common.UserInfo{ID: "user-a", DisplayName: "Asha"}
		presence.On("HandleOf", "user-b").Return("conn-42", true)
		identity.On("Resolve", mock.Anything, "user-a").Return(sender, nil)
		push.On("PushToConnection", "conn-42", common.EventNewNotification, mock.MatchedBy(func(p interface{}) bool {
			payload, ok := p.(NotificationPayload)
			return ok && payload.ID == "n1" && payload.Sender == sender
		})).Return(nil)

		observer := NewLivePushObserver(presence, push, identity)
		err := observer.Update(event)

		assert.NoError(t, err)
		push.AssertExpectations(t)
	})

	t.Run("offline recipient is a no-op", func(t *testing.T) {
		presence := new(MockPresence)
		push := new(MockPushTransport)
		identity := new(MockIdentityProvider)

		presence.On("HandleOf", "user-b").Return("", false)

		observer := NewLivePushObserver(presence, push, identity)
		err := observer.Update(event)

		assert.NoError(t, err)
		push.AssertNotCalled(t, "PushToConnection", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("sender resolution failure does not block the push", func(t *testing.T) {
		presence := new(MockPresence)
		push := new(MockPushTransport)
		identity := new(MockIdentityProvider)

		presence.On("HandleOf", "user-b").Return("conn-42", true)
		identity.On("Resolve", mock.Anything, "user-a").Return(nil, errors.New("identity store down"))
		push.On("PushToConnection", "conn-42", common.EventNewNotification, mock.MatchedBy(func(p interface{}) bool {
			payload, ok := p.(NotificationPayload)
			return ok && payload.Sender == nil
		})).Return(nil)

		observer := NewLivePushObserver(presence, push, identity)
		err := observer.Update(event)

		assert.NoError(t, err)
		push.AssertExpectations(t)
	})

	t.Run("transport error is reported", func(t *testing.T) {
		presence := new(MockPresence)
		push := new(MockPushTransport)
		identity := new(MockIdentityProvider)

		presence.On("HandleOf", "user-b").Return("conn-42", true)
		identity.On("Resolve", mock.Anything, "user-a").Return(&common.UserInfo{ID: "user-a"}, nil)
		push.On("PushToConnection", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection gone"))

		observer := NewLivePushObserver(presence, push, identity)
		err := observer.Update(event)

		assert.Error(t, err)
	})
}
