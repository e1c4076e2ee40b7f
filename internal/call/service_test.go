package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wayfare/internal/common"
	"wayfare/internal/config"
	"wayfare/internal/dbmysql"
)

type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) Create(ctx context.Context, session *dbmysql.CallSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockCallRepository) ByChannelID(ctx context.Context, channelID string) (*dbmysql.CallSession, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmysql.CallSession), args.Error(1)
}

func (m *MockCallRepository) ActiveFor(ctx context.Context, userID string) (*dbmysql.CallSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmysql.CallSession), args.Error(1)
}

func (m *MockCallRepository) Accept(ctx context.Context, channelID string, at time.Time) (bool, error) {
	args := m.Called(ctx, channelID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallRepository) FinishPending(ctx context.Context, channelID string, status common.CallStatus, at time.Time, endedBy *string, reason common.CallEndReason) (bool, error) {
	args := m.Called(ctx, channelID, status, at, endedBy, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallRepository) Finish(ctx context.Context, channelID string, status common.CallStatus, at time.Time, duration int, endedBy *string, reason common.CallEndReason) (bool, error) {
	args := m.Called(ctx, channelID, status, at, duration, endedBy, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallRepository) ByParticipant(ctx context.Context, userID string, limit, offset int) ([]*dbmysql.CallSession, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dbmysql.CallSession), args.Error(1)
}

type MockPresence struct {
	mock.Mock
}

func (m *MockPresence) IsOnline(userID string) bool {
	args := m.Called(userID)
	return args.Bool(0)
}

func (m *MockPresence) HandleOf(userID string) (string, bool) {
	args := m.Called(userID)
	return args.String(0), args.Bool(1)
}

func (m *MockPresence) OnlineUsers() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) Resolve(ctx context.Context, userID string) (*common.UserInfo, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*common.UserInfo), args.Error(1)
}

func (m *MockIdentityProvider) IsKnown(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdentityProvider) ByRole(ctx context.Context, role common.Role) ([]*common.UserInfo, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*common.UserInfo), args.Error(1)
}

type MockPushTransport struct {
	mock.Mock
}

func (m *MockPushTransport) PushToConnection(handle string, event string, payload interface{}) error {
	args := m.Called(handle, event, payload)
	return args.Error(0)
}

func (m *MockPushTransport) Broadcast(event string, payload interface{}) {
	m.Called(event, payload)
}

type callFixture struct {
	repo     *MockCallRepository
	presence *MockPresence
	identity *MockIdentityProvider
	push     *MockPushTransport
	svc      CallService
}

func newCallFixture(ringTimeout time.Duration) *callFixture {
	f := &callFixture{
		repo:     new(MockCallRepository),
		presence: new(MockPresence),
		identity: new(MockIdentityProvider),
		push:     new(MockPushTransport),
	}
	cfg := &config.Config{Call: config.CallConfig{RingTimeout: ringTimeout}}
	f.svc = NewCallService(cfg, f.repo, f.presence, f.identity, f.push)
	return f
}

func TestCallService_Initiate(t *testing.T) {
	t.Run("rings an online free receiver", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.identity.On("IsKnown", mock.Anything, "user-b").Return(true, nil)
		f.presence.On("IsOnline", "user-b").Return(true)
		f.repo.On("ActiveFor", mock.Anything, "user-a").Return(nil, nil)
		f.repo.On("ActiveFor", mock.Anything, "user-b").Return(nil, nil)
		f.repo.On("Create", mock.Anything, mock.MatchedBy(func(s *dbmysql.CallSession) bool {
			return s.CallerID == "user-a" && s.ReceiverID == "user-b" && s.Status == common.CallPending
		})).Return(nil)
		f.identity.On("Resolve", mock.Anything, "user-a").
			Return(&common.UserInfo{ID: "user-a", DisplayName: "Asha"}, nil)
		f.presence.On("HandleOf", "user-b").Return("conn-b", true)
		f.push.On("PushToConnection", "conn-b", common.EventIncomingCall, mock.MatchedBy(func(p interface{}) bool {
			payload, ok := p.(IncomingCallPayload)
			return ok && payload.Caller.ID == "user-a" && payload.ChannelID != ""
		})).Return(nil)

		session, err := f.svc.Initiate(context.Background(), "user-a", "user-b")

		require.NoError(t, err)
		assert.NotEmpty(t, session.ChannelID)
		assert.Equal(t, common.CallPending, session.Status)
		f.push.AssertExpectations(t)
	})

	t.Run("offline receiver is refused before any write", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.identity.On("IsKnown", mock.Anything, "user-b").Return(true, nil)
		f.presence.On("IsOnline", "user-b").Return(false)

		_, err := f.svc.Initiate(context.Background(), "user-a", "user-b")

		assert.Equal(t, common.CodeRecipientOffline, common.CodeOf(err))
		f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("busy receiver is refused", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.identity.On("IsKnown", mock.Anything, "user-b").Return(true, nil)
		f.presence.On("IsOnline", "user-b").Return(true)
		f.repo.On("ActiveFor", mock.Anything, "user-a").Return(nil, nil)
		f.repo.On("ActiveFor", mock.Anything, "user-b").
			Return(&dbmysql.CallSession{ChannelID: "chan-9", Status: common.CallActive}, nil)

		_, err := f.svc.Initiate(context.Background(), "user-a", "user-b")

		assert.Equal(t, common.CodeRecipientBusy, common.CodeOf(err))
		f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("caller already in a call is refused", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.identity.On("IsKnown", mock.Anything, "user-b").Return(true, nil)
		f.presence.On("IsOnline", "user-b").Return(true)
		f.repo.On("ActiveFor", mock.Anything, "user-a").
			Return(&dbmysql.CallSession{ChannelID: "chan-8", Status: common.CallPending}, nil)

		_, err := f.svc.Initiate(context.Background(), "user-a", "user-b")

		assert.Equal(t, common.CodeRecipientBusy, common.CodeOf(err))
	})

	t.Run("self call is rejected", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		_, err := f.svc.Initiate(context.Background(), "user-a", "user-a")

		assert.Equal(t, common.CodeInvalidArgument, common.CodeOf(err))
	})

	t.Run("unknown receiver", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.identity.On("IsKnown", mock.Anything, "ghost").Return(false, nil)

		_, err := f.svc.Initiate(context.Background(), "user-a", "ghost")

		assert.Equal(t, common.CodeUnknownRecipient, common.CodeOf(err))
	})
}

func TestCallService_Accept(t *testing.T) {
	pendingSession := func() *dbmysql.CallSession {
		return &dbmysql.CallSession{
			ChannelID:  "chan-1",
			CallerID:   "user-a",
			ReceiverID: "user-b",
			Status:     common.CallPending,
			StartTime:  time.Now().UTC(),
		}
	}

	t.Run("receiver accepts a pending call", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(pendingSession(), nil)
		f.repo.On("Accept", mock.Anything, "chan-1", mock.Anything).Return(true, nil)
		f.presence.On("HandleOf", "user-a").Return("conn-a", true)
		f.presence.On("HandleOf", "user-b").Return("conn-b", true)
		f.push.On("PushToConnection", mock.Anything, common.EventCallAccepted, mock.Anything).Return(nil)

		session, err := f.svc.Accept(context.Background(), "chan-1", "user-b")

		require.NoError(t, err)
		assert.Equal(t, common.CallActive, session.Status)
		require.NotNil(t, session.AcceptTime)
		f.push.AssertNumberOfCalls(t, "PushToConnection", 2)
	})

	t.Run("wrong user cannot accept and learns nothing", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(pendingSession(), nil)

		_, err := f.svc.Accept(context.Background(), "chan-1", "user-c")

		assert.Equal(t, common.CodeCallNotFound, common.CodeOf(err))
		f.repo.AssertNotCalled(t, "Accept", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("accept after timeout loses the race", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(pendingSession(), nil)
		f.repo.On("Accept", mock.Anything, "chan-1", mock.Anything).Return(false, nil)

		_, err := f.svc.Accept(context.Background(), "chan-1", "user-b")

		assert.Equal(t, common.CodeCallNotFound, common.CodeOf(err))
	})

	t.Run("unknown channel", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.repo.On("ByChannelID", mock.Anything, "nope").Return(nil, nil)

		_, err := f.svc.Accept(context.Background(), "nope", "user-b")

		assert.Equal(t, common.CodeCallNotFound, common.CodeOf(err))
	})
}

func TestCallService_Reject(t *testing.T) {
	f := newCallFixture(time.Minute)
	defer f.svc.Shutdown()

	session := &dbmysql.CallSession{
		ChannelID:  "chan-1",
		CallerID:   "user-a",
		ReceiverID: "user-b",
		Status:     common.CallPending,
	}
	f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(session, nil)
	f.repo.On("FinishPending", mock.Anything, "chan-1", common.CallRejected, mock.Anything, mock.Anything, common.ReasonRejected).
		Return(true, nil)
	f.presence.On("HandleOf", "user-a").Return("conn-a", true)
	f.push.On("PushToConnection", "conn-a", common.EventCallRejected, mock.MatchedBy(func(p interface{}) bool {
		payload, ok := p.(CallEventPayload)
		return ok && payload.Status == common.CallRejected && payload.By == "user-b"
	})).Return(nil)

	result, err := f.svc.Reject(context.Background(), "chan-1", "user-b")

	require.NoError(t, err)
	assert.Equal(t, common.CallRejected, result.Status)
	assert.Equal(t, common.ReasonRejected, result.Reason)
	f.push.AssertExpectations(t)
}

func TestCallService_End(t *testing.T) {
	activeSession := func() *dbmysql.CallSession {
		accepted := time.Now().UTC().Add(-95 * time.Second)
		return &dbmysql.CallSession{
			ChannelID:  "chan-1",
			CallerID:   "user-a",
			ReceiverID: "user-b",
			Status:     common.CallActive,
			AcceptTime: &accepted,
		}
	}

	t.Run("active call ends with server-derived duration", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(activeSession(), nil)
		f.repo.On("Finish", mock.Anything, "chan-1", common.CallEnded, mock.Anything,
			mock.MatchedBy(func(duration int) bool { return duration >= 94 && duration <= 96 }),
			mock.Anything, common.ReasonCompleted).Return(true, nil)
		f.presence.On("HandleOf", mock.Anything).Return("", false)

		session, err := f.svc.End(context.Background(), "chan-1", "user-a", "", 10)

		require.NoError(t, err)
		assert.Equal(t, common.CallEnded, session.Status)
		assert.Equal(t, common.ReasonCompleted, session.Reason)
		assert.InDelta(t, 95, session.Duration, 1)
	})

	t.Run("caller cancels a pending call", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		pending := &dbmysql.CallSession{
			ChannelID:  "chan-1",
			CallerID:   "user-a",
			ReceiverID: "user-b",
			Status:     common.CallPending,
		}
		f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(pending, nil)
		f.repo.On("Finish", mock.Anything, "chan-1", common.CallEnded, mock.Anything, 0,
			mock.Anything, common.ReasonCanceled).Return(true, nil)
		f.presence.On("HandleOf", mock.Anything).Return("", false)

		session, err := f.svc.End(context.Background(), "chan-1", "user-a", "", 0)

		require.NoError(t, err)
		assert.Equal(t, common.ReasonCanceled, session.Reason)
		assert.Equal(t, 0, session.Duration)
	})

	t.Run("client duration is the fallback when no accept time exists", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		pending := &dbmysql.CallSession{
			ChannelID:  "chan-1",
			CallerID:   "user-a",
			ReceiverID: "user-b",
			Status:     common.CallPending,
		}
		f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(pending, nil)
		f.repo.On("Finish", mock.Anything, "chan-1", common.CallEnded, mock.Anything, 7,
			mock.Anything, common.ReasonCanceled).Return(true, nil)
		f.presence.On("HandleOf", mock.Anything).Return("", false)

		session, err := f.svc.End(context.Background(), "chan-1", "user-a", "", 7)

		require.NoError(t, err)
		assert.Equal(t, 7, session.Duration)
	})

	t.Run("error reason is recorded", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(activeSession(), nil)
		f.repo.On("Finish", mock.Anything, "chan-1", common.CallEnded, mock.Anything,
			mock.Anything, mock.Anything, common.ReasonError).Return(true, nil)
		f.presence.On("HandleOf", mock.Anything).Return("", false)

		session, err := f.svc.End(context.Background(), "chan-1", "user-b", common.ReasonError, 0)

		require.NoError(t, err)
		assert.Equal(t, common.ReasonError, session.Reason)
	})

	t.Run("unsupported reason is rejected before any read", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		_, err := f.svc.End(context.Background(), "chan-1", "user-a", common.CallEndReason("rage_quit"), 0)

		assert.Equal(t, common.CodeInvalidArgument, common.CodeOf(err))
		f.repo.AssertNotCalled(t, "ByChannelID", mock.Anything, mock.Anything)
	})

	t.Run("non-participant may not end", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(activeSession(), nil)

		_, err := f.svc.End(context.Background(), "chan-1", "user-z", "", 0)

		assert.Equal(t, common.CodeNotAuthorized, common.CodeOf(err))
	})

	t.Run("ending a finished call is an invalid transition", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		finished := &dbmysql.CallSession{
			ChannelID:  "chan-1",
			CallerID:   "user-a",
			ReceiverID: "user-b",
			Status:     common.CallEnded,
		}
		f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(finished, nil)

		_, err := f.svc.End(context.Background(), "chan-1", "user-a", "", 0)

		assert.Equal(t, common.CodeInvalidTransition, common.CodeOf(err))
	})
}

func TestCallService_ActiveCallFor(t *testing.T) {
	t.Run("returns the session the user is in", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.repo.On("ActiveFor", mock.Anything, "user-a").
			Return(&dbmysql.CallSession{ChannelID: "chan-1", Status: common.CallActive}, nil)

		session, err := f.svc.ActiveCallFor(context.Background(), "user-a")

		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, "chan-1", session.ChannelID)
	})

	t.Run("free user has no session", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		f.repo.On("ActiveFor", mock.Anything, "user-a").Return(nil, nil)

		session, err := f.svc.ActiveCallFor(context.Background(), "user-a")

		require.NoError(t, err)
		assert.Nil(t, session)
	})
}

func TestCallService_RingTimeout(t *testing.T) {
	t.Run("unanswered call goes missed and both parties hear about it", func(t *testing.T) {
		f := newCallFixture(20 * time.Millisecond)
		defer f.svc.Shutdown()

		f.identity.On("IsKnown", mock.Anything, "user-b").Return(true, nil)
		f.presence.On("IsOnline", "user-b").Return(true)
		f.repo.On("ActiveFor", mock.Anything, mock.Anything).Return(nil, nil)
		f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.identity.On("Resolve", mock.Anything, "user-a").Return(&common.UserInfo{ID: "user-a"}, nil)
		f.presence.On("HandleOf", "user-b").Return("conn-b", true)
		f.presence.On("HandleOf", "user-a").Return("conn-a", true)
		f.push.On("PushToConnection", "conn-b", common.EventIncomingCall, mock.Anything).Return(nil)

		f.repo.On("FinishPending", mock.Anything, mock.Anything, common.CallMissed, mock.Anything, mock.Anything, common.ReasonTimeout).
			Return(true, nil)
		f.repo.On("ByChannelID", mock.Anything, mock.Anything).Return(&dbmysql.CallSession{
			ChannelID:  "chan-1",
			CallerID:   "user-a",
			ReceiverID: "user-b",
			Status:     common.CallMissed,
		}, nil)

		notified := make(chan string, 2)
		f.push.On("PushToConnection", mock.Anything, common.EventCallTimeout, mock.Anything).
			Return(nil).
			Run(func(args mock.Arguments) { notified <- args.String(0) })

		_, err := f.svc.Initiate(context.Background(), "user-a", "user-b")
		require.NoError(t, err)

		handles := make(map[string]bool)
		for i := 0; i < 2; i++ {
			select {
			case handle := <-notified:
				handles[handle] = true
			case <-time.After(2 * time.Second):
				t.Fatal("ring timer never fired")
			}
		}
		assert.True(t, handles["conn-a"])
		assert.True(t, handles["conn-b"])
	})

	t.Run("timer firing after accept is a no-op", func(t *testing.T) {
		f := newCallFixture(time.Minute)
		defer f.svc.Shutdown()

		svc := f.svc.(*callService)
		f.repo.On("FinishPending", mock.Anything, "chan-1", common.CallMissed, mock.Anything, mock.Anything, common.ReasonTimeout).
			Return(false, nil)

		svc.handleRingTimeout("chan-1")

		f.repo.AssertNotCalled(t, "ByChannelID", mock.Anything, mock.Anything)
		f.push.AssertNotCalled(t, "PushToConnection", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCallService_History(t *testing.T) {
	f := newCallFixture(time.Minute)
	defer f.svc.Shutdown()

	sessions := []*dbmysql.CallSession{
		{ChannelID: "chan-2", Status: common.CallEnded},
		{ChannelID: "chan-1", Status: common.CallMissed},
	}
	f.repo.On("ByParticipant", mock.Anything, "user-a", 10, 0).Return(sessions, nil)

	result, err := f.svc.History(context.Background(), "user-a", 10, 0)

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "chan-2", result[0].ChannelID)
}

func TestCallService_RepoFailure(t *testing.T) {
	f := newCallFixture(time.Minute)
	defer f.svc.Shutdown()

	f.repo.On("ByChannelID", mock.Anything, "chan-1").Return(nil, errors.New("db down"))

	_, err := f.svc.Accept(context.Background(), "chan-1", "user-b")

	assert.Equal(t, common.CodePersistence, common.CodeOf(err))
}
