package call

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wayfare/internal/common"
	"wayfare/internal/config"
	"wayfare/internal/dbmysql"
)

// IncomingCallPayload rings the receiver's connection.
type IncomingCallPayload struct {
	ChannelID string           `json:"channelId"`
	Caller    *common.UserInfo `json:"caller"`
	StartTime int64            `json:"startTime"`
}

// CallEventPayload carries every post-ring transition to the parties.
type CallEventPayload struct {
	ChannelID string               `json:"channelId"`
	Status    common.CallStatus    `json:"status"`
	By        string               `json:"by,omitempty"`
	Reason    common.CallEndReason `json:"reason,omitempty"`
	Duration  int                  `json:"duration,omitempty"`
}

type CallService interface {
	Initiate(ctx context.Context, callerID, receiverID string) (*dbmysql.CallSession, error)
	Accept(ctx context.Context, channelID, userID string) (*dbmysql.CallSession, error)
	Reject(ctx context.Context, channelID, userID string) (*dbmysql.CallSession, error)
	End(ctx context.Context, channelID, userID string, reason common.CallEndReason, clientDuration int) (*dbmysql.CallSession, error)
	ActiveCallFor(ctx context.Context, userID string) (*dbmysql.CallSession, error)
	History(ctx context.Context, userID string, limit, offset int) ([]*dbmysql.CallSession, error)
	Shutdown()
}

type callService struct {
	repo        CallRepository
	presence    common.Presence
	identity    common.IdentityProvider
	push        common.PushTransport
	ringTimeout time.Duration

	// admission guards the busy check and session insert so two
	// concurrent initiations cannot both pass the single-call rule.
	admission sync.Mutex

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewCallService(
	cfg *config.Config,
	repo CallRepository,
	presence common.Presence,
	identity common.IdentityProvider,
	push common.PushTransport,
) CallService {
	return &callService{
		repo:        repo,
		presence:    presence,
		identity:    identity,
		push:        push,
		ringTimeout: cfg.Call.RingTimeout,
		timers:      make(map[string]*time.Timer),
	}
}

func (s *callService) Initiate(ctx context.Context, callerID, receiverID string) (*dbmysql.CallSession, error) {
	if strings.TrimSpace(callerID) == "" || strings.TrimSpace(receiverID) == "" {
		return nil, common.InvalidArgument("caller and receiver are required")
	}
	if callerID == receiverID {
		return nil, common.InvalidArgument("cannot call yourself")
	}

	known, err := s.identity.IsKnown(ctx, receiverID)
	if err != nil {
		return nil, common.PersistenceFailure("failed to check receiver", err)
	}
	if !known {
		return nil, common.UnknownRecipient(receiverID)
	}

	// A ring is pointless if nobody can pick up.
	if !s.presence.IsOnline(receiverID) {
		return nil, common.RecipientOffline(receiverID)
	}

	s.admission.Lock()
	defer s.admission.Unlock()

	if active, err := s.repo.ActiveFor(ctx, callerID); err != nil {
		return nil, common.PersistenceFailure("failed to check caller availability", err)
	} else if active != nil {
		return nil, common.RecipientBusy(callerID)
	}
	if active, err := s.repo.ActiveFor(ctx, receiverID); err != nil {
		return nil, common.PersistenceFailure("failed to check receiver availability", err)
	} else if active != nil {
		return nil, common.RecipientBusy(receiverID)
	}

	session := &dbmysql.CallSession{
		ChannelID:  uuid.New().String(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Status:     common.CallPending,
		StartTime:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, common.PersistenceFailure("failed to create call session", err)
	}

	caller, err := s.identity.Resolve(ctx, callerID)
	if err != nil {
		log.Printf("call %s: resolving caller failed: %v", session.ChannelID, err)
		caller = &common.UserInfo{ID: callerID}
	}

	s.pushTo(receiverID, common.EventIncomingCall, IncomingCallPayload{
		ChannelID: session.ChannelID,
		Caller:    caller,
		StartTime: session.StartTime.UnixMilli(),
	})

	s.armRingTimer(session.ChannelID)

	return session, nil
}

func (s *callService) Accept(ctx context.Context, channelID, userID string) (*dbmysql.CallSession, error) {
	session, err := s.repo.ByChannelID(ctx, channelID)
	if err != nil {
		return nil, common.PersistenceFailure("failed to load call session", err)
	}
	// A wrong answerer learns nothing about the channel.
	if session == nil || session.ReceiverID != userID || session.Status != common.CallPending {
		return nil, common.CallNotFound(channelID)
	}

	now := time.Now().UTC()
	advanced, err := s.repo.Accept(ctx, channelID, now)
	if err != nil {
		return nil, common.PersistenceFailure("failed to accept call", err)
	}
	if !advanced {
		// Lost the race with the ring timer or a concurrent reject.
		return nil, common.CallNotFound(channelID)
	}

	s.disarmRingTimer(channelID)

	session.Status = common.CallActive
	session.AcceptTime = &now

	payload := CallEventPayload{ChannelID: channelID, Status: common.CallActive, By: userID}
	s.pushTo(session.CallerID, common.EventCallAccepted, payload)
	s.pushTo(session.ReceiverID, common.EventCallAccepted, payload)

	return session, nil
}

func (s *callService) Reject(ctx context.Context, channelID, userID string) (*dbmysql.CallSession, error) {
	session, err := s.repo.ByChannelID(ctx, channelID)
	if err != nil {
		return nil, common.PersistenceFailure("failed to load call session", err)
	}
	if session == nil || session.ReceiverID != userID || session.Status != common.CallPending {
		return nil, common.CallNotFound(channelID)
	}

	now := time.Now().UTC()
	advanced, err := s.repo.FinishPending(ctx, channelID, common.CallRejected, now, &userID, common.ReasonRejected)
	if err != nil {
		return nil, common.PersistenceFailure("failed to reject call", err)
	}
	if !advanced {
		return nil, common.CallNotFound(channelID)
	}

	s.disarmRingTimer(channelID)

	session.Status = common.CallRejected
	session.EndTime = &now
	session.EndedBy = &userID
	session.Reason = common.ReasonRejected

	payload := CallEventPayload{
		ChannelID: channelID,
		Status:    common.CallRejected,
		By:        userID,
		Reason:    common.ReasonRejected,
	}
	s.pushTo(session.CallerID, common.EventCallRejected, payload)

	return session, nil
}

func (s *callService) End(ctx context.Context, channelID, userID string, reason common.CallEndReason, clientDuration int) (*dbmysql.CallSession, error) {
	switch reason {
	case "", common.ReasonCompleted, common.ReasonCanceled, common.ReasonError:
	default:
		return nil, common.InvalidArgument("unsupported end reason: " + string(reason))
	}

	session, err := s.repo.ByChannelID(ctx, channelID)
	if err != nil {
		return nil, common.PersistenceFailure("failed to load call session", err)
	}
	if session == nil {
		return nil, common.CallNotFound(channelID)
	}
	if session.CallerID != userID && session.ReceiverID != userID {
		return nil, common.NotAuthorized("only call participants may end the call")
	}
	if session.Terminal() {
		return nil, common.InvalidTransition("call already finished")
	}

	now := time.Now().UTC()
	if reason == "" {
		reason = common.ReasonCompleted
		if session.Status == common.CallPending {
			// Hanging up before the pickup cancels the ring.
			reason = common.ReasonCanceled
		}
	}

	// The server clock wins when the accept time is known; otherwise the
	// client-reported duration is the only measurement there is.
	duration := clientDuration
	if session.AcceptTime != nil {
		duration = int(now.Sub(*session.AcceptTime).Seconds())
	}

	advanced, err := s.repo.Finish(ctx, channelID, common.CallEnded, now, duration, &userID, reason)
	if err != nil {
		return nil, common.PersistenceFailure("failed to end call", err)
	}
	if !advanced {
		return nil, common.InvalidTransition("call already finished")
	}

	s.disarmRingTimer(channelID)

	session.Status = common.CallEnded
	session.EndTime = &now
	session.Duration = duration
	session.EndedBy = &userID
	session.Reason = reason

	payload := CallEventPayload{
		ChannelID: channelID,
		Status:    common.CallEnded,
		By:        userID,
		Reason:    reason,
		Duration:  duration,
	}
	s.pushTo(session.CallerID, common.EventCallEnded, payload)
	s.pushTo(session.ReceiverID, common.EventCallEnded, payload)

	return session, nil
}

// ActiveCallFor reports the session the user is currently in, if any.
// A nil session with a nil error means the user is free.
func (s *callService) ActiveCallFor(ctx context.Context, userID string) (*dbmysql.CallSession, error) {
	session, err := s.repo.ActiveFor(ctx, userID)
	if err != nil {
		return nil, common.PersistenceFailure("failed to find active call", err)
	}
	return session, nil
}

func (s *callService) History(ctx context.Context, userID string, limit, offset int) ([]*dbmysql.CallSession, error) {
	sessions, err := s.repo.ByParticipant(ctx, userID, limit, offset)
	if err != nil {
		return nil, common.PersistenceFailure("failed to list call history", err)
	}
	return sessions, nil
}

// Shutdown stops every outstanding ring timer. Pending sessions stay
// pending in the store and are resolved on the next transition attempt.
func (s *callService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for channelID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, channelID)
	}
}

func (s *callService) armRingTimer(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[channelID] = time.AfterFunc(s.ringTimeout, func() {
		s.handleRingTimeout(channelID)
	})
}

func (s *callService) disarmRingTimer(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[channelID]; ok {
		timer.Stop()
		delete(s.timers, channelID)
	}
}

func (s *callService) handleRingTimeout(channelID string) {
	ctx := context.Background()

	s.mu.Lock()
	delete(s.timers, channelID)
	s.mu.Unlock()

	// The guard makes this a no-op if the session left pending while the
	// timer was firing.
	advanced, err := s.repo.FinishPending(ctx, channelID, common.CallMissed, time.Now().UTC(), nil, common.ReasonTimeout)
	if err != nil {
		log.Printf("call %s: ring timeout transition failed: %v", channelID, err)
		return
	}
	if !advanced {
		return
	}

	session, err := s.repo.ByChannelID(ctx, channelID)
	if err != nil || session == nil {
		log.Printf("call %s: loading timed-out session failed: %v", channelID, err)
		return
	}

	payload := CallEventPayload{
		ChannelID: channelID,
		Status:    common.CallMissed,
		Reason:    common.ReasonTimeout,
	}
	s.pushTo(session.CallerID, common.EventCallTimeout, payload)
	s.pushTo(session.ReceiverID, common.EventCallTimeout, payload)
}

func (s *callService) pushTo(userID, event string, payload interface{}) {
	handle, ok := s.presence.HandleOf(userID)
	if !ok {
		return
	}
	if err := s.push.PushToConnection(handle, event, payload); err != nil {
		log.Printf("push %s to %s failed: %v", event, userID, err)
	}
}
