package notif

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

type NotificationManager struct {
	observers    map[string]common.Observer
	eventChannel chan common.NotificationEvent
	workerPool   int
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	wg           sync.WaitGroup
}

func NewNotificationManager(workerPoolSize, channelBufferSize int) *NotificationManager {
	ctx, cancel := context.WithCancel(context.Background())

	nm := &NotificationManager{
		observers:    make(map[string]common.Observer),
		eventChannel: make(chan common.NotificationEvent, channelBufferSize),
		workerPool:   workerPoolSize,
		ctx:          ctx,
		cancel:       cancel,
	}

	for i := 0; i < workerPoolSize; i++ {
		nm.wg.Add(1)
		go nm.processEvents()
	}

	return nm
}

func (nm *NotificationManager) Subscribe(observer common.Observer) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.observers[observer.Name()] = observer
	log.Printf("Observer %s subscribed", observer.Name())
}

func (nm *NotificationManager) Unsubscribe(observer common.Observer) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.observers, observer.Name())
	log.Printf("Observer %s unsubscribed", observer.Name())
}

func (nm *NotificationManager) Notify(event common.NotificationEvent) {
	nm.mu.RLock()
	observers := make([]common.Observer, 0, len(nm.observers))
	for _, obs := range nm.observers {
		observers = append(observers, obs)
	}
	nm.mu.RUnlock()

	for _, observer := range observers {
		if err := observer.Update(event); err != nil {
			log.Printf("Observer %s update failed: %v", observer.Name(), err)
		}
	}
}

func (nm *NotificationManager) NotifyAsync(event common.NotificationEvent) {
	select {
	case nm.eventChannel <- event:

	case <-nm.ctx.Done():
		return
	default:
		log.Printf("Notification channel full, dropping event: %s", event.Type)
	}
}

func (nm *NotificationManager) processEvents() {
	defer nm.wg.Done()

	for {
		select {
		case event := <-nm.eventChannel:
			nm.Notify(event)
		case <-nm.ctx.Done():
			return
		}
	}
}

func (nm *NotificationManager) Shutdown() {
	nm.cancel()
	nm.wg.Wait()
	log.Println("NotificationManager shutdown complete")
}

// BroadcastResult reports how a role broadcast went, recipient by
// recipient. A failed recipient never aborts the rest of the fan-out.
type BroadcastResult struct {
	Notified []string
	Failed   map[string]error
}

type NotificationService struct {
	manager  *NotificationManager
	repo     common.NotificationRepository
	identity common.IdentityProvider
}

func NewNotificationService(
	cfg *config.Config,
	repo common.NotificationRepository,
	identity common.IdentityProvider,
	presence common.Presence,
	push common.PushTransport,
) *NotificationService {
	manager := NewNotificationManager(cfg.Notification.Workers, cfg.Notification.ChannelBufferSize)
	manager.Subscribe(NewLivePushObserver(presence, push, identity))

	return &NotificationService{
		manager:  manager,
		repo:     repo,
		identity: identity,
	}
}

// Notify stores the notification and then hands it to the live fan-out.
// The write is synchronous: once Notify returns, the row exists and the
// recipient will see it on their next fetch even if the push is lost.
func (s *NotificationService) Notify(
	ctx context.Context,
	recipientID string,
	senderID *string,
	notifType common.NotificationType,
	content string,
	refs common.SubjectRefs,
) (*dbmysql.Notification, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, common.InvalidArgument("recipient id is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, common.InvalidArgument("content is required")
	}

	known, err := s.identity.IsKnown(ctx, recipientID)
	if err != nil {
		return nil, common.PersistenceFailure("failed to check recipient", err)
	}
	if !known {
		return nil, common.UnknownRecipient(recipientID)
	}

	notification := &dbmysql.Notification{
		ID:            uuid.New().String(),
		RecipientID:   recipientID,
		SenderID:      senderID,
		Type:          notifType,
		Content:       content,
		PostID:        refs.PostID,
		ReportID:      refs.ReportID,
		SubjectUserID: refs.UserID,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, common.PersistenceFailure("failed to store notification", err)
	}

	s.manager.NotifyAsync(common.NotificationEvent{
		NotificationID: notification.ID,
		RecipientID:    recipientID,
		SenderID:       senderID,
		Type:           notifType,
		Content:        content,
		Refs:           refs,
		CreatedAt:      notification.CreatedAt,
	})

	return notification, nil
}

// BroadcastToRole notifies every user holding the role, excluding the
// actor. Each recipient is attempted independently; the result lists who
// got a notification and who failed, and the error is non-nil only when
// the role lookup itself fails.
func (s *NotificationService) BroadcastToRole(
	ctx context.Context,
	actorID *string,
	role common.Role,
	notifType common.NotificationType,
	content string,
	refs common.SubjectRefs,
) (*BroadcastResult, error) {
	recipients, err := s.identity.ByRole(ctx, role)
	if err != nil {
		return nil, common.PersistenceFailure("failed to list role members", err)
	}

	result := &BroadcastResult{
		Notified: make([]string, 0, len(recipients)),
		Failed:   make(map[string]error),
	}

	for _, recipient := range recipients {
		if actorID != nil && recipient.ID == *actorID {
			continue
		}

		if _, err := s.Notify(ctx, recipient.ID, actorID, notifType, content, refs); err != nil {
			log.Printf("Broadcast to %s failed for %s: %v", role, recipient.ID, err)
			result.Failed[recipient.ID] = err
			continue
		}
		result.Notified = append(result.Notified, recipient.ID)
	}

	return result, nil
}

func (s *NotificationService) List(
	ctx context.Context,
	recipientID string,
	limit, offset int,
) ([]*dbmysql.Notification, error) {
	rows, err := s.repo.ByRecipient(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, common.PersistenceFailure("failed to list notifications", err)
	}

	notifications := make([]*dbmysql.Notification, len(rows))
	for i, row := range rows {
		notifications[i] = row.(*dbmysql.Notification)
	}

	return notifications, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, recipientID string) error {
	return s.repo.MarkAsRead(ctx, notificationID, recipientID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) error {
	return s.repo.MarkAllRead(ctx, recipientID)
}

func (s *NotificationService) Delete(ctx context.Context, notificationID, recipientID string) error {
	return s.repo.Delete(ctx, notificationID, recipientID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	return s.repo.UnreadCount(ctx, recipientID)
}

func (s *NotificationService) Shutdown() {
	s.manager.Shutdown()
	log.Println("NotificationService shutdown complete")
}
