package service

import (
	"context"
	"log"
	"time"

	"wayfare/internal/chat/repository"
	"wayfare/internal/common"
	"wayfare/internal/dbmysql"

	"github.com/google/uuid"
)

// ChatService is the message delivery pipeline exposed to the handler
// layer: persist, update both inboxes, push live, track status.
type ChatService interface {
	Send(ctx context.Context, senderID, receiverID, body string, kind common.MessageKind, attachmentID *string) (*dbmysql.Message, error)
	MarkRead(ctx context.Context, messageID, readerID string) error
	Typing(ctx context.Context, senderID, receiverID string, stopped bool)
	History(ctx context.Context, userA, userB string, limit, offset int) ([]*dbmysql.Message, error)
	Conversations(ctx context.Context, ownerID string) ([]*common.ConversationView, error)
}

// MessagePayload is what both parties receive on a live push.
type MessagePayload struct {
	Message *dbmysql.Message `json:"message"`
	Sender  *common.UserInfo `json:"sender,omitempty"`
}

// ReadReceiptPayload notifies both parties that a message was read.
type ReadReceiptPayload struct {
	MessageID string `json:"messageId"`
	ReaderID  string `json:"readerId"`
}

// StatusPayload reports a delivery status change.
type StatusPayload struct {
	MessageID string               `json:"messageId"`
	Status    common.MessageStatus `json:"status"`
}

type chatService struct {
	repo     repository.ChatRepository
	ledger   ConversationLedger
	presence common.Presence
	identity common.IdentityProvider
	push     common.PushTransport
}

// Constructor used in DI/wire
func NewChatService(
	repo repository.ChatRepository,
	ledger ConversationLedger,
	presence common.Presence,
	identity common.IdentityProvider,
	push common.PushTransport,
) ChatService {
	return &chatService{
		repo:     repo,
		ledger:   ledger,
		presence: presence,
		identity: identity,
		push:     push,
	}
}

// Send runs the delivery pipeline in commit order: persist the message,
// upsert both conversation entries, echo to the sender, then push to the
// receiver and advance the status to delivered if they are online. An
// offline receiver's copy stays `sent`; the persisted conversation entry
// is what they fetch on next connect.
func (s *chatService) Send(ctx context.Context, senderID, receiverID, body string, kind common.MessageKind, attachmentID *string) (*dbmysql.Message, error) {
	if senderID == "" || receiverID == "" {
		return nil, common.InvalidArgument("senderId and receiverId are required")
	}
	if body == "" && attachmentID == nil {
		return nil, common.InvalidArgument("message body is required")
	}
	if kind == "" {
		kind = common.KindText
	}

	known, err := s.identity.IsKnown(ctx, receiverID)
	if err != nil {
		return nil, common.PersistenceFailure("recipient lookup failed", err)
	}
	if !known {
		return nil, common.UnknownRecipient(receiverID)
	}

	msg := &dbmysql.Message{
		ID:           uuid.NewString(),
		SenderID:     senderID,
		ReceiverID:   receiverID,
		Body:         body,
		Kind:         kind,
		Status:       common.StatusSent,
		AttachmentID: attachmentID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Save(ctx, msg); err != nil {
		return nil, common.PersistenceFailure("message save failed", err)
	}

	// Both inbox rows commit before any push is attempted. A self-note
	// has a single owner, so only one entry exists to touch.
	if err := s.ledger.Touch(ctx, senderID, msg); err != nil {
		return nil, err
	}
	if receiverID != senderID {
		if err := s.ledger.Touch(ctx, receiverID, msg); err != nil {
			return nil, err
		}
	}

	payload := &MessagePayload{Message: msg, Sender: s.resolveInfo(ctx, senderID)}

	// Echo back to the sender for multi-tab consistency.
	if handle, ok := s.presence.HandleOf(senderID); ok {
		s.pushEvent(handle, common.EventReceiveMessage, payload)
	}

	if handle, ok := s.presence.HandleOf(receiverID); ok {
		s.pushEvent(handle, common.EventReceiveMessage, payload)
		s.pushEvent(handle, common.EventNewMessageNotif, payload)
		s.markDelivered(ctx, msg)
	}

	return msg, nil
}

// markDelivered advances sent -> delivered after a successful push. The
// repository guard makes a late delivered-transition after read a no-op.
func (s *chatService) markDelivered(ctx context.Context, msg *dbmysql.Message) {
	advanced, err := s.repo.MarkDelivered(ctx, msg.ID)
	if err != nil {
		log.Printf("failed to mark message %s delivered: %v", msg.ID, err)
		return
	}
	if !advanced {
		return
	}

	msg.Status = common.StatusDelivered
	if err := s.ledger.SyncLastStatus(ctx, msg, common.StatusDelivered); err != nil {
		log.Printf("failed to sync conversation status for %s: %v", msg.ID, err)
	}

	status := &StatusPayload{MessageID: msg.ID, Status: common.StatusDelivered}
	for _, userID := range []string{msg.SenderID, msg.ReceiverID} {
		if handle, ok := s.presence.HandleOf(userID); ok {
			s.pushEvent(handle, common.EventMessageStatusUpdated, status)
		}
	}
}

// MarkRead flips the message to its terminal status and recounts the
// reader's unread messages from that peer, so the inbox counter always
// equals what the messages table says. Only the receiver may read.
func (s *chatService) MarkRead(ctx context.Context, messageID, readerID string) error {
	if messageID == "" || readerID == "" {
		return common.InvalidArgument("messageId and readerId are required")
	}

	msg, err := s.repo.ByID(ctx, messageID)
	if err != nil {
		return err
	}

	if msg.ReceiverID != readerID {
		return common.NotAuthorized("only the receiver may mark a message read")
	}

	if msg.Status != common.StatusRead {
		if err := s.repo.MarkRead(ctx, messageID); err != nil {
			return common.PersistenceFailure("mark read failed", err)
		}
		msg.Status = common.StatusRead
		msg.Read = true

		if err := s.ledger.SyncLastStatus(ctx, msg, common.StatusRead); err != nil {
			log.Printf("failed to sync conversation status for %s: %v", msg.ID, err)
		}
	}

	remaining, err := s.repo.CountUnreadFrom(ctx, readerID, msg.SenderID)
	if err != nil {
		return common.PersistenceFailure("unread recount failed", err)
	}
	if err := s.ledger.SetUnread(ctx, readerID, msg.SenderID, int(remaining)); err != nil {
		return err
	}

	receipt := &ReadReceiptPayload{MessageID: messageID, ReaderID: readerID}
	for _, userID := range []string{msg.SenderID, msg.ReceiverID} {
		if handle, ok := s.presence.HandleOf(userID); ok {
			s.pushEvent(handle, common.EventMessageRead, receipt)
		}
	}

	return nil
}

// Typing forwards an ephemeral typing indicator. Never persisted;
// silently dropped when the receiver is offline.
func (s *chatService) Typing(ctx context.Context, senderID, receiverID string, stopped bool) {
	handle, ok := s.presence.HandleOf(receiverID)
	if !ok {
		return
	}

	event := common.EventUserTyping
	if stopped {
		event = common.EventUserStopTyping
	}
	s.pushEvent(handle, event, map[string]string{"userId": senderID})
}

func (s *chatService) History(ctx context.Context, userA, userB string, limit, offset int) ([]*dbmysql.Message, error) {
	if userA == "" || userB == "" {
		return nil, common.InvalidArgument("both user ids are required")
	}
	messages, err := s.repo.History(ctx, userA, userB, limit, offset)
	if err != nil {
		return nil, common.PersistenceFailure("history fetch failed", err)
	}
	return messages, nil
}

// Conversations backs the inbox view: ledger entries annotated with peer
// display info and live presence.
func (s *chatService) Conversations(ctx context.Context, ownerID string) ([]*common.ConversationView, error) {
	entries, err := s.ledger.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	views := make([]*common.ConversationView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, &common.ConversationView{
			PeerID:        entry.PeerID,
			Peer:          s.resolveInfo(ctx, entry.PeerID),
			PeerOnline:    s.presence.IsOnline(entry.PeerID),
			LastMessageID: entry.LastMessageID,
			LastBody:      entry.LastBody,
			LastKind:      entry.LastKind,
			LastStatus:    entry.LastStatus,
			LastAt:        entry.LastMessageAt,
			UnreadCount:   entry.UnreadCount,
		})
	}
	return views, nil
}

// resolveInfo denormalizes identity into push payloads, best-effort.
func (s *chatService) resolveInfo(ctx context.Context, userID string) *common.UserInfo {
	info, err := s.identity.Resolve(ctx, userID)
	if err != nil {
		log.Printf("failed to resolve user %s: %v", userID, err)
		return nil
	}
	return info
}

// pushEvent is fire-and-forget: transport failures are logged, never
// propagated. Persisted state stays authoritative.
func (s *chatService) pushEvent(handle, event string, payload interface{}) {
	if err := s.push.PushToConnection(handle, event, payload); err != nil {
		log.Printf("push %s to %s failed: %v", event, handle, err)
	}
}
