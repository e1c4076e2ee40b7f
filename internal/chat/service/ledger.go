package service

import (
	"context"
	"sync"

	"wayfare/internal/chat/repository"
	"wayfare/internal/common"
	"wayfare/internal/dbmysql"
)

// ConversationLedger maintains the per-user inbox: one entry per peer
// holding the latest message and the owner's unread counter.
type ConversationLedger interface {
	Touch(ctx context.Context, ownerID string, msg *dbmysql.Message) error
	SetUnread(ctx context.Context, ownerID, peerID string, count int) error
	SyncLastStatus(ctx context.Context, msg *dbmysql.Message, status common.MessageStatus) error
	List(ctx context.Context, ownerID string) ([]*dbmysql.ConversationEntry, error)
}

type conversationLedger struct {
	repo repository.ConversationRepository

	// One mutex per (owner, peer) pair so updates to the same entry are
	// serialized while unrelated pairs proceed in parallel.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewConversationLedger(repo repository.ConversationRepository) ConversationLedger {
	return &conversationLedger{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
	}
}

func (l *conversationLedger) lockFor(ownerID, peerID string) *sync.Mutex {
	key := ownerID + "|" + peerID

	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// Touch upserts the owner's entry for the message's peer: the entry takes
// the message as its most recent one and moves to the head of the inbox
// (ordering is by last_message_at). The unread counter increments only
// when the owner is the receiver of a not-yet-read message.
func (l *conversationLedger) Touch(ctx context.Context, ownerID string, msg *dbmysql.Message) error {
	peerID := msg.SenderID
	if ownerID == msg.SenderID {
		peerID = msg.ReceiverID
	}

	lock := l.lockFor(ownerID, peerID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.repo.Get(ctx, ownerID, peerID)
	if err != nil {
		return common.PersistenceFailure("conversation lookup failed", err)
	}

	unread := 0
	if existing != nil {
		unread = existing.UnreadCount
	}
	if ownerID == msg.ReceiverID && !msg.Read {
		unread++
	}

	entry := &dbmysql.ConversationEntry{
		OwnerID:       ownerID,
		PeerID:        peerID,
		LastMessageID: msg.ID,
		LastBody:      msg.Body,
		LastKind:      msg.Kind,
		LastStatus:    msg.Status,
		LastSenderID:  msg.SenderID,
		LastMessageAt: msg.CreatedAt,
		UnreadCount:   unread,
	}

	if err := l.repo.Upsert(ctx, entry); err != nil {
		return common.PersistenceFailure("conversation upsert failed", err)
	}
	return nil
}

// SetUnread overwrites the owner's counter with a value recounted from
// the messages table, dropping any drift the increments accumulated.
func (l *conversationLedger) SetUnread(ctx context.Context, ownerID, peerID string, count int) error {
	lock := l.lockFor(ownerID, peerID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.repo.SetUnread(ctx, ownerID, peerID, count); err != nil {
		return common.PersistenceFailure("unread update failed", err)
	}
	return nil
}

// SyncLastStatus mirrors a message status change into both parties'
// inbox rows, where the message is still the latest.
func (l *conversationLedger) SyncLastStatus(ctx context.Context, msg *dbmysql.Message, status common.MessageStatus) error {
	if err := l.repo.UpdateLastStatus(ctx, msg.SenderID, msg.ReceiverID, msg.ID, status); err != nil {
		return err
	}
	return l.repo.UpdateLastStatus(ctx, msg.ReceiverID, msg.SenderID, msg.ID, status)
}

func (l *conversationLedger) List(ctx context.Context, ownerID string) ([]*dbmysql.ConversationEntry, error) {
	entries, err := l.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, common.PersistenceFailure("conversation list failed", err)
	}
	return entries, nil
}
