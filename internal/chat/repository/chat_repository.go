package repository

import (
	"context"
	"fmt"

	"wayfare/internal/common"
	"wayfare/internal/dbmysql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepository interface {
	Save(ctx context.Context, msg *dbmysql.Message) error
	ByID(ctx context.Context, id string) (*dbmysql.Message, error)
	MarkDelivered(ctx context.Context, id string) (bool, error)
	MarkRead(ctx context.Context, id string) error
	History(ctx context.Context, userA, userB string, limit, offset int) ([]*dbmysql.Message, error)
	CountUnreadFrom(ctx context.Context, ownerID, peerID string) (int64, error)
}

type ConversationRepository interface {
	Upsert(ctx context.Context, entry *dbmysql.ConversationEntry) error
	Get(ctx context.Context, ownerID, peerID string) (*dbmysql.ConversationEntry, error)
	SetUnread(ctx context.Context, ownerID, peerID string, count int) error
	UpdateLastStatus(ctx context.Context, ownerID, peerID, messageID string, status common.MessageStatus) error
	ListByOwner(ctx context.Context, ownerID string) ([]*dbmysql.ConversationEntry, error)
}

type chatRepo struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepo{db: db}
}

func (r *chatRepo) Save(ctx context.Context, msg *dbmysql.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (r *chatRepo) ByID(ctx context.Context, id string) (*dbmysql.Message, error) {
	var msg dbmysql.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, common.NewError(common.CodeNotFound, fmt.Sprintf("message not found: %s", id))
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// MarkDelivered advances status sent -> delivered. The guard keeps the
// transition monotonic: a message already delivered or read is left
// untouched and (false, nil) is returned.
func (r *chatRepo) MarkDelivered(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Where("id = ? AND status = ?", id, common.StatusSent).
		Update("status", common.StatusDelivered)

	if result.Error != nil {
		return false, fmt.Errorf("failed to mark message delivered: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkRead sets the terminal status. Reading a message still in `sent`
// jumps straight to `read`; an already-read message is a no-op.
func (r *chatRepo) MarkRead(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Where("id = ? AND status <> ?", id, common.StatusRead).
		Updates(map[string]interface{}{
			"status": common.StatusRead,
			"read":   true,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark message read: %w", result.Error)
	}
	return nil
}

func (r *chatRepo) History(ctx context.Context, userA, userB string, limit, offset int) ([]*dbmysql.Message, error) {
	var messages []*dbmysql.Message

	query := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		Order("created_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return messages, nil
}

func (r *chatRepo) CountUnreadFrom(ctx context.Context, ownerID, peerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND status <> ?", ownerID, peerID, common.StatusRead).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) Upsert(ctx context.Context, entry *dbmysql.ConversationEntry) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}, {Name: "peer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_message_id", "last_body", "last_kind", "last_status",
				"last_sender_id", "last_message_at", "unread_count", "updated_at",
			}),
		}).
		Create(entry).Error

	if err != nil {
		return fmt.Errorf("failed to upsert conversation entry: %w", err)
	}
	return nil
}

func (r *conversationRepo) Get(ctx context.Context, ownerID, peerID string) (*dbmysql.ConversationEntry, error) {
	var entry dbmysql.ConversationEntry
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND peer_id = ?", ownerID, peerID).
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation entry: %w", err)
	}
	return &entry, nil
}

// SetUnread overwrites the counter. Safe to retry; writing the same
// value twice changes nothing.
func (r *conversationRepo) SetUnread(ctx context.Context, ownerID, peerID string, count int) error {
	err := r.db.WithContext(ctx).
		Model(&dbmysql.ConversationEntry{}).
		Where("owner_id = ? AND peer_id = ?", ownerID, peerID).
		Update("unread_count", count).Error
	if err != nil {
		return fmt.Errorf("failed to set unread count: %w", err)
	}
	return nil
}

// UpdateLastStatus keeps the inbox row's displayed status in step with a
// message status change, but only while that message is still the entry's
// most recent one.
func (r *conversationRepo) UpdateLastStatus(ctx context.Context, ownerID, peerID, messageID string, status common.MessageStatus) error {
	err := r.db.WithContext(ctx).
		Model(&dbmysql.ConversationEntry{}).
		Where("owner_id = ? AND peer_id = ? AND last_message_id = ?", ownerID, peerID, messageID).
		Update("last_status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update conversation status: %w", err)
	}
	return nil
}

func (r *conversationRepo) ListByOwner(ctx context.Context, ownerID string) ([]*dbmysql.ConversationEntry, error) {
	var entries []*dbmysql.ConversationEntry
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("last_message_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return entries, nil
}
