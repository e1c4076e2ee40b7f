package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wayfare/internal/common"
	"wayfare/internal/dbmysql"
)

// CallRepository persists call sessions. Every transition is a guarded
// update: the WHERE clause names the states the transition may leave, and
// the boolean result reports whether this caller actually won the write.
type CallRepository interface {
	Create(ctx context.Context, session *dbmysql.CallSession) error
	ByChannelID(ctx context.Context, channelID string) (*dbmysql.CallSession, error)
	ActiveFor(ctx context.Context, userID string) (*dbmysql.CallSession, error)
	Accept(ctx context.Context, channelID string, at time.Time) (bool, error)
	FinishPending(ctx context.Context, channelID string, status common.CallStatus, at time.Time, endedBy *string, reason common.CallEndReason) (bool, error)
	Finish(ctx context.Context, channelID string, status common.CallStatus, at time.Time, duration int, endedBy *string, reason common.CallEndReason) (bool, error)
	ByParticipant(ctx context.Context, userID string, limit, offset int) ([]*dbmysql.CallSession, error)
}

type callRepository struct {
	db *gorm.DB
}

func NewCallRepository(db *gorm.DB) CallRepository {
	return &callRepository{db: db}
}

func (r *callRepository) Create(ctx context.Context, session *dbmysql.CallSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create call session: %w", err)
	}
	return nil
}

func (r *callRepository) ByChannelID(ctx context.Context, channelID string) (*dbmysql.CallSession, error) {
	var session dbmysql.CallSession
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call session: %w", err)
	}
	return &session, nil
}

// ActiveFor returns the session the user currently participates in,
// pending or active, or nil when the user is free.
func (r *callRepository) ActiveFor(ctx context.Context, userID string) (*dbmysql.CallSession, error) {
	var session dbmysql.CallSession
	err := r.db.WithContext(ctx).
		Where("(caller_id = ? OR receiver_id = ?) AND status IN ?",
			userID, userID, []common.CallStatus{common.CallPending, common.CallActive}).
		Order("start_time DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active call: %w", err)
	}
	return &session, nil
}

func (r *callRepository) Accept(ctx context.Context, channelID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&dbmysql.CallSession{}).
		Where("channel_id = ? AND status = ?", channelID, common.CallPending).
		Updates(map[string]interface{}{
			"status":      common.CallActive,
			"accept_time": at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to accept call session: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *callRepository) FinishPending(
	ctx context.Context,
	channelID string,
	status common.CallStatus,
	at time.Time,
	endedBy *string,
	reason common.CallEndReason,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&dbmysql.CallSession{}).
		Where("channel_id = ? AND status = ?", channelID, common.CallPending).
		Updates(map[string]interface{}{
			"status":   status,
			"end_time": at,
			"ended_by": endedBy,
			"reason":   reason,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to finish pending call session: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *callRepository) Finish(
	ctx context.Context,
	channelID string,
	status common.CallStatus,
	at time.Time,
	duration int,
	endedBy *string,
	reason common.CallEndReason,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&dbmysql.CallSession{}).
		Where("channel_id = ? AND status IN ?",
			channelID, []common.CallStatus{common.CallPending, common.CallActive}).
		Updates(map[string]interface{}{
			"status":   status,
			"end_time": at,
			"duration": duration,
			"ended_by": endedBy,
			"reason":   reason,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to finish call session: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *callRepository) ByParticipant(
	ctx context.Context,
	userID string,
	limit, offset int,
) ([]*dbmysql.CallSession, error) {
	var sessions []*dbmysql.CallSession
	query := r.db.WithContext(ctx).
		Where("caller_id = ? OR receiver_id = ?", userID, userID).
		Order("start_time DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list call sessions: %w", err)
	}
	return sessions, nil
}
