package identity

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"wayfare/internal/common"
	"wayfare/internal/dbmysql"
)

// Provider resolves user identity from the account directory. Only active
// accounts are visible to the realtime core.
type Provider struct {
	db *gorm.DB
}

func NewProvider(db *gorm.DB) *Provider {
	return &Provider{db: db}
}

func (p *Provider) Resolve(ctx context.Context, userID string) (*common.UserInfo, error) {
	var account dbmysql.UserAccount
	err := p.db.WithContext(ctx).
		Where("id = ? AND active = ?", userID, true).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NewError(common.CodeNotFound, fmt.Sprintf("user %s not found", userID))
		}
		return nil, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}

	return &common.UserInfo{
		ID:          account.ID,
		DisplayName: account.DisplayName,
		AvatarURL:   account.AvatarURL,
		Role:        account.Role,
	}, nil
}

func (p *Provider) IsKnown(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&dbmysql.UserAccount{}).
		Where("id = ? AND active = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check user %s: %w", userID, err)
	}
	return count > 0, nil
}

func (p *Provider) ByRole(ctx context.Context, role common.Role) ([]*common.UserInfo, error) {
	var accounts []dbmysql.UserAccount
	err := p.db.WithContext(ctx).
		Where("role = ? AND active = ?", role, true).
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s accounts: %w", role, err)
	}

	users := make([]*common.UserInfo, len(accounts))
	for i, account := range accounts {
		users[i] = &common.UserInfo{
			ID:          account.ID,
			DisplayName: account.DisplayName,
			AvatarURL:   account.AvatarURL,
			Role:        account.Role,
		}
	}
	return users, nil
}
