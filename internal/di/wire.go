//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"
	"gorm.io/gorm"

	"wayfare/internal/api"
	"wayfare/internal/call"
	"wayfare/internal/chat/repository"
	chatservice "wayfare/internal/chat/service"
	"wayfare/internal/common"
	"wayfare/internal/config"
	"wayfare/internal/dbmysql"
	"wayfare/internal/identity"
	"wayfare/internal/notif"
	"wayfare/internal/presence"
	"wayfare/internal/push"
)

// This is just a declaration — wire will generate the real body
func InitializeApp(cfg *config.Config, db *gorm.DB) (*App, error) {
	wire.Build(
		ProvideRegistry,
		ProvideHub,
		wire.Bind(new(common.Presence), new(*presence.Registry)),
		wire.Bind(new(common.PushTransport), new(*push.Hub)),
		identity.NewProvider,
		wire.Bind(new(common.IdentityProvider), new(*identity.Provider)),
		dbmysql.NewNotificationRepository,
		repository.NewChatRepository,
		repository.NewConversationRepository,
		chatservice.NewConversationLedger,
		chatservice.NewChatService,
		notif.NewNotificationService,
		wire.Bind(new(api.NotificationService), new(*notif.NotificationService)),
		call.NewCallRepository,
		call.NewCallService,
		api.NewServer,
		wire.Struct(new(App), "*"),
	)
	return &App{}, nil
}
