package di

import (
	"gorm.io/gorm"

	"wayfare/internal/api"
	"wayfare/internal/call"
	"wayfare/internal/config"
	"wayfare/internal/notif"
	"wayfare/internal/presence"
	"wayfare/internal/push"
)

// App bundles the realtime service's wired components. The main owns the
// config, database handle and shutdown ordering.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Registry *presence.Registry
	Hub      *push.Hub
	Notifs   *notif.NotificationService
	Calls    call.CallService
	Server   *api.Server
}

// Shutdown stops the background workers. HTTP draining is the main's job.
func (a *App) Shutdown() {
	a.Calls.Shutdown()
	a.Notifs.Shutdown()
}

func ProvideRegistry() *presence.Registry {
	return presence.NewRegistry()
}

func ProvideHub(cfg *config.Config) *push.Hub {
	return push.NewHub(cfg.Notification.ChannelBufferSize)
}
