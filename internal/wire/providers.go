package wire

import (
	"time"

	"github.com/gorilla/sessions"
	"gorm.io/gorm"

	"guestbook/internal/common"
	"guestbook/internal/config"
	"guestbook/internal/guestbook"
	"guestbook/internal/log"
	"guestbook/internal/realtime"
	"guestbook/internal/schema"
	"guestbook/internal/user"
)

type Application struct {
	Config    *config.Config
	DB        *gorm.DB
	Hub       *realtime.Hub
	Relay     *realtime.RedisRelay
	Registry  *guestbook.Registry
	Tokens    *common.TokenIssuer
	Sessions  *sessions.CookieStore
	Guestbook *guestbook.Handler
	Auth      *user.Handler
	Realtime  *realtime.WSHandler
}

func ProvideHub(cfg *config.Config) (*realtime.Hub, func()) {
	hub := realtime.NewHub(cfg)
	return hub, hub.Shutdown
}

// ProvideRelay is nil without REDIS_ADDR.
func ProvideRelay(cfg *config.Config, hub *realtime.Hub) (*realtime.RedisRelay, func(), error) {
	relay, err := realtime.NewRedisRelay(cfg, hub)
	if err != nil {
		return nil, nil, err
	}
	if relay == nil {
		log.Info.Println("Redis relay disabled, change feed is local to this instance")
	}
	return relay, func() {
		if err := relay.Close(); err != nil {
			log.Warn.Printf("Error closing redis relay: %v", err)
		}
	}, nil
}

func ProvideChecker(cfg *config.Config) schema.ProfanityChecker {
	heat := cfg.Guestbook.ProfanityHeat
	if heat <= 0 {
		heat = schema.DefaultHeat
	}
	return schema.NewProfanityChecker(heat)
}

// ProvideRegistry builds one controller per browser session, all sharing
// the store and the change feed.
func ProvideRegistry(cfg *config.Config, store guestbook.Store, feed guestbook.Feed, checker schema.ProfanityChecker) (*guestbook.Registry, func()) {
	opts := guestbook.Options{
		AdminUserID: cfg.Auth.AdminUserID,
		ReloadDelay: time.Duration(cfg.Guestbook.ReloadDelayMillis) * time.Millisecond,
		Checker:     checker,
	}
	registry := guestbook.NewRegistry(func(notifier guestbook.Notifier) *guestbook.Controller {
		return guestbook.NewController(store, feed, notifier, opts)
	}, time.Duration(cfg.Guestbook.SessionTTLMinutes)*time.Minute, cfg.Guestbook.MaxSessions)
	return registry, registry.Shutdown
}
