//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"
	"github.com/gorilla/sessions"
	"gorm.io/gorm"

	"guestbook/internal/common"
	"guestbook/internal/config"
	"guestbook/internal/guestbook"
	"guestbook/internal/realtime"
	"guestbook/internal/user"
)

func InitializeApplication(cfg *config.Config, db *gorm.DB) (*Application, func(), error) {
	wire.Build(
		ProvideHub,
		ProvideRelay,
		wire.Bind(new(common.Publisher), new(*realtime.Hub)),
		wire.Bind(new(guestbook.Feed), new(*realtime.Hub)),
		guestbook.NewGuestbookRepository,
		wire.Bind(new(guestbook.Store), new(*guestbook.GuestbookRepository)),
		ProvideChecker,
		ProvideRegistry,
		common.NewTokenIssuer,
		common.NewSessionStore,
		wire.Bind(new(sessions.Store), new(*sessions.CookieStore)),
		common.NewLimiterPool,
		guestbook.NewHandler,
		user.NewUserRepository,
		user.DefaultProviders,
		user.NewAuthService,
		user.NewHandler,
		realtime.NewWSHandler,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}
