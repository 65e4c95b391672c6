package dbsql

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"guestbook/internal/config"
)

// OpenMemory returns a migrated, private in-memory sqlite database.
// Used by tests and the "serve --memory" demo mode.
func OpenMemory() (*gorm.DB, error) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:       "sqlite",
			Path:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Logging: config.LoggingConfig{Level: "error"},
	}
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
