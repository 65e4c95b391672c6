package dbsql

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"guestbook/internal/config"
	"guestbook/internal/log"
)

// Connect opens the configured database (mysql, postgres or sqlite).
func Connect(cnf *config.Config) (*gorm.DB, error) {
	dsn := cnf.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is not set")
	}

	dialector, err := dialectorFor(cnf.Database.Driver, dsn)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if strings.EqualFold(cnf.Logging.Level, "debug") {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql.DB error: %w", err)
	}
	if cnf.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cnf.Database.MaxOpenConns)
	}
	if cnf.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cnf.Database.MaxIdleConns)
	}
	if lifetime := connMaxLifetime(cnf); lifetime > 0 {
		sqlDB.SetConnMaxLifetime(lifetime)
	}

	log.Info.Printf("Connected to %s successfully", dialector.Name())

	return db, nil
}

// connMaxLifetime is zero for in-memory sqlite: the database lives only as
// long as its last connection.
func connMaxLifetime(cnf *config.Config) time.Duration {
	if isMemoryDSN(cnf.Database.Driver, cnf.DSN()) {
		return 0
	}
	return cnf.Database.ConnMaxLifetime
}

func isMemoryDSN(driver, dsn string) bool {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	default:
		return false
	}
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "", "mysql":
		return mysql.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates or updates the guestbook tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Message{}, &MessageLike{}, &MessageComment{}, &User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
