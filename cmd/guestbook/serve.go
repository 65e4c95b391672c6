package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"guestbook/internal/config"
	"guestbook/internal/dbsql"
	"guestbook/internal/log"
	"guestbook/internal/wire"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	Long: `Run the guestbook API, the realtime websocket feed and the sign-in routes.

Example usage:
  guestbook serve
  guestbook serve --memory   # throwaway in-memory sqlite database`,
	RunE: runServe,
}

var (
	memoryDB  bool
	noMigrate bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&memoryDB, "memory", false, "use an in-memory sqlite database instead of DB_DRIVER")
	serveCmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "skip schema migration on startup")
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if memoryDB {
		log.Warn.Println("Using in-memory database, data is lost on exit")
		return dbsql.OpenMemory()
	}

	db, err := dbsql.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if !noMigrate {
		if err := dbsql.Migrate(db); err != nil {
			dbsql.Close(db)
			return nil, err
		}
	}
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.LoadConfig()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.OutputPath); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer dbsql.Close(db)

	log.Info.Println("Initializing application...")
	app, cleanup, err := wire.InitializeApplication(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        setupRouter(app),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info.Printf("Server starting on %s (public url %s)", server.Addr, cfg.Server.PublicURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		cleanup()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn.Printf("Server forced to shutdown: %v", err)
	}

	// sessions, relay and hub, in that order
	cleanup()

	log.Info.Println("Server gracefully stopped")
	return nil
}
