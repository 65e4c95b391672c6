package main

import (
	"github.com/spf13/cobra"

	"guestbook/internal/config"
	"guestbook/internal/dbsql"
	"guestbook/internal/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the guestbook tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if err := log.Configure(cfg.Logging.Level, cfg.Logging.OutputPath); err != nil {
			return err
		}

		db, err := dbsql.Connect(cfg)
		if err != nil {
			return err
		}
		defer dbsql.Close(db)

		log.Info.Println("Running database migration...")
		if err := dbsql.Migrate(db); err != nil {
			return err
		}
		log.Info.Println("Database migration completed successfully!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
