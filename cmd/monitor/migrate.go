package main

import (
	"github.com/spf13/cobra"

	"github.com/leozw/ads-guardian/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := db.Migrate(a.DB); err != nil {
			return err
		}
		a.Logger.Info("Database migrations applied")
		return nil
	},
}
