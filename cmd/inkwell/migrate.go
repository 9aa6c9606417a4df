package main

import (
	"github.com/mikepea/inkwell/pkg/inkwell/database"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := openDB(); err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		observability.Logger.Info("database migrations completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
