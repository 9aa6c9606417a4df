package main

import (
	"errors"
	"os"

	"github.com/mikepea/inkwell/pkg/inkwell/auth"
	"github.com/mikepea/inkwell/pkg/inkwell/database"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	"github.com/spf13/cobra"
)

// superuserPasswordEnv lets scripts avoid passing the password on the command line
const superuserPasswordEnv = "INKWELL_SUPERUSER_PASSWORD"

var (
	superuserEmail    string
	superuserName     string
	superuserPassword string
)

var createSuperuserCmd = &cobra.Command{
	Use:   "createsuperuser",
	Short: "Create an active staff account with every permission",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := superuserPassword
		if password == "" {
			password = os.Getenv(superuserPasswordEnv)
		}
		if password == "" {
			return errors.New("a password is required: pass --password or set " + superuserPasswordEnv)
		}
		name := superuserName
		if name == "" {
			name = "Admin"
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		user, err := auth.CreateSuperuser(cmd.Context(), db, superuserEmail, name, password)
		if err != nil {
			return err
		}

		observability.Logger.Info("superuser created", "user_id", user.ID, "email", user.Email)
		return nil
	},
}

func init() {
	createSuperuserCmd.Flags().StringVar(&superuserEmail, "email", "", "email address (required)")
	createSuperuserCmd.Flags().StringVar(&superuserName, "name", "", "display name (default \"Admin\")")
	createSuperuserCmd.Flags().StringVar(&superuserPassword, "password", "", "password (or set "+superuserPasswordEnv+")")
	_ = createSuperuserCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(createSuperuserCmd)
}
