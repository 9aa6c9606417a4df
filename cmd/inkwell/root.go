package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/inkwell/pkg/inkwell/config"
	"github.com/mikepea/inkwell/pkg/inkwell/database"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfgFile      string
	logLevelFlag string

	// cfg is loaded once per invocation by rootCmd
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "inkwell",
	Short:        "Blog API with posts, tags, comments and image uploads",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevelFlag != "" {
			loaded.LogLevel = logLevelFlag
		}
		cfg = loaded

		observability.SetLogger(observability.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel))
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

// openDB connects to the configured database and brings the schema up to date
func openDB() (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(db); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
