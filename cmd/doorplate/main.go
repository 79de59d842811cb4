package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/doorplate-crawler/pkg/config"
	"github.com/user/doorplate-crawler/pkg/logger"
)

var version = "1.0.0"

var (
	envFile  string
	logLevel string
	cfg      *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "doorplate",
	Short: "Door plate change record crawler",
	Long: `doorplate fetches door plate change records from the household
registration portal, district by district, and stores them in PostgreSQL.

Commands:
  serve   - run the HTTP API, the scheduler and the job worker
  crawl   - run one batch from the command line
  migrate - apply the database schema`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFile(envFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logger.Init(os.Stderr, logger.ParseLevel(level))
		slog.Debug("Configuration loaded", "env_file", envFile, "portal", cfg.PortalBaseURL)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional env file to read settings from")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
