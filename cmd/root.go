package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresmejia3/sentinel-home/internal/config"
	"github.com/andresmejia3/sentinel-home/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// needsDB marks commands that open the audit log before running.
const needsDB = "needs-db"

var (
	// DB is the audit log shared by subcommands
	DB store.AuditLog
	// cfg is the environment configuration, with flag overrides applied
	cfg *config.Config

	dbURL    string
	dbDriver string
	logLevel string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "sentinel",
	Short:   "Home security face recognition: family welcome, criminal alerts, visitor log",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[needsDB] == "" {
			return nil
		}
		return openDB(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
		}
	},
}

// openDB connects the audit log using the resolved configuration.
func openDB(ctx context.Context) error {
	if DB != nil {
		return nil
	}
	var err error
	DB, err = store.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func Execute() {
	// Ctrl+C (SIGINT) or SIGTERM cancels the command context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection string (default: DATABASE_URL or POSTGRES_* environment)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "Database driver: postgres or mysql (default: DATABASE_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: LOG_LEVEL)")
}

// initConfig loads .env (if present), reads the environment and sets up logging.
func initConfig() {
	_ = godotenv.Load()
	cfg = config.Load()

	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if dbDriver != "" {
		cfg.Database.Driver = strings.ToLower(dbDriver)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	slog.SetDefault(newLogger(cfg.LogLevel))
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
