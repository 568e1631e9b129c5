package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facedetector/internal/config"
	"github.com/andresmejia3/facedetector/internal/store"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Cfg is the configuration shared by subcommands, loaded before any of them runs
	Cfg *config.Config
	// DB is the audit log connection, opened only by commands that use it
	DB *store.Store

	cfgFile string
	dbURL   string
)

// defaultDBURL is used by commands that require the audit log when nothing else is configured.
const defaultDBURL = "postgres://localhost:5432/facedetector"

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facedetector",
	Short:   "Face detection relay over a length-prefixed TCP protocol",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; the real environment still applies
		_ = godotenv.Load()

		var err error
		if cfgFile != "" {
			Cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
		} else {
			Cfg = config.Default()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
			DB = nil
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the transfer audit log")
}

// resolveDBURL picks the audit database in order of precedence: --db flag,
// config file, POSTGRES_* environment. With required set it falls back to a
// local default, otherwise it returns "" to mean the audit log is disabled.
func resolveDBURL(cfg *config.Config, required bool) string {
	if dbURL != "" {
		return dbURL
	}
	if cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	if required {
		return defaultDBURL
	}
	return ""
}

// openDB connects the audit log. It returns a nil store when the log is
// optional and nothing is configured.
func openDB(ctx context.Context, required bool) (*store.Store, error) {
	url := resolveDBURL(Cfg, required)
	if url == "" {
		return nil, nil
	}
	db, err := store.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = db
	return db, nil
}

// newLogger configures the standard logrus logger from the log section, so
// package-level logging in detect follows the same settings.
func newLogger(lc config.LogConfig) (*logrus.Logger, error) {
	log := logrus.StandardLogger()
	log.SetOutput(os.Stderr)

	level := logrus.InfoLevel
	if lc.Level != "" {
		var err error
		if level, err = logrus.ParseLevel(lc.Level); err != nil {
			return nil, err
		}
	}
	log.SetLevel(level)

	if lc.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
