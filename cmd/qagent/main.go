package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartridge/qagent/internal/config"
	"github.com/cartridge/qagent/internal/storage"
)

var (
	v          = viper.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "qagent",
	Short: "Continuous-action Q-learning agent",
	Long: `qagent learns the value of continuous actions from reported rewards and
chooses actions for a host control loop.

The agent is served over gRPC and an HTTP admin API. Its learned data can be
checkpointed to SQLite or PostgreSQL and restored on start.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", config.Default().LogLevel, "Log level (debug, info, warn, error)")
	if err := v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(serveCmd, snapshotsCmd)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", "qagent").Logger()
}

// openStore returns the snapshot store selected by cfg and a func closing it.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.SnapshotStore, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return storage.NewMemoryStore(), func() error { return nil }, nil
	case config.DriverSQLite:
		store, err := storage.Open(ctx, storage.DialectSQLite, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.DriverPostgres:
		store, err := storage.Open(ctx, storage.DialectPostgres, cfg.ConnectionString())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
