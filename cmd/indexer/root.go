package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/entityindexer/internal/config"
	"github.com/rpattn/entityindexer/internal/db"
	"github.com/rpattn/entityindexer/internal/handlers"
	"github.com/rpattn/entityindexer/internal/logging"
	"github.com/rpattn/entityindexer/internal/repository"
)

var (
	configPath string
	logLevel   string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "indexer",
	Short:         "Entity manager indexer",
	Long:          "Indexes ManageEntity events from ledger blocks into versioned Postgres rows and slug routes.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return err
		}
		if cfg.Source != "" {
			logger.Debug("configuration loaded", zap.String("file", cfg.Source))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(dryRunCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(grantCmd)
}

// openStore connects to Postgres. The caller closes the connection.
func openStore(ctx context.Context) (repository.Store, *db.Connection, error) {
	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewStore(conn), conn, nil
}

func registry() *handlers.Registry {
	return handlers.DefaultRegistry(handlers.Offsets{
		User:     cfg.Indexer.UserIDOffset,
		Playlist: cfg.Indexer.PlaylistIDOffset,
	})
}

func printJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
