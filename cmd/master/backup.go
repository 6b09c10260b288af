package main

import (
	"errors"
	"fmt"
	"time"

	"elric-go/internal/config"
	"elric-go/internal/logging"
	"elric-go/internal/storage"

	"github.com/spf13/cobra"
)

var backupOut string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a verified copy of the SQLite job store",
	Long: `Backup copies the SQLite job store named by store.path into --out and
checks that the copy holds the same jobs and schema version.

The master may keep running while the copy is taken.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Store.Backend != "sqlite" {
			return errors.New("backup needs store.backend sqlite")
		}

		logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		store, err := storage.OpenDatabase(storage.Config{
			Path:            cfg.Store.Path,
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime.Duration,
			ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime.Duration,
			BusyTimeout:     cfg.Store.BusyTimeout.Duration,
		})
		if err != nil {
			return err
		}
		defer store.Close()

		start := time.Now()
		if err := store.Backup(cmd.Context(), backupOut); err != nil {
			return err
		}
		logger.Infow("Backup complete", "source", cfg.Store.Path, "out", backupOut, "duration", time.Since(start))
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "", "destination file; must not exist")
	_ = backupCmd.MarkFlagRequired("out")
}
