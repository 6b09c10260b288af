package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"elric-go/internal/app"
	"elric-go/internal/config"
	"elric-go/internal/logging"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "elric-master",
	Short: "Elric master - distributed job scheduler",
	Long: `Elric master accepts serialized jobs, keeps them in a time-ordered store
and pushes each due job onto the work queue named by its routing key.

Examples:
  elric-master --config ./configs/master.json     # Run the master
  elric-master backup --out ./backups/jobs.db     # Copy the SQLite job store`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file (defaults apply when empty)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler loop and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// Create a new application instance
	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the application
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application failed to start: %w", err)
	}

	<-ctx.Done()
	logger.Infow("Shutdown signal received, initiating graceful shutdown")

	if err := application.Stop(context.Background()); err != nil {
		return fmt.Errorf("error during graceful shutdown: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
