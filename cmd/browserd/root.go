package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/browserd/internal/config"
	"github.com/neboloop/browserd/internal/db"
	"github.com/neboloop/browserd/internal/logging"
	"github.com/neboloop/browserd/internal/middleware"
	"github.com/neboloop/browserd/internal/server"
)

// ServeCmd starts the protocol server.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the protocol server",
		Long:  `Start the WebSocket server and launch the browser backend.`,
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

// VersionCmd prints the build version.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("browserd %s\n", Version)
		},
	}
}

// runServe wires config, auth, auditing and the server together and blocks
// until a shutdown signal arrives.
func runServe() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	secrets, err := buildSecrets(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load auth secret: %v\n", err)
		os.Exit(1)
	}

	var store *db.Store
	if cfg.Audit.DBPath != "" {
		store, err = db.NewSQLite(cfg.Audit.DBPath, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open audit database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
		if err := store.SchedulePruning(cfg.Audit.PruneSchedule, retention); err != nil {
			logger.Warn("audit pruning not scheduled", "error", err)
		}
	}

	srv := server.New(*cfg, Version, secrets, store, logger)
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config, falling back to the
// default search path.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFrom(cfgFile)
	}
	return config.Load()
}

// buildSecrets picks the secret source. An inline token wins; a token file is
// hot-reloaded in the background for the life of the process.
func buildSecrets(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*middleware.SecretProvider, error) {
	if cfg.Auth.Token != "" {
		return middleware.NewStaticSecret(cfg.Auth.Token), nil
	}
	if cfg.Auth.TokenFile == "" {
		// Fails closed: the gate answers 503 until a secret is configured.
		return middleware.NewStaticSecret(""), nil
	}

	secrets, err := middleware.NewFileSecret(cfg.Auth.TokenFile, logger)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := secrets.Watch(ctx); err != nil {
			logger.Warn("secret file watch stopped", "error", err)
		}
	}()
	return secrets, nil
}
