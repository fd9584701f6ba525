package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/helixml/branchscope"
	"github.com/helixml/branchscope/infrastructure/api"
	apimiddleware "github.com/helixml/branchscope/infrastructure/api/middleware"
	"github.com/helixml/branchscope/internal/config"
	"github.com/helixml/branchscope/internal/log"
	"github.com/helixml/branchscope/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                          Server host to bind to (default: 0.0.0.0)
  PORT                          Server port to listen on (default: 8080)
  DATA_DIR                      Data directory (default: ~/.branchscope)
  DB_URL                        Database URL (default: sqlite:///{data_dir}/branchscope.db)
  DB_MAX_OPEN_CONNS             Open connection limit, ignored by SQLite (default: 10)
  DB_MAX_IDLE_CONNS             Idle connection limit (default: 5)
  DB_CONN_MAX_LIFETIME_SECONDS  Connection reuse lifetime (default: 1800)
  LOG_LEVEL                     Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                    Log format: pretty, json (default: pretty)
  CACHE_CAPACITY                Disk budget for materialized branches (default: 2GB)
  REMOTE_CACHE_TTL_SECONDS      Remote state cache lifetime (default: 60)
  GIT_BINARY                    Git executable (default: git)
  ANALYZER_BINARY               Analyzer executable (default: scc)
  ANALYZER_ARGS                 Analyzer arguments (default: --ci)
  TRACK_STATISTICS              Record sizes and visits (default: true)
  STREAM_INTERVAL_MS            Status stream sampling interval (default: 500)
  PERSISTENCE_MAX_RETRIES       Store retries before giving up (default: 5)
  PERSISTENCE_INITIAL_DELAY_MS  First retry delay (default: 100)
  CORS_ORIGINS                  Comma-separated allowed origins`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(parent context.Context, envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := cfg.EnsureWorkspaceDir(); err != nil {
		return fmt.Errorf("create workspace directory: %w", err)
	}

	logger := log.Configure(cfg)
	m := metrics.New()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	logger.LogAttrs(context.Background(), slog.LevelInfo, "starting branchscope", attrs...)

	client, err := branchscope.New(
		branchscope.WithConfig(cfg),
		branchscope.WithLogger(logger),
		branchscope.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("create branchscope client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close branchscope client", slog.Any("error", err))
		}
	}()

	apiServer := api.NewAPIServer(client,
		api.WithVersion(version),
		api.WithServerOptions(api.WithCORSOrigins(cfg.CORSOrigins())),
	)
	router := apiServer.Router()

	// Middleware must be added before MountRoutes.
	router.Use(apimiddleware.CorrelationID)
	router.Use(apimiddleware.Logging(logger, m))
	apiServer.MountRoutes()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.ListenAndServe(cfg.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
