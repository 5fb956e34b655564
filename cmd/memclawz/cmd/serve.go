package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/yoniassia/memclawz/internal/config"
	"github.com/yoniassia/memclawz/internal/embed"
	"github.com/yoniassia/memclawz/internal/index"
	"github.com/yoniassia/memclawz/internal/logging"
	"github.com/yoniassia/memclawz/internal/search"
	"github.com/yoniassia/memclawz/internal/server"
	"github.com/yoniassia/memclawz/internal/syncer"
	"github.com/yoniassia/memclawz/internal/telemetry"
	"github.com/yoniassia/memclawz/pkg/version"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	var noSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the memory service",
		Long: `Start the HTTP API server and, unless disabled, the background
sync loop that tails the agent runtime's memory log.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if noSync {
				cfg.Sync.Enabled = false
			}
			if root.debug {
				cfg.Server.LogLevel = "debug"
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override the listen port")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Disable the background sync loop")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Server.LogLevel,
		FilePath:      filepath.Join(cfg.Server.DataDir, "logs", "server.log"),
		WriteToStderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	// One instance per data directory.
	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.Server.DataDir, "memclawz.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another memclawz instance is already running against %s", cfg.Server.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	embedder, err := embed.NewEmbedder(embed.Options{
		Provider:   embed.ParseProvider(cfg.Embeddings.Provider),
		Endpoint:   cfg.Embeddings.Endpoint,
		Dimensions: cfg.Embeddings.Dimensions,
		Timeout:    cfg.Embeddings.Timeout,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	tenants := make([]index.Tenant, len(cfg.Fleet.Tenants))
	for i, t := range cfg.Fleet.Tenants {
		tenants[i] = index.Tenant{Namespace: t.Namespace, Key: t.Key}
	}
	manager, err := index.NewManager(index.Config{
		M:        cfg.Index.M,
		EfSearch: cfg.Index.EfSearch,
	}, tenants, logger)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	engine, err := search.NewEngine(manager, embedder, search.Config{
		VectorWeight:        cfg.Search.VectorWeight,
		KeywordWeight:       cfg.Search.KeywordWeight,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		DefaultTopK:         cfg.Search.DefaultTopK,
		MaxTopK:             cfg.Search.MaxTopK,
	}, logger)
	if err != nil {
		return err
	}

	metrics := telemetry.New()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sync *syncer.Syncer
	if cfg.Sync.Enabled {
		sync, err = startSync(ctx, cfg, manager, embedder, metrics, logger)
		if err != nil {
			return err
		}
	}

	srv := server.New(server.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		MaxIndexBatch: cfg.Server.MaxIndexBatch,
	}, manager, engine, embedder, sync, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("memclawz_started",
		slog.String("version", version.Version),
		slog.Int("port", cfg.Server.Port),
		slog.Bool("sync", cfg.Sync.Enabled))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", slog.String("error", err.Error()))
		return err
	}
	logger.Info("memclawz_stopped")
	return nil
}

// startSync opens the memory log source and starts the sync loop, plus the
// file watcher when configured.
func startSync(ctx context.Context, cfg *config.Config, manager *index.Manager, embedder embed.Embedder, metrics *telemetry.Metrics, logger *slog.Logger) (*syncer.Syncer, error) {
	source, err := syncer.NewSQLiteSource(cfg.Sync.SourcePath)
	if err != nil {
		return nil, err
	}

	sync, err := syncer.New(source, manager, embedder, syncer.Config{
		Namespace:  cfg.Sync.Namespace,
		StatePath:  cfg.Sync.StatePath,
		BatchSize:  cfg.Sync.BatchSize,
		FetchLimit: cfg.Sync.FetchLimit,
		Interval:   cfg.Sync.Interval,
	}, logger)
	if err != nil {
		_ = source.Close()
		return nil, err
	}
	sync.SetMetrics(metrics)

	go func() {
		defer func() { _ = source.Close() }()
		if err := sync.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("sync_loop_failed", slog.String("error", err.Error()))
		}
	}()

	if cfg.Sync.WatchSource {
		watcher, err := syncer.NewWatcher(cfg.Sync.SourcePath, sync.Trigger, logger)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("source_watcher_failed", slog.String("error", err.Error()))
			}
		}()
	}

	return sync, nil
}
