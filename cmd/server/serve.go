package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prasenjit/mockforge/internal/api"
	"github.com/prasenjit/mockforge/internal/assistant"
	"github.com/prasenjit/mockforge/internal/catalog"
	"github.com/prasenjit/mockforge/internal/chat"
	"github.com/prasenjit/mockforge/internal/config"
	"github.com/prasenjit/mockforge/internal/feed"
	"github.com/prasenjit/mockforge/internal/importer"
	"github.com/prasenjit/mockforge/internal/logging"
	"github.com/prasenjit/mockforge/internal/metrics"
	"github.com/prasenjit/mockforge/internal/proxy"
	"github.com/prasenjit/mockforge/internal/stats"
	"github.com/prasenjit/mockforge/internal/storage"
	"github.com/prasenjit/mockforge/internal/template"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MockForge server",
	Long: `Starts the MockForge server.

The server will:
  - Expose the management API at /api/
  - Answer mock requests under /mock/
  - Publish Prometheus metrics at /metrics

Configuration is loaded from config.yaml in the current directory,
or specify a custom config file with the --config flag. Every key can
be overridden with a MOCKFORGE_ environment variable.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Override server port")
	serveCmd.Flags().String("storage", "", "Storage backend: memory, file or badger")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("storage.type", serveCmd.Flags().Lookup("storage"))
	_ = viper.BindPFlag("logging.level", serveCmd.Flags().Lookup("log-level"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStorage(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", zap.Error(err))
		}
	}()

	expander := template.NewEngine()
	m := metrics.New()
	feedSvc := feed.NewService(100)
	ledger := stats.NewLedger(store, feedSvc, stats.Options{
		RecentRequests: cfg.Stats.RecentRequests,
		TopMocks:       cfg.Stats.TopMocks,
	})
	cat := catalog.New(store, expander, logger)

	a, err := assistant.New(cfg.Assistant, logger)
	if err != nil {
		return err
	}
	if a == nil {
		logger.Info("chat assistant disabled")
	}
	chats := chat.NewService(store, cat, a, m, logger)
	imp := importer.New(cat, logger)
	proxyEngine := proxy.NewEngine(store, ledger, expander, m, logger)

	handler := api.NewHandler(cat, chats, ledger, imp, logger)
	router := api.NewRouter(handler, proxyEngine, feedSvc, m, logger)

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting MockForge server",
			zap.String("addr", server.Addr),
			zap.String("storage", cfg.Storage.Type),
			zap.String("mocks", "http://"+server.Addr+proxy.DefaultPrefix+"/"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openStorage builds the configured backend
func openStorage(cfg config.StorageConfig, logger *zap.Logger) (storage.Storage, error) {
	path := cfg.Path
	if path != "" && !filepath.IsAbs(path) {
		if cwd, err := os.Getwd(); err == nil {
			path = filepath.Join(cwd, path)
		}
	}

	switch cfg.Type {
	case config.StorageFile:
		logger.Info("using file storage", zap.String("path", path))
		store, err := storage.NewFileStorage(path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
		return store, nil
	case config.StorageBadger:
		logger.Info("using badger storage", zap.String("path", path))
		bc := storage.DefaultBadgerConfig(path)
		bc.Logger = logger
		store, err := storage.NewBadgerStorage(bc)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize badger storage: %w", err)
		}
		return store, nil
	default:
		return storage.NewMemoryStorage(), nil
	}
}
