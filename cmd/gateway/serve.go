package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reblurb-gateway/internal/cache"
	"reblurb-gateway/internal/config"
	"reblurb-gateway/internal/handlers"
	"reblurb-gateway/internal/httpserver"
	"reblurb-gateway/internal/llm"
	"reblurb-gateway/internal/metrics"
	"reblurb-gateway/internal/summary"
	"reblurb-gateway/pkg/logging/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// ----- Config -----
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// ----- Logger -----
	logger, err := logging.NewLogger(logging.Options{Env: cfg.Log.Env, Level: cfg.Log.Level})
	if err != nil {
		return err
	}
	defer logger.Sync()
	logging.SetDefault(logger)

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("generator_provider", cfg.Generator.Provider),
		zap.String("generator_model", cfg.Generator.Model),
		zap.Int("char_limit", cfg.Generator.CharLimit()),
		zap.Bool("coalesce", cfg.Summary.Coalesce),
	)

	// ----- Summary store -----
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		logger.Error("summary store unavailable", zap.Error(err))
		return err
	}
	defer closeIfCloser(logger, "store", store)

	// ----- Generator -----
	gen, err := llm.NewGenerator(cfg.LLMConfig(), logger)
	if err != nil {
		return err
	}
	defer closeIfCloser(logger, "generator", gen)

	// ----- Orchestrator -----
	keys, err := cfg.KeyBuilder()
	if err != nil {
		return err
	}
	summaries, err := summary.New(summary.Config{
		Store:     store,
		Generator: llm.NewLoggingGenerator(gen, cfg.Generator.Provider, cfg.Generator.Model),
		Prompts:   cfg.SummaryPrompts(),
		Keys:      keys,
		CharLimit: cfg.Generator.CharLimit(),
		Coalesce:  cfg.Summary.Coalesce,
	})
	if err != nil {
		return err
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, handlers.NewSummaryHandler(summaries), httpserver.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	// ----- HTTP server -----
	// WriteTimeout sits past the request timeout so the 504 body gets out.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("version", version),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// openStore opens the configured backend behind the logging decorator.
func openStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	store, err := cache.Open(openCtx, cfg.CacheConfig())
	if err != nil {
		return nil, err
	}
	return cache.NewLoggingStore(store), nil
}

func closeIfCloser(logger *zap.Logger, name string, v any) {
	closer, ok := v.(interface{ Close() error })
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("close failed", zap.String("component", name), zap.Error(err))
	}
}
