package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/partyrounds/session-backend/internal/config"
	"github.com/partyrounds/session-backend/internal/httpapi"
	"github.com/partyrounds/session-backend/internal/hub"
	"github.com/partyrounds/session-backend/internal/media"
	"github.com/partyrounds/session-backend/internal/score"
	"github.com/partyrounds/session-backend/internal/session"
	"github.com/partyrounds/session-backend/internal/store"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		sink          score.Sink
		progressStore session.ProgressStore
	)
	if cfg.DatabaseURL != "" {
		st, err := store.Open(cfg.DatabaseURL, log)
		if err != nil {
			log.Fatalw("opening score store failed", "error", err)
		}
		sink = st
		progressStore = st
	} else {
		log.Warn("DATABASE_URL not set, scores are kept in memory only")
		sink = store.NewMemorySink()
	}

	var resolverOpts []media.ResolverOption
	if cfg.AllowFallback {
		resolverOpts = append(resolverOpts, media.WithFallback())
	}
	resolver := media.NewResolver(media.NewHTTPProvider(cfg.ProviderBaseURL), log, resolverOpts...)

	h := hub.NewHub(ctx, session.Deps{
		Resolver: resolver,
		Sink:     sink,
		Store:    progressStore,
		Log:      log,
	}, log)

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, log),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infow("listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalw("server failed", "error", err)
	}
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}
