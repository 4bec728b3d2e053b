package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/DoyleJ11/gameroom/internal/config"
	"github.com/DoyleJ11/gameroom/internal/httpapi"
	"github.com/DoyleJ11/gameroom/internal/hub"
	"github.com/DoyleJ11/gameroom/internal/logging"
	"github.com/DoyleJ11/gameroom/internal/narrative"
	"github.com/DoyleJ11/gameroom/internal/store"
	"github.com/DoyleJ11/gameroom/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	journal, closeJournal, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeJournal()) }()

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	h := hub.NewHub(hubCtx, hub.Options{
		Logger:         logger,
		Journal:        journal,
		Narrator:       narrative.Heuristic{MinConfidence: cfg.NarrativeMinConfidence},
		RoomInboxSize:  cfg.RoomInboxSize,
		EndedRetention: cfg.EndedRoomRetention,
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, logger, ws.Options{
		Logger:          logger,
		OutboxSize:      cfg.ClientOutboxSize,
		WriteTimeout:    cfg.WriteTimeout,
		ReadIdleTimeout: cfg.ReadIdleTimeout,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// rooms close their clients' outboxes, which ends the hijacked sockets
		cancelHub()
		select {
		case <-h.Done():
		case <-shutdownCtx.Done():
			err = multierr.Append(err, shutdownCtx.Err())
		}
		return err
	})
	return g.Wait()
}

func openJournal(cfg config.Config, logger *zap.Logger) (store.Journal, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("no database configured, journaling in memory")
		return store.NewMemory(), func() error { return nil }, nil
	}
	g, err := store.OpenPostgres(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return g, g.Close, nil
}
