package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Playroom/internal/adapters/http"
	"github.com/dkeye/Playroom/internal/adapters/rtc"
	"github.com/dkeye/Playroom/internal/app"
	"github.com/dkeye/Playroom/internal/app/orch"
	"github.com/dkeye/Playroom/internal/app/snake"
	"github.com/dkeye/Playroom/internal/auth"
	"github.com/dkeye/Playroom/internal/config"
	"github.com/dkeye/Playroom/internal/storage"
	"github.com/dkeye/Playroom/internal/storage/memory"
	"github.com/dkeye/Playroom/internal/storage/sqlite"
)

func openStore(cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		st, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return memory.New(), nil
	}
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Mode != "release" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	ice := rtc.Configuration(cfg.WebRTC.ICEServers)
	if err := rtc.Validate(ice); err != nil {
		log.Fatal().Err(err).Msg("bad webrtc.ice_servers")
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	o := orch.New(store, orch.Config{
		PresenceGrace: cfg.Presence.Grace,
		Invite: app.InviteConfig{
			TTL:        cfg.Invite.TTL,
			RateLimit:  cfg.Invite.RateLimit,
			RateWindow: cfg.Invite.RateWindow,
		},
		InviteSweepEvery: cfg.Invite.SweepInterval,
		RoomIdleTimeout:  cfg.Room.IdleTimeout,
		RoomSweepEvery:   cfg.Room.SweepInterval,
		Backpressure:     cfg.Room.Backpressure,
		Snake: snake.Config{
			GridSize:     cfg.Snake.GridSize,
			TickInterval: cfg.Snake.Tick,
		},
	})
	authn := auth.New(cfg.Auth.JWTSecret)

	r := router.SetupRouter(ctx, cfg, o, authn)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("Playroom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return o.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		return
	}
	log.Info().Msg("Server exited gracefully")
}
