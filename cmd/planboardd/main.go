package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/planboard/internal/cache"
	"github.com/example/planboard/internal/config"
	"github.com/example/planboard/internal/event"
	"github.com/example/planboard/internal/observability"
	"github.com/example/planboard/internal/planner"
	"github.com/example/planboard/internal/queue"
	"github.com/example/planboard/internal/storage"
	"github.com/example/planboard/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := log.With().Str("app", cfg.AppName).Logger()
	observability.RegisterRuntimeCollectors()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := observability.Start(ctx, observability.Config{
		ServiceName:  cfg.AppName,
		MetricsAddr:  cfg.MetricsAddr,
		OTLPEndpoint: cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	store, err := storage.OpenSQLite(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open local store")
	}

	settings := storage.NewSettings(store)
	if cfg.Endpoint != "" {
		if err := settings.SetEndpoint(ctx, cfg.Endpoint); err != nil {
			logger.Fatal().Err(err).Str("endpoint", cfg.Endpoint).Msg("rejecting remote endpoint")
		}
	}

	codec := event.NewCodec()
	outbox := queue.NewPersistent(ctx, store, logger)
	snapshots := cache.NewSnapshots(store, logger)

	channel := transport.NewChannel(outbox, codec, settings, logger,
		transport.WithReconnectDelay(cfg.ReconnectDelay))

	svc := planner.NewService(ctx, codec,
		planner.SinkFunc(func(ev event.ClientEvent) { channel.Send(ev) }),
		snapshots, channel.Actor,
		planner.Notifier{
			ContentsChanged:   func() { logger.Debug().Msg("contents changed") },
			CategoriesChanged: func() { logger.Debug().Msg("categories changed") },
			VacationsChanged:  func() { logger.Debug().Msg("vacations changed") },
		},
		logger,
		planner.WithUndoCapacity(cfg.UndoCapacity),
	)

	channel.OnEvent(svc.ApplyRemote)
	channel.OnStateChange(func(state transport.State) {
		logger.Info().Stringer("state", state).Msg("channel state changed")
	})
	channel.OnAuthError(func(reason string) {
		logger.Warn().Str("reason", reason).Msg("sign-in required")
	})
	channel.OnAuthenticated(func(user event.User) {
		logger.Info().Str("user", string(user.ID)).Msg("session authenticated")
	})

	if endpoint := settings.Endpoint(ctx); endpoint != "" {
		if err := channel.Connect(endpoint); err != nil {
			logger.Error().Err(err).Str("endpoint", endpoint).Msg("initial connect failed")
		}
	} else {
		logger.Info().Msg("no remote endpoint configured; running offline")
	}

	logger.Info().Str("data_dir", cfg.DataDir).Int("queued_events", outbox.Len()).Msg("planboard core ready")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	channel.Disconnect()
	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close local store")
	}
	if err := telemetryShutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
}
