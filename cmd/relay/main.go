package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/volkzayaz/RR-sub003/internal/realtime"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "relay").Logger()

	cfg, err := loadConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	hub := realtime.NewHub()
	srv := realtime.NewServer(ctx, hub, realtime.NewStore(rdb, cfg.SessionTTL), realtime.Config{
		FrontendBaseURL: cfg.FrontendBaseURL,
		JWTSecret:       cfg.JWTSecret,
	}, logger)

	if len(cfg.JWTSecret) == 0 {
		logger.Warn().Msg("JWT_SECRET is empty, /ws accepts any session")
	}

	httpSrv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: srv.Router(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Logger,
			middleware.Recoverer,
			middleware.Timeout(60*time.Second),
		),
	}

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return srv.RunRedisSubscriber(ctx) })
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("relay listening")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("relay stopped")
	}
	logger.Info().Msg("relay stopped")
}
