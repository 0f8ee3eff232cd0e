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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/volkzayaz/RR-sub003/internal/catalog"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "catalog").Logger()

	cfg, err := loadConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("pg")
	}
	defer pool.Close()

	if err := catalog.AutoMigrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	var provider catalog.Provider
	if cfg.YouTubeAPIKey != "" {
		provider = catalog.NewYouTubeClient(cfg.YouTubeAPIKey, cfg.YouTubeVideosURL)
	} else {
		logger.Warn().Msg("YOUTUBE_API_KEY is empty, unknown tracks stay unknown")
	}

	svc := catalog.NewService(catalog.NewRepository(pool), catalog.NewCache(rdb, cfg.CacheTTL), provider, logger)
	srv := catalog.NewServer(svc, logger)

	httpSrv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: srv.Router(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Logger,
			middleware.Recoverer,
			middleware.Timeout(15*time.Second),
		),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("catalog listening")
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

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("catalog stopped")
	}
	logger.Info().Msg("catalog stopped")
}
