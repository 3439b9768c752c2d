package app

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/langowen/metalrates/deploy/config"
	"github.com/langowen/metalrates/internal/metrics"
	"github.com/langowen/metalrates/internal/rate_service/adapter/api_client/bullions"
	"github.com/langowen/metalrates/internal/rate_service/adapter/storage/postgres"
	"github.com/langowen/metalrates/internal/rate_service/adapter/storage/redis"
	"github.com/langowen/metalrates/internal/rate_service/ports/http/public"
	"github.com/langowen/metalrates/internal/rate_service/service"
	redisPack "github.com/redis/go-redis/v9"
)

type RateApp struct {
	cfg *config.Config
}

func NewRateApp(cfg *config.Config) *RateApp {
	return &RateApp{cfg: cfg}
}

func (a *RateApp) Start(ctx context.Context) <-chan struct{} {
	a.initLogger()
	slog.Info("Logger initialized")

	slog.With("config", a.cfg).Info("starting server")

	pgStorage := a.initDatabase(ctx)
	slog.Info("Storage initialized")

	publisher := a.initRedis(ctx)

	upstream := bullions.NewClient(&a.cfg.Upstream)
	slog.Info("Upstream client initialized")

	rateMetrics := metrics.NewRateMetrics()

	rateService := a.initService(pgStorage, upstream, publisher, rateMetrics)
	slog.Info("Service initialized")

	serverDone := public.StartServer(ctx, rateService, a.cfg)
	slog.Info("server started")

	return serverDone
}

func (a *RateApp) initLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: false,
	}))
	slog.SetDefault(logger)
}

func (a *RateApp) initDatabase(ctx context.Context) *postgres.Storage {
	pgStorage, err := postgres.New(ctx, a.cfg)
	if err != nil {
		log.Fatalln("Failed to initialize PostgresSQL storage", "error", err)
	}

	return pgStorage
}

// initRedis returns nil when no address is configured; the service then
// skips the update announcements.
func (a *RateApp) initRedis(ctx context.Context) service.Publisher {
	if a.cfg.Redis.Addr == "" {
		slog.Info("Redis publisher disabled")
		return nil
	}

	options := &redisPack.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}

	rdStorage, err := redis.InitStorage(ctx, options)
	if err != nil {
		log.Fatalln("Failed to initialize Redis storage", "error", err)
	}

	slog.Info("Redis client initialized")
	return rdStorage
}

func (a *RateApp) initService(storage *postgres.Storage, client service.UpstreamClient, publisher service.Publisher, rateMetrics *metrics.RateMetrics) *service.Service {
	rateService, err := service.NewService(storage, client, publisher, rateMetrics, a.cfg)
	if err != nil {
		log.Fatalln("Failed to initialize rate service", "error", err)
	}

	return rateService
}
