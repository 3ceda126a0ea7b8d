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

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/slotbook/internal/config"
	bookinghandler "github.com/jwalitptl/slotbook/internal/handler/booking"
	cataloghandler "github.com/jwalitptl/slotbook/internal/handler/catalog"
	"github.com/jwalitptl/slotbook/internal/handler/health"
	metricshandler "github.com/jwalitptl/slotbook/internal/handler/metrics"
	providerhandler "github.com/jwalitptl/slotbook/internal/handler/provider"
	"github.com/jwalitptl/slotbook/internal/lock"
	"github.com/jwalitptl/slotbook/internal/middleware"
	"github.com/jwalitptl/slotbook/internal/router"
	"github.com/jwalitptl/slotbook/internal/service/booking"
	"github.com/jwalitptl/slotbook/internal/service/catalog"
	"github.com/jwalitptl/slotbook/internal/service/notification"
	"github.com/jwalitptl/slotbook/pkg/auth"
	"github.com/jwalitptl/slotbook/pkg/logger"
	"github.com/jwalitptl/slotbook/pkg/messaging"
	"github.com/jwalitptl/slotbook/pkg/messaging/kafka"
	"github.com/jwalitptl/slotbook/pkg/messaging/redis"
	"github.com/jwalitptl/slotbook/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	lg := logger.New(cfg.Log.ToLoggerConfig())

	if err := run(cfg, lg); err != nil {
		lg.Fatal().Err(err).Msg("server stopped with error")
	}
	lg.Info().Msg("server exited properly")
}

func run(cfg *config.Config, lg zerolog.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := openStore(startCtx, cfg.Database, lg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.close(ctx); err != nil {
			lg.Error().Err(err).Msg("failed to close store")
		}
	}()

	checks := map[string]health.Checker{"store": st.pinger}

	var redisClient *goredis.Client
	if cfg.NeedsRedis() {
		redisClient, err = redis.NewClient(startCtx, cfg.Redis.ToBrokerConfig())
		if err != nil {
			return err
		}
		defer redisClient.Close()
		checks["redis"] = health.CheckFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Lock.Backend == config.LockRedis {
		locker = lock.NewRedisLocker(redisClient, cfg.Lock.ToRedisLockConfig(), lg)
	}

	broker, err := newBroker(cfg, redisClient, lg)
	if err != nil {
		return err
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New("slotbook", registry)

	relay := notification.NewRelay(broker, lg, m, notification.WithTimeout(cfg.Notifications.PublishTimeout))
	bookingSvc := booking.NewService(st.bookings, st.services, locker, relay, m, lg)
	catalogSvc := catalog.NewService(st.services, st.bookings, m, lg, cfg.Cache.ToCatalogCacheConfig())

	jwt := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	authMiddleware := middleware.NewAuthMiddleware(jwt)

	routerCfg := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodySize:    cfg.Server.MaxBodyBytes,
		HSTS:           cfg.Server.HSTS,
		CORS: router.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerCfg.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(
		lg,
		m,
		metricshandler.New(registry),
		health.NewHandler(checks),
		routerCfg,
		cataloghandler.NewHandler(catalogSvc),
		bookinghandler.NewHandler(bookingSvc, authMiddleware),
		providerhandler.NewHandler(bookingSvc, catalogSvc, authMiddleware),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info().
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Str("broker", cfg.Notifications.Broker).
			Str("lock", cfg.Lock.Backend).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		lg.Info().Str("signal", sig.String()).Msg("shutting down server...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := relay.Wait(ctx); err != nil {
		lg.Warn().Err(err).Msg("pending notifications dropped at shutdown")
	}
	return nil
}

func newBroker(cfg *config.Config, client *goredis.Client, lg zerolog.Logger) (messaging.Publisher, error) {
	switch cfg.Notifications.Broker {
	case config.BrokerRedis:
		return redis.NewRedisBroker(client, lg), nil
	case config.BrokerKafka:
		p, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, nil)
		if err != nil {
			return nil, err
		}
		lg.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer ready")
		return p, nil
	default:
		lg.Info().Msg("booking update relay disabled")
		return messaging.NewNoopPublisher(), nil
	}
}
