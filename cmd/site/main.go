package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dobeutech/dobeunet/internal/bridge"
	"github.com/dobeutech/dobeunet/internal/config"
	"github.com/dobeutech/dobeunet/internal/consumer"
	"github.com/dobeutech/dobeunet/internal/pwa"
	"github.com/dobeutech/dobeunet/internal/repository"
	"github.com/dobeutech/dobeunet/internal/routes"
	"github.com/dobeutech/dobeunet/internal/services"
	"github.com/dobeutech/dobeunet/pkg/logger"
	"github.com/dobeutech/dobeunet/pkg/metrics"
	"github.com/dobeutech/dobeunet/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.LogFormat)
	logr.Info("starting site service", slog.String("app", cfg.AppName), slog.String("env", cfg.Env))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}
	inquiryStore, err := repository.NewInquiryStore(db, cfg.InquiryTable)
	if err != nil {
		logr.Error("failed to prepare inquiry table", slog.Any("error", err))
		os.Exit(1)
	}

	storage := bridge.MemoryStorageFactory()
	if cfg.RedisURL != "" {
		devices := repository.NewDeviceStorageRepository(redis.NewClient(&redis.Options{Addr: cfg.RedisURL}))
		defer devices.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := devices.Ping(pingCtx); err != nil {
			logr.Warn("redis unreachable, dismissals may not persist", slog.Any("error", err))
		}
		cancel()
		storage = func(deviceID string) pwa.Storage { return devices.ForDevice(deviceID) }
	} else {
		logr.Warn("REDIS_URL not set, install dismissals are kept in memory")
	}

	metricsCollector := metrics.New()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logr.Error("failed to connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	publishCh, err := conn.Channel()
	if err != nil {
		logr.Error("failed to open publish channel", slog.Any("error", err))
		os.Exit(1)
	}
	defer publishCh.Close()
	if err := consumer.DeclareTopology(publishCh, services.InquiryExchange, services.InquiryRoutingKey, cfg.InquiryQueue, cfg.DeadLetterQueue); err != nil {
		logr.Error("failed to declare inquiry topology", slog.Any("error", err))
		os.Exit(1)
	}
	publisher := services.NewInquiryPublisher(publishCh)

	retryCfg := retry.Config{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
	}
	statusUpdater := services.NewStatusUpdater(inquiryStore, logr)
	processor := services.NewInquiryProcessor(inquiryStore, statusUpdater, metricsCollector, logr, retryCfg)

	base := consumer.NewBaseConsumer(
		conn,
		services.InquiryExchange,
		services.InquiryRoutingKey,
		cfg.InquiryQueue,
		cfg.DeadLetterQueue,
		cfg.PrefetchCount,
		cfg.WorkerCount,
		logr,
	)
	inquiryConsumer := consumer.NewInquiryConsumer(base, processor, publishCh, logr, cfg.RetryMaxAttempts)

	hub := bridge.NewHub(storage, bridge.Options{
		Production:    cfg.Production(),
		PromptTimeout: cfg.PromptTimeout,
		Recorder:      metricsCollector,
	}, cfg.AllowedOrigins, logr)

	handler, err := routes.NewRouter(routes.Deps{
		Config:    cfg,
		Metrics:   metricsCollector,
		Sessions:  hub,
		Publisher: publisher,
		Validator: services.NewValidator(nil),
		Logger:    logr,
		RateLimit: routes.RateLimitConfig{PerMinute: cfg.IntakePerMinute, Burst: cfg.IntakeBurst},
		Started:   time.Now(),
	})
	if err != nil {
		logr.Error("failed to build router", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := inquiryConsumer.Start(gctx); err != nil {
			return fmt.Errorf("inquiry consumer: %w", err)
		}
		if gctx.Err() == nil {
			return errors.New("inquiry consumer stopped: delivery channel closed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		shutdownHTTP(srv, logr)
		return nil
	})

	if err := g.Wait(); err != nil {
		logr.Error("site service failed", slog.Any("error", err))
		os.Exit(1)
	}
	logr.Info("site service stopped")
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
