package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snaplink/snaplink/config"
	appmodel "github.com/snaplink/snaplink/internal/app/model"
	apprepository "github.com/snaplink/snaplink/internal/app/repository"
	appserver "github.com/snaplink/snaplink/internal/app/server"
	appservice "github.com/snaplink/snaplink/internal/app/service"
	"github.com/snaplink/snaplink/internal/infra/logger"
	infraNATS "github.com/snaplink/snaplink/internal/infra/nats"
	infraPostgres "github.com/snaplink/snaplink/internal/infra/postgres"
	infraPrometheus "github.com/snaplink/snaplink/internal/infra/prometheus"
	infraRedis "github.com/snaplink/snaplink/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("addr", cfg.Server.Addr),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Link{}, &appmodel.ClickEvent{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	clickRepo := apprepository.NewClickEventRepository(pool)

	filter := appservice.NewCodeFilter()
	codes, err := linkRepo.AllCodes(ctx)
	if err != nil {
		log.Fatal("Failed to warm code filter", zap.Error(err))
	}
	filter.Warm(codes)
	log.Info("Code filter warmed", zap.Int("codes", len(codes)))

	publisher := appservice.NewClickPublisher(js)

	linkService := appservice.NewLinkService(appservice.LinkServiceDeps{
		Logger:    log,
		Repo:      linkRepo,
		Generator: appservice.NewCodeGenerator(linkRepo),
		Cache:     appservice.NewLinkCache(redisClient, log),
		Filter:    filter,
		Clicks:    publisher,
	})
	analyticsService := appservice.NewAnalyticsService(linkRepo, clickRepo)

	consumer := appservice.NewClickConsumer(js, log, clickRepo)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start click consumer", zap.Error(err))
	}
	defer consumer.Stop()

	retention := appservice.NewClickRetention(log, clickRepo, cfg.Analytics.RetentionDuration())
	retention.Start()
	defer retention.Stop()

	srv := appserver.New(appserver.Dependencies{
		Logger:    log,
		Redis:     redisClient,
		Links:     linkService,
		Analytics: analyticsService,
		Secret:    []byte(cfg.Server.TokenSecret),
	})

	go func() {
		if err := srv.Listen(cfg.Server.Addr); err != nil {
			log.Fatal("Fiber server exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
