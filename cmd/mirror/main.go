package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"polymirror/internal/auth"
	"polymirror/internal/client/polymarket/clob"
	polymarketdata "polymirror/internal/client/polymarket/data"
	"polymirror/internal/config"
	cronrunner "polymirror/internal/cron"
	"polymirror/internal/db"
	"polymirror/internal/handler"
	"polymirror/internal/logger"
	"polymirror/internal/orderbook"
	gormrepository "polymirror/internal/repository/gorm"
	"polymirror/internal/service"

	_ "polymirror/docs"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("MIRROR_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("MIRROR_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := gormrepository.New(dbConn.Gorm)
	dataHTTP := &http.Client{Timeout: cfg.DataAPI.Timeout}
	dataClient := polymarketdata.NewClient(dataHTTP, cfg.DataAPI.BaseURL)

	cache := orderbook.NewCache()
	tracker := service.NewAssetTracker(nil, logger)
	if n, err := tracker.Seed(ctx, store); err != nil {
		logger.Warn("seed tracked assets failed", zap.Error(err))
	} else {
		logger.Info("tracked assets seeded", zap.Int("assets", n))
	}

	feed := service.NewMarketFeedService(cache, tracker, clob.MarketStreamOptions{
		URL:               cfg.ClobStream.URL,
		HeartbeatInterval: cfg.ClobStream.HeartbeatInterval,
		ReconnectDelay:    cfg.ClobStream.ReconnectDelay,
		ReadLimit:         cfg.ClobStream.ReadLimit,
	}, logger)

	positionSync := &service.PositionSyncService{
		Repo:    store,
		Source:  dataClient,
		Tracker: tracker,
		Wallets: cfg.Watch.Wallets,
		Logger:  logger,
	}
	reporter := &service.PortfolioReporter{
		Repo:    store,
		Wallets: cfg.Watch.Wallets,
		Logger:  logger,
	}

	var publisher service.TradePublisher
	if cfg.Redis.Enabled {
		redisPublisher := service.NewRedisTradePublisher(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Stream, cfg.Redis.MaxLen)
		defer redisPublisher.Close()
		publisher = redisPublisher
		logger.Info("trade stream enabled", zap.String("stream", cfg.Redis.Stream))
	}

	poller := &service.TradePoller{
		Repo:      store,
		Source:    dataClient,
		Tracker:   tracker,
		Positions: positionSync,
		Publisher: publisher,
		Reporter:  reporter,
		Logger:    logger,
		Opts: service.TradePollerOptions{
			Wallets:            cfg.Watch.Wallets,
			TooOld:             cfg.Watch.TooOld,
			Interval:           cfg.Watch.PollInterval,
			ActivityLimit:      cfg.DataAPI.ActivityLimit,
			PositionSampleRate: cfg.Watch.PositionSampleRate,
			MaxConcurrency:     cfg.Watch.MaxConcurrency,
		},
	}

	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("market feed stopped", zap.Error(err))
		}
	}()
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		// Positions first, so held assets are subscribed before trades arrive.
		positionSync.RunSyncAll(ctx)
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("trade poller stopped", zap.Error(err))
		}
	}()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add("portfolio_report", cfg.Cron.PortfolioReport, reporter.LogSnapshot); err != nil {
			logger.Warn("cron portfolio report disabled", zap.Error(err))
		}
		if _, err := cronRunner.Add("feed_status", cfg.Cron.FeedStatus, feed.LogStatus); err != nil {
			logger.Warn("cron feed status disabled", zap.Error(err))
		}
		if _, err := cronRunner.Add("position_sync", cfg.Cron.PositionSync, positionSync.RunSyncAll); err != nil {
			logger.Warn("cron position sync disabled", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.RequestIDMiddleware())
	engine.Use(handler.AccessLogMiddleware(logger))

	var verifier *auth.JWT
	if secret := strings.TrimSpace(cfg.Auth.JWTSecret); secret != "" {
		verifier = &auth.JWT{Secret: []byte(secret)}
	}
	engine.Use(handler.RequireBearerMiddleware(verifier))

	healthHandler := &handler.HealthHandler{DB: dbConn.SQL}
	healthHandler.Register(engine)
	walletHandler := &handler.WalletHandler{
		Repo:     store,
		Reporter: reporter,
		Wallets:  cfg.Watch.Wallets,
		Logger:   logger,
	}
	walletHandler.Register(engine)
	bookHandler := &handler.BookHandler{Cache: cache, Feed: feed}
	bookHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr), zap.Int("wallets", len(cfg.Watch.Wallets)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	poller.Stop()
	feed.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// The store is closed on return; let the current cycle finish first.
	select {
	case <-pollerDone:
	case <-shutdownCtx.Done():
		logger.Warn("trade poller still running at shutdown")
	}
}
