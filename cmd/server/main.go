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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coinpicks/internal/cache"
	"coinpicks/internal/client/market"
	"coinpicks/internal/config"
	cronrunner "coinpicks/internal/cron"
	"coinpicks/internal/db"
	"coinpicks/internal/handler"
	"coinpicks/internal/ledger"
	"coinpicks/internal/logger"
	gormrepository "coinpicks/internal/repository/gorm"
	"coinpicks/internal/service"
)

func main() {
	cfgPath := os.Getenv("CP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("CP_ENV_ONLY"); envOnlyRaw != "" {
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

	var rankingCache *cache.Store
	if cfg.Redis.Enabled {
		rankingCache = cache.New(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.TTL)
		defer rankingCache.Close()
	}

	marketHTTP := &http.Client{Timeout: cfg.Market.Timeout}
	marketClient := market.NewClient(marketHTTP, cfg.Market.BaseURL, cfg.Market.Currency, cfg.Market.PageSize)
	ledgerHTTP := &http.Client{Timeout: cfg.Ledger.Timeout}
	ledgerClient := ledger.NewClient(ledgerHTTP, cfg.Ledger.BaseURL, cfg.Ledger.ConfirmInterval, cfg.Ledger.ConfirmTimeout)

	store := gormrepository.New(dbConn.Gorm)
	pipeline := &service.Pipeline{
		Snapshot: &service.SnapshotService{
			Repo:   store,
			Market: marketClient,
			Cache:  rankingCache,
			Logger: logger,
		},
		Detector: &service.ChangeDetector{
			Repo:   store,
			Source: ledgerClient,
			Logger: logger,
		},
		Settlement: &service.SettlementService{
			Repo:     store,
			Ledger:   ledgerClient,
			Logger:   logger,
			Pipeline: cfg.Pipeline,
			Config:   cfg.Settlement,
		},
		Logger: logger,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	roundHandler := &handler.RoundHandler{Repo: store, Cache: rankingCache}
	roundHandler.Register(engine)
	predictionHandler := &handler.PredictionHandler{Repo: store}
	predictionHandler.Register(engine)
	pipelineHandler := &handler.PipelineHandler{Pipeline: pipeline, Logger: logger}
	pipelineHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.Snapshot, func(ctx context.Context) {
			if err := pipeline.RunRound(ctx); err != nil {
				logger.Warn("cron round capture failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register round capture failed", zap.Error(err))
		}
		_, err = cronRunner.Add(cfg.Cron.Settlement, func(ctx context.Context) {
			result, err := pipeline.RunSettlement(ctx)
			if err != nil {
				if errors.Is(err, service.ErrPipelineBusy) {
					return
				}
				logger.Warn("cron settlement failed", zap.Error(err))
				return
			}
			logger.Info("cron settlement ok",
				zap.Int("eligible_rows", result.EligibleRows),
				zap.Int("settled_users", result.SettledUsers),
				zap.Int("settled_rows", result.SettledRows),
				zap.Int64("points_awarded", result.PointsAwarded),
			)
		})
		if err != nil {
			logger.Warn("cron register settlement failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
