package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/slotwise/slotwise-api/internal/handler"
	appmiddleware "github.com/slotwise/slotwise-api/internal/middleware"
	"github.com/slotwise/slotwise-api/internal/repository"
	"github.com/slotwise/slotwise-api/internal/scheduler"
	"github.com/slotwise/slotwise-api/internal/service"
	"github.com/slotwise/slotwise-api/internal/travel"
	"github.com/slotwise/slotwise-api/pkg/cache"
	"github.com/slotwise/slotwise-api/pkg/config"
	"github.com/slotwise/slotwise-api/pkg/database"
	"github.com/slotwise/slotwise-api/pkg/logger"
	corsmiddleware "github.com/slotwise/slotwise-api/pkg/middleware/cors"
	reqidmiddleware "github.com/slotwise/slotwise-api/pkg/middleware/requestid"
	"github.com/slotwise/slotwise-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without the shared cache tier", "error", err)
		rdb = nil
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	directionsClient := travel.NewClient(travel.ClientConfig{
		BaseURL: cfg.Directions.BaseURL,
		APIKey:  cfg.Directions.APIKey,
		Timeout: cfg.Directions.Timeout,
	}, logr)
	var redisTier = rdb
	if !cfg.Directions.RedisTier {
		redisTier = nil
	}
	travelCache, err := travel.NewCache(directionsClient, redisTier, travel.CacheConfig{
		Size: cfg.Directions.CacheSize,
		TTL:  cfg.Directions.CacheTTL,
	}, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init travel cache", "error", err)
	}
	travelCache.OnHit(metrics.RecordTravelCacheHit)
	travelCache.OnMiss(metrics.RecordTravelCacheMiss)

	engine := scheduler.New(scheduler.Config{
		HighTierPriority:     cfg.Scheduler.HighTierPriority,
		MaxAssignRounds:      cfg.Scheduler.MaxAssignRounds,
		FairnessGapSlots:     cfg.Scheduler.FairnessGapSlots,
		MaxPartialBlocks:     cfg.Scheduler.MaxPartialBlocks,
		DefaultTravelMinutes: cfg.Directions.DefaultMinutes,
	}, travelCache, logr)

	roomRepo := repository.NewRoomRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	runRepo := repository.NewRunRepository(db)
	slotRepo := repository.NewSlotRepository(db)

	runService := service.NewScheduleRunService(roomRepo, memberRepo, runRepo, slotRepo, engine, db, metrics, validate, logr)
	availabilityService := service.NewAvailabilityService(memberRepo, db, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exportService *service.ExportService
	if cfg.Exports.Enabled {
		store, storeErr := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if storeErr != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", storeErr)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportService = service.NewExportService(runRepo, slotRepo, memberRepo, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
			Workers:   cfg.Exports.WorkerConcurrency,
		}, validate, logr)
		exportService.Start(ctx)
		defer exportService.Stop()
	}

	runHandler := handler.NewScheduleRunHandler(runService)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityService)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(appmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/schedules/runs", runHandler.Generate)
		api.GET("/schedules/runs", runHandler.List)
		api.GET("/schedules/runs/:id/slots", runHandler.Slots)
		api.POST("/schedules/runs/:id/publish", runHandler.Publish)
		api.DELETE("/schedules/runs/:id", runHandler.Delete)

		api.GET("/members/:id/availability", availabilityHandler.Get)
		api.PUT("/members/:id/availability", availabilityHandler.Replace)

		if exportService != nil {
			exportHandler := handler.NewExportHandler(exportService)
			api.POST("/exports", exportHandler.Enqueue)
			api.GET("/exports/jobs/:id", exportHandler.Status)
			api.GET("/exports/:token", exportHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
