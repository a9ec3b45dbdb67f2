package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/Paashik/MyIS-sub004/api/swagger"
	"github.com/Paashik/MyIS-sub004/internal/handler"
	"github.com/Paashik/MyIS-sub004/internal/middleware"
	"github.com/Paashik/MyIS-sub004/internal/models"
	"github.com/Paashik/MyIS-sub004/internal/repository"
	"github.com/Paashik/MyIS-sub004/internal/service"
	"github.com/Paashik/MyIS-sub004/pkg/cache"
	"github.com/Paashik/MyIS-sub004/pkg/config"
	"github.com/Paashik/MyIS-sub004/pkg/database"
	"github.com/Paashik/MyIS-sub004/pkg/logger"
	corsmiddleware "github.com/Paashik/MyIS-sub004/pkg/middleware/cors"
	reqidmiddleware "github.com/Paashik/MyIS-sub004/pkg/middleware/requestid"
)

// @title MyIS Core API
// @version 0.1.0
// @description Request workflow engine and Component2020 synchronization core
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caches disabled", zap.Error(err))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	transitionRepo := repository.NewTransitionRepository(db)
	itemRepo := repository.NewItemRepository(db)
	linkRepo := repository.NewLinkRepository(db)
	cursorRepo := repository.NewCursorRepository(db)
	runRepo := repository.NewSyncRunRepository(db)

	// The cache repository tolerates a nil client, so caching degrades to
	// direct reads when Redis is down.
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	permissions := service.NewPermissionService(userRepo, cacheRepo, cfg.Workflow.PermissionCacheTTL, logr)
	workflowOpts := []service.WorkflowServiceOption{
		service.WithWorkflowMetrics(metrics),
		service.WithTransitionCache(cacheRepo, cfg.Workflow.TransitionCacheTTL),
	}
	workflowSvc := service.NewWorkflowService(transitionRepo, requestRepo, statusRepo, permissions, userRepo, logr, workflowOpts...)
	requestSvc := service.NewRequestService(requestRepo, statusRepo, workflowSvc, userRepo, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, cfg.JWT)
	statusSvc := service.NewStatusService(statusRepo, logr)
	itemSvc := service.NewItemService(itemRepo, logr)
	exportSvc := service.NewExportService(runRepo, requestRepo, nil, nil, logr)

	var syncSvc *service.SyncService
	if cfg.Sync.Enabled {
		stagingDB, err := database.NewStaging(cfg.Staging)
		if err != nil {
			logr.Warn("staging database unavailable, sync disabled", zap.Error(err))
		} else {
			defer stagingDB.Close()
			reader := repository.NewComponent2020Reader(stagingDB)
			syncSvc = service.NewSyncService(reader, itemRepo, linkRepo, cursorRepo, runRepo, service.NewLinkResolver(), metrics, logr, cfg.Sync)
			syncSvc.StartWorkers(context.Background())
			defer syncSvc.StopWorkers()
		}
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	requestHandler := handler.NewRequestHandler(requestSvc, workflowSvc)
	workflowHandler := handler.NewWorkflowAdminHandler(workflowSvc)
	statusHandler := handler.NewStatusHandler(statusSvc)
	itemHandler := handler.NewItemHandler(itemSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/statuses", statusHandler.List)
	authed.GET("/statuses/groups", statusHandler.ListGroups)
	authed.PUT("/statuses", middleware.RequirePermission(models.PermWorkflowAdmin), statusHandler.Upsert)

	authed.GET("/requests", requestHandler.List)
	authed.POST("/requests", requestHandler.Create)
	authed.GET("/requests/:id", requestHandler.Get)
	authed.PATCH("/requests/:id", requestHandler.Update)
	authed.POST("/requests/:id/actions", requestHandler.ApplyAction)
	authed.GET("/requests/:id/available-actions", requestHandler.AvailableActions)
	authed.POST("/requests/:id/comments", requestHandler.AddComment)

	workflowAdmin := authed.Group("/workflow", middleware.RequirePermission(models.PermWorkflowAdmin))
	workflowAdmin.GET("/:typeCode/transitions", workflowHandler.GetTransitions)
	workflowAdmin.PUT("/:typeCode/transitions",
		middleware.Audit(userRepo, models.AuditActionTransitionsReplace, "workflow"),
		workflowHandler.ReplaceTransitions)

	authed.GET("/items", middleware.RequirePermission(models.PermCatalogRead, models.PermCatalogWrite), itemHandler.List)
	authed.GET("/items/:id", middleware.RequirePermission(models.PermCatalogRead, models.PermCatalogWrite), itemHandler.Get)
	authed.POST("/items", middleware.RequirePermission(models.PermCatalogWrite), itemHandler.Create)
	authed.PUT("/items/:id", middleware.RequirePermission(models.PermCatalogWrite), itemHandler.Update)

	if syncSvc != nil {
		syncHandler := handler.NewSyncHandler(syncSvc)
		syncGroup := authed.Group("/sync", middleware.RequirePermission(models.PermSyncRun))
		syncGroup.POST("/runs",
			middleware.Audit(userRepo, models.AuditActionSyncRunStart, "sync"),
			syncHandler.Start)
		syncGroup.GET("/runs", syncHandler.List)
		syncGroup.GET("/runs/last-successful", syncHandler.LastSuccessful)
		syncGroup.GET("/runs/:id", syncHandler.Get)
	}

	if cfg.Exports.Enabled {
		exports := authed.Group("/exports")
		exports.GET("/sync-runs/:id/errors", middleware.RequirePermission(models.PermSyncRun), exportHandler.SyncRunErrors)
		exports.GET("/requests/:id/history", exportHandler.RequestHistory)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Error("server shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}
}
