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

	_ "github.com/noah-isme/checkin/api/swagger"
	"github.com/noah-isme/checkin/internal/handler"
	internalmiddleware "github.com/noah-isme/checkin/internal/middleware"
	"github.com/noah-isme/checkin/internal/repository"
	"github.com/noah-isme/checkin/internal/service"
	"github.com/noah-isme/checkin/pkg/config"
	"github.com/noah-isme/checkin/pkg/jobs"
	"github.com/noah-isme/checkin/pkg/logger"
	corsmiddleware "github.com/noah-isme/checkin/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/checkin/pkg/middleware/requestid"
	"github.com/noah-isme/checkin/pkg/storage"
)

// @title Check-in API
// @version 1.0.0
// @description Class attendance check-ins backed by a JSON document
// @BasePath /api/v1
// @schemes http

const exportCleanupInterval = time.Hour

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewLocalStorage(cfg.Data.Dir)
	if err != nil {
		logr.Fatal("data directory unavailable", zap.String("dir", cfg.Data.Dir), zap.Error(err))
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	repo := repository.NewAttendanceRepository(store, cfg.Data.File, metrics)
	attendance := service.NewAttendanceService(repo, validator.New())
	if _, err := attendance.Load(ctx); err != nil {
		// Serve an empty view; POST /reload retries once the document is fixed.
		logr.Warn("attendance document not loaded", zap.String("path", cfg.Data.Path()), zap.Error(err))
	}

	var signer *storage.SignedURLSigner
	if cfg.Exports.SignedURLSecret != "" {
		signer = storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	} else {
		logr.Warn("EXPORTS_SIGNED_URL_SECRET is empty; export download links disabled")
	}
	exports := service.NewExportService(attendance, store, signer, service.ExportConfig{
		APIPrefix:  cfg.APIPrefix,
		ResultTTL:  cfg.Exports.SignedURLTTL,
		ReportName: service.ReportNameFor(repo.Filename()),
	}, logr, nil, nil)

	cleanup := jobs.NewPeriodic("export-cleanup", func(context.Context) error {
		_, err := exports.Cleanup(0)
		return err
	}, jobs.PeriodicConfig{Interval: exportCleanupInterval, RunOnStart: true, Logger: logr})
	cleanup.Start(ctx)
	defer cleanup.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metrics != nil {
		r.Use(internalmiddleware.Metrics(metrics))
	}

	var metricsHTTP http.Handler
	if metrics != nil {
		metricsHTTP = metrics.Handler()
	}
	observability := handler.NewMetricsHandler(metricsHTTP, attendance.Ready)
	r.GET("/health", observability.Health)
	r.GET("/ready", observability.Ready)
	if metrics != nil {
		r.GET("/metrics", observability.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(
		r.Group(cfg.APIPrefix),
		handler.NewAttendanceHandler(attendance, exports, metrics, cfg.Roster.PrefixSkip, logr),
		handler.NewExportHandler(exports, logr),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Warn("server shutdown", zap.Error(err))
		}
	}()

	logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "document", cfg.Data.Path())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
