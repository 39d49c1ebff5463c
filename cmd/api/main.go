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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/formacore/vta-api/api/swagger"
	"github.com/formacore/vta-api/internal/handler"
	"github.com/formacore/vta-api/internal/middleware"
	"github.com/formacore/vta-api/internal/repository"
	"github.com/formacore/vta-api/internal/service"
	"github.com/formacore/vta-api/pkg/cache"
	"github.com/formacore/vta-api/pkg/config"
	"github.com/formacore/vta-api/pkg/database"
	"github.com/formacore/vta-api/pkg/jobs"
	"github.com/formacore/vta-api/pkg/logger"
	corsmiddleware "github.com/formacore/vta-api/pkg/middleware/cors"
	reqidmiddleware "github.com/formacore/vta-api/pkg/middleware/requestid"
	"github.com/formacore/vta-api/pkg/storage"
)

// @title VTA API
// @version 0.1.0
// @description Vocational training admission and attendance-settlement engine
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, settlement report cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories.
	courseRepo := repository.NewCourseRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	actionRepo := repository.NewActionRepository(db)
	teachingRepo := repository.NewTeachingRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	participationRepo := repository.NewParticipationRepository(db)
	rateRepo := repository.NewRateRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	reportRepo := repository.NewReportRepository(db)

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := rateRepo.EnsureDefaults(seedCtx, cfg.Settlement.DefaultStudentMealRate, cfg.Settlement.DefaultTeacherHourlyRate); err != nil {
		logr.Sugar().Fatalw("failed to seed settlement rates", "error", err)
	}
	cancelSeed()

	// Services.
	metricsSvc := service.NewMetricsService()
	courseSvc := service.NewCourseService(courseRepo, moduleRepo, validate, logr)
	actionSvc := service.NewActionService(actionRepo, courseRepo, moduleRepo, teachingRepo, teacherRepo, validate, logr)
	settlementSvc := service.NewSettlementService(rateRepo, participationRepo, enrollmentRepo, teachingRepo, actionRepo, moduleRepo, cacheRepo, cfg.Settlement.ReportCacheTTL, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, actionRepo, studentRepo, teachingRepo, actionSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(participationRepo, teachingRepo, enrollmentRepo, settlementSvc, cfg.Attendance.RejectOverCredit, validate, logr)

	var exportSvc *service.ExportService
	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(reportRepo, settlementSvc, store, signer, logr)
		exportQueue = jobs.NewQueue("settlement-exports", exportSvc.Process, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportSvc.BindQueue(exportQueue)
	}

	// Handlers.
	courseHandler := handler.NewCourseHandler(courseSvc)
	actionHandler := handler.NewActionHandler(actionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	settlementHandler := handler.NewSettlementHandler(settlementSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/courses", courseHandler.List)
		api.POST("/courses", courseHandler.Create)
		api.GET("/courses/:id", courseHandler.Get)
		api.PUT("/courses/:id/modules", courseHandler.AssignModules)
		api.PATCH("/courses/:id/status", courseHandler.UpdateStatus)
		api.GET("/courses/:id/actions", actionHandler.ListByCourse)

		api.POST("/actions", actionHandler.Create)
		api.GET("/actions/:id", actionHandler.Get)
		api.DELETE("/actions/:id", actionHandler.Delete)
		api.GET("/actions/:id/coverage", actionHandler.Coverage)
		api.GET("/actions/:id/teachings", actionHandler.ListTeachings)
		api.POST("/actions/:id/teachings", actionHandler.AssignTeaching)
		api.GET("/actions/:id/enrollments", enrollmentHandler.ListByAction)
		api.POST("/actions/:id/enrollments", enrollmentHandler.Admit)
		api.GET("/actions/:id/settlement", settlementHandler.ActionReport)
		api.POST("/actions/:id/settlement/export", settlementHandler.Export)

		api.GET("/teachings/:id/sessions", actionHandler.ListSessions)
		api.POST("/teachings/:id/sessions", actionHandler.CreateSession)
		api.POST("/teachings/:id/enrollments", enrollmentHandler.AdmitToTeaching)
		api.GET("/teachings/:id/settlement", settlementHandler.ComputeTeaching)
		api.POST("/teachings/:id/settle", settlementHandler.SettleTeaching)

		api.GET("/enrollments/:id", enrollmentHandler.Get)
		api.DELETE("/enrollments/:id", enrollmentHandler.Withdraw)
		api.GET("/enrollments/:id/settlement", settlementHandler.ComputeEnrollment)
		api.POST("/enrollments/:id/settle", settlementHandler.SettleEnrollment)

		api.GET("/sessions/:id/attendance", attendanceHandler.SessionReport)
		api.POST("/sessions/:id/attendance", attendanceHandler.Record)
		api.PUT("/sessions/:id/attendance", attendanceHandler.UpsertRoster)

		api.GET("/settings/rates", settlementHandler.Rates)
		api.PUT("/settings/rates", settlementHandler.UpdateRates)

		api.GET("/exports/:id", settlementHandler.ExportStatus)
		api.GET("/exports/download", settlementHandler.Download)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if exportQueue != nil {
		exportQueue.Start(ctx)
		defer exportQueue.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
