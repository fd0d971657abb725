package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fieldservice-api/api/swagger"
	"github.com/noah-isme/fieldservice-api/internal/handler"
	"github.com/noah-isme/fieldservice-api/internal/repository"
	"github.com/noah-isme/fieldservice-api/internal/router"
	"github.com/noah-isme/fieldservice-api/internal/service"
	"github.com/noah-isme/fieldservice-api/internal/shift"
	"github.com/noah-isme/fieldservice-api/pkg/cache"
	"github.com/noah-isme/fieldservice-api/pkg/config"
	"github.com/noah-isme/fieldservice-api/pkg/database"
	"github.com/noah-isme/fieldservice-api/pkg/jobs"
	"github.com/noah-isme/fieldservice-api/pkg/lock"
	"github.com/noah-isme/fieldservice-api/pkg/logger"
	"github.com/noah-isme/fieldservice-api/pkg/storage"
)

// @title Field Service API
// @version 1.0.0
// @description Job cards, approvals, scoring and attendance for field technicians
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("connect redis", zap.Error(err))
	}
	// Keep the interface nil when Redis is disabled.
	var universal redis.UniversalClient
	if redisClient != nil {
		universal = redisClient
		defer redisClient.Close()
	}

	loc, err := cfg.Shift.Location()
	if err != nil {
		logr.Fatal("shift timezone", zap.Error(err))
	}
	window, err := shift.NewWindow(cfg.Shift.Start, cfg.Shift.End, loc)
	if err != nil {
		logr.Fatal("shift window", zap.Error(err))
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Lock.Backend == config.LockBackendRedis {
		if redisClient == nil {
			logr.Fatal("LOCK_BACKEND=redis requires REDIS_ENABLED=true")
		}
		locker = lock.NewRedisLocker(redisClient, cfg.Lock.TTL, logr)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	jobCardRepo := repository.NewJobCardRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	cacheRepo := repository.NewCacheRepository(universal, "fieldservice", logr)

	activitySvc := service.NewActivityService(activityRepo, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reports.CacheTTL, logr, cfg.Reports.CacheEnabled && cacheRepo.Enabled())
	authSvc := service.NewAuthService(userRepo, activitySvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	reportSvc := service.NewReportService(service.ReportServiceParams{
		Attendance: attendanceRepo,
		Scores:     scoreRepo,
		Employees:  userRepo,
		JobCards:   jobCardRepo,
		Cache:      cacheSvc,
		Logger:     logr,
		Location:   loc,
	})
	jobCardSvc := service.NewJobCardService(service.JobCardServiceParams{
		Repo:     jobCardRepo,
		Tickets:  ticketRepo,
		Days:     attendanceRepo,
		Locker:   locker,
		Activity: activitySvc,
		Metrics:  metrics,
		Logger:   logr,
		Policy: service.JobCardPolicy{
			GeoTimeout:       cfg.JobCards.GeoTimeout,
			RequireActiveDay: cfg.JobCards.RequireActiveDay,
			SingleActive:     cfg.JobCards.SingleActive,
		},
	})
	uploads, err := storage.NewLocalStorage(cfg.Storage.Dir)
	if err != nil {
		logr.Fatal("upload storage", zap.Error(err))
	}
	evidenceSvc := service.NewEvidenceService(service.EvidenceServiceParams{
		Cards:    jobCardSvc,
		Store:    uploads,
		Signer:   storage.NewSignedURLSigner(cfg.Storage.SigningSecret, cfg.Storage.LinkTTL),
		BaseURL:  "/files",
		MaxBytes: cfg.Storage.MaxImageBytes,
		Logger:   logr,
	})
	scoringSvc := service.NewScoringService(service.ScoringServiceParams{
		JobCards: jobCardRepo,
		Scores:   scoreRepo,
		Tickets:  ticketRepo,
		Reports:  reportSvc,
		Locker:   locker,
		Activity: activitySvc,
		Metrics:  metrics,
		Logger:   logr,
		Location: loc,
	})

	scoreQueue := jobs.NewQueue("scoring", scoringSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Scoring.Workers,
		MaxRetries: cfg.Scoring.Retries,
		Observer:   metrics.RecordJob,
		Logger:     logr,
	})
	scoreQueue.Start(ctx)

	approvalSvc := service.NewApprovalService(service.ApprovalServiceParams{
		Repo:       jobCardRepo,
		Locker:     locker,
		Activity:   activitySvc,
		Metrics:    metrics,
		Logger:     logr,
		ScoreQueue: scoreQueue,
		AutoScore:  cfg.Scoring.AutoAssign,
	})
	attendanceSvc := service.NewAttendanceService(service.AttendanceServiceParams{
		Repo:          attendanceRepo,
		Work:          jobCardRepo,
		Window:        window,
		Reports:       reportSvc,
		Locker:        locker,
		Activity:      activitySvc,
		Metrics:       metrics,
		Logger:        logr,
		BlockOpenJobs: cfg.Attendance.BlockOpenJobs,
	})

	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	engine := router.Setup(router.Options{
		Env:            cfg.Env,
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logr,
		Metrics:        metrics,
		Tokens:         authSvc,
	}, router.Handlers{
		Auth:       handler.NewAuthHandler(authSvc, validate),
		JobCards:   handler.NewJobCardHandler(jobCardSvc, validate),
		Evidence:   handler.NewEvidenceHandler(evidenceSvc),
		Approvals:  handler.NewApprovalHandler(approvalSvc, validate),
		Scores:     handler.NewScoreHandler(scoringSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Reports:    handler.NewReportHandler(reportSvc),
		Activity:   handler.NewActivityHandler(activitySvc),
		Metrics:    handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "lock_backend", cfg.Lock.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown", zap.Error(err))
	}
	// Approvals made just before shutdown still get scored.
	if err := scoreQueue.Shutdown(shutdownCtx); err != nil {
		logr.Warn("scoring queue not drained, run score backfill", zap.Error(err))
	}
}
