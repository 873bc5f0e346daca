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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/repository"
	"github.com/noah-isme/journal-api/internal/service"
	"github.com/noah-isme/journal-api/pkg/cache"
	"github.com/noah-isme/journal-api/pkg/config"
	"github.com/noah-isme/journal-api/pkg/database"
	"github.com/noah-isme/journal-api/pkg/jobs"
	"github.com/noah-isme/journal-api/pkg/logger"
	"github.com/noah-isme/journal-api/pkg/mailer"
	"github.com/noah-isme/journal-api/pkg/storage"
	"github.com/noah-isme/journal-api/pkg/watermark"
)

// @title Legal Journal API
// @version 1.0.0
// @description Article submission, editorial review and publication workflow
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.RateLimit.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, public rate limits disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	reads := database.ReadPolicy{Attempts: cfg.Database.ReadRetries, Delay: cfg.Database.ReadRetryDelay}
	tx := repository.NewTransactor(db, logr)
	userRepo := repository.NewUserRepository(db, reads)
	articleRepo := repository.NewArticleRepository(db, reads)
	tokenRepo := repository.NewTokenRepository(db, reads)
	coauthorRepo := repository.NewCoAuthorRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	rateLimitRepo := repository.NewRateLimitRepository(redisClient)

	validate := validator.New()
	metrics := service.NewMetricsService()

	files, err := storage.NewLocalStorage(cfg.Storage.ManuscriptDir, cfg.Storage.MaxUploadBytes)
	if err != nil {
		logr.Fatal("failed to prepare manuscript storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	notifications := service.NewNotificationService(notificationRepo, newSender(cfg.Mail, logr), logr, metrics, service.NotificationSettings{
		JournalName: cfg.Mail.JournalName,
		SendTimeout: cfg.Workflow.NotifyTimeout,
		MaxAttempts: cfg.Notifications.MaxRetries + 1,
	})
	retryQueue := jobs.NewQueue("notifications", notifications.HandleRetry, jobs.QueueConfig{
		Workers:    cfg.Notifications.RetryWorkers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		JobTimeout: cfg.Workflow.NotifyTimeout,
		Logger:     logr,
		OnGiveUp: func(job jobs.Job, err error) {
			logr.Error("notification retries exhausted", zap.Any("log_id", job.Payload), zap.Error(err))
		},
	})
	notifications.UseRetryQueue(retryQueue)
	retryQueue.Start(ctx)
	defer retryQueue.Stop()

	if n, err := notifications.RequeueFailed(ctx, 100); err != nil {
		logr.Warn("failed to requeue notifications", zap.Error(err))
	} else if n > 0 {
		logr.Info("requeued failed notifications", zap.Int("count", n))
	}

	workflow := service.WorkflowSettings{
		UTRTokenTTL:        cfg.Workflow.UTRTokenTTL,
		CoAuthorTokenTTL:   cfg.Workflow.CoAuthorTokenTTL,
		MaxCoAuthors:       cfg.Workflow.MaxCoAuthors,
		RejectionReasonMin: cfg.Workflow.RejectionReasonMin,
		PersistTimeout:     cfg.Workflow.PersistTimeout,
		PublicBaseURL:      cfg.PublicBaseURL,
		EditorEmails:       cfg.Mail.EditorEmails,
		Payment: dto.PaymentInstructions{
			Fee:           cfg.Payment.Fee,
			AccountName:   cfg.Payment.AccountName,
			AccountNumber: cfg.Payment.AccountNumber,
			IFSC:          cfg.Payment.IFSC,
			BankName:      cfg.Payment.BankName,
		},
	}

	tokens := service.NewTokenStore(tokenRepo, logr, metrics)
	stamps := service.NewWatermarkService(watermark.NewStamper(cfg.Mail.JournalName), files, userRepo, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	coauthors := service.NewCoAuthorService(tx, articleRepo, coauthorRepo, tokens, userRepo, notifications, logr, workflow)
	articles := service.NewArticleService(tx, articleRepo, files, signer, stamps, coauthors, validate, logr, metrics, workflow,
		cfg.PublicBaseURL+cfg.APIPrefix+"/files/")
	actions := service.NewArticleActionService(tx, articleRepo, tokens, userRepo, notifications, stamps, logr, metrics, workflow)
	payments := service.NewPaymentService(tx, articleRepo, tokens, userRepo, notifications, logr, metrics, workflow)

	router := newRouter(routerDeps{
		cfg:           cfg,
		logger:        logr,
		db:            db,
		metrics:       metrics,
		auditLog:      userRepo,
		rateLimits:    rateLimitRepo,
		auth:          authSvc,
		articles:      articles,
		actions:       actions,
		payments:      payments,
		coauthors:     coauthors,
		notifications: notifications,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSender(cfg config.MailConfig, logr *zap.Logger) mailer.Sender {
	if cfg.SMTPHost == "" {
		logr.Info("SMTP_HOST not set, notifications are written to the log")
		return mailer.NewLogSender(logr)
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.From,
	})
}
