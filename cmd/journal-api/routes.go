package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/journal-api/api/swagger"
	"github.com/noah-isme/journal-api/internal/handler"
	"github.com/noah-isme/journal-api/internal/middleware"
	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
	"github.com/noah-isme/journal-api/internal/service"
	"github.com/noah-isme/journal-api/pkg/config"
	"github.com/noah-isme/journal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/journal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/journal-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg           *config.Config
	logger        *zap.Logger
	db            *sqlx.DB
	metrics       *service.MetricsService
	auditLog      *repository.UserRepository
	rateLimits    *repository.RateLimitRepository
	auth          *service.AuthService
	articles      *service.ArticleService
	actions       *service.ArticleActionService
	payments      *service.PaymentService
	coauthors     *service.CoAuthorService
	notifications *service.NotificationService
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))

	ops := handler.NewMetricsHandler(d.metrics, d.db)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(d.auth)
	articleHandler := handler.NewArticleHandler(d.articles)
	actionHandler := handler.NewEditorActionHandler(d.actions)
	paymentHandler := handler.NewPaymentHandler(d.payments)
	coauthorHandler := handler.NewCoAuthorHandler(d.coauthors)
	notificationHandler := handler.NewNotificationHandler(d.notifications)

	public := func(scope string) gin.HandlerFunc {
		if !d.cfg.RateLimit.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimit(d.rateLimits, middleware.RateLimitOptions{
			Scope:  scope,
			Limit:  d.cfg.RateLimit.Limit,
			Window: d.cfg.RateLimit.Window,
		}, d.metrics, d.logger)
	}
	audit := func(action string) gin.HandlerFunc {
		return middleware.Audit(d.auditLog, d.logger, action, "article")
	}

	api := r.Group(d.cfg.APIPrefix)

	api.POST("/auth/login", public("login"), authHandler.Login)
	api.GET("/files/:token", public("files"), articleHandler.Download)

	payment := api.Group("/payment", public("payment"))
	payment.GET("/validate-token", paymentHandler.ValidateToken)
	payment.POST("/submit-utr", paymentHandler.SubmitUTR)

	coauthor := api.Group("/coauthor", public("coauthor"))
	coauthor.GET("/accept", coauthorHandler.Preview)
	coauthor.POST("/accept", coauthorHandler.Confirm)

	secured := api.Group("")
	secured.Use(middleware.JWT(d.auth))
	secured.GET("/auth/me", authHandler.Me)

	articles := secured.Group("/articles")
	articles.POST("", middleware.RequireRoles(models.RoleAuthor), articleHandler.Create)
	articles.GET("", articleHandler.List)
	articles.GET("/export", middleware.RequireEditor(),
		middleware.Audit(d.auditLog, d.logger, models.AuditActionReviewQueueExport, "article"), articleHandler.Export)
	articles.GET("/:id", articleHandler.Get)
	articles.PATCH("/:id", articleHandler.Update)
	articles.POST("/:id/submit", articleHandler.Submit)
	articles.GET("/:id/download", articleHandler.DownloadLink)
	articles.POST("/:id/coauthors", coauthorHandler.Invite)
	articles.GET("/:id/coauthors", coauthorHandler.List)

	editor := articles.Group("/:id", middleware.RequireEditor())
	editor.POST("/approve", audit(models.AuditActionArticleApprove), actionHandler.Approve)
	editor.POST("/reject", audit(models.AuditActionArticleReject), actionHandler.Reject)
	editor.POST("/reopen", audit(models.AuditActionArticleReopen), actionHandler.Reopen)
	editor.POST("/resend-approval", audit(models.AuditActionApprovalResend), actionHandler.ResendApproval)
	editor.POST("/verify-and-publish", audit(models.AuditActionArticlePublish), actionHandler.VerifyAndPublish)
	editor.POST("/reject-payment", audit(models.AuditActionPaymentReject), actionHandler.RejectPayment)
	editor.POST("/unpublish", audit(models.AuditActionArticleUnpublish), actionHandler.Unpublish)

	notifications := secured.Group("/notifications", middleware.RequireEditor())
	notifications.GET("", notificationHandler.List)
	notifications.POST("/:id/resend",
		middleware.Audit(d.auditLog, d.logger, models.AuditActionNotificationResend, "notification"), notificationHandler.Resend)

	return r
}
