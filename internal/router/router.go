package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/handler"
	"github.com/noah-isme/fieldservice-api/internal/middleware"
	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/internal/service"
	"github.com/noah-isme/fieldservice-api/pkg/config"
	"github.com/noah-isme/fieldservice-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fieldservice-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fieldservice-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler mounted by Setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	JobCards   *handler.JobCardHandler
	Evidence   *handler.EvidenceHandler
	Approvals  *handler.ApprovalHandler
	Scores     *handler.ScoreHandler
	Attendance *handler.AttendanceHandler
	Reports    *handler.ReportHandler
	Activity   *handler.ActivityHandler
	Metrics    *handler.MetricsHandler
}

// Options carries the cross-cutting dependencies of the engine.
type Options struct {
	Env            string
	APIPrefix      string
	AllowedOrigins []string
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Tokens         middleware.TokenValidator
}

// Setup builds the gin engine with the ops endpoints and the versioned API.
func Setup(opts Options, h Handlers) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)
	// Signed links are opened from <img> tags, so no bearer token is required.
	r.GET("/files/:token", h.Evidence.Serve)
	if opts.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix)
	api.Use(middleware.RequestMeta(), middleware.WithResponseMeta())

	setupAuthRoutes(api, h.Auth, opts.Tokens)

	secured := api.Group("")
	secured.Use(middleware.JWT(opts.Tokens))
	setupJobCardRoutes(secured, h.JobCards, h.Evidence)
	setupAttendanceRoutes(secured, h.Attendance)
	setupDashboardRoutes(secured, h.Reports)

	admin := secured.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	setupAdminRoutes(admin, h)

	return r
}

func setupAuthRoutes(api *gin.RouterGroup, auth *handler.AuthHandler, tokens middleware.TokenValidator) {
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/login", auth.Login)
		authRoutes.POST("/refresh", auth.Refresh)

		authRequired := authRoutes.Group("")
		authRequired.Use(middleware.JWT(tokens))
		{
			authRequired.POST("/logout", auth.Logout)
			authRequired.GET("/me", auth.Me)
		}
	}
}

// Ownership of a card is enforced by the service, so both roles share these routes.
func setupJobCardRoutes(secured *gin.RouterGroup, cards *handler.JobCardHandler, evidence *handler.EvidenceHandler) {
	secured.GET("/employee/job-cards", middleware.RequireRoles(models.RoleEmployee), cards.ListMine)

	jobCards := secured.Group("/job-cards")
	jobCards.Use(middleware.RequireRoles(models.RoleEmployee, models.RoleAdmin))
	{
		jobCards.GET("/:id", cards.Get)
		jobCards.GET("/:id/logs", cards.Logs)
		jobCards.POST("/:id/status", cards.UpdateStatus)
		jobCards.PUT("/:id/image", cards.AttachImage)
		jobCards.GET("/:id/image", evidence.Link)
		jobCards.POST("/:id/image/upload", evidence.Upload)
	}
}

func setupAttendanceRoutes(secured *gin.RouterGroup, attendance *handler.AttendanceHandler) {
	attendanceRoutes := secured.Group("/attendance")
	attendanceRoutes.Use(middleware.RequireRoles(models.RoleEmployee))
	{
		attendanceRoutes.POST("/start", attendance.Start)
		attendanceRoutes.POST("/end", attendance.End)
		attendanceRoutes.GET("/today", attendance.Today)
		attendanceRoutes.GET("/history", attendance.History)
	}
}

func setupDashboardRoutes(secured *gin.RouterGroup, reports *handler.ReportHandler) {
	dashboard := secured.Group("/employee/dashboard")
	dashboard.Use(middleware.RequireRoles(models.RoleEmployee))
	{
		dashboard.GET("/summary", reports.Dashboard)
		dashboard.GET("/monthly-stats", reports.MonthlyStats)
	}
}

func setupAdminRoutes(admin *gin.RouterGroup, h Handlers) {
	approvals := admin.Group("/approvals")
	{
		approvals.GET("", h.Approvals.Pending)
		approvals.GET("/stats", h.Approvals.Stats)
		approvals.POST("/bulk", h.Approvals.Bulk)
		approvals.POST("/:id/approve", h.Approvals.Approve)
		approvals.POST("/:id/reject", h.Approvals.Reject)
	}

	scores := admin.Group("/scores")
	{
		scores.POST("/backfill", h.Scores.Backfill)
		scores.POST("/:jobCardId", h.Scores.Assign)
		scores.GET("/employees/:employeeId", h.Scores.ListByEmployee)
	}

	reports := admin.Group("/reports/employees/:employeeId")
	{
		reports.GET("/summary", h.Reports.Summary)
		reports.GET("/export", h.Reports.Export)
	}
	admin.GET("/reports/overtime", h.Reports.Overtime)
	admin.GET("/reports/overtime/export", h.Reports.OvertimeExport)

	admin.GET("/activity-logs", h.Activity.List)
}
