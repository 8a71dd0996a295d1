package app

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/academy-admin-api/internal/handler"
	"github.com/noah-isme/academy-admin-api/internal/middleware"
	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/pkg/config"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academy-admin-api/pkg/middleware/cors"
	"github.com/noah-isme/academy-admin-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/academy-admin-api/pkg/middleware/requestid"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

// NewRouter mounts every HTTP route on a fresh gin engine.
func NewRouter(c *Container) *gin.Engine {
	cfg := c.Config
	svc := c.Services

	r := gin.New()
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.Recovery(c.Logger))
	r.Use(logger.GinMiddleware(c.Logger, logger.Quiet("/health", "/ready", "/metrics"), logger.SlowThreshold(2*time.Second)))
	r.Use(corsmiddleware.New(corsmiddleware.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ExposedHeaders: []string{"Content-Disposition", reqidmiddleware.Header},
		MaxAgeSeconds:  cfg.CORS.MaxAgeSeconds,
	}))
	r.Use(middleware.Metrics(svc.Metrics, "/health", "/ready", "/metrics"))
	r.Use(middleware.WithResponseMeta())

	systemHandler := handler.NewSystemHandler(svc.Metrics, c.DB)
	r.GET("/health", systemHandler.Health)
	r.GET("/ready", systemHandler.Ready)
	r.GET("/metrics", systemHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(svc.Auth)
	userHandler := handler.NewUserHandler(svc.Users)
	studentHandler := handler.NewStudentHandler(svc.Students)
	courseHandler := handler.NewCourseHandler(svc.Courses)
	enrollmentHandler := handler.NewEnrollmentHandler(svc.Enrollments)
	attendanceHandler := handler.NewAttendanceHandler(svc.Attendance, svc.Export)
	categoryHandler := handler.NewPaymentCategoryHandler(svc.Categories)
	paymentHandler := handler.NewPaymentHandler(svc.Payments)
	dashboardHandler := handler.NewDashboardHandler(svc.Dashboard)
	settingHandler := handler.NewSettingHandler(svc.Settings, svc.Registration)
	backupHandler := handler.NewBackupHandler(svc.Backup, svc.Scheduler, cfg.Backup.MaxUploadBytes)
	exportHandler := handler.NewExportHandler(svc.Export)

	loginLimiter := ratelimit.New(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst)
	tooMany := func(ctx *gin.Context) { response.Error(ctx, appErrors.ErrTooManyRequests) }

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", ratelimit.Middleware(loginLimiter, ratelimit.ClientIP, tooMany), authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/register-admin", authHandler.RegisterAdmin)

	// snapshot downloads authenticate through the signed token
	api.GET("/backup/snapshots/download", middleware.Audit(c.Repos.Users, models.AuditActionDataDownload, "snapshot", c.Logger.Named("audit")), backupHandler.DownloadSnapshot)

	secured := api.Group("")
	secured.Use(middleware.JWT(svc.Auth))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/auth/me", authHandler.Me)

	admin := middleware.AdminOnly()
	accountant := middleware.RequireRoles(models.RoleAccountant)
	teacher := middleware.RequireRoles(models.RoleTeacher)

	secured.GET("/dashboard", dashboardHandler.Summary)
	secured.GET("/registration/next", settingHandler.RegistrationPreview)

	students := secured.Group("/students")
	students.GET("", studentHandler.List)
	students.GET("/:id", studentHandler.Get)
	students.GET("/:id/dues", studentHandler.Dues)
	students.GET("/:id/enrollments", enrollmentHandler.ByStudent)
	students.POST("", admin, studentHandler.Create)
	students.PUT("/:id", admin, studentHandler.Update)
	students.DELETE("/:id", admin, studentHandler.Delete)

	courses := secured.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/:id", courseHandler.Get)
	courses.GET("/:id/students", studentHandler.ByCourse)
	courses.GET("/:id/enrollments", enrollmentHandler.ByCourse)
	courses.POST("", admin, courseHandler.Create)
	courses.PUT("/:id", admin, courseHandler.Update)
	courses.DELETE("/:id", admin, courseHandler.Delete)

	enrollments := secured.Group("/enrollments")
	enrollments.POST("", admin, enrollmentHandler.Enroll)
	enrollments.DELETE("/:student_id/:course_id", admin, enrollmentHandler.Unenroll)

	attendance := secured.Group("/attendance")
	attendance.GET("", attendanceHandler.List)
	attendance.GET("/summary", attendanceHandler.Summary)
	attendance.GET("/courses/:id", attendanceHandler.CourseHistory)
	attendance.GET("/courses/:id/print", attendanceHandler.PrintSheet)
	attendance.GET("/reports/courses/:id", attendanceHandler.CourseReport)
	attendance.GET("/reports/students/:id", attendanceHandler.StudentReport)
	attendance.POST("", teacher, attendanceHandler.Mark)
	attendance.POST("/bulk", teacher, attendanceHandler.BulkMark)

	categories := secured.Group("/payment-categories")
	categories.GET("", categoryHandler.List)
	categories.POST("", admin, categoryHandler.Create)
	categories.POST("/seed", admin, categoryHandler.Seed)
	categories.PUT("/:id", admin, categoryHandler.Update)
	categories.DELETE("/:id", admin, categoryHandler.Delete)

	payments := secured.Group("/payments")
	payments.GET("", paymentHandler.List)
	payments.GET("/summary", paymentHandler.Summary)
	payments.GET("/:id", paymentHandler.Get)
	payments.POST("", accountant, paymentHandler.Record)
	payments.PUT("/:id", accountant, paymentHandler.Update)
	payments.PATCH("/:id/status", accountant, paymentHandler.MarkStatus)
	payments.DELETE("/:id", admin, paymentHandler.Delete)

	secured.GET("/exports/:entity", middleware.Audit(c.Repos.Users, models.AuditActionDataDownload, "export", c.Logger.Named("audit")), exportHandler.Export)

	backup := secured.Group("/backup", admin)
	backup.GET("/export", backupHandler.Export)
	backup.POST("/restore", backupHandler.Restore)
	backup.POST("/reset", backupHandler.Reset)
	backup.GET("/stats", backupHandler.Stats)
	backup.GET("/download/:entity", middleware.Audit(c.Repos.Users, models.AuditActionDataDownload, "export", c.Logger.Named("audit")), exportHandler.DownloadCSV)
	backup.GET("/snapshots", backupHandler.Snapshots)
	backup.POST("/snapshots", backupHandler.TriggerSnapshot)

	settings := secured.Group("/settings", admin)
	settings.GET("", settingHandler.List)
	settings.PUT("", settingHandler.BulkUpdate)
	settings.GET("/:key", settingHandler.Get)
	settings.PUT("/:key", settingHandler.Update)

	secured.GET("/system/metrics", admin, systemHandler.Summary)

	users := secured.Group("/users", admin)
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.POST("", userHandler.Create)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)

	return r
}
