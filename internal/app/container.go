// Package app assembles repositories and services shared by the HTTP server
// and the operator CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/repository"
	"github.com/noah-isme/academy-admin-api/internal/service"
	"github.com/noah-isme/academy-admin-api/pkg/cache"
	"github.com/noah-isme/academy-admin-api/pkg/config"
	"github.com/noah-isme/academy-admin-api/pkg/database"
	"github.com/noah-isme/academy-admin-api/pkg/jobs"
	"github.com/noah-isme/academy-admin-api/pkg/storage"
)

// Repositories groups the sqlx-backed stores.
type Repositories struct {
	Users       *repository.UserRepository
	Students    *repository.StudentRepository
	Courses     *repository.CourseRepository
	Enrollments *repository.EnrollmentRepository
	Attendance  *repository.AttendanceRepository
	Payments    *repository.PaymentRepository
	Categories  *repository.PaymentCategoryRepository
	Settings    *repository.SettingRepository
	Counters    *repository.RegistrationCounterRepository
	Backup      *repository.BackupRepository
	Dashboard   *repository.DashboardRepository
	Cache       *repository.CacheRepository
}

// Services groups the use-case layer.
type Services struct {
	Metrics      *service.MetricsService
	Cache        *service.CacheService
	Auth         *service.AuthService
	Users        *service.UserService
	Settings     *service.SettingService
	Registration *service.RegistrationAllocator
	Students     *service.StudentService
	Courses      *service.CourseService
	Enrollments  *service.EnrollmentService
	Attendance   *service.AttendanceService
	Categories   *service.PaymentCategoryService
	Payments     *service.PaymentService
	Dashboard    *service.DashboardService
	Backup       *service.BackupService
	Export       *service.ExportService
	Scheduler    *service.BackupScheduler
}

// Container owns the process-wide resources.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Storage  *storage.LocalStorage
	Signer   *storage.SignedURLSigner
	Queue    *jobs.Queue
	Repos    Repositories
	Services Services
}

// New opens the database (and Redis when enabled) and wires every service.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	c, err := build(cfg, logger, db, redisClient)
	if err != nil {
		_ = db.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}
	return c, nil
}

func build(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client) (*Container, error) {
	store, err := storage.NewLocalStorage(cfg.Backup.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("prepare backup storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Backup.SignedURLSecret, cfg.Backup.SignedURLTTL)

	repos := Repositories{
		Users:       repository.NewUserRepository(db),
		Students:    repository.NewStudentRepository(db),
		Courses:     repository.NewCourseRepository(db),
		Enrollments: repository.NewEnrollmentRepository(db),
		Attendance:  repository.NewAttendanceRepository(db),
		Payments:    repository.NewPaymentRepository(db),
		Categories:  repository.NewPaymentCategoryRepository(db),
		Settings:    repository.NewSettingRepository(db),
		Counters:    repository.NewRegistrationCounterRepository(db),
		Backup:      repository.NewBackupRepository(db),
		Dashboard:   repository.NewDashboardRepository(db),
		Cache:       repository.NewCacheRepository(redisClient, logger.Named("cache")),
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(service.CacheServiceParams{
		Repo:       repos.Cache,
		Metrics:    metrics,
		Logger:     logger.Named("cache"),
		DefaultTTL: cfg.Dashboard.CacheTTL,
		Prefix:     cfg.Redis.KeyPrefix,
		Enabled:    redisClient != nil,
	})

	settings := service.NewSettingService(repos.Settings, repos.Users, validate, logger.Named("settings"))
	allocator := service.NewRegistrationAllocator(repos.Counters, settings, logger.Named("registration"))
	dashboard := service.NewDashboardService(service.DashboardServiceParams{
		Repo:    repos.Dashboard,
		Cache:   cacheSvc,
		Metrics: metrics,
		Logger:  logger.Named("dashboard"),
		Config:  service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})
	attendance := service.NewAttendanceService(service.AttendanceServiceParams{
		Repo:        repos.Attendance,
		Enrollments: repos.Enrollments,
		Courses:     repos.Courses,
		Students:    repos.Students,
		Tx:          db,
		Validator:   validate,
		Logger:      logger.Named("attendance"),
	})
	backup := service.NewBackupService(service.BackupServiceParams{
		Repo:      repos.Backup,
		Tx:        db,
		Allocator: allocator,
		Dashboard: dashboard,
		Audit:     repos.Users,
		Metrics:   metrics,
		Logger:    logger.Named("backup"),
	})
	scheduler := service.NewBackupScheduler(backup, store, signer, service.BackupSchedulerConfig{
		Enabled:      cfg.Backup.ScheduleEnabled,
		Cron:         cfg.Backup.Cron,
		Retention:    cfg.Backup.Retention,
		DownloadPath: cfg.APIPrefix + "/backup/snapshots/download",
	}, logger.Named("scheduler"))
	queue := jobs.NewQueue("backup", scheduler.Handle, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.Backup.WorkerRetries,
		RetryDelay: 30 * time.Second,
		JobTimeout: 15 * time.Minute,
		OnResult: func(job jobs.Job, err error, took time.Duration) {
			metrics.ObserveJob(job.Type, err, took)
		},
		Logger: logger.Named("jobs"),
	})
	scheduler.AttachQueue(queue)

	services := Services{
		Metrics: metrics,
		Cache:   cacheSvc,
		Auth: service.NewAuthService(repos.Users, validate, logger.Named("auth"), service.AuthConfig{
			AccessTokenSecret:  cfg.JWT.Secret,
			AccessTokenExpiry:  cfg.JWT.Expiration,
			RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
			Issuer:             cfg.JWT.Issuer,
		}),
		Users:        service.NewUserService(repos.Users, validate, logger.Named("users")),
		Settings:     settings,
		Registration: allocator,
		Students: service.NewStudentService(service.StudentServiceParams{
			Repo:      repos.Students,
			Tx:        db,
			Allocator: allocator,
			Payments:  repos.Payments,
			Courses:   repos.Courses,
			Audit:     repos.Users,
			Metrics:   metrics,
			Validator: validate,
			Logger:    logger.Named("students"),
			Config:    service.StudentServiceConfig{MaxRetries: cfg.Registration.MaxRetries},
		}),
		Courses:     service.NewCourseService(repos.Courses, validate, logger.Named("courses")),
		Enrollments: service.NewEnrollmentService(repos.Enrollments, repos.Students, repos.Courses, db, validate, logger.Named("enrollments")),
		Attendance:  attendance,
		Categories:  service.NewPaymentCategoryService(repos.Categories, validate, logger.Named("categories")),
		Payments: service.NewPaymentService(service.PaymentServiceParams{
			Repo:       repos.Payments,
			Students:   repos.Students,
			Categories: repos.Categories,
			Audit:      repos.Users,
			Validator:  validate,
			Logger:     logger.Named("payments"),
		}),
		Dashboard: dashboard,
		Backup:    backup,
		Export: service.NewExportService(service.ExportServiceParams{
			Source:     repos.Backup,
			Attendance: attendance,
			Courses:    repos.Courses,
			Settings:   settings,
			Logger:     logger.Named("export"),
		}),
		Scheduler: scheduler,
	}

	return &Container{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Redis:    redisClient,
		Storage:  store,
		Signer:   signer,
		Queue:    queue,
		Repos:    repos,
		Services: services,
	}, nil
}

// StartBackground launches the job queue and the backup schedule.
func (c *Container) StartBackground(ctx context.Context) error {
	c.Queue.Start(ctx)
	return c.Services.Scheduler.Start()
}

// Close stops background work and releases connections.
func (c *Container) Close() {
	c.Services.Scheduler.Stop()
	c.Queue.Stop()
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.Warn("close database", zap.Error(err))
	}
}
