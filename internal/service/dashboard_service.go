package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/academy-admin-api/internal/dto"
	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

const (
	dashboardCacheKey     = "dashboard:summary"
	dashboardCachePattern = "dashboard:*"
	feeTrendMonths        = 6
)

type dashboardRepository interface {
	CountStudents(ctx context.Context) (int, error)
	CountCourses(ctx context.Context) (int, error)
	CountAdmissionsSince(ctx context.Context, since time.Time) (int, error)
	StudentsByGender(ctx context.Context) ([]dto.LabelCount, error)
	StudentsByAdmissionType(ctx context.Context) ([]dto.LabelCount, error)
	GenderByAdmission(ctx context.Context) ([]dto.GenderAdmission, error)
	FeesCollected(ctx context.Context, from, to time.Time) (float64, error)
	FeesPending(ctx context.Context) (float64, error)
	AttendanceOn(ctx context.Context, day time.Time) (models.AttendanceCounts, error)
	StudentsPerCourse(ctx context.Context) ([]dto.CourseEnrollment, error)
	MonthlyCollected(ctx context.Context, from time.Time) ([]dto.MonthlyAmount, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the admin dashboard.
type DashboardService struct {
	repo    dashboardRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	cfg     DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Repo    dashboardRepository
	Cache   *CacheService
	Metrics *MetricsService
	Logger  *zap.Logger
	Config  DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		repo:    params.Repo,
		cache:   params.Cache,
		metrics: params.Metrics,
		logger:  logger,
		now:     time.Now,
		cfg:     cfg,
	}
}

// Summary returns the dashboard payload and whether it came from cache.
func (s *DashboardService) Summary(ctx context.Context) (*dto.DashboardResponse, bool, error) {
	summary, hit, err := Remember(ctx, s.cache, dashboardCacheKey, s.cfg.CacheTTL, s.compose)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build dashboard")
	}
	return summary, hit, nil
}

// Invalidate drops cached dashboard payloads.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, dashboardCachePattern); err != nil {
		s.logger.Warn("dashboard cache invalidate failed", zap.Error(err))
	}
}

func (s *DashboardService) compose(ctx context.Context) (*dto.DashboardResponse, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)
	trendStart := monthStart.AddDate(0, -(feeTrendMonths - 1), 0)

	out := &dto.DashboardResponse{GeneratedAt: now.Format(time.RFC3339)}
	var (
		attendance models.AttendanceCounts
		monthly    []dto.MonthlyAmount
	)

	g, gctx := errgroup.WithContext(ctx)
	query := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			began := time.Now()
			err := fn(gctx)
			s.metrics.ObserveDBQuery("dashboard_"+name, time.Since(began))
			return err
		})
	}
	query("students", func(ctx context.Context) (err error) {
		out.TotalStudents, err = s.repo.CountStudents(ctx)
		return err
	})
	query("courses", func(ctx context.Context) (err error) {
		out.TotalCourses, err = s.repo.CountCourses(ctx)
		return err
	})
	query("admissions", func(ctx context.Context) (err error) {
		out.NewAdmissionsThisMonth, err = s.repo.CountAdmissionsSince(ctx, monthStart)
		return err
	})
	query("gender", func(ctx context.Context) (err error) {
		out.StudentsByGender, err = s.repo.StudentsByGender(ctx)
		return err
	})
	query("admission_type", func(ctx context.Context) (err error) {
		out.StudentsByAdmission, err = s.repo.StudentsByAdmissionType(ctx)
		return err
	})
	query("gender_admission", func(ctx context.Context) (err error) {
		out.GenderByAdmission, err = s.repo.GenderByAdmission(ctx)
		return err
	})
	query("fees_collected", func(ctx context.Context) (err error) {
		out.FeesCollectedThisMonth, err = s.repo.FeesCollected(ctx, monthStart, nextMonth)
		return err
	})
	query("fees_pending", func(ctx context.Context) (err error) {
		out.FeesPending, err = s.repo.FeesPending(ctx)
		return err
	})
	query("attendance_today", func(ctx context.Context) (err error) {
		attendance, err = s.repo.AttendanceOn(ctx, today)
		return err
	})
	query("students_per_course", func(ctx context.Context) (err error) {
		out.StudentsPerCourse, err = s.repo.StudentsPerCourse(ctx)
		return err
	})
	query("fee_trend", func(ctx context.Context) (err error) {
		monthly, err = s.repo.MonthlyCollected(ctx, trendStart)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.TodayAttendanceRate = attendance.Percent
	out.FeeTrend = fillTrend(trendStart, feeTrendMonths, monthly)
	return out, nil
}

// fillTrend returns one point per month from start, zero where no payments exist.
func fillTrend(start time.Time, months int, rows []dto.MonthlyAmount) []dto.MonthlyAmount {
	byMonth := make(map[string]float64, len(rows))
	for _, row := range rows {
		byMonth[row.Month] = row.Collected
	}
	trend := make([]dto.MonthlyAmount, 0, months)
	for i := 0; i < months; i++ {
		label := start.AddDate(0, i, 0).Format("2006-01")
		trend = append(trend, dto.MonthlyAmount{Month: label, Collected: byMonth[label]})
	}
	return trend
}
