package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/dto"
	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type fakeDashboardRepo struct {
	calls       atomic.Int32
	pendingErr  error
	trendFrom   time.Time
	monthly     []dto.MonthlyAmount
	attendance  models.AttendanceCounts
	admissionAt time.Time
}

func (f *fakeDashboardRepo) CountStudents(context.Context) (int, error) {
	f.calls.Add(1)
	return 12, nil
}

func (f *fakeDashboardRepo) CountCourses(context.Context) (int, error) { return 3, nil }

func (f *fakeDashboardRepo) CountAdmissionsSince(_ context.Context, since time.Time) (int, error) {
	f.admissionAt = since
	return 2, nil
}

func (f *fakeDashboardRepo) StudentsByGender(context.Context) ([]dto.LabelCount, error) {
	return []dto.LabelCount{{Label: "F", Count: 5}, {Label: "M", Count: 7}}, nil
}

func (f *fakeDashboardRepo) StudentsByAdmissionType(context.Context) ([]dto.LabelCount, error) {
	return []dto.LabelCount{{Label: "day_scholar", Count: 12}}, nil
}

func (f *fakeDashboardRepo) GenderByAdmission(context.Context) ([]dto.GenderAdmission, error) {
	return nil, nil
}

func (f *fakeDashboardRepo) FeesCollected(context.Context, time.Time, time.Time) (float64, error) {
	return 400, nil
}

func (f *fakeDashboardRepo) FeesPending(context.Context) (float64, error) {
	return 900, f.pendingErr
}

func (f *fakeDashboardRepo) AttendanceOn(context.Context, time.Time) (models.AttendanceCounts, error) {
	return f.attendance, nil
}

func (f *fakeDashboardRepo) StudentsPerCourse(context.Context) ([]dto.CourseEnrollment, error) {
	return []dto.CourseEnrollment{{CourseID: "c1", CourseName: "Math", Students: 4}}, nil
}

func (f *fakeDashboardRepo) MonthlyCollected(_ context.Context, from time.Time) ([]dto.MonthlyAmount, error) {
	f.trendFrom = from
	return f.monthly, nil
}

func newTestDashboard(repo *fakeDashboardRepo, cache *CacheService) *DashboardService {
	svc := NewDashboardService(DashboardServiceParams{Repo: repo, Cache: cache, Logger: zap.NewNop()})
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestDashboardSummaryComposesAggregates(t *testing.T) {
	repo := &fakeDashboardRepo{
		monthly:    []dto.MonthlyAmount{{Month: "2024-11", Collected: 150}, {Month: "2025-03", Collected: 400}},
		attendance: models.AttendanceCounts{Present: 3, Total: 4, Percent: 75},
	}
	svc := newTestDashboard(repo, nil)

	summary, cached, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 12, summary.TotalStudents)
	assert.Equal(t, 3, summary.TotalCourses)
	assert.Equal(t, 2, summary.NewAdmissionsThisMonth)
	assert.Equal(t, 900.0, summary.FeesPending)
	assert.Equal(t, 75.0, summary.TodayAttendanceRate)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), repo.admissionAt)
	assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), repo.trendFrom)

	require.Len(t, summary.FeeTrend, 6)
	assert.Equal(t, "2024-10", summary.FeeTrend[0].Month)
	assert.Equal(t, 0.0, summary.FeeTrend[0].Collected)
	assert.Equal(t, 150.0, summary.FeeTrend[1].Collected)
	assert.Equal(t, "2025-03", summary.FeeTrend[5].Month)
	assert.Equal(t, 400.0, summary.FeeTrend[5].Collected)
}

func TestDashboardSummaryServesFromCache(t *testing.T) {
	repo := &fakeDashboardRepo{}
	cache := NewCacheService(CacheServiceParams{Repo: newMemoryCache(), DefaultTTL: time.Minute, Enabled: true})
	svc := newTestDashboard(repo, cache)

	_, cached, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)

	summary, cached, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 12, summary.TotalStudents)
	assert.Equal(t, int32(1), repo.calls.Load())

	svc.Invalidate(context.Background())
	_, cached, err = svc.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestDashboardSummaryPropagatesRepositoryError(t *testing.T) {
	repo := &fakeDashboardRepo{pendingErr: errors.New("db down")}
	svc := newTestDashboard(repo, nil)

	_, _, err := svc.Summary(context.Background())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}
