package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type courseRepoStub struct {
	courses   map[string]models.CourseDetail
	nameTaken bool
	createErr error
}

func newCourseRepoStub() *courseRepoStub {
	return &courseRepoStub{courses: map[string]models.CourseDetail{}}
}

func (c *courseRepoStub) List(context.Context, models.CourseFilter) ([]models.CourseDetail, int, error) {
	var out []models.CourseDetail
	for _, course := range c.courses {
		out = append(out, course)
	}
	return out, len(out), nil
}

func (c *courseRepoStub) FindByID(_ context.Context, id string) (*models.CourseDetail, error) {
	if course, ok := c.courses[id]; ok {
		return &course, nil
	}
	return nil, sql.ErrNoRows
}

func (c *courseRepoStub) ExistsByName(context.Context, string, string) (bool, error) {
	return c.nameTaken, nil
}

func (c *courseRepoStub) Create(_ context.Context, course *models.Course) error {
	if c.createErr != nil {
		return c.createErr
	}
	course.ID = fmt.Sprintf("course-%d", len(c.courses)+1)
	c.courses[course.ID] = models.CourseDetail{Course: *course}
	return nil
}

func (c *courseRepoStub) Update(_ context.Context, course *models.Course) error {
	detail := c.courses[course.ID]
	detail.Course = *course
	c.courses[course.ID] = detail
	return nil
}

func (c *courseRepoStub) Delete(_ context.Context, id string) error {
	if _, ok := c.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(c.courses, id)
	return nil
}

func TestCourseServiceCreate(t *testing.T) {
	svc := NewCourseService(newCourseRepoStub(), nil, nil)

	course, err := svc.Create(context.Background(), CourseRequest{Name: "  Algebra ", Fee: 120, Seats: 30})
	require.NoError(t, err)
	assert.Equal(t, "Algebra", course.Name)
	assert.Equal(t, 30, course.AvailableSeats)
}

func TestCourseServiceCreateRejectsNegativeFee(t *testing.T) {
	svc := NewCourseService(newCourseRepoStub(), nil, nil)

	_, err := svc.Create(context.Background(), CourseRequest{Name: "Algebra", Fee: -1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateNameLimits(t *testing.T) {
	svc := NewCourseService(newCourseRepoStub(), nil, nil)

	_, err := svc.Create(context.Background(), CourseRequest{Name: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CourseRequest{Name: strings.Repeat("a", 121)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	course, err := svc.Create(context.Background(), CourseRequest{Name: " " + strings.Repeat("a", 120) + " "})
	require.NoError(t, err)
	assert.Len(t, course.Name, 120)
}

func TestCourseServiceCreateDuplicateName(t *testing.T) {
	repo := newCourseRepoStub()
	repo.nameTaken = true
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CourseRequest{Name: "Algebra"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateMapsUniqueViolation(t *testing.T) {
	repo := newCourseRepoStub()
	repo.createErr = fmt.Errorf("create course: %w", &pq.Error{Code: "23505", Constraint: courseNameConstraint})
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CourseRequest{Name: "Algebra"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateRecomputesAvailableSeats(t *testing.T) {
	repo := newCourseRepoStub()
	repo.courses["c1"] = models.CourseDetail{Course: models.Course{ID: "c1", Name: "Algebra", Seats: 10}, StudentCount: 4, AvailableSeats: 6}
	svc := NewCourseService(repo, nil, nil)

	updated, err := svc.Update(context.Background(), "c1", CourseRequest{Name: "Algebra I", Seats: 3})
	require.NoError(t, err)
	assert.Equal(t, -1, updated.AvailableSeats)
	assert.Equal(t, "Algebra I", repo.courses["c1"].Name)
}

func TestCourseServiceDeleteMissing(t *testing.T) {
	svc := NewCourseService(newCourseRepoStub(), nil, nil)

	err := svc.Delete(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
