package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type enrollmentRepoStub struct {
	seats    int
	enrolled int
	missing  bool
	exists   bool
	created  []models.Enrollment
}

func (e *enrollmentRepoStub) ListByCourse(context.Context, string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func (e *enrollmentRepoStub) ListByStudent(context.Context, string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func (e *enrollmentRepoStub) Exists(context.Context, sqlx.ExtContext, string, string) (bool, error) {
	return e.exists, nil
}

func (e *enrollmentRepoStub) LockSeats(context.Context, sqlx.ExtContext, string) (int, int, error) {
	if e.missing {
		return 0, 0, sql.ErrNoRows
	}
	return e.seats, e.enrolled, nil
}

func (e *enrollmentRepoStub) Create(_ context.Context, _ sqlx.ExtContext, enrollment *models.Enrollment) error {
	enrollment.ID = "enr-1"
	e.created = append(e.created, *enrollment)
	return nil
}

func (e *enrollmentRepoStub) DeleteByPair(context.Context, string, string) error {
	return sql.ErrNoRows
}

func newTestEnrollmentService(t *testing.T, repo *enrollmentRepoStub) (*EnrollmentService, *txProviderMock) {
	students := newStudentRepoStub()
	students.students["s1"] = models.Student{ID: "s1"}
	tx, _ := newTxProviderMock(t)
	return NewEnrollmentService(repo, students, nil, tx, nil, nil), tx
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	repo := &enrollmentRepoStub{seats: 2, enrolled: 1}
	svc, tx := newTestEnrollmentService(t, repo)
	tx.mock.ExpectBegin()
	tx.mock.ExpectCommit()

	enrollment, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", CourseID: "c1", EnrollDate: "2025-01-10"})
	require.NoError(t, err)
	assert.Equal(t, "enr-1", enrollment.ID)
	assert.Equal(t, 10, enrollment.EnrollDate.Day())
	require.NoError(t, tx.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceRejectsFullCourse(t *testing.T) {
	repo := &enrollmentRepoStub{seats: 2, enrolled: 2}
	svc, tx := newTestEnrollmentService(t, repo)
	tx.mock.ExpectBegin()
	tx.mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
	require.NoError(t, tx.mock.ExpectationsWereMet())
}

func TestEnrollmentServiceRejectsDuplicate(t *testing.T) {
	repo := &enrollmentRepoStub{seats: 5, exists: true}
	svc, tx := newTestEnrollmentService(t, repo)
	tx.mock.ExpectBegin()
	tx.mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceMissingCourse(t *testing.T) {
	repo := &enrollmentRepoStub{missing: true}
	svc, tx := newTestEnrollmentService(t, repo)
	tx.mock.ExpectBegin()
	tx.mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", CourseID: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceMissingStudent(t *testing.T) {
	svc, _ := newTestEnrollmentService(t, &enrollmentRepoStub{seats: 1})

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "ghost", CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceUnenrollMissing(t *testing.T) {
	svc, _ := newTestEnrollmentService(t, &enrollmentRepoStub{})

	err := svc.Unenroll(context.Background(), "s1", "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
