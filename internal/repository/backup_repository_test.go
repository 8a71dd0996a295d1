package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

func TestBackupRepositoryResetAllKeepsAdmins(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance")).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM payments")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM courses")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM payment_categories")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE user_id IN (SELECT id FROM users WHERE role <> 'admin')")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE role <> 'admin'")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	deleted, err := repo.Reset(context.Background(), tx, models.ResetAll)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, int64(3), deleted["users"])
	assert.Equal(t, int64(4), deleted["attendance"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupRepositoryResetCoursesDetachesPayments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET course_id = NULL")).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM courses")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	deleted, err := repo.Reset(context.Background(), tx, models.ResetCourses)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.Equal(t, int64(5), deleted["payments_detached"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupRepositoryResetUnknownScope(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	_, err := repo.Reset(context.Background(), db, models.ResetScope("users"))
	assert.Error(t, err)
}

func TestBackupRepositoryTryLock(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_xact_lock($1)")).
		WithArgs(RestoreLockKey).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(false))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	ok, err := repo.TryLock(context.Background(), tx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tx.Rollback())
}

func TestBackupRepositoryStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("(SELECT COUNT(*) FROM students) AS students")).
		WillReturnRows(sqlmock.NewRows([]string{"students", "courses", "enrollments", "attendance", "payments", "payment_categories", "users"}).
			AddRow(10, 3, 12, 40, 8, 2, 4))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Students)
	assert.Equal(t, 4, stats.Users)
}

func TestBackupRepositoryInsertStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBackupRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, repo.InsertStudent(context.Background(), tx, &models.Student{ID: "s1", FirstName: "A", Gender: "M", AdmissionDate: now, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}
