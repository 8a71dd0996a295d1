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

func TestAttendanceRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (student_id, course_id, attendance_date)")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.Attendance{StudentID: "s1", CourseID: "c1", AttendanceDate: time.Now(), Status: models.AttendanceStatusPresent}
	require.NoError(t, repo.Upsert(context.Background(), nil, record))
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	status := models.AttendanceStatusAbsent
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "attendance_date", "status", "notes", "marked_by_user_id", "created_at", "updated_at",
		"student_first_name", "student_last_name", "registration_number", "course_name"}).
		AddRow("a1", "s1", "c1", from, "absent", nil, nil, now, now, "Ann", "Lee", nil, "Math")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND a.course_id = $1 AND a.status = $2 AND a.attendance_date >= $3 ORDER BY a.attendance_date DESC")).
		WithArgs("c1", status, from).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance a")).
		WithArgs("c1", status, from).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{CourseID: "c1", Status: &status, DateFrom: &from})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AttendanceStatusAbsent, records[0].Status)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCourseReportComputesPercent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.course_id = $1")).
		WithArgs("c1", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "first_name", "last_name", "registration_number", "present", "absent", "leave", "total"}).
			AddRow("s1", "Ann", "Lee", nil, 3, 1, 0, 4).
			AddRow("s2", "Bob", "Ray", nil, 0, 0, 0, 0))

	rows, err := repo.CourseReport(context.Background(), "c1", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 75.0, rows[0].Percent)
	assert.Equal(t, 0.0, rows[1].Percent)
}

func TestAttendanceRepositorySummaryByCourse(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.attendance_date >= $1 AND a.attendance_date <= $2")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "course_name", "present", "absent", "leave", "total"}).
			AddRow("c1", "Math", 1, 0, 1, 2))

	rows, err := repo.SummaryByCourse(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 50.0, rows[0].Percent)
}
