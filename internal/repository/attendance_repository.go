package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

const attendanceCountColumns = `COUNT(a.id) FILTER (WHERE a.status = 'present') AS present,
COUNT(a.id) FILTER (WHERE a.status = 'absent') AS absent,
COUNT(a.id) FILTER (WHERE a.status = 'leave') AS leave,
COUNT(a.id) AS total`

// AttendanceRepository persists attendance marks and their aggregates.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert writes a mark, replacing any mark for the same student, course and date.
func (r *AttendanceRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance (id, student_id, course_id, attendance_date, status, notes, marked_by_user_id, created_at, updated_at)
VALUES (:id, :student_id, :course_id, :attendance_date, :status, :notes, :marked_by_user_id, :created_at, :updated_at)
ON CONFLICT (student_id, course_id, attendance_date)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, marked_by_user_id = EXCLUDED.marked_by_user_id, updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, record); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

func attendanceWhere(filter models.AttendanceFilter) whereBuilder {
	var where whereBuilder
	if filter.CourseID != "" {
		where.add("a.course_id = ?", filter.CourseID)
	}
	if filter.StudentID != "" {
		where.add("a.student_id = ?", filter.StudentID)
	}
	if filter.Status != nil {
		where.add("a.status = ?", *filter.Status)
	}
	if filter.DateFrom != nil {
		where.add("a.attendance_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where.add("a.attendance_date <= ?", *filter.DateTo)
	}
	return where
}

// List returns marks with student and course names.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	where := attendanceWhere(filter)
	base := `FROM attendance a
JOIN students s ON s.id = a.student_id
JOIN courses c ON c.id = a.course_id
WHERE 1=1` + where.clause()

	order := orderBy(filter.SortBy, filter.SortOrder, "attendance_date", map[string]string{
		"attendance_date": "a.attendance_date",
		"first_name":      "s.first_name",
		"course_name":     "c.name",
		"status":          "a.status",
	})
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.course_id, a.attendance_date, a.status, a.notes, a.marked_by_user_id, a.created_at, a.updated_at,
s.first_name AS student_first_name, s.last_name AS student_last_name, s.registration_number, c.name AS course_name
%s ORDER BY %s, s.first_name ASC LIMIT %d OFFSET %d`, base, order, limit, offset)
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// CourseReport returns per-student counts for every student enrolled in the course.
func (r *AttendanceRepository) CourseReport(ctx context.Context, courseID string, from, to *time.Time) ([]models.StudentAttendanceRow, error) {
	query := `SELECT s.id AS student_id, s.first_name, s.last_name, s.registration_number,
` + attendanceCountColumns + `
FROM enrollments e
JOIN students s ON s.id = e.student_id
LEFT JOIN attendance a ON a.student_id = e.student_id AND a.course_id = e.course_id
    AND ($2::date IS NULL OR a.attendance_date >= $2) AND ($3::date IS NULL OR a.attendance_date <= $3)
WHERE e.course_id = $1
GROUP BY s.id, s.first_name, s.last_name, s.registration_number
ORDER BY s.first_name ASC, s.last_name ASC`
	var rows []models.StudentAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID, from, to); err != nil {
		return nil, fmt.Errorf("course attendance report: %w", err)
	}
	for i := range rows {
		rows[i].ComputePercent()
	}
	return rows, nil
}

// StudentReport returns per-course counts for a student.
func (r *AttendanceRepository) StudentReport(ctx context.Context, studentID string, from, to *time.Time) ([]models.CourseAttendanceRow, error) {
	query := `SELECT c.id AS course_id, c.name AS course_name,
` + attendanceCountColumns + `
FROM enrollments e
JOIN courses c ON c.id = e.course_id
LEFT JOIN attendance a ON a.student_id = e.student_id AND a.course_id = e.course_id
    AND ($2::date IS NULL OR a.attendance_date >= $2) AND ($3::date IS NULL OR a.attendance_date <= $3)
WHERE e.student_id = $1
GROUP BY c.id, c.name
ORDER BY c.name ASC`
	var rows []models.CourseAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("student attendance report: %w", err)
	}
	for i := range rows {
		rows[i].ComputePercent()
	}
	return rows, nil
}

// SummaryByCourse aggregates marks between from and to for every course with marks.
func (r *AttendanceRepository) SummaryByCourse(ctx context.Context, from, to time.Time) ([]models.CourseAttendanceRow, error) {
	query := `SELECT c.id AS course_id, c.name AS course_name,
` + attendanceCountColumns + `
FROM attendance a
JOIN courses c ON c.id = a.course_id
WHERE a.attendance_date >= $1 AND a.attendance_date <= $2
GROUP BY c.id, c.name
ORDER BY c.name ASC`
	var rows []models.CourseAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	for i := range rows {
		rows[i].ComputePercent()
	}
	return rows, nil
}
