package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

const insertEnrollmentQuery = `INSERT INTO enrollments (id, student_id, course_id, enroll_date, created_at) VALUES (:id, :student_id, :course_id, :enroll_date, :created_at)`

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.course_id, e.enroll_date, e.created_at,
s.first_name AS student_first_name, s.last_name AS student_last_name, s.registration_number, c.name AS course_name
FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN courses c ON c.id = e.course_id`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListByCourse returns the enrollments of a course.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.course_id = $1 ORDER BY s.first_name ASC, s.last_name ASC`
	var items []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &items, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrollments by course: %w", err)
	}
	return items, nil
}

// ListByStudent returns the enrollments of a student.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 ORDER BY c.name ASC`
	var items []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments by student: %w", err)
	}
	return items, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, enroll_date, created_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// Exists reports whether the student is enrolled in the course.
func (r *EnrollmentRepository) Exists(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2)`
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &exists, query, studentID, courseID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

// LockSeats locks the course row and returns its seats and current enrollment
// count. Must run inside a transaction.
func (r *EnrollmentRepository) LockSeats(ctx context.Context, exec sqlx.ExtContext, courseID string) (int, int, error) {
	var seats int
	if err := sqlx.GetContext(ctx, exec, &seats, `SELECT seats FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("lock course seats: %w", err)
	}
	var enrolled int
	if err := sqlx.GetContext(ctx, exec, &enrolled, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1`, courseID); err != nil {
		return 0, 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return seats, enrolled, nil
}

// Create inserts an enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	if enrollment.EnrollDate.IsZero() {
		enrollment.EnrollDate = now.Truncate(24 * time.Hour)
	}
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), insertEnrollmentQuery, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// DeleteByPair removes the enrollment of a student in a course.
func (r *EnrollmentRepository) DeleteByPair(ctx context.Context, studentID, courseID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
