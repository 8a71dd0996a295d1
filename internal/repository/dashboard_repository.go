package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-admin-api/internal/dto"
	"github.com/noah-isme/academy-admin-api/internal/models"
)

// DashboardRepository runs the read-only aggregates behind the dashboard.
// Methods are independent so they can run concurrently on the pool.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

func (r *DashboardRepository) count(ctx context.Context, label, query string, args ...interface{}) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", label, err)
	}
	return total, nil
}

// CountStudents returns the number of students.
func (r *DashboardRepository) CountStudents(ctx context.Context) (int, error) {
	return r.count(ctx, "students", `SELECT COUNT(*) FROM students`)
}

// CountCourses returns the number of courses.
func (r *DashboardRepository) CountCourses(ctx context.Context) (int, error) {
	return r.count(ctx, "courses", `SELECT COUNT(*) FROM courses`)
}

// CountAdmissionsSince counts students admitted on or after since.
func (r *DashboardRepository) CountAdmissionsSince(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, "admissions", `SELECT COUNT(*) FROM students WHERE admission_date >= $1`, since)
}

// StudentsByGender groups students by gender.
func (r *DashboardRepository) StudentsByGender(ctx context.Context) ([]dto.LabelCount, error) {
	var rows []dto.LabelCount
	if err := r.db.SelectContext(ctx, &rows, `SELECT gender AS label, COUNT(*) AS count FROM students GROUP BY gender ORDER BY gender`); err != nil {
		return nil, fmt.Errorf("students by gender: %w", err)
	}
	return rows, nil
}

// StudentsByAdmissionType groups students by admission type.
func (r *DashboardRepository) StudentsByAdmissionType(ctx context.Context) ([]dto.LabelCount, error) {
	var rows []dto.LabelCount
	if err := r.db.SelectContext(ctx, &rows, `SELECT admission_type AS label, COUNT(*) AS count FROM students GROUP BY admission_type ORDER BY admission_type`); err != nil {
		return nil, fmt.Errorf("students by admission type: %w", err)
	}
	return rows, nil
}

// GenderByAdmission cross-tabulates gender and admission type.
func (r *DashboardRepository) GenderByAdmission(ctx context.Context) ([]dto.GenderAdmission, error) {
	var rows []dto.GenderAdmission
	const query = `SELECT gender, admission_type, COUNT(*) AS count FROM students GROUP BY gender, admission_type ORDER BY gender, admission_type`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("gender by admission type: %w", err)
	}
	return rows, nil
}

// FeesCollected sums amount_paid for payments dated in [from, to).
func (r *DashboardRepository) FeesCollected(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	const query = `SELECT COALESCE(SUM(amount_paid), 0) FROM payments WHERE payment_date >= $1 AND payment_date < $2`
	if err := r.db.GetContext(ctx, &total, query, from, to); err != nil {
		return 0, fmt.Errorf("fees collected: %w", err)
	}
	return total, nil
}

// FeesPending returns total due minus total paid across all payments.
func (r *DashboardRepository) FeesPending(ctx context.Context) (float64, error) {
	var total float64
	if err := r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(amount_due), 0) - COALESCE(SUM(amount_paid), 0) FROM payments`); err != nil {
		return 0, fmt.Errorf("fees pending: %w", err)
	}
	return total, nil
}

// AttendanceOn aggregates marks recorded for day.
func (r *DashboardRepository) AttendanceOn(ctx context.Context, day time.Time) (models.AttendanceCounts, error) {
	var counts models.AttendanceCounts
	const query = `SELECT COUNT(a.id) FILTER (WHERE a.status = 'present') AS present,
COUNT(a.id) FILTER (WHERE a.status = 'absent') AS absent,
COUNT(a.id) FILTER (WHERE a.status = 'leave') AS leave,
COUNT(a.id) AS total
FROM attendance a WHERE a.attendance_date = $1`
	if err := r.db.GetContext(ctx, &counts, query, day); err != nil {
		return counts, fmt.Errorf("attendance on day: %w", err)
	}
	counts.ComputePercent()
	return counts, nil
}

// StudentsPerCourse counts enrollments per course.
func (r *DashboardRepository) StudentsPerCourse(ctx context.Context) ([]dto.CourseEnrollment, error) {
	var rows []dto.CourseEnrollment
	const query = `SELECT c.id AS course_id, c.name AS course_name, COUNT(e.id) AS students
FROM courses c LEFT JOIN enrollments e ON e.course_id = c.id
GROUP BY c.id, c.name ORDER BY students DESC, c.name ASC`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("students per course: %w", err)
	}
	return rows, nil
}

// MonthlyCollected sums amount_paid per month starting at from. Months without
// payments are absent.
func (r *DashboardRepository) MonthlyCollected(ctx context.Context, from time.Time) ([]dto.MonthlyAmount, error) {
	var rows []dto.MonthlyAmount
	const query = `SELECT to_char(date_trunc('month', payment_date), 'YYYY-MM') AS month, COALESCE(SUM(amount_paid), 0) AS collected
FROM payments WHERE payment_date >= $1
GROUP BY 1 ORDER BY 1`
	if err := r.db.SelectContext(ctx, &rows, query, from); err != nil {
		return nil, fmt.Errorf("monthly collected: %w", err)
	}
	return rows, nil
}
