package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

// RestoreLockKey is the advisory lock shared by restore and reset.
const RestoreLockKey int64 = 0x5ac4_0b4c

const insertAttendanceQuery = `INSERT INTO attendance (id, student_id, course_id, attendance_date, status, notes, marked_by_user_id, created_at, updated_at)
VALUES (:id, :student_id, :course_id, :attendance_date, :status, :notes, :marked_by_user_id, :created_at, :updated_at)`

// BackupRepository reads and rewrites the whole dataset. Every method takes
// the executor so callers control the surrounding transaction.
type BackupRepository struct {
	db *sqlx.DB
}

// NewBackupRepository constructs the repository.
func NewBackupRepository(db *sqlx.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

// TryLock takes the restore advisory lock for the current transaction. It
// returns false when another restore or reset holds it.
func (r *BackupRepository) TryLock(ctx context.Context, tx sqlx.ExtContext) (bool, error) {
	var ok bool
	if err := sqlx.GetContext(ctx, tx, &ok, `SELECT pg_try_advisory_xact_lock($1)`, RestoreLockKey); err != nil {
		return false, fmt.Errorf("acquire restore lock: %w", err)
	}
	return ok, nil
}

// Students returns every student in creation order.
func (r *BackupRepository) Students(ctx context.Context, exec sqlx.ExtContext) ([]models.Student, error) {
	var rows []models.Student
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &rows, `SELECT `+studentColumns+` FROM students ORDER BY created_at ASC, id ASC`); err != nil {
		return nil, fmt.Errorf("export students: %w", err)
	}
	return rows, nil
}

// Courses returns every course in creation order.
func (r *BackupRepository) Courses(ctx context.Context, exec sqlx.ExtContext) ([]models.Course, error) {
	const query = `SELECT id, name, description, instructor_name, instructor_contact, fee, seats, created_at, updated_at FROM courses ORDER BY created_at ASC, id ASC`
	var rows []models.Course
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &rows, query); err != nil {
		return nil, fmt.Errorf("export courses: %w", err)
	}
	return rows, nil
}

// Enrollments returns every enrollment.
func (r *BackupRepository) Enrollments(ctx context.Context, exec sqlx.ExtContext) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, enroll_date, created_at FROM enrollments ORDER BY created_at ASC, id ASC`
	var rows []models.Enrollment
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &rows, query); err != nil {
		return nil, fmt.Errorf("export enrollments: %w", err)
	}
	return rows, nil
}

// Payments returns every payment with joined names for tabular exports.
func (r *BackupRepository) Payments(ctx context.Context, exec sqlx.ExtContext) ([]models.PaymentDetail, error) {
	query := paymentDetailSelect + " " + paymentJoins + ` ORDER BY p.created_at ASC, p.id ASC`
	var rows []models.PaymentDetail
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &rows, query); err != nil {
		return nil, fmt.Errorf("export payments: %w", err)
	}
	for i := range rows {
		rows[i].Derive()
	}
	return rows, nil
}

// Attendance returns every attendance mark with joined names.
func (r *BackupRepository) Attendance(ctx context.Context, exec sqlx.ExtContext) ([]models.AttendanceRecord, error) {
	const query = `SELECT a.id, a.student_id, a.course_id, a.attendance_date, a.status, a.notes, a.marked_by_user_id, a.created_at, a.updated_at,
s.first_name AS student_first_name, s.last_name AS student_last_name, s.registration_number, c.name AS course_name
FROM attendance a
JOIN students s ON s.id = a.student_id
JOIN courses c ON c.id = a.course_id
ORDER BY a.attendance_date ASC, a.created_at ASC, a.id ASC`
	var rows []models.AttendanceRecord
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &rows, query); err != nil {
		return nil, fmt.Errorf("export attendance: %w", err)
	}
	return rows, nil
}

// PaymentCategories returns every category.
func (r *BackupRepository) PaymentCategories(ctx context.Context, exec sqlx.ExtContext) ([]models.PaymentCategory, error) {
	var rows []models.PaymentCategory
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &rows, `SELECT `+paymentCategoryColumns+` FROM payment_categories ORDER BY created_at ASC, id ASC`); err != nil {
		return nil, fmt.Errorf("export payment categories: %w", err)
	}
	return rows, nil
}

// InsertPaymentCategory writes an imported category.
func (r *BackupRepository) InsertPaymentCategory(ctx context.Context, exec sqlx.ExtContext, category *models.PaymentCategory) error {
	if _, err := sqlx.NamedExecContext(ctx, exec, insertPaymentCategoryQuery, category); err != nil {
		return fmt.Errorf("import payment category: %w", err)
	}
	return nil
}

// InsertCourse writes an imported course.
func (r *BackupRepository) InsertCourse(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	if _, err := sqlx.NamedExecContext(ctx, exec, insertCourseQuery, course); err != nil {
		return fmt.Errorf("import course: %w", err)
	}
	return nil
}

// InsertStudent writes an imported student.
func (r *BackupRepository) InsertStudent(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if _, err := sqlx.NamedExecContext(ctx, exec, insertStudentQuery, student); err != nil {
		return fmt.Errorf("import student: %w", err)
	}
	return nil
}

// InsertEnrollment writes an imported enrollment.
func (r *BackupRepository) InsertEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if _, err := sqlx.NamedExecContext(ctx, exec, insertEnrollmentQuery, enrollment); err != nil {
		return fmt.Errorf("import enrollment: %w", err)
	}
	return nil
}

// InsertPayment writes an imported payment.
func (r *BackupRepository) InsertPayment(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	if _, err := sqlx.NamedExecContext(ctx, exec, insertPaymentQuery, payment); err != nil {
		return fmt.Errorf("import payment: %w", err)
	}
	return nil
}

// InsertAttendance writes an imported attendance mark.
func (r *BackupRepository) InsertAttendance(ctx context.Context, exec sqlx.ExtContext, record *models.Attendance) error {
	if _, err := sqlx.NamedExecContext(ctx, exec, insertAttendanceQuery, record); err != nil {
		return fmt.Errorf("import attendance: %w", err)
	}
	return nil
}

type resetStep struct {
	label string
	query string
}

var (
	stepAttendance    = resetStep{"attendance", `DELETE FROM attendance`}
	stepPayments      = resetStep{"payments", `DELETE FROM payments`}
	stepEnrollments   = resetStep{"enrollments", `DELETE FROM enrollments`}
	stepDetachCourses = resetStep{"payments_detached", `UPDATE payments SET course_id = NULL WHERE course_id IS NOT NULL`}
	stepCourses       = resetStep{"courses", `DELETE FROM courses`}
	stepStudents      = resetStep{"students", `DELETE FROM students`}
	stepCategories    = resetStep{"payment_categories", `DELETE FROM payment_categories`}
	stepTokens        = resetStep{"refresh_tokens", `DELETE FROM refresh_tokens WHERE user_id IN (SELECT id FROM users WHERE role <> 'admin')`}
	stepUsers         = resetStep{"users", `DELETE FROM users WHERE role <> 'admin'`}
)

// resetPlan lists statements per scope, children first.
var resetPlan = map[models.ResetScope][]resetStep{
	models.ResetPayments:          {stepPayments},
	models.ResetAttendance:        {stepAttendance},
	models.ResetEnrollments:       {stepEnrollments},
	models.ResetCourses:           {stepAttendance, stepEnrollments, stepDetachCourses, stepCourses},
	models.ResetStudents:          {stepAttendance, stepPayments, stepEnrollments, stepStudents},
	models.ResetPaymentCategories: {stepPayments, stepCategories},
	models.ResetAll:               {stepAttendance, stepPayments, stepEnrollments, stepCourses, stepCategories, stepStudents, stepTokens, stepUsers},
}

// Reset clears the tables of scope and returns rows affected per statement.
func (r *BackupRepository) Reset(ctx context.Context, exec sqlx.ExtContext, scope models.ResetScope) (map[string]int64, error) {
	steps, ok := resetPlan[scope]
	if !ok {
		return nil, fmt.Errorf("unknown reset scope %q", scope)
	}
	deleted := make(map[string]int64, len(steps))
	for _, step := range steps {
		res, err := exec.ExecContext(ctx, step.query)
		if err != nil {
			return nil, fmt.Errorf("reset %s: %w", step.label, err)
		}
		n, _ := res.RowsAffected()
		deleted[step.label] = n
	}
	return deleted, nil
}

// Stats counts rows per table.
func (r *BackupRepository) Stats(ctx context.Context) (*models.BackupStats, error) {
	const query = `SELECT
(SELECT COUNT(*) FROM students) AS students,
(SELECT COUNT(*) FROM courses) AS courses,
(SELECT COUNT(*) FROM enrollments) AS enrollments,
(SELECT COUNT(*) FROM attendance) AS attendance,
(SELECT COUNT(*) FROM payments) AS payments,
(SELECT COUNT(*) FROM payment_categories) AS payment_categories,
(SELECT COUNT(*) FROM users) AS users`
	var stats models.BackupStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("backup stats: %w", err)
	}
	return &stats, nil
}
