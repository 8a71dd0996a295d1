package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

const studentColumns = `id, registration_number, first_name, last_name, gender, date_of_birth, admission_type, category, status,
admission_date, phone, email, address, city, guardian_name, guardian_phone, guardian_relation, notes, created_at, updated_at`

const insertStudentQuery = `INSERT INTO students (id, registration_number, first_name, last_name, gender, date_of_birth, admission_type,
category, status, admission_date, phone, email, address, city, guardian_name, guardian_phone, guardian_relation, notes, created_at, updated_at)
VALUES (:id, :registration_number, :first_name, :last_name, :gender, :date_of_birth, :admission_type, :category, :status,
:admission_date, :phone, :email, :address, :city, :guardian_name, :guardian_phone, :guardian_relation, :notes, :created_at, :updated_at)`

// StudentRepository handles persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new repository instance.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students filtered and paginated.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var where whereBuilder
	if filter.Search != "" {
		where.add("(LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(COALESCE(registration_number, '')) LIKE ? OR COALESCE(phone, '') LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.Category != "" {
		where.add("category = ?", filter.Category)
	}
	if filter.Gender != "" {
		where.add("gender = ?", filter.Gender)
	}
	if filter.AdmissionType != "" {
		where.add("admission_type = ?", filter.AdmissionType)
	}
	baseQuery := "FROM students WHERE 1=1" + where.clause()

	order := orderBy(filter.SortBy, filter.SortOrder, "created_at", map[string]string{
		"first_name":          "first_name",
		"last_name":           "last_name",
		"registration_number": "registration_number",
		"admission_date":      "admission_date",
		"created_at":          "created_at",
	})
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", studentColumns, baseQuery, order, limit, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, listQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListByCourse returns students enrolled in a course ordered by name.
func (r *StudentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Student, error) {
	query := `SELECT ` + prefixColumns("s", studentColumns) + ` FROM students s
JOIN enrollments e ON e.student_id = s.id
WHERE e.course_id = $1
ORDER BY s.first_name ASC, s.last_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list students by course: %w", err)
	}
	return students, nil
}

// FindByID fetches a student.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ExistsByRegistrationNumber checks whether a registration number is taken.
func (r *StudentRepository) ExistsByRegistrationNumber(ctx context.Context, number string, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM students WHERE registration_number = $1`
	args := []interface{}{number}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += `)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check registration number: %w", err)
	}
	return exists, nil
}

// Create inserts a new student using exec when given, the pool otherwise.
func (r *StudentRepository) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), insertStudentQuery, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET registration_number = :registration_number, first_name = :first_name, last_name = :last_name,
gender = :gender, date_of_birth = :date_of_birth, admission_type = :admission_type, category = :category, status = :status,
admission_date = :admission_date, phone = :phone, email = :email, address = :address, city = :city,
guardian_name = :guardian_name, guardian_phone = :guardian_phone, guardian_relation = :guardian_relation, notes = :notes,
updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student. Enrollments, attendance and payments cascade.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
