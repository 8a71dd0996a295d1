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

const insertCourseQuery = `INSERT INTO courses (id, name, description, instructor_name, instructor_contact, fee, seats, created_at, updated_at)
VALUES (:id, :name, :description, :instructor_name, :instructor_contact, :fee, :seats, :created_at, :updated_at)`

const courseDetailSelect = `SELECT c.id, c.name, c.description, c.instructor_name, c.instructor_contact, c.fee, c.seats, c.created_at, c.updated_at,
COUNT(e.id) AS student_count, c.seats - COUNT(e.id) AS available_seats
FROM courses c LEFT JOIN enrollments e ON e.course_id = c.id`

// CourseRepository persists the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses with derived seat counts.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	var where whereBuilder
	if filter.Search != "" {
		where.add("(LOWER(c.name) LIKE ? OR LOWER(COALESCE(c.instructor_name, '')) LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}
	order := orderBy(filter.SortBy, filter.SortOrder, "name", map[string]string{
		"name":       "c.name",
		"fee":        "c.fee",
		"created_at": "c.created_at",
	})
	if filter.SortBy == "" && filter.SortOrder == "" {
		order = "c.name ASC"
	}
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s WHERE 1=1%s GROUP BY c.id ORDER BY %s LIMIT %d OFFSET %d", courseDetailSelect, where.clause(), order, limit, offset)
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM courses c WHERE 1=1"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course with seat information.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	query := courseDetailSelect + ` WHERE c.id = $1 GROUP BY c.id`
	var course models.CourseDetail
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// ExistsByName reports whether another course already uses name.
func (r *CourseRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM courses WHERE LOWER(name) = LOWER($1)`
	args := []interface{}{name}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += `)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check course name: %w", err)
	}
	return exists, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, insertCourseQuery, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, description = :description, instructor_name = :instructor_name,
instructor_contact = :instructor_contact, fee = :fee, seats = :seats, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course. Enrollments and attendance cascade, payments keep
// the row with a null course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
