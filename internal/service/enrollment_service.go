package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/pkg/database"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

const enrollmentPairConstraint = "enrollments_student_course_key"

type enrollmentRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	Exists(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (bool, error)
	LockSeats(ctx context.Context, exec sqlx.ExtContext, courseID string) (int, int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	DeleteByPair(ctx context.Context, studentID, courseID string) error
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// EnrollStudentRequest describes enrollment creation request.
type EnrollStudentRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	CourseID   string `json:"course_id" validate:"required"`
	EnrollDate string `json:"enroll_date" validate:"omitempty,datetime=2006-01-02"`
}

// EnrollmentService orchestrates enrollment workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  enrollmentStudentReader
	courses   studentCourseReader
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students enrollmentStudentReader, courses studentCourseReader, tx txProvider, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, courses: courses, tx: tx, validator: validate, logger: logger}
}

// ListByCourse returns the enrollments of a course.
func (s *EnrollmentService) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	if err := s.ensureCourse(ctx, courseID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return items, nil
}

// ListByStudent returns the enrollments of a student.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	if err := s.ensureStudent(ctx, studentID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return items, nil
}

// Enroll registers a student in a course. The course row is locked while the
// seat count is checked so concurrent enrollments cannot overfill it.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (result *models.Enrollment, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid enrollment payload")
	}
	if err := s.ensureStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}
	enrollDate, err := parseOptionalDate(req.EnrollDate, "enroll_date")
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	seats, enrolled, err := s.repo.LockSeats(ctx, tx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course seats")
	}
	exists, err := s.repo.Exists(ctx, tx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		err = appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course")
		return nil, err
	}
	if seats-enrolled <= 0 {
		err = appErrors.Clone(appErrors.ErrConflict, "course is full")
		return nil, err
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, CourseID: req.CourseID}
	if enrollDate != nil {
		enrollment.EnrollDate = *enrollDate
	}
	if err = s.repo.Create(ctx, tx, enrollment); err != nil {
		if database.IsUniqueViolation(err, enrollmentPairConstraint) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment")
	}
	return enrollment, nil
}

// Unenroll removes a student from a course.
func (s *EnrollmentService) Unenroll(ctx context.Context, studentID, courseID string) error {
	if err := s.repo.DeleteByPair(ctx, studentID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

func (s *EnrollmentService) ensureStudent(ctx context.Context, id string) error {
	if s.students == nil {
		return nil
	}
	if _, err := s.students.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return nil
}

func (s *EnrollmentService) ensureCourse(ctx context.Context, id string) error {
	if s.courses == nil {
		return nil
	}
	if _, err := s.courses.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return nil
}
