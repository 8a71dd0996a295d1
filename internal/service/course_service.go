package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/pkg/database"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

const courseNameConstraint = "courses_name_key"

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CourseDetail, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

// CourseRequest is the create and update payload for courses.
type CourseRequest struct {
	Name              string  `json:"name" validate:"required,max=120"`
	Description       *string `json:"description"`
	InstructorName    *string `json:"instructor_name" validate:"omitempty,max=120"`
	InstructorContact *string `json:"instructor_contact" validate:"omitempty,max=120"`
	Fee               float64 `json:"fee" validate:"gte=0"`
	Seats             int     `json:"seats" validate:"gte=0"`
}

// CourseService manages the course catalog.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns courses with seat figures.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns one course with student_count and available_seats.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course. Names are unique regardless of case.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.CourseDetail, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course payload")
	}
	name := req.Name
	if err := s.ensureUniqueName(ctx, name, ""); err != nil {
		return nil, err
	}
	course := &models.Course{
		Name:              name,
		Description:       normalizeOptional(req.Description),
		InstructorName:    normalizeOptional(req.InstructorName),
		InstructorContact: normalizeOptional(req.InstructorContact),
		Fee:               req.Fee,
		Seats:             req.Seats,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		if database.IsUniqueViolation(err, courseNameConstraint) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return &models.CourseDetail{Course: *course, AvailableSeats: course.Seats}, nil
}

// Update modifies a course.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.CourseDetail, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	name := req.Name
	if err := s.ensureUniqueName(ctx, name, id); err != nil {
		return nil, err
	}
	course := existing.Course
	course.Name = name
	course.Description = normalizeOptional(req.Description)
	course.InstructorName = normalizeOptional(req.InstructorName)
	course.InstructorContact = normalizeOptional(req.InstructorContact)
	course.Fee = req.Fee
	course.Seats = req.Seats
	if err := s.repo.Update(ctx, &course); err != nil {
		if database.IsUniqueViolation(err, courseNameConstraint) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return &models.CourseDetail{
		Course:         course,
		StudentCount:   existing.StudentCount,
		AvailableSeats: course.Seats - existing.StudentCount,
	}, nil
}

// Delete removes a course. Enrollments and attendance cascade.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.logger.Info("course deleted", zap.String("course_id", id))
	return nil
}

func (s *CourseService) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "course name already exists")
	}
	return nil
}
