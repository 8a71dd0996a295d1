package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/pkg/database"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

const (
	registrationNumberConstraint = "students_registration_number_key"
	requestDateLayout            = "2006-01-02"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByRegistrationNumber(ctx context.Context, number string, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type studentNumberAllocator interface {
	Next(ctx context.Context, exec sqlx.ExtContext) (string, error)
	Resync(ctx context.Context, exec sqlx.ExtContext) error
}

type studentPaymentLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.PaymentDetail, error)
}

type studentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseDetail, error)
}

// StudentRequest is the create and update payload for students.
type StudentRequest struct {
	RegistrationNumber *string `json:"registration_number" validate:"omitempty,max=32"`
	FirstName          string  `json:"first_name" validate:"required,max=80"`
	LastName           string  `json:"last_name" validate:"max=80"`
	Gender             string  `json:"gender" validate:"required,oneof=M F O"`
	DateOfBirth        string  `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	AdmissionType      string  `json:"admission_type" validate:"omitempty,oneof=day_scholar hostel"`
	Category           string  `json:"category" validate:"omitempty,oneof=regular needy orphan sponsored staff_child other"`
	Status             string  `json:"status" validate:"omitempty,oneof=active inactive graduated leave"`
	AdmissionDate      string  `json:"admission_date" validate:"omitempty,datetime=2006-01-02"`
	Phone              *string `json:"phone" validate:"omitempty,max=20"`
	Email              *string `json:"email" validate:"omitempty,email,max=120"`
	Address            *string `json:"address"`
	City               *string `json:"city" validate:"omitempty,max=80"`
	GuardianName       *string `json:"guardian_name" validate:"omitempty,max=100"`
	GuardianPhone      *string `json:"guardian_phone" validate:"omitempty,max=20"`
	GuardianRelation   *string `json:"guardian_relation" validate:"omitempty,max=40"`
	Notes              *string `json:"notes"`
}

// trimmed strips the name fields so blank names fail the required rule.
func (r StudentRequest) trimmed() StudentRequest {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.RegistrationNumber != nil {
		number := strings.TrimSpace(*r.RegistrationNumber)
		r.RegistrationNumber = &number
	}
	return r
}

// StudentServiceConfig tunes allocation retries.
type StudentServiceConfig struct {
	MaxRetries int
}

// StudentServiceParams groups constructor dependencies.
type StudentServiceParams struct {
	Repo      studentRepository
	Tx        txProvider
	Allocator studentNumberAllocator
	Payments  studentPaymentLister
	Courses   studentCourseReader
	Audit     auditLogger
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    StudentServiceConfig
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	tx        txProvider
	allocator studentNumberAllocator
	payments  studentPaymentLister
	courses   studentCourseReader
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       StudentServiceConfig
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(params StudentServiceParams) *StudentService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &StudentService{
		repo:      params.Repo,
		tx:        params.Tx,
		allocator: params.Allocator,
		payments:  params.Payments,
		courses:   params.Courses,
		audit:     params.Audit,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ListByCourse returns students enrolled in a course.
func (s *StudentService) ListByCourse(ctx context.Context, courseID string) ([]models.Student, error) {
	if s.courses != nil {
		if _, err := s.courses.FindByID(ctx, courseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
	}
	students, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course students")
	}
	return students, nil
}

// Get returns a student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Dues returns a student's payments with totals.
func (s *StudentService) Dues(ctx context.Context, id string) (*models.StudentDues, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student payments")
	}
	dues := &models.StudentDues{Student: *student, Payments: payments}
	if dues.Payments == nil {
		dues.Payments = []models.PaymentDetail{}
	}
	for _, p := range payments {
		dues.TotalDue += p.AmountDue
		dues.TotalPaid += p.AmountPaid
	}
	dues.Remaining = dues.TotalDue - dues.TotalPaid
	return dues, nil
}

// Create registers a new student. Without an explicit registration number one
// is allocated in the same transaction, retrying on collisions.
func (s *StudentService) Create(ctx context.Context, req StudentRequest) (*models.Student, error) {
	req = req.trimmed()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid student payload")
	}
	student, err := s.buildStudent(req, nil)
	if err != nil {
		return nil, err
	}

	manual := student.RegistrationNumber != nil
	if manual {
		exists, err := s.repo.ExistsByRegistrationNumber(ctx, *student.RegistrationNumber, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate registration number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "registration number already used")
		}
		if err := s.createWithNumber(ctx, student); err != nil {
			if database.IsUniqueViolation(err, registrationNumberConstraint) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "registration number already used")
			}
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return nil, appErr
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
		}
		return student, nil
	}

	for attempt := 0; ; attempt++ {
		candidate := *student
		err := s.createWithAllocation(ctx, &candidate, attempt > 0)
		if err == nil {
			s.metrics.RecordAllocation("ok")
			s.logger.Info("student created", zap.String("student_id", candidate.ID), zap.String("registration_number", *candidate.RegistrationNumber), zap.Int("attempt", attempt+1))
			return &candidate, nil
		}
		if !database.IsUniqueViolation(err, registrationNumberConstraint) {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return nil, appErr
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
		}
		if attempt >= s.cfg.MaxRetries {
			s.metrics.RecordAllocation("failed")
			s.logger.Error("registration allocation exhausted retries", zap.Int("attempts", attempt+1), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrAllocationFailed.Code, appErrors.ErrAllocationFailed.Status, appErrors.ErrAllocationFailed.Message)
		}
		s.metrics.RecordAllocation("retry")
		s.logger.Warn("registration number collision, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

// createWithNumber inserts a student carrying an explicit number and raises
// the counter past it in the same transaction.
func (s *StudentService) createWithNumber(ctx context.Context, student *models.Student) (err error) {
	if s.tx == nil || s.allocator == nil {
		return appErrors.Clone(appErrors.ErrInternal, "registration allocator unavailable")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.Create(ctx, tx, student); err != nil {
		return err
	}
	if err = s.allocator.Resync(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *StudentService) createWithAllocation(ctx context.Context, student *models.Student, resync bool) (err error) {
	if s.tx == nil || s.allocator == nil {
		return appErrors.Clone(appErrors.ErrInternal, "registration allocator unavailable")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if resync {
		if err = s.allocator.Resync(ctx, tx); err != nil {
			return err
		}
	}
	number, err := s.allocator.Next(ctx, tx)
	if err != nil {
		return err
	}
	student.RegistrationNumber = &number
	if err = s.repo.Create(ctx, tx, student); err != nil {
		return err
	}
	return tx.Commit()
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req StudentRequest) (*models.Student, error) {
	req = req.trimmed()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid student payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	student, err := s.buildStudent(req, existing)
	if err != nil {
		return nil, err
	}
	if student.RegistrationNumber != nil && !sameString(student.RegistrationNumber, existing.RegistrationNumber) {
		exists, err := s.repo.ExistsByRegistrationNumber(ctx, *student.RegistrationNumber, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate registration number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "registration number already used")
		}
	}
	if err := s.repo.Update(ctx, student); err != nil {
		if database.IsUniqueViolation(err, registrationNumberConstraint) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "registration number already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a student together with enrollments, attendance and payments.
func (s *StudentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if s.audit != nil {
		log := models.NewAuditLog(models.AuditActionStudentDelete, "student").
			ByClaims(actor).On(id).FromSystem("student-service").Change(existing, nil)
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("failed to record student audit", zap.Error(err))
		}
	}
	return nil
}

func (s *StudentService) buildStudent(req StudentRequest, base *models.Student) (*models.Student, error) {
	student := &models.Student{
		AdmissionType: models.AdmissionDayScholar,
		Category:      "regular",
		Status:        models.StudentStatusActive,
		AdmissionDate: truncateDay(s.now()),
	}
	if base != nil {
		copied := *base
		student = &copied
	}
	student.FirstName = strings.TrimSpace(req.FirstName)
	student.LastName = strings.TrimSpace(req.LastName)
	student.Gender = req.Gender
	if req.AdmissionType != "" {
		student.AdmissionType = req.AdmissionType
	}
	if req.Category != "" {
		student.Category = req.Category
	}
	if req.Status != "" {
		student.Status = models.StudentStatus(req.Status)
	}
	if req.RegistrationNumber != nil {
		student.RegistrationNumber = normalizeOptional(req.RegistrationNumber)
	}

	dob, err := parseOptionalDate(req.DateOfBirth, "date_of_birth")
	if err != nil {
		return nil, err
	}
	student.DateOfBirth = dob
	if req.AdmissionDate != "" {
		admitted, err := parseOptionalDate(req.AdmissionDate, "admission_date")
		if err != nil {
			return nil, err
		}
		student.AdmissionDate = *admitted
	}

	student.Phone = normalizeOptional(req.Phone)
	student.Email = normalizeOptional(req.Email)
	student.Address = normalizeOptional(req.Address)
	student.City = normalizeOptional(req.City)
	student.GuardianName = normalizeOptional(req.GuardianName)
	student.GuardianPhone = normalizeOptional(req.GuardianPhone)
	student.GuardianRelation = normalizeOptional(req.GuardianRelation)
	student.Notes = normalizeOptional(req.Notes)
	return student, nil
}
