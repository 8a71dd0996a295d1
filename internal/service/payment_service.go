package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type paymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, models.PaymentTotals, error)
	FindByID(ctx context.Context, id string) (*models.PaymentDetail, error)
	Create(ctx context.Context, payment *models.Payment) error
	Update(ctx context.Context, payment *models.Payment) error
	Delete(ctx context.Context, id string) error
	TotalsByStatus(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentGroupTotal, error)
	TotalsByCategory(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentGroupTotal, error)
}

type paymentCategoryReader interface {
	FindByID(ctx context.Context, id string) (*models.PaymentCategory, error)
}

// PaymentRequest is the record/update payload. Overpayment is accepted.
type PaymentRequest struct {
	StudentID     string  `json:"student_id" validate:"required"`
	CategoryID    string  `json:"category_id" validate:"required"`
	CourseID      *string `json:"course_id"`
	AmountDue     float64 `json:"amount_due" validate:"gte=0"`
	AmountPaid    float64 `json:"amount_paid" validate:"gte=0"`
	SecurityFees  float64 `json:"security_fees" validate:"gte=0"`
	AdmissionFees float64 `json:"admission_fees" validate:"gte=0"`
	Status        string  `json:"status" validate:"omitempty,oneof=pending partial_paid paid"`
	Method        string  `json:"method" validate:"omitempty,oneof=cash cheque bank_transfer online other"`
	ReferenceNo   *string `json:"reference_no" validate:"omitempty,max=100"`
	PaymentDate   string  `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Notes         *string `json:"notes"`
}

// MarkPaymentStatusRequest changes the status and optionally the paid amount.
type MarkPaymentStatusRequest struct {
	Status     string   `json:"status" validate:"required,oneof=pending partial_paid paid"`
	AmountPaid *float64 `json:"amount_paid" validate:"omitempty,gte=0"`
}

// PaymentListResult is a page of payments with totals over the whole filter.
type PaymentListResult struct {
	Items      []models.PaymentDetail `json:"items"`
	Totals     models.PaymentTotals   `json:"totals"`
	Pending    float64                `json:"pending"`
	Pagination *models.Pagination     `json:"pagination"`
}

// PaymentService records and reports fee payments.
type PaymentService struct {
	repo       paymentRepository
	students   enrollmentStudentReader
	categories paymentCategoryReader
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// PaymentServiceParams groups constructor dependencies.
type PaymentServiceParams struct {
	Repo       paymentRepository
	Students   enrollmentStudentReader
	Categories paymentCategoryReader
	Audit      auditLogger
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// NewPaymentService constructs the payment service.
func NewPaymentService(params PaymentServiceParams) *PaymentService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:       params.Repo,
		students:   params.Students,
		categories: params.Categories,
		audit:      params.Audit,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// List returns a filtered page of payments.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) (*PaymentListResult, error) {
	if filter.Status != "" && !models.PaymentStatus(filter.Status).Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid payment status")
	}
	items, totals, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return &PaymentListResult{
		Items:      items,
		Totals:     totals,
		Pending:    totals.TotalDue - totals.TotalPaid,
		Pagination: paginationFor(filter.Page, filter.PageSize, totals.Count),
	}, nil
}

// Get returns one payment with derived amounts.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.PaymentDetail, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// Record stores a new payment.
func (s *PaymentService) Record(ctx context.Context, req PaymentRequest, actor *models.JWTClaims) (*models.PaymentDetail, error) {
	payment, err := s.build(ctx, req, &models.Payment{})
	if err != nil {
		return nil, err
	}
	payment.RecordedByUserID = userIDPtr(actor)
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	s.logger.Info("payment recorded", zap.String("payment_id", payment.ID), zap.String("student_id", payment.StudentID), zap.Float64("amount_paid", payment.AmountPaid))
	return s.Get(ctx, payment.ID)
}

// Update replaces the editable fields of a payment.
func (s *PaymentService) Update(ctx context.Context, id string, req PaymentRequest) (*models.PaymentDetail, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	base := existing.Payment
	payment, err := s.build(ctx, req, &base)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	return s.Get(ctx, id)
}

// MarkStatus sets the status. AmountPaid, when given, replaces the paid amount.
func (s *PaymentService) MarkStatus(ctx context.Context, id string, req MarkPaymentStatusRequest) (*models.PaymentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid status payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payment := existing.Payment
	payment.Status = models.PaymentStatus(req.Status)
	if req.AmountPaid != nil {
		payment.AmountPaid = *req.AmountPaid
	}
	if err := s.repo.Update(ctx, &payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}
	return s.Get(ctx, id)
}

// Delete removes a payment and records an audit entry.
func (s *PaymentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment")
	}
	if s.audit != nil {
		log := models.NewAuditLog(models.AuditActionPaymentDelete, "payment").
			ByClaims(actor).On(id).FromSystem("payment-service").Change(existing, nil)
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("failed to record payment audit", zap.Error(err))
		}
	}
	return nil
}

// Summary aggregates totals overall, per status and per category.
func (s *PaymentService) Summary(ctx context.Context, filter models.PaymentFilter) (*models.PaymentSummary, error) {
	filter.Page, filter.PageSize = 1, 1
	_, totals, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise payments")
	}
	byStatus, err := s.repo.TotalsByStatus(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise payments")
	}
	byCategory, err := s.repo.TotalsByCategory(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise payments")
	}
	return &models.PaymentSummary{
		Totals:     totals,
		Pending:    totals.TotalDue - totals.TotalPaid,
		ByStatus:   byStatus,
		ByCategory: byCategory,
	}, nil
}

func (s *PaymentService) build(ctx context.Context, req PaymentRequest, payment *models.Payment) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payment payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.categories.FindByID(ctx, req.CategoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment category")
	}
	paymentDate, err := parseOptionalDate(req.PaymentDate, "payment_date")
	if err != nil {
		return nil, err
	}

	payment.StudentID = req.StudentID
	payment.CategoryID = req.CategoryID
	payment.CourseID = normalizeOptional(req.CourseID)
	payment.AmountDue = req.AmountDue
	payment.AmountPaid = req.AmountPaid
	payment.SecurityFees = req.SecurityFees
	payment.AdmissionFees = req.AdmissionFees
	payment.ReferenceNo = normalizeOptional(req.ReferenceNo)
	payment.Notes = normalizeOptional(req.Notes)
	payment.Method = strings.ToLower(req.Method)
	if payment.Method == "" {
		payment.Method = models.PaymentMethodCash
	}
	payment.Status = models.PaymentStatus(req.Status)
	if payment.Status == "" {
		payment.Status = deriveStatus(req.AmountDue, req.AmountPaid)
	}
	switch {
	case paymentDate != nil:
		payment.PaymentDate = *paymentDate
	case payment.PaymentDate.IsZero():
		payment.PaymentDate = truncateDay(s.now())
	}
	return payment, nil
}

func deriveStatus(due, paid float64) models.PaymentStatus {
	switch {
	case paid <= 0:
		return models.PaymentStatusPending
	case paid >= due:
		return models.PaymentStatusPaid
	default:
		return models.PaymentStatusPartialPaid
	}
}
