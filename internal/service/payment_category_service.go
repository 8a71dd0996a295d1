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

const paymentCategoryNameConstraint = "payment_categories_name_key"

type paymentCategoryRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.PaymentCategory, error)
	FindByID(ctx context.Context, id string) (*models.PaymentCategory, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	CountPayments(ctx context.Context, id string) (int, error)
	Create(ctx context.Context, category *models.PaymentCategory) error
	InsertIfMissing(ctx context.Context, category *models.PaymentCategory) (bool, error)
	Update(ctx context.Context, category *models.PaymentCategory) error
	Delete(ctx context.Context, id string) error
}

// DefaultPaymentCategories are inserted by SeedDefaults when absent.
var DefaultPaymentCategories = []models.PaymentCategory{
	{Name: "Security Fee", Description: strPtr("One-time security deposit for admission"), DefaultAmount: 5000, IsActive: true},
	{Name: "Admission Fee", Description: strPtr("One-time admission processing fee"), DefaultAmount: 3000, IsActive: true},
	{Name: "Monthly Fee", Description: strPtr("Recurring monthly tuition fee"), DefaultAmount: 15000, IsActive: true},
	{Name: "Lab Fee", Description: strPtr("Laboratory and practical course fee"), DefaultAmount: 5000, IsActive: true},
	{Name: "Examination Fee", Description: strPtr("Per semester examination fee"), DefaultAmount: 2000, IsActive: true},
	{Name: "Library Fee", Description: strPtr("Annual library membership fee"), DefaultAmount: 1000, IsActive: true},
}

// PaymentCategoryRequest is the create/update payload.
type PaymentCategoryRequest struct {
	Name          string  `json:"name" validate:"required,max=100"`
	Description   *string `json:"description"`
	DefaultAmount float64 `json:"default_amount" validate:"gte=0"`
	IsActive      *bool   `json:"is_active"`
}

// PaymentCategoryService manages fee categories.
type PaymentCategoryService struct {
	repo      paymentCategoryRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentCategoryService constructs the service.
func NewPaymentCategoryService(repo paymentCategoryRepository, validate *validator.Validate, logger *zap.Logger) *PaymentCategoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentCategoryService{repo: repo, validator: validate, logger: logger}
}

// List returns categories, optionally only active ones.
func (s *PaymentCategoryService) List(ctx context.Context, activeOnly bool) ([]models.PaymentCategory, error) {
	categories, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payment categories")
	}
	return categories, nil
}

// Get returns one category.
func (s *PaymentCategoryService) Get(ctx context.Context, id string) (*models.PaymentCategory, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment category")
	}
	return category, nil
}

// Create adds a category.
func (s *PaymentCategoryService) Create(ctx context.Context, req PaymentCategoryRequest) (*models.PaymentCategory, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payment category payload")
	}
	name := req.Name
	if err := s.ensureUniqueName(ctx, name, ""); err != nil {
		return nil, err
	}
	category := &models.PaymentCategory{
		Name:          name,
		Description:   normalizeOptional(req.Description),
		DefaultAmount: req.DefaultAmount,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if err := s.repo.Create(ctx, category); err != nil {
		if database.IsUniqueViolation(err, paymentCategoryNameConstraint) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "payment category name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment category")
	}
	return category, nil
}

// Update modifies a category.
func (s *PaymentCategoryService) Update(ctx context.Context, id string, req PaymentCategoryRequest) (*models.PaymentCategory, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payment category payload")
	}
	category, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	name := req.Name
	if name != category.Name {
		if err := s.ensureUniqueName(ctx, name, id); err != nil {
			return nil, err
		}
	}
	category.Name = name
	category.Description = normalizeOptional(req.Description)
	category.DefaultAmount = req.DefaultAmount
	if req.IsActive != nil {
		category.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, category); err != nil {
		if database.IsUniqueViolation(err, paymentCategoryNameConstraint) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "payment category name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment category")
	}
	return category, nil
}

// Delete removes a category that no payment references.
func (s *PaymentCategoryService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountPayments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count payments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "payment category is used by existing payments")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment category")
	}
	return nil
}

// SeedDefaults inserts the default categories that do not exist yet and
// returns how many were created.
func (s *PaymentCategoryService) SeedDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, def := range DefaultPaymentCategories {
		category := def
		inserted, err := s.repo.InsertIfMissing(ctx, &category)
		if err != nil {
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seed payment categories")
		}
		if inserted {
			created++
		}
	}
	s.logger.Info("payment categories seeded", zap.Int("created", created))
	return created, nil
}

func (s *PaymentCategoryService) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check payment category name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "payment category name already exists")
	}
	return nil
}
