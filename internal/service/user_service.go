package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/pkg/database"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

const usernameConstraint = "users_username_key"

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	CountActiveAdmins(ctx context.Context) (int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Username string          `json:"username" validate:"required,min=3,max=80"`
	Email    *string         `json:"email" validate:"omitempty,email,max=120"`
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=admin accountant teacher"`
	Active   *bool           `json:"active"`
	Password string          `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest payload for updating users. An empty password keeps the
// current one.
type UpdateUserRequest struct {
	Email    *string         `json:"email" validate:"omitempty,email,max=120"`
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=admin accountant teacher"`
	Active   *bool           `json:"active"`
	Password string          `json:"password" validate:"omitempty,min=6"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.ClientMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid create user payload")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        normalizeOptional(req.Email),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       req.Active == nil || *req.Active,
		PasswordHash: string(passwordHash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if database.IsUniqueViolation(err, usernameConstraint) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.audit(ctx, models.NewAuditLog(models.AuditActionUserCreate, "users").
		By(actorID).On(user.ID).From(meta).
		Change(nil, map[string]interface{}{"id": user.ID, "username": user.Username, "role": user.Role}))

	return user, nil
}

// Update modifies the user attributes. The last active admin cannot be demoted
// or deactivated.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.ClientMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid update payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	active := user.Active
	if req.Active != nil {
		active = *req.Active
	}
	losesAdmin := user.Role == models.RoleAdmin && user.Active && (req.Role != models.RoleAdmin || !active)
	if losesAdmin {
		if err := s.ensureOtherActiveAdmin(ctx); err != nil {
			return nil, err
		}
	}

	before := map[string]interface{}{"role": user.Role, "active": user.Active}

	user.Email = normalizeOptional(req.Email)
	user.FullName = strings.TrimSpace(req.FullName)
	user.Role = req.Role
	user.Active = active

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		if err := s.repo.UpdatePassword(ctx, id, string(hash), s.now().UTC()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
		}
	}

	s.audit(ctx, models.NewAuditLog(models.AuditActionUserUpdate, "users").
		By(actorID).On(user.ID).From(meta).
		Change(before, map[string]interface{}{"role": user.Role, "active": user.Active}))

	return user, nil
}

// Delete removes a user. Admins cannot delete themselves or the last active admin.
func (s *UserService) Delete(ctx context.Context, id string, actorID string, meta models.ClientMeta) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "you cannot delete your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleAdmin && user.Active {
		if err := s.ensureOtherActiveAdmin(ctx); err != nil {
			return err
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.audit(ctx, models.NewAuditLog(models.AuditActionUserDelete, "users").
		By(actorID).On(user.ID).From(meta).
		Change(map[string]interface{}{"username": user.Username, "role": user.Role}, nil))

	return nil
}

func (s *UserService) ensureOtherActiveAdmin(ctx context.Context) error {
	count, err := s.repo.CountActiveAdmins(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count admins")
	}
	if count <= 1 {
		return appErrors.Clone(appErrors.ErrForbidden, "at least one active admin must remain")
	}
	return nil
}

func (s *UserService) audit(ctx context.Context, log *models.AuditLog) {
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", log.Action), zap.Error(err))
	}
}
