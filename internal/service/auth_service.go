package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/pkg/database"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CountAdmins(ctx context.Context) (int, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) (bool, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	Audience           []string
	// SingleSession revokes a user's other sessions on every login.
	SingleSession bool
}

// AuthService issues and rotates sessions and guards the admin bootstrap.
type AuthService struct {
	repo      authUserRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{repo: repo, validator: validate, logger: logger, config: config, now: func() time.Time { return time.Now().UTC() }}
}

func errBadCredentials() error {
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
}

// Login checks credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, meta models.ClientMeta) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid login payload")
	}

	user, err := s.repo.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(req.Username)))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, errBadCredentials()
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, errBadCredentials()
	}

	if s.config.SingleSession {
		if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke previous sessions", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	pair, err := s.issue(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLastLogin(ctx, user.ID, pair.IssuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	s.audit(ctx, models.AuditActionLogin, user.ID, map[string]string{"status": "success"}, meta)

	return &models.LoginResponse{TokenPair: *pair, User: models.InfoFromUser(user)}, nil
}

// RefreshToken rotates a session: the presented token is revoked and a new
// pair is issued. Presenting an already revoked token revokes every session
// of its owner.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest, meta models.ClientMeta) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid refresh payload")
	}

	stored, err := s.lookup(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if stored.Revoked {
		return nil, s.reuseDetected(ctx, stored.UserID)
	}
	if !stored.Usable(now) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	user, err := s.repo.FindByID(ctx, stored.UserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	revoked, err := s.repo.RevokeRefreshToken(ctx, stored.ID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}
	if !revoked {
		return nil, s.reuseDetected(ctx, stored.UserID)
	}
	pair, err := s.issue(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, models.AuditActionLogin, user.ID, map[string]string{"refresh": "rotated"}, meta)
	return pair, nil
}

// reuseDetected closes every session of userID after a revoked token was
// replayed or lost a concurrent rotation.
func (s *AuthService) reuseDetected(ctx context.Context, userID string) error {
	s.logger.Warn("revoked refresh token presented, closing all sessions", zap.String("user_id", userID))
	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke sessions", zap.Error(err))
	}
	return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
}

// Logout revokes one of the caller's own sessions.
func (s *AuthService) Logout(ctx context.Context, refreshToken, userID string, meta models.ClientMeta) error {
	stored, err := s.lookup(ctx, refreshToken)
	if err != nil {
		return err
	}
	if stored.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if _, err := s.repo.RevokeRefreshToken(ctx, stored.ID, s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	s.audit(ctx, models.AuditActionLogout, userID, map[string]string{"status": "logout"}, meta)
	return nil
}

// ChangePassword replaces the caller's password and closes all sessions.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest, meta models.ClientMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid change password payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	case err != nil:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)) != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash), s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke sessions after password change", zap.Error(err))
	}
	s.audit(ctx, models.AuditActionPasswordChange, userID, map[string]string{"status": "changed"}, meta)
	return nil
}

// ValidateToken parses an HS256 access token and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	if !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// RegisterAdmin bootstraps the first administrator. It is refused once any
// admin account exists.
func (s *AuthService) RegisterAdmin(ctx context.Context, req models.RegisterAdminRequest, meta models.ClientMeta) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid register payload")
	}

	admins, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count admins")
	}
	if admins > 0 {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "an administrator already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     strings.ToLower(strings.TrimSpace(req.Username)),
		Email:        normalizeOptional(req.Email),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         models.RoleAdmin,
		Active:       true,
		PasswordHash: string(hash),
	}
	if user.FullName == "" {
		user.FullName = user.Username
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if database.IsUniqueViolation(err, usernameConstraint) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admin")
	}

	s.audit(ctx, models.AuditActionAdminRegister, user.ID, map[string]string{"role": string(models.RoleAdmin)}, meta)
	s.logger.Info("first administrator registered", zap.String("username", user.Username))

	info := models.InfoFromUser(user)
	return &info, nil
}

// issue signs an access token and persists a fresh refresh session.
func (s *AuthService) issue(ctx context.Context, user *models.User, meta models.ClientMeta) (*models.TokenPair, error) {
	issuedAt := s.now()
	access, err := s.sign(user, issuedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refresh, err := newOpaqueToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	session := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: issuedAt.Add(s.config.RefreshTokenExpiry),
		CreatedAt: issuedAt,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.repo.CreateRefreshToken(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     issuedAt,
	}, nil
}

func (s *AuthService) lookup(ctx context.Context, token string) (*models.RefreshToken, error) {
	stored, err := s.repo.FindRefreshToken(ctx, hashToken(token))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}
	return stored, nil
}

func (s *AuthService) sign(user *models.User, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Username: user.Username,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

// audit records an auth event. Failures are logged, never returned.
func (s *AuthService) audit(ctx context.Context, action, userID string, values map[string]string, meta models.ClientMeta) {
	entry := models.NewAuditLog(action, "auth").By(userID).On(userID).From(meta).Change(nil, values)
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record auth audit log", zap.String("action", action), zap.Error(err))
	}
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
