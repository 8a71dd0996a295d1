package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type authRepoFake struct {
	user           *models.User
	sessions       map[string]*models.RefreshToken
	revokedUsers   []string
	auditLogs      []*models.AuditLog
	lastLogin      time.Time
	adminCount     int
	created        []*models.User
	createTokenErr error
	// staleReads hands out pre-revocation copies, as a concurrent reader would see.
	staleReads     bool
}

func newAuthRepoFake(user *models.User) *authRepoFake {
	return &authRepoFake{user: user, sessions: map[string]*models.RefreshToken{}}
}

func (f *authRepoFake) FindByUsername(_ context.Context, username string) (*models.User, error) {
	if f.user == nil || f.user.Username != username {
		return nil, sql.ErrNoRows
	}
	return f.user, nil
}

func (f *authRepoFake) FindByID(_ context.Context, id string) (*models.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.user, nil
}

func (f *authRepoFake) CountAdmins(context.Context) (int, error) { return f.adminCount, nil }

func (f *authRepoFake) Create(_ context.Context, user *models.User) error {
	f.created = append(f.created, user)
	return nil
}

func (f *authRepoFake) UpdateLastLogin(_ context.Context, _ string, ts time.Time) error {
	f.lastLogin = ts
	return nil
}

func (f *authRepoFake) UpdatePassword(_ context.Context, id, hash string, _ time.Time) error {
	if f.user != nil && f.user.ID == id {
		f.user.PasswordHash = hash
	}
	return nil
}

func (f *authRepoFake) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	f.revokedUsers = append(f.revokedUsers, userID)
	for _, rt := range f.sessions {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (f *authRepoFake) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	if f.createTokenErr != nil {
		return f.createTokenErr
	}
	f.sessions[token.TokenHash] = token
	return nil
}

func (f *authRepoFake) FindRefreshToken(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	rt, ok := f.sessions[tokenHash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if f.staleReads {
		stale := *rt
		stale.Revoked = false
		return &stale, nil
	}
	return rt, nil
}

func (f *authRepoFake) RevokeRefreshToken(_ context.Context, id string, at time.Time) (bool, error) {
	for _, rt := range f.sessions {
		if rt.ID == id && !rt.Revoked {
			rt.Revoked = true
			rt.RevokedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (f *authRepoFake) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	f.auditLogs = append(f.auditLogs, log)
	return nil
}

func hashedUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: "u1", Username: "user", FullName: "Front Desk", PasswordHash: string(hash), Active: true, Role: models.RoleAccountant}
}

func newTestAuth(repo *authRepoFake) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})
}

func TestAuthLoginStoresOnlyTokenHash(t *testing.T) {
	repo := newAuthRepoFake(hashedUser(t, "password"))
	svc := newTestAuth(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Username: " User ", Password: "password"}, models.ClientMeta{IP: "10.0.0.9", UserAgent: "test"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.RoleAccountant, res.User.Role)
	assert.False(t, repo.lastLogin.IsZero())

	require.Len(t, repo.sessions, 1)
	session, ok := repo.sessions[hashToken(res.RefreshToken)]
	require.True(t, ok)
	assert.NotEqual(t, res.RefreshToken, session.TokenHash)
	assert.Len(t, session.TokenHash, 64)
	assert.Equal(t, "10.0.0.9", session.IPAddress)

	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)
	assert.JSONEq(t, `{"status":"success"}`, string(repo.auditLogs[0].NewValues))
}

func TestAuthLoginFailures(t *testing.T) {
	user := hashedUser(t, "password")
	svc := newTestAuth(newAuthRepoFake(user))

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "user", Password: "nope"}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "password"}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Username: "user"}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	user.Active = false
	_, err = svc.Login(context.Background(), models.LoginRequest{Username: "user", Password: "password"}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthRefreshRotatesSession(t *testing.T) {
	repo := newAuthRepoFake(hashedUser(t, "password"))
	svc := newTestAuth(repo)
	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "user", Password: "password"}, models.ClientMeta{})
	require.NoError(t, err)

	pair, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken}, models.ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)
	assert.True(t, repo.sessions[hashToken(login.RefreshToken)].Revoked)
	assert.False(t, repo.sessions[hashToken(pair.RefreshToken)].Revoked)
}

func TestAuthRefreshReuseRevokesAllSessions(t *testing.T) {
	repo := newAuthRepoFake(hashedUser(t, "password"))
	svc := newTestAuth(repo)
	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "user", Password: "password"}, models.ClientMeta{})
	require.NoError(t, err)
	pair, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken}, models.ClientMeta{})
	require.NoError(t, err)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"u1"}, repo.revokedUsers)
	assert.True(t, repo.sessions[hashToken(pair.RefreshToken)].Revoked)
}

func TestAuthRefreshLosingConcurrentRotation(t *testing.T) {
	repo := newAuthRepoFake(hashedUser(t, "password"))
	svc := newTestAuth(repo)
	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "user", Password: "password"}, models.ClientMeta{})
	require.NoError(t, err)
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken}, models.ClientMeta{})
	require.NoError(t, err)

	repo.staleReads = true
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"u1"}, repo.revokedUsers)
	assert.Len(t, repo.sessions, 2)
}

func TestAuthRefreshExpiredAndUnknown(t *testing.T) {
	repo := newAuthRepoFake(hashedUser(t, "password"))
	repo.sessions[hashToken("stale")] = &models.RefreshToken{ID: "rt1", UserID: "u1", TokenHash: hashToken("stale"), ExpiresAt: time.Now().Add(-time.Minute)}
	svc := newTestAuth(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.revokedUsers)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "never-issued"}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthLogoutRejectsForeignToken(t *testing.T) {
	repo := newAuthRepoFake(hashedUser(t, "password"))
	svc := newTestAuth(repo)
	login, err := svc.Login(context.Background(), models.LoginRequest{Username: "user", Password: "password"}, models.ClientMeta{})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), login.RefreshToken, "someone-else", models.ClientMeta{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "u1", models.ClientMeta{}))
	assert.True(t, repo.sessions[hashToken(login.RefreshToken)].Revoked)
}

func TestAuthChangePassword(t *testing.T) {
	repo := newAuthRepoFake(hashedUser(t, "old-secret"))
	svc := newTestAuth(repo)
	before := repo.user.PasswordHash

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newpassword"}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "old-secret", NewPassword: "12345"}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "old-secret", NewPassword: "newpassword"}, models.ClientMeta{}))
	assert.NotEqual(t, before, repo.user.PasswordHash)
	assert.Equal(t, []string{"u1"}, repo.revokedUsers)
}

func TestAuthValidateToken(t *testing.T) {
	svc := newTestAuth(newAuthRepoFake(nil))
	user := &models.User{ID: "u1", Username: "user", Role: models.RoleTeacher}
	token, err := svc.sign(user, time.Now().UTC())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Info().Role)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.ValidateToken(token + "x")
	assert.Error(t, err)
}

func TestAuthRegisterAdminOnlyOnce(t *testing.T) {
	repo := newAuthRepoFake(nil)
	svc := newTestAuth(repo)

	info, err := svc.RegisterAdmin(context.Background(), models.RegisterAdminRequest{Username: " Root ", Password: "secret1"}, models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, "root", info.Username)
	assert.Equal(t, "root", info.FullName)
	assert.Equal(t, models.RoleAdmin, info.Role)
	require.Len(t, repo.created, 1)
	assert.True(t, repo.created[0].Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created[0].PasswordHash), []byte("secret1")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionAdminRegister, repo.auditLogs[0].Action)

	repo.adminCount = 1
	_, err = svc.RegisterAdmin(context.Background(), models.RegisterAdminRequest{Username: "second", Password: "secret1"}, models.ClientMeta{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
