package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func strPtr(value string) *string {
	return &value
}

var userRowColumns = []string{"id", "username", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}

func TestFindByUsername(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("1", "admin", nil, "hash", "Admin", string(models.RoleAdmin), true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(username) = LOWER($1) LIMIT 1")).
		WithArgs("admin").
		WillReturnRows(rows)

	user, err := repo.FindByUsername(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Nil(t, user.Email)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUsernameNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(username) = LOWER($1)")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCountActiveAdmins(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1 AND active = TRUE")).
		WithArgs(models.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	total, err := repo.CountActiveAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{ID: "1", UserID: "u1", TokenHash: "abc", ExpiresAt: time.Now(), CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRefreshTokenByHash(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	expires := time.Now().Add(time.Hour)
	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
		AddRow("rt1", "u1", "abc", expires, time.Now(), false, nil, "10.0.0.1", "curl")
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token_hash = $1")).WithArgs("abc").WillReturnRows(rows)

	rt, err := repo.FindRefreshToken(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", rt.UserID)
	assert.True(t, rt.Usable(time.Now()))

	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token_hash = $1")).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindRefreshToken(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRevokeRefreshTokenOnlyOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)
	at := time.Now()

	query := regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE")
	mock.ExpectExec(query).WithArgs("rt1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("rt1", at).WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.RevokeRefreshToken(context.Background(), "rt1", at)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.RevokeRefreshToken(context.Background(), "rt1", at)
	require.NoError(t, err)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows(userRowColumns).
		AddRow("1", "clerk", "c@example.com", "hash", "Clerk", string(models.RoleAccountant), true, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE 1=1 AND role = $1 AND (LOWER(username) LIKE $2 OR LOWER(full_name) LIKE $2) ORDER BY username ASC LIMIT 10 OFFSET 10")).
		WithArgs(models.RoleAccountant, "%cl%").
		WillReturnRows(listRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND role = $1")).
		WithArgs(models.RoleAccountant, "%cl%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	role := models.RoleAccountant
	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, Search: "CL", Page: 2, PageSize: 10, SortBy: "username", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(userRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, total, err := repo.List(context.Background(), models.UserFilter{SortBy: "password_hash; DROP"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AuditLog{Action: models.AuditActionBackupReset, Resource: "backup"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}
