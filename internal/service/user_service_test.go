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

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type mockUserRepo struct {
	users       map[string]*models.User
	listUsers   []models.User
	listCount   int
	listErr     error
	findByIDErr error
	passwords   map[string]string
	auditLogs   []*models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	if m.listUsers != nil {
		return m.listUsers, m.listCount, nil
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) CountActiveAdmins(ctx context.Context) (int, error) {
	count := 0
	for _, u := range m.users {
		if u.Role == models.RoleAdmin && u.Active {
			count++
		}
	}
	return count, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.passwords == nil {
		m.passwords = make(map[string]string)
	}
	m.passwords[id] = passwordHash
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Username: "alice"}}, listCount: 1}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	user, err := svc.Create(context.Background(), CreateUserRequest{Username: "Cashier", FullName: "Cash Desk", Password: "secret1", Role: models.RoleAccountant}, "actor", models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, "cashier", user.Username)
	assert.True(t, user.Active)
	assert.NotEmpty(t, repo.auditLogs)

	_, err = svc.Create(context.Background(), CreateUserRequest{Username: "cashier", FullName: "Dup", Password: "secret1", Role: models.RoleTeacher}, "actor", models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateValidation(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, validator.New(), zap.NewNop())

	cases := []CreateUserRequest{
		{Username: "ab", FullName: "Short", Password: "secret1", Role: models.RoleTeacher},
		{Username: "valid", FullName: "Short pw", Password: "12345", Role: models.RoleTeacher},
		{Username: "valid", FullName: "Bad role", Password: "secret1", Role: "student"},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), req, "actor", models.ClientMeta{})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code, req.FullName)
	}
}

func TestUserServiceUpdate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Username: "t1", FullName: "Old", Role: models.RoleTeacher, Active: true}}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	active := false
	user, err := svc.Update(context.Background(), "1", UpdateUserRequest{FullName: "New", Role: models.RoleAccountant, Active: &active, Password: "newsecret"}, "actor", models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAccountant, user.Role)
	assert.False(t, user.Active)
	assert.NotEmpty(t, repo.passwords["1"])
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserServiceProtectsLastAdmin(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"a1": {ID: "a1", Username: "root", Role: models.RoleAdmin, Active: true},
		"t1": {ID: "t1", Username: "teacher", Role: models.RoleTeacher, Active: true},
	}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), "a1", UpdateUserRequest{FullName: "Root", Role: models.RoleTeacher}, "t1", models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	inactive := false
	_, err = svc.Update(context.Background(), "a1", UpdateUserRequest{FullName: "Root", Role: models.RoleAdmin, Active: &inactive}, "t1", models.ClientMeta{})
	require.Error(t, err)

	err = svc.Delete(context.Background(), "a1", "t1", models.ClientMeta{})
	require.Error(t, err)
	assert.Contains(t, repo.users, "a1")

	repo.users["a2"] = &models.User{ID: "a2", Username: "second", Role: models.RoleAdmin, Active: true}
	require.NoError(t, svc.Delete(context.Background(), "a1", "a2", models.ClientMeta{}))
	assert.NotContains(t, repo.users, "a1")
}

func TestUserServiceDeleteSelf(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Role: models.RoleTeacher, Active: true}}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), "1", "1", models.ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), "1", "admin", models.ClientMeta{}))
	assert.Empty(t, repo.users)
	assert.NotEmpty(t, repo.auditLogs)
}
