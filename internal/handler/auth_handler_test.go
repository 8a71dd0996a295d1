package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/internal/service"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type fakeAuthService struct {
	meta       models.ClientMeta
	loggedOut  []string
	changedFor string
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest, meta models.ClientMeta) (*models.LoginResponse, error) {
	f.meta = meta
	if req.Password != "good" {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
	}
	return &models.LoginResponse{
		TokenPair: models.TokenPair{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 60},
		User:      models.UserInfo{ID: "u1", Username: req.Username, Role: models.RoleTeacher},
	}, nil
}

func (f *fakeAuthService) RefreshToken(_ context.Context, req models.RefreshTokenRequest, _ models.ClientMeta) (*models.TokenPair, error) {
	return &models.TokenPair{AccessToken: "access2", RefreshToken: req.RefreshToken + "-next"}, nil
}

func (f *fakeAuthService) Logout(_ context.Context, token, userID string, _ models.ClientMeta) error {
	f.loggedOut = append(f.loggedOut, userID+":"+token)
	return nil
}

func (f *fakeAuthService) ChangePassword(_ context.Context, userID string, _ models.ChangePasswordRequest, _ models.ClientMeta) error {
	f.changedFor = userID
	return nil
}

func (f *fakeAuthService) RegisterAdmin(context.Context, models.RegisterAdminRequest, models.ClientMeta) (*models.UserInfo, error) {
	return &models.UserInfo{ID: "a1", Username: "root", Role: models.RoleAdmin}, nil
}

func newAuthRouter(svc authService, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandler(svc)
	r := gin.New()
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	secured := r.Group("")
	if claims != nil {
		secured.Use(withClaims(claims))
	}
	secured.POST("/auth/logout", h.Logout)
	secured.POST("/auth/change-password", h.ChangePassword)
	secured.GET("/auth/me", h.Me)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &fakeAuthService{}
	r := newAuthRouter(svc, nil)

	rec := postJSON(r, "/auth/login", `{"username":"ada","password":"good"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "access", body.Data["access_token"])
	assert.Equal(t, "refresh", body.Data["refresh_token"])
	assert.Equal(t, "ada", body.Data["user"].(map[string]interface{})["username"])
	assert.Equal(t, "handler-test", svc.meta.UserAgent)

	rec = postJSON(r, "/auth/login", `{"username":"ada","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(r, "/auth/login", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerRefresh(t *testing.T) {
	r := newAuthRouter(&fakeAuthService{}, nil)
	rec := postJSON(r, "/auth/refresh", `{"refresh_token":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"refresh_token":"abc-next"`)
}

func TestAuthHandlerSecuredRoutes(t *testing.T) {
	svc := &fakeAuthService{}
	r := newAuthRouter(svc, &models.JWTClaims{UserID: "u7", Username: "clerk", Role: models.RoleAccountant})

	rec := postJSON(r, "/auth/logout", `{"refresh_token":"tok"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"u7:tok"}, svc.loggedOut)

	rec = postJSON(r, "/auth/change-password", `{"old_password":"a","new_password":"bbbbbb"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u7", svc.changedFor)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	meRec := httptest.NewRecorder()
	r.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusOK, meRec.Code)
	assert.Contains(t, meRec.Body.String(), `"role":"accountant"`)
}

func TestAuthHandlerRequiresClaims(t *testing.T) {
	r := newAuthRouter(&fakeAuthService{}, nil)
	rec := postJSON(r, "/auth/logout", `{"refresh_token":"tok"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeUserService struct {
	filter models.UserFilter
}

func (f *fakeUserService) List(_ context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	f.filter = filter
	return []models.User{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (f *fakeUserService) Get(context.Context, string) (*models.User, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

func (f *fakeUserService) Create(_ context.Context, req service.CreateUserRequest, _ string, _ models.ClientMeta) (*models.User, error) {
	return &models.User{ID: "n1", Username: req.Username, Role: req.Role}, nil
}

func (f *fakeUserService) Update(context.Context, string, service.UpdateUserRequest, string, models.ClientMeta) (*models.User, error) {
	return &models.User{}, nil
}

func (f *fakeUserService) Delete(context.Context, string, string, models.ClientMeta) error { return nil }

func TestUserHandlerListFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeUserService{}
	h := NewUserHandler(svc)
	r := gin.New()
	r.GET("/users", h.List)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users?role=Teacher&active=false&page=2&search=+ann+", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.Role)
	assert.Equal(t, models.RoleTeacher, *svc.filter.Role)
	require.NotNil(t, svc.filter.Active)
	assert.False(t, *svc.filter.Active)
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, "ann", svc.filter.Search)

	for _, query := range []string{"role=janitor", "active=maybe"} {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}
