package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest, meta models.ClientMeta) (*models.LoginResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshTokenRequest, meta models.ClientMeta) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken, userID string, meta models.ClientMeta) error
	ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest, meta models.ClientMeta) error
	RegisterAdmin(ctx context.Context, req models.RegisterAdminRequest, meta models.ClientMeta) (*models.UserInfo, error)
}

// AuthHandler serves the session endpoints.
type AuthHandler struct {
	auth authService
}

func NewAuthHandler(auth authService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by username and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, "invalid login payload") {
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Rotate a refresh token
// @Description The presented refresh token is revoked and a new pair issued
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if !bindJSON(c, &req, "invalid refresh payload") {
		return
	}
	pair, err := h.auth.RefreshToken(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pair, nil)
}

// Logout godoc
// @Summary Logout current session
// @Tags Authentication
// @Accept json
// @Param payload body models.RefreshTokenRequest true "Refresh token"
// @Success 204
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req models.RefreshTokenRequest
	if !bindJSON(c, &req, "refresh token required") {
		return
	}
	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken, claims.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ChangePassword godoc
// @Summary Change password
// @Description Revokes every session of the caller
// @Tags Authentication
// @Accept json
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req models.ChangePasswordRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	if err := h.auth.ChangePassword(c.Request.Context(), claims.UserID, req, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RegisterAdmin godoc
// @Summary Bootstrap the first administrator
// @Description Allowed only while no admin account exists
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterAdminRequest true "Admin account"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/register-admin [post]
func (h *AuthHandler) RegisterAdmin(c *gin.Context) {
	var req models.RegisterAdminRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	info, err := h.auth.RegisterAdmin(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, info)
}

// Me godoc
// @Summary Current user
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, claims.Info(), nil)
}
