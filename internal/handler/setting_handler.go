package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/dto"
	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

type settingService interface {
	List(ctx context.Context) ([]dto.SettingItem, error)
	Item(ctx context.Context, key string) (*dto.SettingItem, error)
	Update(ctx context.Context, req dto.UpdateSettingRequest, actor *models.JWTClaims) (*dto.SettingItem, error)
	BulkUpdate(ctx context.Context, req dto.BulkUpdateSettingRequest, actor *models.JWTClaims) ([]dto.SettingItem, error)
}

type registrationPreviewer interface {
	Preview(ctx context.Context) (*dto.RegistrationPreview, error)
}

// SettingHandler exposes application settings.
type SettingHandler struct {
	service      settingService
	registration registrationPreviewer
}

// NewSettingHandler builds a new handler.
func NewSettingHandler(service settingService, registration registrationPreviewer) *SettingHandler {
	return &SettingHandler{service: service, registration: registration}
}

// List godoc
// @Summary List settings
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings [get]
func (h *SettingHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get setting by key
// @Tags Settings
// @Produce json
// @Param key path string true "Setting key"
// @Success 200 {object} response.Envelope
// @Router /settings/{key} [get]
func (h *SettingHandler) Get(c *gin.Context) {
	item, err := h.service.Item(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Update setting
// @Tags Settings
// @Accept json
// @Produce json
// @Param key path string true "Setting key"
// @Param payload body dto.UpdateSettingRequest true "Setting payload"
// @Success 200 {object} response.Envelope
// @Router /settings/{key} [put]
func (h *SettingHandler) Update(c *gin.Context) {
	var req dto.UpdateSettingRequest
	if !bindJSON(c, &req, "invalid setting payload") {
		return
	}
	if req.Key == "" {
		req.Key = c.Param("key")
	}
	if req.Key != c.Param("key") {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "key mismatch between path and body"))
		return
	}
	item, err := h.service.Update(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// BulkUpdate godoc
// @Summary Bulk update settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body dto.BulkUpdateSettingRequest true "Bulk setting payload"
// @Success 200 {object} response.Envelope
// @Router /settings [put]
func (h *SettingHandler) BulkUpdate(c *gin.Context) {
	var req dto.BulkUpdateSettingRequest
	if !bindJSON(c, &req, "invalid bulk payload") {
		return
	}
	items, err := h.service.BulkUpdate(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// RegistrationPreview godoc
// @Summary Preview the next registration number
// @Description Does not consume the number
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /registration/next [get]
func (h *SettingHandler) RegistrationPreview(c *gin.Context) {
	preview, err := h.registration.Preview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}
