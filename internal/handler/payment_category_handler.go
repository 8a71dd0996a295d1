package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/service"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

// PaymentCategoryHandler exposes fee categories.
type PaymentCategoryHandler struct {
	categories *service.PaymentCategoryService
}

// NewPaymentCategoryHandler constructs PaymentCategoryHandler.
func NewPaymentCategoryHandler(categories *service.PaymentCategoryService) *PaymentCategoryHandler {
	return &PaymentCategoryHandler{categories: categories}
}

// List godoc
// @Summary List payment categories
// @Tags Payments
// @Produce json
// @Param active query bool false "Only active categories"
// @Success 200 {object} response.Envelope
// @Router /payment-categories [get]
func (h *PaymentCategoryHandler) List(c *gin.Context) {
	categories, err := h.categories.List(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

// Create godoc
// @Summary Create payment category
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.PaymentCategoryRequest true "Category payload"
// @Success 201 {object} response.Envelope
// @Router /payment-categories [post]
func (h *PaymentCategoryHandler) Create(c *gin.Context) {
	var req service.PaymentCategoryRequest
	if !bindJSON(c, &req, "invalid payment category payload") {
		return
	}
	category, err := h.categories.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// Update godoc
// @Summary Update payment category
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Category ID"
// @Param payload body service.PaymentCategoryRequest true "Category payload"
// @Success 200 {object} response.Envelope
// @Router /payment-categories/{id} [put]
func (h *PaymentCategoryHandler) Update(c *gin.Context) {
	var req service.PaymentCategoryRequest
	if !bindJSON(c, &req, "invalid payment category payload") {
		return
	}
	category, err := h.categories.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// Delete godoc
// @Summary Delete payment category
// @Description Rejected with 409 while payments reference the category
// @Tags Payments
// @Param id path string true "Category ID"
// @Success 204
// @Router /payment-categories/{id} [delete]
func (h *PaymentCategoryHandler) Delete(c *gin.Context) {
	if err := h.categories.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Seed godoc
// @Summary Create the default payment categories
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /payment-categories/seed [post]
func (h *PaymentCategoryHandler) Seed(c *gin.Context) {
	created, err := h.categories.SeedDefaults(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"created": created}, nil)
}
