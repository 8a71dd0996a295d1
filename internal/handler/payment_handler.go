package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/internal/service"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

type paymentService interface {
	List(ctx context.Context, filter models.PaymentFilter) (*service.PaymentListResult, error)
	Get(ctx context.Context, id string) (*models.PaymentDetail, error)
	Record(ctx context.Context, req service.PaymentRequest, actor *models.JWTClaims) (*models.PaymentDetail, error)
	Update(ctx context.Context, id string, req service.PaymentRequest) (*models.PaymentDetail, error)
	MarkStatus(ctx context.Context, id string, req service.MarkPaymentStatusRequest) (*models.PaymentDetail, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	Summary(ctx context.Context, filter models.PaymentFilter) (*models.PaymentSummary, error)
}

// PaymentHandler exposes fee payment endpoints.
type PaymentHandler struct {
	payments paymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// List godoc
// @Summary List payments with totals
// @Tags Payments
// @Produce json
// @Param student_id query string false "Student"
// @Param course_id query string false "Course"
// @Param category_id query string false "Category"
// @Param status query string false "pending, partial_paid or paid"
// @Param method query string false "Payment method"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	filter, err := paymentFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.payments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, result.Pagination)
}

// Summary godoc
// @Summary Payment totals by status and category
// @Tags Payments
// @Produce json
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /payments/summary [get]
func (h *PaymentHandler) Summary(c *gin.Context) {
	filter, err := paymentFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.payments.Summary(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Get godoc
// @Summary Get payment
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Record godoc
// @Summary Record a payment
// @Description Status is derived from the amounts when omitted
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.PaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	var req service.PaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	payment, err := h.payments.Record(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// Update godoc
// @Summary Update a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body service.PaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Router /payments/{id} [put]
func (h *PaymentHandler) Update(c *gin.Context) {
	var req service.PaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	payment, err := h.payments.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// MarkStatus godoc
// @Summary Change payment status
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body service.MarkPaymentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/status [patch]
func (h *PaymentHandler) MarkStatus(c *gin.Context) {
	var req service.MarkPaymentStatusRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}
	payment, err := h.payments.MarkStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Delete godoc
// @Summary Delete a payment
// @Tags Payments
// @Param id path string true "Payment ID"
// @Success 204
// @Router /payments/{id} [delete]
func (h *PaymentHandler) Delete(c *gin.Context) {
	if err := h.payments.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func paymentFilterFromQuery(c *gin.Context) (models.PaymentFilter, error) {
	filter := models.PaymentFilter{
		StudentID:  c.Query("student_id"),
		CourseID:   c.Query("course_id"),
		CategoryID: c.Query("category_id"),
		Status:     strings.ToLower(c.Query("status")),
		Method:     strings.ToLower(c.Query("method")),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
		SortBy:     c.Query("sort_by"),
		SortOrder:  c.Query("sort_order"),
	}
	var err error
	if filter.DateFrom, err = queryDate(c, "from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = queryDate(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryDate(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be formatted as YYYY-MM-DD")
	}
	return &parsed, nil
}
