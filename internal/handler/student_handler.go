package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/internal/service"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Student, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	Dues(ctx context.Context, id string) (*models.StudentDues, error)
	Create(ctx context.Context, req service.StudentRequest) (*models.Student, error)
	Update(ctx context.Context, id string, req service.StudentRequest) (*models.Student, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

type StudentHandler struct {
	students studentService
}

func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Search by name, registration number or phone"
// @Param status query string false "Filter by status"
// @Param category query string false "Filter by category"
// @Param gender query string false "Filter by gender (M, F, O)"
// @Param admission_type query string false "Filter by admission type"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param sort_by query string false "Sort column"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter, err := studentFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// studentFilterFromQuery normalises casing and rejects unknown enum values
// instead of silently matching nothing.
func studentFilterFromQuery(c *gin.Context) (models.StudentFilter, error) {
	filter := models.StudentFilter{
		Search:        strings.TrimSpace(c.Query("search")),
		Status:        strings.ToLower(c.Query("status")),
		Category:      strings.TrimSpace(c.Query("category")),
		Gender:        strings.ToUpper(c.Query("gender")),
		AdmissionType: strings.ToLower(c.Query("admission_type")),
		Page:          queryInt(c, "page", 1),
		PageSize:      queryInt(c, "page_size", models.DefaultPageSize),
		SortBy:        c.Query("sort_by"),
		SortOrder:     c.Query("sort_order"),
	}
	switch {
	case filter.Status != "" && !models.StudentStatus(filter.Status).Valid():
		return filter, appErrors.Clone(appErrors.ErrValidation, "unknown status "+filter.Status)
	case filter.Gender != "" && !models.ValidGender(filter.Gender):
		return filter, appErrors.Clone(appErrors.ErrValidation, "gender must be M, F or O")
	case filter.AdmissionType != "" && !models.ValidAdmissionType(filter.AdmissionType):
		return filter, appErrors.Clone(appErrors.ErrValidation, "unknown admission type "+filter.AdmissionType)
	}
	return filter, nil
}

// ByCourse godoc
// @Summary List students enrolled in a course
// @Tags Students
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *StudentHandler) ByCourse(c *gin.Context) {
	students, err := h.students.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Dues godoc
// @Summary Student payments with totals
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/dues [get]
func (h *StudentHandler) Dues(c *gin.Context) {
	dues, err := h.students.Dues(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dues, nil)
}

// Create godoc
// @Summary Create student
// @Description Allocates a registration number unless one is supplied
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.StudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.StudentRequest
	if !bindJSON(c, &req, "invalid student payload") {
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.StudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.StudentRequest
	if !bindJSON(c, &req, "invalid student payload") {
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student with enrollments, payments and attendance
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	actor, ok := mustClaims(c)
	if !ok {
		return
	}
	if err := h.students.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
