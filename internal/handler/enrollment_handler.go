package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/service"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// ByCourse godoc
// @Summary List enrollments of a course
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollments [get]
func (h *EnrollmentHandler) ByCourse(c *gin.Context) {
	enrollments, err := h.enrollments.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// ByStudent godoc
// @Summary List enrollments of a student
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments [get]
func (h *EnrollmentHandler) ByStudent(c *gin.Context) {
	enrollments, err := h.enrollments.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Enroll godoc
// @Summary Enroll a student in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollStudentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollStudentRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Unenroll godoc
// @Summary Remove a student from a course
// @Tags Enrollments
// @Param student_id path string true "Student ID"
// @Param course_id path string true "Course ID"
// @Success 204
// @Router /enrollments/{student_id}/{course_id} [delete]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	if err := h.enrollments.Unenroll(c.Request.Context(), c.Param("student_id"), c.Param("course_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
