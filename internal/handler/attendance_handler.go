package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/dto"
	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/internal/service"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

type attendanceService interface {
	List(ctx context.Context, req service.AttendanceListRequest) ([]models.AttendanceRecord, *models.Pagination, error)
	Mark(ctx context.Context, req service.MarkAttendanceRequest, actor *models.JWTClaims) (*models.Attendance, error)
	BulkMark(ctx context.Context, req service.BulkMarkAttendanceRequest, actor *models.JWTClaims) (*service.BulkAttendanceResult, error)
	CourseReport(ctx context.Context, courseID, from, to string) ([]models.StudentAttendanceRow, error)
	StudentReport(ctx context.Context, studentID, from, to string) ([]models.CourseAttendanceRow, error)
	Summary(ctx context.Context, req service.AttendanceSummaryRequest) (*dto.AttendanceSummaryResponse, error)
}

type attendanceSheetRenderer interface {
	AttendanceSheet(ctx context.Context, courseID, from, to string) (*service.ExportFile, error)
}

// AttendanceHandler exposes attendance marking and reports.
type AttendanceHandler struct {
	attendance attendanceService
	sheets     attendanceSheetRenderer
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService, sheets attendanceSheetRenderer) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, sheets: sheets}
}

// List godoc
// @Summary List attendance marks
// @Tags Attendance
// @Produce json
// @Param course_id query string false "Course"
// @Param student_id query string false "Student"
// @Param status query string false "present, absent or leave"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	req := service.AttendanceListRequest{
		CourseID:  c.Query("course_id"),
		StudentID: c.Query("student_id"),
		DateFrom:  c.Query("from"),
		DateTo:    c.Query("to"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		req.Status = &status
	}
	records, pagination, err := h.attendance.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// CourseHistory godoc
// @Summary Attendance history of one course
// @Tags Attendance
// @Produce json
// @Param id path string true "Course ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/courses/{id} [get]
func (h *AttendanceHandler) CourseHistory(c *gin.Context) {
	req := service.AttendanceListRequest{
		CourseID: c.Param("id"),
		DateFrom: c.Query("from"),
		DateTo:   c.Query("to"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 100),
	}
	records, pagination, err := h.attendance.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Mark godoc
// @Summary Mark attendance for one student
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance mark"
// @Success 200 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkMark godoc
// @Summary Mark attendance for many students of a course
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.BulkMarkAttendanceRequest true "Bulk marks"
// @Success 200 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	var req service.BulkMarkAttendanceRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	result, err := h.attendance.BulkMark(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CourseReport godoc
// @Summary Per-student attendance counts for a course
// @Tags Attendance
// @Produce json
// @Param id path string true "Course ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/reports/courses/{id} [get]
func (h *AttendanceHandler) CourseReport(c *gin.Context) {
	rows, err := h.attendance.CourseReport(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// StudentReport godoc
// @Summary Per-course attendance counts for a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/reports/students/{id} [get]
func (h *AttendanceHandler) StudentReport(c *gin.Context) {
	rows, err := h.attendance.StudentReport(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Summary godoc
// @Summary Attendance summary over a period
// @Tags Attendance
// @Produce json
// @Param period query string false "week, month or custom"
// @Param from query string false "Custom start (YYYY-MM-DD)"
// @Param to query string false "Custom end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	req := service.AttendanceSummaryRequest{
		Period: strings.ToLower(c.DefaultQuery("period", "week")),
		From:   c.Query("from"),
		To:     c.Query("to"),
	}
	summary, err := h.attendance.Summary(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// PrintSheet godoc
// @Summary Printable attendance sheet of a course
// @Tags Attendance
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /attendance/courses/{id}/print [get]
func (h *AttendanceHandler) PrintSheet(c *gin.Context) {
	file, err := h.sheets.AttendanceSheet(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

func sendFile(c *gin.Context, file *service.ExportFile) {
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
