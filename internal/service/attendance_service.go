package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/dto"
	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

// Summary periods.
const (
	SummaryPeriodWeek   = "week"
	SummaryPeriodMonth  = "month"
	SummaryPeriodCustom = "custom"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.Attendance) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	CourseReport(ctx context.Context, courseID string, from, to *time.Time) ([]models.StudentAttendanceRow, error)
	StudentReport(ctx context.Context, studentID string, from, to *time.Time) ([]models.CourseAttendanceRow, error)
	SummaryByCourse(ctx context.Context, from, to time.Time) ([]models.CourseAttendanceRow, error)
}

type attendanceEnrollmentChecker interface {
	Exists(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (bool, error)
}

// AttendanceService coordinates attendance workflows.
type AttendanceService struct {
	repo        attendanceRepository
	enrollments attendanceEnrollmentChecker
	courses     studentCourseReader
	students    enrollmentStudentReader
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// AttendanceServiceParams groups constructor dependencies.
type AttendanceServiceParams struct {
	Repo        attendanceRepository
	Enrollments attendanceEnrollmentChecker
	Courses     studentCourseReader
	Students    enrollmentStudentReader
	Tx          txProvider
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(params AttendanceServiceParams) *AttendanceService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{
		repo:        params.Repo,
		enrollments: params.Enrollments,
		courses:     params.Courses,
		students:    params.Students,
		tx:          params.Tx,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	svc.validator.RegisterValidation("bulk_mode", func(fl validator.FieldLevel) bool {
		mode := models.BulkOperationMode(strings.ToLower(fl.Field().String()))
		return mode == models.BulkModeAtomic || mode == models.BulkModePartialOnError
	})
	return svc
}

// AttendanceListRequest filters attendance listing.
type AttendanceListRequest struct {
	CourseID  string  `json:"course_id"`
	StudentID string  `json:"student_id"`
	Status    *string `json:"status" validate:"omitempty,attendance_status"`
	DateFrom  string  `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo    string  `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
	Page      int     `json:"page"`
	PageSize  int     `json:"page_size"`
	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
}

// MarkAttendanceRequest marks one student for a course and date.
type MarkAttendanceRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	CourseID  string  `json:"course_id" validate:"required"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Notes     *string `json:"notes"`
}

// BulkAttendanceItem is one student in a bulk mark.
type BulkAttendanceItem struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Notes     *string `json:"notes"`
}

// BulkMarkAttendanceRequest marks many students of a course on one date.
type BulkMarkAttendanceRequest struct {
	CourseID string               `json:"course_id" validate:"required"`
	Date     string               `json:"date" validate:"required,datetime=2006-01-02"`
	Mode     string               `json:"mode" validate:"omitempty,bulk_mode"`
	Items    []BulkAttendanceItem `json:"items" validate:"required,min=1,dive"`
}

// BulkAttendanceResult summarises bulk execution.
type BulkAttendanceResult struct {
	Processed int                             `json:"processed"`
	Success   int                             `json:"success"`
	Conflicts []models.AttendanceBulkConflict `json:"conflicts,omitempty"`
}

// AttendanceSummaryRequest selects the summary window.
type AttendanceSummaryRequest struct {
	Period string `json:"period" validate:"omitempty,oneof=week month custom"`
	From   string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

// List returns paginated attendance marks.
func (s *AttendanceService) List(ctx context.Context, req AttendanceListRequest) ([]models.AttendanceRecord, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Validation(err, "invalid filter")
	}
	filter := models.AttendanceFilter{
		CourseID:  req.CourseID,
		StudentID: req.StudentID,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	if req.Status != nil {
		status := models.AttendanceStatus(strings.ToLower(*req.Status))
		filter.Status = &status
	}
	var err error
	if filter.DateFrom, err = parseOptionalDate(req.DateFrom, "date_from"); err != nil {
		return nil, nil, err
	}
	if filter.DateTo, err = parseOptionalDate(req.DateTo, "date_to"); err != nil {
		return nil, nil, err
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return rows, paginationFor(req.Page, req.PageSize, total), nil
}

// Mark records one attendance mark, replacing any existing mark for the day.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest, actor *models.JWTClaims) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	date, err := time.Parse(requestDateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	enrolled, err := s.enrollments.Exists(ctx, nil, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in course")
	}
	record := &models.Attendance{
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		AttendanceDate: date,
		Status:         models.AttendanceStatus(strings.ToLower(req.Status)),
		Notes:          normalizeOptional(req.Notes),
		MarkedByUserID: userIDPtr(actor),
	}
	if err := s.repo.Upsert(ctx, nil, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	return record, nil
}

// BulkMark marks several students of one course on one date inside a single
// transaction. In atomic mode any unenrolled or duplicate student rejects the
// whole batch; partial_on_error skips those items and reports them.
func (s *AttendanceService) BulkMark(ctx context.Context, req BulkMarkAttendanceRequest, actor *models.JWTClaims) (result *BulkAttendanceResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid payload")
	}
	date, err := time.Parse(requestDateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	mode := models.BulkOperationMode(strings.ToLower(req.Mode))
	if mode == "" {
		mode = models.BulkModeAtomic
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result = &BulkAttendanceResult{Processed: len(req.Items)}
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		reason := ""
		if _, dup := seen[item.StudentID]; dup {
			reason = "duplicate student in payload"
		} else {
			seen[item.StudentID] = struct{}{}
			enrolled, checkErr := s.enrollments.Exists(ctx, tx, item.StudentID, req.CourseID)
			if checkErr != nil {
				err = appErrors.Wrap(checkErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
				return nil, err
			}
			if !enrolled {
				reason = "student is not enrolled in course"
			}
		}
		if reason != "" {
			if mode == models.BulkModeAtomic {
				err = appErrors.Clone(appErrors.ErrValidation, reason+": "+item.StudentID)
				return nil, err
			}
			result.Conflicts = append(result.Conflicts, models.AttendanceBulkConflict{StudentID: item.StudentID, Reason: reason})
			continue
		}
		record := &models.Attendance{
			StudentID:      item.StudentID,
			CourseID:       req.CourseID,
			AttendanceDate: date,
			Status:         models.AttendanceStatus(strings.ToLower(item.Status)),
			Notes:          normalizeOptional(item.Notes),
			MarkedByUserID: userIDPtr(actor),
		}
		if err = s.repo.Upsert(ctx, tx, record); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
			return nil, err
		}
		result.Success++
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit attendance")
		return nil, err
	}
	s.logger.Info("attendance bulk marked", zap.String("course_id", req.CourseID), zap.String("date", req.Date), zap.Int("success", result.Success), zap.Int("skipped", len(result.Conflicts)))
	return result, nil
}

// CourseReport returns per-student counts for a course.
func (s *AttendanceService) CourseReport(ctx context.Context, courseID, from, to string) ([]models.StudentAttendanceRow, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	fromDate, toDate, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.CourseReport(ctx, courseID, fromDate, toDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course report")
	}
	return rows, nil
}

// StudentReport returns per-course counts for a student.
func (s *AttendanceService) StudentReport(ctx context.Context, studentID, from, to string) ([]models.CourseAttendanceRow, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	fromDate, toDate, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.StudentReport(ctx, studentID, fromDate, toDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student report")
	}
	return rows, nil
}

// Summary aggregates marks over the last week, the current month or a custom range.
func (s *AttendanceService) Summary(ctx context.Context, req AttendanceSummaryRequest) (*dto.AttendanceSummaryResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid summary request")
	}
	period := req.Period
	if period == "" {
		period = SummaryPeriodWeek
	}
	today := truncateDay(s.now())
	var from, to time.Time
	switch period {
	case SummaryPeriodWeek:
		from, to = today.AddDate(0, 0, -6), today
	case SummaryPeriodMonth:
		from, to = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC), today
	case SummaryPeriodCustom:
		fromDate, toDate, err := parseRange(req.From, req.To)
		if err != nil {
			return nil, err
		}
		if fromDate == nil || toDate == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "custom period requires from and to")
		}
		from, to = *fromDate, *toDate
	}

	rows, err := s.repo.SummaryByCourse(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}
	resp := &dto.AttendanceSummaryResponse{
		Period:   period,
		From:     from.Format(requestDateLayout),
		To:       to.Format(requestDateLayout),
		ByCourse: make([]dto.CourseSummary, 0, len(rows)),
	}
	var totals models.AttendanceCounts
	for _, row := range rows {
		totals.Present += row.Present
		totals.Absent += row.Absent
		totals.Leave += row.Leave
		totals.Total += row.Total
		resp.ByCourse = append(resp.ByCourse, dto.CourseSummary{
			CourseID:   row.CourseID,
			CourseName: row.CourseName,
			Present:    row.Present,
			Absent:     row.Absent,
			Leave:      row.Leave,
			Total:      row.Total,
			Percent:    row.Percent,
		})
	}
	totals.ComputePercent()
	resp.Present, resp.Absent, resp.Leave, resp.Total, resp.Percent = totals.Present, totals.Absent, totals.Leave, totals.Total, totals.Percent
	return resp, nil
}

func parseRange(from, to string) (*time.Time, *time.Time, error) {
	fromDate, err := parseOptionalDate(from, "from")
	if err != nil {
		return nil, nil, err
	}
	toDate, err := parseOptionalDate(to, "to")
	if err != nil {
		return nil, nil, err
	}
	if fromDate != nil && toDate != nil && toDate.Before(*fromDate) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	return fromDate, toDate, nil
}
