package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/export"
)

// ExportEntity names a dataset that can be downloaded as CSV or PDF.
type ExportEntity string

const (
	ExportStudents   ExportEntity = "students"
	ExportCourses    ExportEntity = "courses"
	ExportPayments   ExportEntity = "payments"
	ExportAttendance ExportEntity = "attendance"
)

// Valid reports whether e is a known entity.
func (e ExportEntity) Valid() bool {
	switch e {
	case ExportStudents, ExportCourses, ExportPayments, ExportAttendance:
		return true
	default:
		return false
	}
}

// Content types returned with rendered files.
const (
	ContentTypeCSV = "text/csv; charset=utf-8"
	ContentTypePDF = "application/pdf"
)

type exportSource interface {
	Students(ctx context.Context, exec sqlx.ExtContext) ([]models.Student, error)
	Courses(ctx context.Context, exec sqlx.ExtContext) ([]models.Course, error)
	Payments(ctx context.Context, exec sqlx.ExtContext) ([]models.PaymentDetail, error)
	Attendance(ctx context.Context, exec sqlx.ExtContext) ([]models.AttendanceRecord, error)
}

type courseAttendanceReporter interface {
	CourseReport(ctx context.Context, courseID, from, to string) ([]models.StudentAttendanceRow, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportServiceParams groups constructor dependencies.
type ExportServiceParams struct {
	Source     exportSource
	Attendance courseAttendanceReporter
	Courses    studentCourseReader
	Settings   SettingStore
	CSV        csvRenderer
	PDF        pdfRenderer
	WidePDF    pdfRenderer
	Logger     *zap.Logger
}

// ExportService renders datasets into CSV and PDF downloads.
type ExportService struct {
	source     exportSource
	attendance courseAttendanceReporter
	courses    studentCourseReader
	settings   SettingStore
	csv        csvRenderer
	pdf        pdfRenderer
	widePDF    pdfRenderer
	logger     *zap.Logger
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.CSV == nil {
		params.CSV = export.NewCSVExporter(true)
	}
	if params.PDF == nil {
		params.PDF = export.NewPDFExporter()
	}
	if params.WidePDF == nil {
		params.WidePDF = export.NewLandscapePDFExporter()
	}
	return &ExportService{
		source:     params.Source,
		attendance: params.Attendance,
		courses:    params.Courses,
		settings:   params.Settings,
		csv:        params.CSV,
		pdf:        params.PDF,
		widePDF:    params.WidePDF,
		logger:     params.Logger,
		now:        time.Now,
	}
}

// CSV renders entity as a CSV file named {entity}_backup_{ts}.csv.
func (s *ExportService) CSV(ctx context.Context, entity ExportEntity) (*ExportFile, error) {
	data, _, err := s.Dataset(ctx, entity)
	if err != nil {
		return nil, err
	}
	body, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	s.logger.Info("csv export rendered", zap.String("entity", string(entity)), zap.Int("rows", len(data.Rows)))
	return &ExportFile{
		Filename:    fmt.Sprintf("%s_backup_%s.csv", entity, s.now().Format(BackupFileLayout)),
		ContentType: ContentTypeCSV,
		Data:        body,
	}, nil
}

// PDF renders entity as a PDF table. Payments use landscape pages.
func (s *ExportService) PDF(ctx context.Context, entity ExportEntity) (*ExportFile, error) {
	data, title, err := s.Dataset(ctx, entity)
	if err != nil {
		return nil, err
	}
	renderer := s.pdf
	if entity == ExportPayments || entity == ExportStudents {
		renderer = s.widePDF
	}
	body, err := renderer.Render(data, s.titled(ctx, title))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("%s_report_%s.pdf", entity, s.now().Format(BackupFileLayout)),
		ContentType: ContentTypePDF,
		Data:        body,
	}, nil
}

// AttendanceSheet renders the per-student attendance counts of a course.
func (s *ExportService) AttendanceSheet(ctx context.Context, courseID, from, to string) (*ExportFile, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	rows, err := s.attendance.CourseReport(ctx, courseID, from, to)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{Headers: []string{"No", "Registration No", "Student", "Present", "Absent", "Leave", "Total", "Percent"}}
	for i, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"No":              strconv.Itoa(i + 1),
			"Registration No": deref(row.RegistrationNumber),
			"Student":         strings.TrimSpace(row.FirstName + " " + row.LastName),
			"Present":         strconv.Itoa(row.Present),
			"Absent":          strconv.Itoa(row.Absent),
			"Leave":           strconv.Itoa(row.Leave),
			"Total":           strconv.Itoa(row.Total),
			"Percent":         formatPercent(row.Percent),
		})
	}
	title := "Attendance Sheet - " + course.Name
	if from != "" || to != "" {
		title += fmt.Sprintf(" (%s to %s)", orDash(from), orDash(to))
	}
	body, err := s.pdf.Render(data, s.titled(ctx, title))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render attendance sheet")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("attendance_%s_%s.pdf", sanitizeFilename(strings.ToLower(course.Name)), s.now().Format(BackupFileLayout)),
		ContentType: ContentTypePDF,
		Data:        body,
	}, nil
}

// Dataset loads entity and flattens it into rows keyed by header.
func (s *ExportService) Dataset(ctx context.Context, entity ExportEntity) (export.Dataset, string, error) {
	switch entity {
	case ExportStudents:
		return s.studentDataset(ctx)
	case ExportCourses:
		return s.courseDataset(ctx)
	case ExportPayments:
		return s.paymentDataset(ctx)
	case ExportAttendance:
		return s.attendanceDataset(ctx)
	default:
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export entity %q", entity))
	}
}

func (s *ExportService) studentDataset(ctx context.Context) (export.Dataset, string, error) {
	students, err := s.source.Students(ctx, nil)
	if err != nil {
		return export.Dataset{}, "", loadFailed(err, "students")
	}
	data := export.Dataset{Headers: []string{"Registration No", "Name", "Gender", "Date of Birth", "Admission Type", "Admission Date", "Category", "Status", "Phone", "Guardian"}}
	for _, st := range students {
		data.Rows = append(data.Rows, map[string]string{
			"Registration No": deref(st.RegistrationNumber),
			"Name":            st.FullName(),
			"Gender":          st.Gender,
			"Date of Birth":   derefDate(st.DateOfBirth),
			"Admission Type":  st.AdmissionType,
			"Admission Date":  st.AdmissionDate.Format(models.SnapshotDateLayout),
			"Category":        st.Category,
			"Status":          string(st.Status),
			"Phone":           deref(st.Phone),
			"Guardian":        deref(st.GuardianName),
		})
	}
	return data, "Students", nil
}

func (s *ExportService) courseDataset(ctx context.Context) (export.Dataset, string, error) {
	courses, err := s.source.Courses(ctx, nil)
	if err != nil {
		return export.Dataset{}, "", loadFailed(err, "courses")
	}
	data := export.Dataset{Headers: []string{"Name", "Instructor", "Contact", "Fee", "Seats"}}
	for _, c := range courses {
		data.Rows = append(data.Rows, map[string]string{
			"Name":       c.Name,
			"Instructor": deref(c.InstructorName),
			"Contact":    deref(c.InstructorContact),
			"Fee":        formatAmount(c.Fee),
			"Seats":      strconv.Itoa(c.Seats),
		})
	}
	return data, "Courses", nil
}

func (s *ExportService) paymentDataset(ctx context.Context) (export.Dataset, string, error) {
	payments, err := s.source.Payments(ctx, nil)
	if err != nil {
		return export.Dataset{}, "", loadFailed(err, "payments")
	}
	data := export.Dataset{Headers: []string{"Date", "Registration No", "Student", "Category", "Course", "Due", "Paid", "Balance", "Status", "Method", "Reference"}}
	for _, p := range payments {
		data.Rows = append(data.Rows, map[string]string{
			"Date":            p.PaymentDate.Format(models.SnapshotDateLayout),
			"Registration No": deref(p.RegistrationNumber),
			"Student":         strings.TrimSpace(p.StudentFirstName + " " + p.StudentLastName),
			"Category":        p.CategoryName,
			"Course":          deref(p.CourseName),
			"Due":             formatAmount(p.AmountDue),
			"Paid":            formatAmount(p.AmountPaid),
			"Balance":         formatAmount(p.AmountDue - p.AmountPaid),
			"Status":          string(p.Status),
			"Method":          p.Method,
			"Reference":       deref(p.ReferenceNo),
		})
	}
	return data, "Payments", nil
}

func (s *ExportService) attendanceDataset(ctx context.Context) (export.Dataset, string, error) {
	records, err := s.source.Attendance(ctx, nil)
	if err != nil {
		return export.Dataset{}, "", loadFailed(err, "attendance")
	}
	data := export.Dataset{Headers: []string{"Date", "Registration No", "Student", "Course", "Status", "Notes"}}
	for _, a := range records {
		data.Rows = append(data.Rows, map[string]string{
			"Date":            a.AttendanceDate.Format(models.SnapshotDateLayout),
			"Registration No": deref(a.RegistrationNumber),
			"Student":         strings.TrimSpace(a.StudentFirstName + " " + a.StudentLastName),
			"Course":          a.CourseName,
			"Status":          string(a.Status),
			"Notes":           deref(a.Notes),
		})
	}
	return data, "Attendance", nil
}

// titled prefixes report titles with the configured school name.
func (s *ExportService) titled(ctx context.Context, title string) string {
	if s.settings == nil {
		return title
	}
	name, err := s.settings.Get(ctx, models.SettingSchoolName, DefaultSchoolName)
	if err != nil {
		s.logger.Warn("school name lookup failed", zap.Error(err))
		name = DefaultSchoolName
	}
	return name + " - " + title
}

func loadFailed(err error, entity string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+entity)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func derefDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(models.SnapshotDateLayout)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
