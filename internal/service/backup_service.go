package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/middleware/requestid"
)

// BackupFileLayout is the timestamp layout used in backup file names.
const BackupFileLayout = "02_01_2006_15_04_05"

type backupRepository interface {
	TryLock(ctx context.Context, tx sqlx.ExtContext) (bool, error)
	Students(ctx context.Context, exec sqlx.ExtContext) ([]models.Student, error)
	Courses(ctx context.Context, exec sqlx.ExtContext) ([]models.Course, error)
	Enrollments(ctx context.Context, exec sqlx.ExtContext) ([]models.Enrollment, error)
	Payments(ctx context.Context, exec sqlx.ExtContext) ([]models.PaymentDetail, error)
	Attendance(ctx context.Context, exec sqlx.ExtContext) ([]models.AttendanceRecord, error)
	PaymentCategories(ctx context.Context, exec sqlx.ExtContext) ([]models.PaymentCategory, error)
	InsertPaymentCategory(ctx context.Context, exec sqlx.ExtContext, category *models.PaymentCategory) error
	InsertCourse(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error
	InsertStudent(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	InsertEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	InsertPayment(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error
	InsertAttendance(ctx context.Context, exec sqlx.ExtContext, record *models.Attendance) error
	Reset(ctx context.Context, exec sqlx.ExtContext, scope models.ResetScope) (map[string]int64, error)
	Stats(ctx context.Context) (*models.BackupStats, error)
}

type registrationReseeder interface {
	Reseed(ctx context.Context, exec sqlx.ExtContext) error
}

type dashboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// BackupService exports, restores and resets the whole dataset.
type BackupService struct {
	repo      backupRepository
	tx        txProvider
	allocator registrationReseeder
	dashboard dashboardInvalidator
	audit     auditLogger
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// BackupServiceParams groups constructor dependencies.
type BackupServiceParams struct {
	Repo      backupRepository
	Tx        txProvider
	Allocator registrationReseeder
	Dashboard dashboardInvalidator
	Audit     auditLogger
	Metrics   *MetricsService
	Logger    *zap.Logger
}

// NewBackupService constructs the backup service.
func NewBackupService(params BackupServiceParams) *BackupService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{
		repo:      params.Repo,
		tx:        params.Tx,
		allocator: params.Allocator,
		dashboard: params.Dashboard,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// BackupFilename names an exported snapshot.
func BackupFilename(ts time.Time) string {
	return "complete_backup_" + ts.Format(BackupFileLayout) + ".json"
}

// Export reads every collection in one repeatable-read, read-only
// transaction and flattens it into a snapshot document.
func (s *BackupService) Export(ctx context.Context, actor *models.JWTClaims) (*models.Snapshot, error) {
	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin export")
	}
	defer tx.Rollback() //nolint:errcheck

	snapshot, err := s.readSnapshot(ctx, tx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export data")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finish export")
	}

	s.metrics.RecordBackupExport()
	s.record(ctx, actor, models.AuditActionBackupExport, map[string]int{
		"students": len(snapshot.Students),
		"courses":  len(snapshot.Courses),
		"payments": len(snapshot.Payments),
	})
	s.logger.Info("backup exported",
		zap.Int("students", len(snapshot.Students)),
		zap.Int("courses", len(snapshot.Courses)),
		zap.Int("payments", len(snapshot.Payments)),
		zap.Int("attendance", len(snapshot.Attendance)))
	return snapshot, nil
}

func (s *BackupService) readSnapshot(ctx context.Context, exec sqlx.ExtContext) (*models.Snapshot, error) {
	students, err := s.repo.Students(ctx, exec)
	if err != nil {
		return nil, err
	}
	courses, err := s.repo.Courses(ctx, exec)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.repo.Enrollments(ctx, exec)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.Payments(ctx, exec)
	if err != nil {
		return nil, err
	}
	attendance, err := s.repo.Attendance(ctx, exec)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.PaymentCategories(ctx, exec)
	if err != nil {
		return nil, err
	}

	snapshot := &models.Snapshot{
		BackupDate:        s.now().Format(models.SnapshotDateTimeLayout),
		Students:          make([]models.SnapshotStudent, 0, len(students)),
		Courses:           make([]models.SnapshotCourse, 0, len(courses)),
		Enrollments:       make([]models.SnapshotEnrollment, 0, len(enrollments)),
		Payments:          make([]models.SnapshotPayment, 0, len(payments)),
		Attendance:        make([]models.SnapshotAttendance, 0, len(attendance)),
		PaymentCategories: make([]models.SnapshotPaymentCategory, 0, len(categories)),
	}
	for _, st := range students {
		snapshot.Students = append(snapshot.Students, models.SnapshotStudent{
			ID:                 models.SnapshotID(st.ID),
			FullName:           st.FullName(),
			FirstName:          st.FirstName,
			LastName:           st.LastName,
			RegistrationNumber: st.RegistrationNumber,
			Gender:             st.Gender,
			DateOfBirth:        formatSnapshotDate(st.DateOfBirth),
			AdmissionType:      st.AdmissionType,
			AdmissionDate:      formatSnapshotDate(&st.AdmissionDate),
			Category:           st.Category,
			Status:             string(st.Status),
			Phone:              st.Phone,
			Email:              st.Email,
			Address:            st.Address,
			City:               st.City,
			GuardianName:       st.GuardianName,
			GuardianPhone:      st.GuardianPhone,
			GuardianRelation:   st.GuardianRelation,
			Notes:              st.Notes,
		})
	}
	for _, c := range courses {
		snapshot.Courses = append(snapshot.Courses, models.SnapshotCourse{
			ID:                models.SnapshotID(c.ID),
			Name:              c.Name,
			Description:       c.Description,
			InstructorName:    c.InstructorName,
			InstructorContact: c.InstructorContact,
			Fee:               models.FlexFloat(c.Fee),
			Seats:             c.Seats,
		})
	}
	for _, e := range enrollments {
		snapshot.Enrollments = append(snapshot.Enrollments, models.SnapshotEnrollment{
			ID:         models.SnapshotID(e.ID),
			StudentID:  models.SnapshotID(e.StudentID),
			CourseID:   models.SnapshotID(e.CourseID),
			EnrollDate: formatSnapshotDate(&e.EnrollDate),
		})
	}
	for _, p := range payments {
		categoryID := models.SnapshotID(p.CategoryID)
		var courseID *models.SnapshotID
		if p.CourseID != nil {
			id := models.SnapshotID(*p.CourseID)
			courseID = &id
		}
		snapshot.Payments = append(snapshot.Payments, models.SnapshotPayment{
			ID:            models.SnapshotID(p.ID),
			StudentID:     models.SnapshotID(p.StudentID),
			CourseID:      courseID,
			CategoryID:    &categoryID,
			AmountDue:     models.FlexFloat(p.AmountDue),
			AmountPaid:    models.FlexFloat(p.AmountPaid),
			SecurityFees:  models.FlexFloat(p.SecurityFees),
			AdmissionFees: models.FlexFloat(p.AdmissionFees),
			Status:        string(p.Status),
			Method:        p.Method,
			ReferenceNo:   p.ReferenceNo,
			PaymentDate:   formatSnapshotDate(&p.PaymentDate),
			Notes:         p.Notes,
		})
	}
	for _, a := range attendance {
		snapshot.Attendance = append(snapshot.Attendance, models.SnapshotAttendance{
			ID:             models.SnapshotID(a.ID),
			StudentID:      models.SnapshotID(a.StudentID),
			CourseID:       models.SnapshotID(a.CourseID),
			AttendanceDate: formatSnapshotDate(&a.AttendanceDate),
			Status:         string(a.Status),
			Notes:          a.Notes,
		})
	}
	for _, c := range categories {
		active := c.IsActive
		snapshot.PaymentCategories = append(snapshot.PaymentCategories, models.SnapshotPaymentCategory{
			ID:            models.SnapshotID(c.ID),
			Name:          c.Name,
			Description:   c.Description,
			DefaultAmount: models.FlexFloat(c.DefaultAmount),
			IsActive:      &active,
		})
	}
	return snapshot, nil
}

// ParseSnapshot checks the required top-level collections on the raw document
// before decoding it.
func ParseSnapshot(raw []byte) (*models.Snapshot, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, appErrors.Validation(err, "backup file is not a JSON object")
	}
	var missing []string
	for _, key := range models.SnapshotCollections {
		if _, ok := top[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "backup file is missing: "+strings.Join(missing, ", "))
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, appErrors.Validation(err, "backup file has an invalid structure")
	}
	return &snapshot, nil
}

// Restore replaces the dataset with the snapshot in raw. The reset and the
// import share one transaction guarded by the restore advisory lock.
func (s *BackupService) Restore(ctx context.Context, raw []byte, actor *models.JWTClaims) (result *models.ImportResult, err error) {
	snapshot, err := ParseSnapshot(raw)
	if err != nil {
		s.metrics.RecordBackupRestore("invalid")
		return nil, err
	}

	err = s.locked(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.repo.Reset(ctx, tx, models.ResetAll); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear data before restore")
		}
		imported, err := s.Import(ctx, tx, snapshot)
		if err != nil {
			return err
		}
		if s.allocator != nil {
			if err := s.allocator.Reseed(ctx, tx); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reseed registration counters")
			}
		}
		result = imported
		return nil
	})
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrRestoreInProgress.Code {
			s.metrics.RecordBackupRestore("locked")
		} else {
			s.metrics.RecordBackupRestore("failed")
		}
		return nil, err
	}

	s.metrics.RecordBackupRestore("ok")
	s.invalidateDashboard(ctx)
	s.record(ctx, actor, models.AuditActionBackupRestore, result)
	s.logger.Info("backup restored",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("backup_date", snapshot.BackupDate),
		zap.Int("students", result.Students.Restored),
		zap.Int("students_skipped", result.Students.Skipped),
		zap.Int("payments", result.Payments.Restored),
		zap.Int("payments_skipped", result.Payments.Skipped))
	return result, nil
}

// Reset deletes the tables of scope under the restore lock.
func (s *BackupService) Reset(ctx context.Context, scope models.ResetScope, actor *models.JWTClaims) (*models.ResetResult, error) {
	if !scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown reset scope %q", scope))
	}
	var deleted map[string]int64
	err := s.locked(ctx, func(tx *sqlx.Tx) error {
		var err error
		deleted, err = s.repo.Reset(ctx, tx, scope)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset data")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBackupReset(string(scope))
	s.invalidateDashboard(ctx)
	result := &models.ResetResult{Scope: scope, Deleted: deleted}
	s.record(ctx, actor, models.AuditActionBackupReset, result)
	s.logger.Warn("data reset",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("scope", string(scope)),
		zap.Any("deleted", deleted))
	return result, nil
}

// Stats counts rows per table.
func (s *BackupService) Stats(ctx context.Context) (*models.BackupStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load backup stats")
	}
	return stats, nil
}

func (s *BackupService) locked(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ok, err := s.repo.TryLock(ctx, tx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire restore lock")
	}
	if !ok {
		err = appErrors.Clone(appErrors.ErrRestoreInProgress, "another restore or reset is running")
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

// Import inserts the snapshot through exec in dependency order, remapping
// source ids. Records whose parents are missing are skipped and counted.
func (s *BackupService) Import(ctx context.Context, exec sqlx.ExtContext, snapshot *models.Snapshot) (*models.ImportResult, error) {
	imp := &snapshotImporter{
		repo:       s.repo,
		exec:       exec,
		now:        s.now().UTC(),
		categories: make(map[models.SnapshotID]string),
		courses:    make(map[models.SnapshotID]string),
		students:   make(map[models.SnapshotID]string),
	}
	steps := []func(context.Context, *models.Snapshot) error{
		imp.importCategories,
		imp.importCourses,
		imp.importStudents,
		imp.importEnrollments,
		imp.importPayments,
		imp.importAttendance,
	}
	for _, step := range steps {
		if err := step(ctx, snapshot); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import backup")
		}
	}
	return &imp.result, nil
}

type snapshotImporter struct {
	repo   backupRepository
	exec   sqlx.ExtContext
	now    time.Time
	result models.ImportResult

	categories    map[models.SnapshotID]string
	firstCategory string
	courses       map[models.SnapshotID]string
	students      map[models.SnapshotID]string
}

func (imp *snapshotImporter) importCategories(ctx context.Context, snapshot *models.Snapshot) error {
	byName := make(map[string]string)
	for _, rec := range snapshot.PaymentCategories {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			imp.result.PaymentCategories.Skipped++
			continue
		}
		if id, dup := byName[name]; dup {
			imp.categories[rec.ID] = id
			imp.result.PaymentCategories.Skipped++
			continue
		}
		category := &models.PaymentCategory{
			ID:            uuid.NewString(),
			Name:          name,
			Description:   rec.Description,
			DefaultAmount: float64(rec.DefaultAmount),
			IsActive:      rec.IsActive == nil || *rec.IsActive,
			CreatedAt:     imp.now,
			UpdatedAt:     imp.now,
		}
		if err := imp.repo.InsertPaymentCategory(ctx, imp.exec, category); err != nil {
			return err
		}
		byName[name] = category.ID
		imp.categories[rec.ID] = category.ID
		if imp.firstCategory == "" {
			imp.firstCategory = category.ID
		}
		imp.result.PaymentCategories.Restored++
	}
	return nil
}

func (imp *snapshotImporter) importCourses(ctx context.Context, snapshot *models.Snapshot) error {
	byName := make(map[string]string)
	for _, rec := range snapshot.Courses {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			imp.result.Courses.Skipped++
			continue
		}
		if id, dup := byName[name]; dup {
			imp.courses[rec.ID] = id
			imp.result.Courses.Skipped++
			continue
		}
		seats := rec.Seats
		if seats < 0 {
			seats = 0
		}
		fee := float64(rec.Fee)
		if fee < 0 {
			fee = 0
		}
		course := &models.Course{
			ID:                uuid.NewString(),
			Name:              name,
			Description:       rec.Description,
			InstructorName:    rec.InstructorName,
			InstructorContact: rec.InstructorContact,
			Fee:               fee,
			Seats:             seats,
			CreatedAt:         imp.now,
			UpdatedAt:         imp.now,
		}
		if err := imp.repo.InsertCourse(ctx, imp.exec, course); err != nil {
			return err
		}
		byName[name] = course.ID
		imp.courses[rec.ID] = course.ID
		imp.result.Courses.Restored++
	}
	return nil
}

func (imp *snapshotImporter) importStudents(ctx context.Context, snapshot *models.Snapshot) error {
	numbers := make(map[string]struct{})
	for _, rec := range snapshot.Students {
		first, last := strings.TrimSpace(rec.FirstName), strings.TrimSpace(rec.LastName)
		if first == "" && last == "" {
			first, last = splitFullName(rec.FullName)
		}
		if first == "" {
			first, last = last, ""
		}
		if first == "" {
			imp.result.Students.Skipped++
			continue
		}
		regNumber := normalizeOptional(rec.RegistrationNumber)
		if regNumber != nil {
			if _, dup := numbers[*regNumber]; dup {
				imp.result.Students.Skipped++
				continue
			}
			numbers[*regNumber] = struct{}{}
		}
		admission := imp.now
		if parsed := parseSnapshotDate(rec.AdmissionDate); parsed != nil {
			admission = *parsed
		}
		student := &models.Student{
			ID:                 uuid.NewString(),
			RegistrationNumber: regNumber,
			FirstName:          first,
			LastName:           last,
			Gender:             normalizeGender(rec.Gender),
			DateOfBirth:        parseSnapshotDate(rec.DateOfBirth),
			AdmissionType:      oneOf(rec.AdmissionType, models.AdmissionDayScholar, models.AdmissionDayScholar, models.AdmissionHostel),
			Category:           oneOf(rec.Category, "regular", studentCategories...),
			Status:             models.StudentStatus(oneOf(rec.Status, string(models.StudentStatusActive), studentStatuses...)),
			AdmissionDate:      admission,
			Phone:              normalizeOptional(rec.Phone),
			Email:              normalizeOptional(rec.Email),
			Address:            normalizeOptional(rec.Address),
			City:               normalizeOptional(rec.City),
			GuardianName:       normalizeOptional(rec.GuardianName),
			GuardianPhone:      normalizeOptional(rec.GuardianPhone),
			GuardianRelation:   normalizeOptional(rec.GuardianRelation),
			Notes:              normalizeOptional(rec.Notes),
			CreatedAt:          imp.now,
			UpdatedAt:          imp.now,
		}
		if err := imp.repo.InsertStudent(ctx, imp.exec, student); err != nil {
			return err
		}
		imp.students[rec.ID] = student.ID
		imp.result.Students.Restored++
	}
	return nil
}

func (imp *snapshotImporter) importEnrollments(ctx context.Context, snapshot *models.Snapshot) error {
	seen := make(map[string]struct{})
	for _, rec := range snapshot.Enrollments {
		studentID, okStudent := imp.students[rec.StudentID]
		courseID, okCourse := imp.courses[rec.CourseID]
		if !okStudent || !okCourse {
			imp.result.Enrollments.Skipped++
			continue
		}
		key := studentID + "/" + courseID
		if _, dup := seen[key]; dup {
			imp.result.Enrollments.Skipped++
			continue
		}
		seen[key] = struct{}{}
		enrollment := &models.Enrollment{
			ID:         uuid.NewString(),
			StudentID:  studentID,
			CourseID:   courseID,
			EnrollDate: imp.dateOrToday(rec.EnrollDate),
			CreatedAt:  imp.now,
		}
		if err := imp.repo.InsertEnrollment(ctx, imp.exec, enrollment); err != nil {
			return err
		}
		imp.result.Enrollments.Restored++
	}
	return nil
}

func (imp *snapshotImporter) importPayments(ctx context.Context, snapshot *models.Snapshot) error {
	for _, rec := range snapshot.Payments {
		studentID, ok := imp.students[rec.StudentID]
		if !ok {
			imp.result.Payments.Skipped++
			continue
		}
		var courseID *string
		if rec.CourseID != nil && *rec.CourseID != "" {
			mapped, ok := imp.courses[*rec.CourseID]
			if !ok {
				imp.result.Payments.Skipped++
				continue
			}
			courseID = &mapped
		}
		categoryID := imp.firstCategory
		if rec.CategoryID != nil && *rec.CategoryID != "" {
			mapped, ok := imp.categories[*rec.CategoryID]
			if !ok {
				imp.result.Payments.Skipped++
				continue
			}
			categoryID = mapped
		}
		if categoryID == "" {
			imp.result.Payments.Skipped++
			continue
		}
		status := models.PaymentStatus(strings.ToLower(strings.TrimSpace(rec.Status)))
		if !status.Valid() {
			status = deriveStatus(float64(rec.AmountDue), float64(rec.AmountPaid))
		}
		payment := &models.Payment{
			ID:            uuid.NewString(),
			StudentID:     studentID,
			CategoryID:    categoryID,
			CourseID:      courseID,
			AmountDue:     float64(rec.AmountDue),
			AmountPaid:    float64(rec.AmountPaid),
			SecurityFees:  float64(rec.SecurityFees),
			AdmissionFees: float64(rec.AdmissionFees),
			Status:        status,
			Method:        oneOf(rec.Method, models.PaymentMethodCash, paymentMethods...),
			ReferenceNo:   normalizeOptional(rec.ReferenceNo),
			PaymentDate:   imp.dateOrToday(rec.PaymentDate),
			Notes:         normalizeOptional(rec.Notes),
			CreatedAt:     imp.now,
			UpdatedAt:     imp.now,
		}
		if err := imp.repo.InsertPayment(ctx, imp.exec, payment); err != nil {
			return err
		}
		imp.result.Payments.Restored++
	}
	return nil
}

func (imp *snapshotImporter) importAttendance(ctx context.Context, snapshot *models.Snapshot) error {
	seen := make(map[string]struct{})
	for _, rec := range snapshot.Attendance {
		studentID, okStudent := imp.students[rec.StudentID]
		courseID, okCourse := imp.courses[rec.CourseID]
		status := models.AttendanceStatus(strings.ToLower(strings.TrimSpace(rec.Status)))
		if !okStudent || !okCourse || !status.Valid() {
			imp.result.Attendance.Skipped++
			continue
		}
		date := imp.dateOrToday(rec.AttendanceDate)
		key := studentID + "/" + courseID + "/" + date.Format(models.SnapshotDateLayout)
		if _, dup := seen[key]; dup {
			imp.result.Attendance.Skipped++
			continue
		}
		seen[key] = struct{}{}
		record := &models.Attendance{
			ID:             uuid.NewString(),
			StudentID:      studentID,
			CourseID:       courseID,
			AttendanceDate: date,
			Status:         status,
			Notes:          normalizeOptional(rec.Notes),
			CreatedAt:      imp.now,
			UpdatedAt:      imp.now,
		}
		if err := imp.repo.InsertAttendance(ctx, imp.exec, record); err != nil {
			return err
		}
		imp.result.Attendance.Restored++
	}
	return nil
}

func (imp *snapshotImporter) dateOrToday(raw *string) time.Time {
	if parsed := parseSnapshotDate(raw); parsed != nil {
		return *parsed
	}
	return truncateDay(imp.now)
}

var (
	studentCategories = []string{"regular", "needy", "orphan", "sponsored", "staff_child", "other"}
	studentStatuses   = []string{
		string(models.StudentStatusActive),
		string(models.StudentStatusInactive),
		string(models.StudentStatusGraduated),
		string(models.StudentStatusLeave),
	}
	paymentMethods = []string{
		models.PaymentMethodCash,
		models.PaymentMethodCheque,
		models.PaymentMethodBankTransfer,
		models.PaymentMethodOnline,
		models.PaymentMethodOther,
	}
)

// oneOf lower-cases raw and returns it when allowed, def otherwise.
func oneOf(raw, def string, allowed ...string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allowed {
		if value == candidate {
			return value
		}
	}
	return def
}

func normalizeGender(raw string) string {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return models.GenderOther
	}
	switch value[:1] {
	case models.GenderMale:
		return models.GenderMale
	case models.GenderFemale:
		return models.GenderFemale
	default:
		return models.GenderOther
	}
}

// splitFullName keeps the first and last words of a legacy full name.
func splitFullName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}

func parseSnapshotDate(raw *string) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	parsed, err := time.Parse(models.SnapshotDateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil
	}
	return &parsed
}

func formatSnapshotDate(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	formatted := t.Format(models.SnapshotDateLayout)
	return &formatted
}

func (s *BackupService) invalidateDashboard(ctx context.Context) {
	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}
}

func (s *BackupService) record(ctx context.Context, actor *models.JWTClaims, action string, payload interface{}) {
	if s.audit == nil {
		return
	}
	entry := models.NewAuditLog(action, "backup").ByClaims(actor).FromSystem("backup-service").Change(nil, payload)
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record backup audit", zap.String("action", action), zap.Error(err))
	}
}
