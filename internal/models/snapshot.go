package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Snapshot date layouts.
const (
	SnapshotDateLayout     = "02-01-2006"
	SnapshotDateTimeLayout = "02-01-2006 15:04:05"
)

// SnapshotCollections lists the top-level keys every snapshot must carry.
var SnapshotCollections = []string{
	"students",
	"courses",
	"enrollments",
	"payments",
	"attendance",
	"payment_categories",
}

// SnapshotID is a record id that decodes from either a JSON string or number.
type SnapshotID string

// UnmarshalJSON accepts "abc", 12 and null.
func (id *SnapshotID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SnapshotID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}
	*id = SnapshotID(n.String())
	return nil
}

// FlexFloat decodes numbers that may have been written as strings.
type FlexFloat float64

// UnmarshalJSON accepts 12.5, "12.5" and null.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("snapshot amount: %w", err)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("snapshot amount: %w", err)
	}
	*f = FlexFloat(v)
	return nil
}

// Snapshot is the full-dataset backup document.
type Snapshot struct {
	BackupDate        string                    `json:"backup_date"`
	Students          []SnapshotStudent         `json:"students"`
	Courses           []SnapshotCourse          `json:"courses"`
	Enrollments       []SnapshotEnrollment      `json:"enrollments"`
	Payments          []SnapshotPayment         `json:"payments"`
	Attendance        []SnapshotAttendance      `json:"attendance"`
	PaymentCategories []SnapshotPaymentCategory `json:"payment_categories"`
}

// SnapshotStudent is a flattened student record.
type SnapshotStudent struct {
	ID                 SnapshotID `json:"id"`
	FullName           string     `json:"full_name"`
	FirstName          string     `json:"first_name,omitempty"`
	LastName           string     `json:"last_name,omitempty"`
	RegistrationNumber *string    `json:"registration_number"`
	Gender             string     `json:"gender,omitempty"`
	DateOfBirth        *string    `json:"date_of_birth"`
	AdmissionType      string     `json:"admission_type,omitempty"`
	AdmissionDate      *string    `json:"admission_date,omitempty"`
	Category           string     `json:"category"`
	Status             string     `json:"status"`
	Phone              *string    `json:"phone"`
	Email              *string    `json:"email,omitempty"`
	Address            *string    `json:"address"`
	City               *string    `json:"city,omitempty"`
	GuardianName       *string    `json:"guardian_name,omitempty"`
	GuardianPhone      *string    `json:"guardian_phone,omitempty"`
	GuardianRelation   *string    `json:"guardian_relation,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
}

// SnapshotCourse is a flattened course record.
type SnapshotCourse struct {
	ID                SnapshotID `json:"id"`
	Name              string     `json:"name"`
	Description       *string    `json:"description"`
	InstructorName    *string    `json:"instructor_name"`
	InstructorContact *string    `json:"instructor_contact"`
	Fee               FlexFloat  `json:"fee"`
	Seats             int        `json:"seats"`
}

// SnapshotEnrollment is a flattened enrollment record.
type SnapshotEnrollment struct {
	ID         SnapshotID `json:"id"`
	StudentID  SnapshotID `json:"student_id"`
	CourseID   SnapshotID `json:"course_id"`
	EnrollDate *string    `json:"enroll_date"`
}

// SnapshotPayment is a flattened payment record.
type SnapshotPayment struct {
	ID            SnapshotID  `json:"id"`
	StudentID     SnapshotID  `json:"student_id"`
	CourseID      *SnapshotID `json:"course_id"`
	CategoryID    *SnapshotID `json:"category_id"`
	AmountDue     FlexFloat   `json:"amount_due"`
	AmountPaid    FlexFloat   `json:"amount_paid"`
	SecurityFees  FlexFloat   `json:"security_fees"`
	AdmissionFees FlexFloat   `json:"admission_fees"`
	Status        string      `json:"status"`
	Method        string      `json:"method"`
	ReferenceNo   *string     `json:"reference_no"`
	PaymentDate   *string     `json:"payment_date"`
	Notes         *string     `json:"notes,omitempty"`
}

// SnapshotAttendance is a flattened attendance record.
type SnapshotAttendance struct {
	ID             SnapshotID `json:"id"`
	StudentID      SnapshotID `json:"student_id"`
	CourseID       SnapshotID `json:"course_id"`
	AttendanceDate *string    `json:"attendance_date"`
	Status         string     `json:"status"`
	Notes          *string    `json:"notes"`
}

// SnapshotPaymentCategory is a flattened payment category record.
type SnapshotPaymentCategory struct {
	ID            SnapshotID `json:"id"`
	Name          string     `json:"name"`
	Description   *string    `json:"description"`
	DefaultAmount FlexFloat  `json:"default_amount"`
	IsActive      *bool      `json:"is_active"`
}

// CollectionCount reports restored and skipped records for one collection.
type CollectionCount struct {
	Restored int `json:"restored"`
	Skipped  int `json:"skipped"`
}

// ImportResult summarises a restore per collection.
type ImportResult struct {
	PaymentCategories CollectionCount `json:"payment_categories"`
	Courses           CollectionCount `json:"courses"`
	Students          CollectionCount `json:"students"`
	Enrollments       CollectionCount `json:"enrollments"`
	Payments          CollectionCount `json:"payments"`
	Attendance        CollectionCount `json:"attendance"`
}

// ResetScope names what a destructive reset clears.
type ResetScope string

const (
	ResetPayments          ResetScope = "payments"
	ResetAttendance        ResetScope = "attendance"
	ResetEnrollments       ResetScope = "enrollments"
	ResetCourses           ResetScope = "courses"
	ResetStudents          ResetScope = "students"
	ResetPaymentCategories ResetScope = "payment_categories"
	ResetAll               ResetScope = "all"
)

// Valid reports whether s is a known scope.
func (s ResetScope) Valid() bool {
	switch s {
	case ResetPayments, ResetAttendance, ResetEnrollments, ResetCourses, ResetStudents, ResetPaymentCategories, ResetAll:
		return true
	default:
		return false
	}
}

// ResetResult reports rows removed per table.
type ResetResult struct {
	Scope   ResetScope       `json:"scope"`
	Deleted map[string]int64 `json:"deleted"`
}

// BackupStats counts rows per table.
type BackupStats struct {
	Students          int `db:"students" json:"students"`
	Courses           int `db:"courses" json:"courses"`
	Enrollments       int `db:"enrollments" json:"enrollments"`
	Attendance        int `db:"attendance" json:"attendance"`
	Payments          int `db:"payments" json:"payments"`
	PaymentCategories int `db:"payment_categories" json:"payment_categories"`
	Users             int `db:"users" json:"users"`
}

// StoredSnapshot describes a backup file kept on disk.
type StoredSnapshot struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at"`
	DownloadURL string `json:"download_url"`
}
