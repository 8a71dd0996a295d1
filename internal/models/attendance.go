package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLeave   AttendanceStatus = "leave"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLeave:
		return true
	default:
		return false
	}
}

// Attendance is one student's mark for a course on a date.
type Attendance struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	AttendanceDate time.Time        `db:"attendance_date" json:"attendance_date"`
	Status         AttendanceStatus `db:"status" json:"status"`
	Notes          *string          `db:"notes" json:"notes,omitempty"`
	MarkedByUserID *string          `db:"marked_by_user_id" json:"marked_by_user_id,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecord extends the row with student and course names.
type AttendanceRecord struct {
	Attendance
	StudentFirstName   string  `db:"student_first_name" json:"student_first_name"`
	StudentLastName    string  `db:"student_last_name" json:"student_last_name"`
	RegistrationNumber *string `db:"registration_number" json:"registration_number,omitempty"`
	CourseName         string  `db:"course_name" json:"course_name"`
}

// AttendanceFilter defines query filters.
type AttendanceFilter struct {
	CourseID  string
	StudentID string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// AttendanceCounts aggregates marks for one student or one course.
type AttendanceCounts struct {
	Present int     `db:"present" json:"present"`
	Absent  int     `db:"absent" json:"absent"`
	Leave   int     `db:"leave" json:"leave"`
	Total   int     `db:"total" json:"total"`
	Percent float64 `db:"-" json:"percent"`
}

// ComputePercent fills Percent as present over total.
func (c *AttendanceCounts) ComputePercent() {
	if c.Total == 0 {
		c.Percent = 0
		return
	}
	c.Percent = float64(c.Present) / float64(c.Total) * 100
}

// StudentAttendanceRow is a per-student line in a course report.
type StudentAttendanceRow struct {
	StudentID          string  `db:"student_id" json:"student_id"`
	FirstName          string  `db:"first_name" json:"first_name"`
	LastName           string  `db:"last_name" json:"last_name"`
	RegistrationNumber *string `db:"registration_number" json:"registration_number,omitempty"`
	AttendanceCounts
}

// CourseAttendanceRow is a per-course line in a student report.
type CourseAttendanceRow struct {
	CourseID   string `db:"course_id" json:"course_id"`
	CourseName string `db:"course_name" json:"course_name"`
	AttendanceCounts
}

// BulkOperationMode controls how bulk marking treats invalid items.
type BulkOperationMode string

const (
	BulkModeAtomic         BulkOperationMode = "atomic"
	BulkModePartialOnError BulkOperationMode = "partial_on_error"
)

// AttendanceBulkConflict reports an item skipped during bulk marking.
type AttendanceBulkConflict struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}
