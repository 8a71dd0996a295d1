package models

import "time"

// Gender values stored on students.
const (
	GenderMale   = "M"
	GenderFemale = "F"
	GenderOther  = "O"
)

// StudentStatus tracks where a student is in their studies.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "active"
	StudentStatusInactive  StudentStatus = "inactive"
	StudentStatusGraduated StudentStatus = "graduated"
	StudentStatusLeave     StudentStatus = "leave"
)

// Valid reports whether s is one of the known statuses.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusActive, StudentStatusInactive, StudentStatusGraduated, StudentStatusLeave:
		return true
	}
	return false
}

// Admission types.
const (
	AdmissionDayScholar = "day_scholar"
	AdmissionHostel     = "hostel"
)

func ValidGender(g string) bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

func ValidAdmissionType(t string) bool {
	return t == AdmissionDayScholar || t == AdmissionHostel
}

// Student represents a learner registered in the institution.
type Student struct {
	ID                 string        `db:"id" json:"id"`
	RegistrationNumber *string       `db:"registration_number" json:"registration_number,omitempty"`
	FirstName          string        `db:"first_name" json:"first_name"`
	LastName           string        `db:"last_name" json:"last_name"`
	Gender             string        `db:"gender" json:"gender"`
	DateOfBirth        *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	AdmissionType      string        `db:"admission_type" json:"admission_type"`
	Category           string        `db:"category" json:"category"`
	Status             StudentStatus `db:"status" json:"status"`
	AdmissionDate      time.Time     `db:"admission_date" json:"admission_date"`
	Phone              *string       `db:"phone" json:"phone,omitempty"`
	Email              *string       `db:"email" json:"email,omitempty"`
	Address            *string       `db:"address" json:"address,omitempty"`
	City               *string       `db:"city" json:"city,omitempty"`
	GuardianName       *string       `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianPhone      *string       `db:"guardian_phone" json:"guardian_phone,omitempty"`
	GuardianRelation   *string       `db:"guardian_relation" json:"guardian_relation,omitempty"`
	Notes              *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search        string
	Status        string
	Category      string
	Gender        string
	AdmissionType string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// StudentDues lists a student's payments with running totals.
type StudentDues struct {
	Student   Student         `json:"student"`
	Payments  []PaymentDetail `json:"payments"`
	TotalDue  float64         `json:"total_due"`
	TotalPaid float64         `json:"total_paid"`
	Remaining float64         `json:"remaining"`
}
