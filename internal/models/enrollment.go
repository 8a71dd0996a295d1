package models

import "time"

// Enrollment captures a student's registration to a course.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	EnrollDate time.Time `db:"enroll_date" json:"enroll_date"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentFirstName   string  `db:"student_first_name" json:"student_first_name"`
	StudentLastName    string  `db:"student_last_name" json:"student_last_name"`
	RegistrationNumber *string `db:"registration_number" json:"registration_number,omitempty"`
	CourseName         string  `db:"course_name" json:"course_name"`
}
