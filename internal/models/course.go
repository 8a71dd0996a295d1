package models

import "time"

// Course is a catalog entry students can enroll in.
type Course struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Description       *string   `db:"description" json:"description,omitempty"`
	InstructorName    *string   `db:"instructor_name" json:"instructor_name,omitempty"`
	InstructorContact *string   `db:"instructor_contact" json:"instructor_contact,omitempty"`
	Fee               float64   `db:"fee" json:"fee"`
	Seats             int       `db:"seats" json:"seats"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail adds enrollment derived values.
type CourseDetail struct {
	Course
	StudentCount   int `db:"student_count" json:"student_count"`
	AvailableSeats int `db:"available_seats" json:"available_seats"`
}

// CourseFilter scopes course listing.
type CourseFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
