package dto

// DashboardResponse captures the aggregated dashboard payload.
type DashboardResponse struct {
	TotalStudents          int                `json:"total_students"`
	TotalCourses           int                `json:"total_courses"`
	NewAdmissionsThisMonth int                `json:"new_admissions_this_month"`
	StudentsByGender       []LabelCount       `json:"students_by_gender"`
	StudentsByAdmission    []LabelCount       `json:"students_by_admission_type"`
	GenderByAdmission      []GenderAdmission  `json:"gender_by_admission_type"`
	FeesCollectedThisMonth float64            `json:"fees_collected_this_month"`
	FeesPending            float64            `json:"fees_pending"`
	TodayAttendanceRate    float64            `json:"today_attendance_rate"`
	StudentsPerCourse      []CourseEnrollment `json:"students_per_course"`
	FeeTrend               []MonthlyAmount    `json:"fee_trend"`
	GeneratedAt            string             `json:"generated_at"`
}

// LabelCount is a generic labelled counter.
type LabelCount struct {
	Label string `db:"label" json:"label"`
	Count int    `db:"count" json:"count"`
}

// GenderAdmission is one gender x admission type cell.
type GenderAdmission struct {
	Gender        string `db:"gender" json:"gender"`
	AdmissionType string `db:"admission_type" json:"admission_type"`
	Count         int    `db:"count" json:"count"`
}

// CourseEnrollment counts students in a course.
type CourseEnrollment struct {
	CourseID   string `db:"course_id" json:"course_id"`
	CourseName string `db:"course_name" json:"course_name"`
	Students   int    `db:"students" json:"students"`
}

// MonthlyAmount is one point on the fee trend.
type MonthlyAmount struct {
	Month     string  `db:"month" json:"month"`
	Collected float64 `db:"collected" json:"collected"`
}

// AttendanceSummaryResponse aggregates marks over a period.
type AttendanceSummaryResponse struct {
	Period   string          `json:"period"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Present  int             `json:"present"`
	Absent   int             `json:"absent"`
	Leave    int             `json:"leave"`
	Total    int             `json:"total"`
	Percent  float64         `json:"percent"`
	ByCourse []CourseSummary `json:"by_course"`
}

// CourseSummary is the per-course slice of an attendance summary.
type CourseSummary struct {
	CourseID   string  `json:"course_id"`
	CourseName string  `json:"course_name"`
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Leave      int     `json:"leave"`
	Total      int     `json:"total"`
	Percent    float64 `json:"percent"`
}
