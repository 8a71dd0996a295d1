package models

import "time"

// PaymentStatus describes how much of a payment has been settled.
type PaymentStatus string

const (
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusPartialPaid PaymentStatus = "partial_paid"
	PaymentStatusPaid        PaymentStatus = "paid"
)

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartialPaid, PaymentStatusPaid:
		return true
	default:
		return false
	}
}

// Payment methods.
const (
	PaymentMethodCash         = "cash"
	PaymentMethodCheque       = "cheque"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodOnline       = "online"
	PaymentMethodOther        = "other"
)

// PaymentCategory groups payments (tuition, hostel, exam fee...).
type PaymentCategory struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   *string   `db:"description" json:"description,omitempty"`
	DefaultAmount float64   `db:"default_amount" json:"default_amount"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Payment is a fee record for a student.
type Payment struct {
	ID               string        `db:"id" json:"id"`
	StudentID        string        `db:"student_id" json:"student_id"`
	CategoryID       string        `db:"category_id" json:"category_id"`
	CourseID         *string       `db:"course_id" json:"course_id,omitempty"`
	AmountDue        float64       `db:"amount_due" json:"amount_due"`
	AmountPaid       float64       `db:"amount_paid" json:"amount_paid"`
	SecurityFees     float64       `db:"security_fees" json:"security_fees"`
	AdmissionFees    float64       `db:"admission_fees" json:"admission_fees"`
	Status           PaymentStatus `db:"status" json:"status"`
	Method           string        `db:"method" json:"method"`
	ReferenceNo      *string       `db:"reference_no" json:"reference_no,omitempty"`
	PaymentDate      time.Time     `db:"payment_date" json:"payment_date"`
	RecordedByUserID *string       `db:"recorded_by_user_id" json:"recorded_by_user_id,omitempty"`
	Notes            *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// Remaining is the unpaid balance. Negative when overpaid.
func (p Payment) Remaining() float64 {
	return p.AmountDue - p.AmountPaid
}

// Percentage is the share of amount due already paid.
func (p Payment) Percentage() float64 {
	if p.AmountDue == 0 {
		return 0
	}
	return p.AmountPaid / p.AmountDue * 100
}

// PaymentDetail adds joined names and derived amounts.
type PaymentDetail struct {
	Payment
	StudentFirstName   string  `db:"student_first_name" json:"student_first_name"`
	StudentLastName    string  `db:"student_last_name" json:"student_last_name"`
	RegistrationNumber *string `db:"registration_number" json:"registration_number,omitempty"`
	CategoryName       string  `db:"category_name" json:"category_name"`
	CourseName         *string `db:"course_name" json:"course_name,omitempty"`
	RemainingAmount    float64 `db:"-" json:"remaining"`
	PaidPercentage     float64 `db:"-" json:"percentage"`
}

// Derive fills the computed amount fields.
func (d *PaymentDetail) Derive() {
	d.RemainingAmount = d.Remaining()
	d.PaidPercentage = d.Percentage()
}

// PaymentFilter scopes payment listing.
type PaymentFilter struct {
	StudentID  string
	CourseID   string
	CategoryID string
	Status     string
	Method     string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// PaymentTotals sums due and paid amounts.
type PaymentTotals struct {
	Count     int     `db:"count" json:"count"`
	TotalDue  float64 `db:"total_due" json:"total_due"`
	TotalPaid float64 `db:"total_paid" json:"total_paid"`
}

// PaymentGroupTotal is a totals row keyed by status or category.
type PaymentGroupTotal struct {
	Key string `db:"key" json:"key"`
	PaymentTotals
}

// PaymentSummary is the accountant overview.
type PaymentSummary struct {
	Totals     PaymentTotals       `json:"totals"`
	Pending    float64             `json:"pending"`
	ByStatus   []PaymentGroupTotal `json:"by_status"`
	ByCategory []PaymentGroupTotal `json:"by_category"`
}
