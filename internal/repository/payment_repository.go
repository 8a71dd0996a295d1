package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

const insertPaymentQuery = `INSERT INTO payments (id, student_id, category_id, course_id, amount_due, amount_paid, security_fees, admission_fees,
status, method, reference_no, payment_date, recorded_by_user_id, notes, created_at, updated_at)
VALUES (:id, :student_id, :category_id, :course_id, :amount_due, :amount_paid, :security_fees, :admission_fees,
:status, :method, :reference_no, :payment_date, :recorded_by_user_id, :notes, :created_at, :updated_at)`

const paymentDetailSelect = `SELECT p.id, p.student_id, p.category_id, p.course_id, p.amount_due, p.amount_paid, p.security_fees, p.admission_fees,
p.status, p.method, p.reference_no, p.payment_date, p.recorded_by_user_id, p.notes, p.created_at, p.updated_at,
s.first_name AS student_first_name, s.last_name AS student_last_name, s.registration_number,
pc.name AS category_name, c.name AS course_name`

const paymentJoins = `FROM payments p
JOIN students s ON s.id = p.student_id
JOIN payment_categories pc ON pc.id = p.category_id
LEFT JOIN courses c ON c.id = p.course_id`

// PaymentRepository persists fee payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func paymentWhere(filter models.PaymentFilter) whereBuilder {
	var where whereBuilder
	if filter.StudentID != "" {
		where.add("p.student_id = ?", filter.StudentID)
	}
	if filter.CourseID != "" {
		where.add("p.course_id = ?", filter.CourseID)
	}
	if filter.CategoryID != "" {
		where.add("p.category_id = ?", filter.CategoryID)
	}
	if filter.Status != "" {
		where.add("p.status = ?", filter.Status)
	}
	if filter.Method != "" {
		where.add("p.method = ?", filter.Method)
	}
	if filter.DateFrom != nil {
		where.add("p.payment_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where.add("p.payment_date <= ?", *filter.DateTo)
	}
	return where
}

// List returns payments with joined names plus the totals of the whole filtered set.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, models.PaymentTotals, error) {
	where := paymentWhere(filter)
	base := paymentJoins + ` WHERE 1=1` + where.clause()

	order := orderBy(filter.SortBy, filter.SortOrder, "payment_date", map[string]string{
		"payment_date": "p.payment_date",
		"amount_due":   "p.amount_due",
		"amount_paid":  "p.amount_paid",
		"status":       "p.status",
		"created_at":   "p.created_at",
	})
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s %s ORDER BY %s, p.created_at DESC LIMIT %d OFFSET %d", paymentDetailSelect, base, order, limit, offset)
	var payments []models.PaymentDetail
	if err := r.db.SelectContext(ctx, &payments, query, where.args...); err != nil {
		return nil, models.PaymentTotals{}, fmt.Errorf("list payments: %w", err)
	}
	for i := range payments {
		payments[i].Derive()
	}

	var totals models.PaymentTotals
	totalsQuery := `SELECT COUNT(*) AS count, COALESCE(SUM(p.amount_due), 0) AS total_due, COALESCE(SUM(p.amount_paid), 0) AS total_paid ` + base
	if err := r.db.GetContext(ctx, &totals, totalsQuery, where.args...); err != nil {
		return nil, models.PaymentTotals{}, fmt.Errorf("total payments: %w", err)
	}
	return payments, totals, nil
}

// ListByStudent returns every payment of a student, newest first.
func (r *PaymentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.PaymentDetail, error) {
	query := paymentDetailSelect + " " + paymentJoins + ` WHERE p.student_id = $1 ORDER BY p.payment_date DESC, p.created_at DESC`
	var payments []models.PaymentDetail
	if err := r.db.SelectContext(ctx, &payments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student payments: %w", err)
	}
	for i := range payments {
		payments[i].Derive()
	}
	return payments, nil
}

// FindByID fetches a payment with joined names.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.PaymentDetail, error) {
	query := paymentDetailSelect + " " + paymentJoins + ` WHERE p.id = $1`
	var payment models.PaymentDetail
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	payment.Derive()
	return &payment, nil
}

// Create inserts a payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, insertPaymentQuery, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// Update modifies a payment.
func (r *PaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	payment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE payments SET category_id = :category_id, course_id = :course_id, amount_due = :amount_due, amount_paid = :amount_paid,
security_fees = :security_fees, admission_fees = :admission_fees, status = :status, method = :method, reference_no = :reference_no,
payment_date = :payment_date, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

// Delete removes a payment.
func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TotalsByStatus groups totals per payment status.
func (r *PaymentRepository) TotalsByStatus(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentGroupTotal, error) {
	where := paymentWhere(filter)
	query := `SELECT p.status AS key, COUNT(*) AS count, COALESCE(SUM(p.amount_due), 0) AS total_due, COALESCE(SUM(p.amount_paid), 0) AS total_paid
FROM payments p WHERE 1=1` + where.clause() + ` GROUP BY p.status ORDER BY p.status ASC`
	var rows []models.PaymentGroupTotal
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("payment totals by status: %w", err)
	}
	return rows, nil
}

// TotalsByCategory groups totals per category name.
func (r *PaymentRepository) TotalsByCategory(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentGroupTotal, error) {
	where := paymentWhere(filter)
	query := `SELECT pc.name AS key, COUNT(*) AS count, COALESCE(SUM(p.amount_due), 0) AS total_due, COALESCE(SUM(p.amount_paid), 0) AS total_paid
FROM payments p JOIN payment_categories pc ON pc.id = p.category_id WHERE 1=1` + where.clause() + ` GROUP BY pc.name ORDER BY pc.name ASC`
	var rows []models.PaymentGroupTotal
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("payment totals by category: %w", err)
	}
	return rows, nil
}
