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

const insertPaymentCategoryQuery = `INSERT INTO payment_categories (id, name, description, default_amount, is_active, created_at, updated_at)
VALUES (:id, :name, :description, :default_amount, :is_active, :created_at, :updated_at)`

const paymentCategoryColumns = `id, name, description, default_amount, is_active, created_at, updated_at`

// PaymentCategoryRepository persists payment categories.
type PaymentCategoryRepository struct {
	db *sqlx.DB
}

// NewPaymentCategoryRepository constructs the repository.
func NewPaymentCategoryRepository(db *sqlx.DB) *PaymentCategoryRepository {
	return &PaymentCategoryRepository{db: db}
}

// List returns categories ordered by name.
func (r *PaymentCategoryRepository) List(ctx context.Context, activeOnly bool) ([]models.PaymentCategory, error) {
	query := `SELECT ` + paymentCategoryColumns + ` FROM payment_categories`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name ASC`
	var categories []models.PaymentCategory
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list payment categories: %w", err)
	}
	return categories, nil
}

// FindByID fetches a category.
func (r *PaymentCategoryRepository) FindByID(ctx context.Context, id string) (*models.PaymentCategory, error) {
	var category models.PaymentCategory
	if err := r.db.GetContext(ctx, &category, `SELECT `+paymentCategoryColumns+` FROM payment_categories WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find payment category: %w", err)
	}
	return &category, nil
}

// ExistsByName reports whether another category already uses name.
func (r *PaymentCategoryRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM payment_categories WHERE LOWER(name) = LOWER($1)`
	args := []interface{}{name}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += `)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check payment category name: %w", err)
	}
	return exists, nil
}

// CountPayments returns how many payments reference the category.
func (r *PaymentCategoryRepository) CountPayments(ctx context.Context, id string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM payments WHERE category_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count category payments: %w", err)
	}
	return total, nil
}

// Create inserts a category.
func (r *PaymentCategoryRepository) Create(ctx context.Context, category *models.PaymentCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, insertPaymentCategoryQuery, category); err != nil {
		return fmt.Errorf("create payment category: %w", err)
	}
	return nil
}

// InsertIfMissing creates the category unless one with the same name exists.
// It reports whether a row was inserted.
func (r *PaymentCategoryRepository) InsertIfMissing(ctx context.Context, category *models.PaymentCategory) (bool, error) {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	res, err := r.db.NamedExecContext(ctx, insertPaymentCategoryQuery+` ON CONFLICT (name) DO NOTHING`, category)
	if err != nil {
		return false, fmt.Errorf("seed payment category: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Update modifies a category.
func (r *PaymentCategoryRepository) Update(ctx context.Context, category *models.PaymentCategory) error {
	category.UpdatedAt = time.Now().UTC()
	const query = `UPDATE payment_categories SET name = :name, description = :description, default_amount = :default_amount,
is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("update payment category: %w", err)
	}
	return nil
}

// Delete removes a category.
func (r *PaymentCategoryRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM payment_categories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete payment category: %w", err)
	}
	return nil
}
