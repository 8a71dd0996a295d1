package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

// SettingRepository persists runtime settings.
type SettingRepository struct {
	db *sqlx.DB
}

// NewSettingRepository constructs the repository.
func NewSettingRepository(db *sqlx.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// ListByKeys returns settings whose key is in the provided slice.
func (r *SettingRepository) ListByKeys(ctx context.Context, keys []string) ([]models.Setting, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT key, value, description, updated_at FROM settings WHERE key IN (%s) ORDER BY key ASC`, placeholders(len(keys)))
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	var settings []models.Setting
	if err := r.db.SelectContext(ctx, &settings, query, args...); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// Get fetches a single setting by key. Missing rows return sql.ErrNoRows.
func (r *SettingRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	const query = `SELECT key, value, description, updated_at FROM settings WHERE key = $1`
	var setting models.Setting
	if err := r.db.GetContext(ctx, &setting, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return &setting, nil
}

const upsertSettingQuery = `INSERT INTO settings (key, value, description, updated_at)
VALUES (:key, :value, :description, :updated_at)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, description = COALESCE(EXCLUDED.description, settings.description), updated_at = EXCLUDED.updated_at`

// Upsert inserts or replaces a setting.
func (r *SettingRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	setting.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, upsertSettingQuery, setting); err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// BulkUpsert performs upserts within a transaction.
func (r *SettingRepository) BulkUpsert(ctx context.Context, settings []models.Setting) (err error) {
	if len(settings) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk setting tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC()
	for i := range settings {
		settings[i].UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, upsertSettingQuery, settings[i]); err != nil {
			return fmt.Errorf("bulk upsert setting: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk setting tx: %w", err)
	}
	return nil
}
