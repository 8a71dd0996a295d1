package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// RegistrationCounterRepository backs the per prefix-year registration counter.
type RegistrationCounterRepository struct {
	db *sqlx.DB
}

// NewRegistrationCounterRepository constructs the repository.
func NewRegistrationCounterRepository(db *sqlx.DB) *RegistrationCounterRepository {
	return &RegistrationCounterRepository{db: db}
}

// maxSuffixQuery computes the highest numeric suffix among students matching
// the prefix-year pattern. $1 is the LIKE pattern, $2 the suffix start index.
const maxSuffixQuery = `SELECT COALESCE(MAX(CAST(SUBSTRING(registration_number FROM $2) AS INTEGER)), 0)
FROM students
WHERE registration_number LIKE $1 AND SUBSTRING(registration_number FROM $2) ~ '^[0-9]+$'`

const seedCounterQuery = `INSERT INTO registration_counters (prefix, year, value)
SELECT $3, $4, COALESCE(MAX(CAST(SUBSTRING(registration_number FROM $2) AS INTEGER)), 0)
FROM students
WHERE registration_number LIKE $1 AND SUBSTRING(registration_number FROM $2) ~ '^[0-9]+$'
ON CONFLICT (prefix, year) DO UPDATE SET value = GREATEST(registration_counters.value, EXCLUDED.value)`

const bumpCounterQuery = `INSERT INTO registration_counters (prefix, year, value) VALUES ($1, $2, 1)
ON CONFLICT (prefix, year) DO UPDATE SET value = registration_counters.value + 1
RETURNING value`

// Exists reports whether a counter row is present for prefix-year.
func (r *RegistrationCounterRepository) Exists(ctx context.Context, exec sqlx.ExtContext, prefix string, year int) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM registration_counters WHERE prefix = $1 AND year = $2)`
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &exists, query, prefix, year); err != nil {
		return false, fmt.Errorf("check registration counter: %w", err)
	}
	return exists, nil
}

// Seed raises the counter to the highest suffix already used by students.
// It never lowers an existing counter.
func (r *RegistrationCounterRepository) Seed(ctx context.Context, exec sqlx.ExtContext, prefix string, year int) error {
	pattern, start := suffixPattern(prefix, year)
	if _, err := pick(r.db, exec).ExecContext(ctx, seedCounterQuery, pattern, start, prefix, year); err != nil {
		return fmt.Errorf("seed registration counter: %w", err)
	}
	return nil
}

// Next bumps the counter and returns the new value. Concurrent callers
// serialise on the counter row lock until their transaction ends.
func (r *RegistrationCounterRepository) Next(ctx context.Context, exec sqlx.ExtContext, prefix string, year int) (int, error) {
	var value int
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &value, bumpCounterQuery, prefix, year); err != nil {
		return 0, fmt.Errorf("bump registration counter: %w", err)
	}
	return value, nil
}

// Current returns the last issued value without bumping it.
func (r *RegistrationCounterRepository) Current(ctx context.Context, prefix string, year int) (int, error) {
	var value int
	err := r.db.GetContext(ctx, &value, `SELECT value FROM registration_counters WHERE prefix = $1 AND year = $2`, prefix, year)
	if err == nil {
		return value, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("read registration counter: %w", err)
	}
	pattern, start := suffixPattern(prefix, year)
	if err := r.db.GetContext(ctx, &value, maxSuffixQuery, pattern, start); err != nil {
		return 0, fmt.Errorf("scan registration suffixes: %w", err)
	}
	return value, nil
}

// Clear drops every counter row so the next allocation re-seeds.
func (r *RegistrationCounterRepository) Clear(ctx context.Context, exec sqlx.ExtContext) error {
	if _, err := pick(r.db, exec).ExecContext(ctx, `DELETE FROM registration_counters`); err != nil {
		return fmt.Errorf("clear registration counters: %w", err)
	}
	return nil
}

func suffixPattern(prefix string, year int) (string, int) {
	head := fmt.Sprintf("%s-%d-", prefix, year)
	escaped := strings.NewReplacer(`\`, `\\`, `_`, `\_`, `%`, `\%`).Replace(head)
	return escaped + "%", len(head) + 1
}
