package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageBounds normalises page/size and returns limit and offset.
func pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return size, (page - 1) * size
}

// orderBy picks a whitelisted sort column and direction.
func orderBy(sortBy, sortOrder, fallback string, allowed map[string]string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = allowed[fallback]
	}
	direction := strings.ToUpper(sortOrder)
	if direction != "ASC" && direction != "DESC" {
		direction = "DESC"
	}
	return column + " " + direction
}

// whereBuilder accumulates positional conditions.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (w *whereBuilder) add(format string, value interface{}) {
	w.args = append(w.args, value)
	n := len(w.args)
	w.conditions = append(w.conditions, strings.ReplaceAll(format, "?", fmt.Sprintf("$%d", n)))
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " AND " + strings.Join(w.conditions, " AND ")
}

func placeholders(n int) string {
	values := make([]string, n)
	for i := 1; i <= n; i++ {
		values[i-1] = fmt.Sprintf("$%d", i)
	}
	return strings.Join(values, ",")
}

func pick(db *sqlx.DB, exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return db
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// getOne scans a single row into T. sql.ErrNoRows is returned unwrapped so
// callers can map it to a 404; other failures are wrapped with op.
func getOne[T any](ctx context.Context, q sqlx.QueryerContext, op, query string, args ...interface{}) (*T, error) {
	var dest T
	if err := sqlx.GetContext(ctx, q, &dest, query, args...); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &dest, nil
}
