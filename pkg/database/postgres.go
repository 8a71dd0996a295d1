package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/academy-admin-api/pkg/config"
)

// DSN returns cfg.URL when set, otherwise a lib/pq keyword/value string.
func DSN(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	port := ""
	if cfg.Port > 0 {
		port = strconv.Itoa(cfg.Port)
	}
	pairs := []struct{ key, value string }{
		{"host", cfg.Host},
		{"port", port},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quoteValue(p.value))
	}
	return strings.Join(parts, " ")
}

// quoteValue applies lib/pq quoting for values holding spaces, quotes or
// backslashes.
func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// NewPostgres opens the pool and pings until the server answers, giving up
// after cfg.ConnectAttempts tries or when ctx ends.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := ping(ctx, db, cfg.ConnectAttempts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func ping(ctx context.Context, db pinger, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	wait := 500 * time.Millisecond
	var err error
	for i := 1; i <= attempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping postgres: %w", ctx.Err())
		case <-time.After(wait):
		}
		if wait < 8*time.Second {
			wait *= 2
		}
	}
	return fmt.Errorf("ping postgres after %d attempts: %w", attempts, err)
}
