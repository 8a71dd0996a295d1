package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/dto"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

type registrationCounterStore interface {
	Exists(ctx context.Context, exec sqlx.ExtContext, prefix string, year int) (bool, error)
	Seed(ctx context.Context, exec sqlx.ExtContext, prefix string, year int) error
	Next(ctx context.Context, exec sqlx.ExtContext, prefix string, year int) (int, error)
	Current(ctx context.Context, prefix string, year int) (int, error)
	Clear(ctx context.Context, exec sqlx.ExtContext) error
}

type registrationPrefixSource interface {
	RegistrationPrefix(ctx context.Context) (string, error)
}

// FormatRegistrationNumber renders PREFIX-YEAR-NNNNN.
func FormatRegistrationNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq)
}

// RegistrationAllocator hands out registration numbers from the counter table.
type RegistrationAllocator struct {
	counters registrationCounterStore
	prefixes registrationPrefixSource
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistrationAllocator constructs the allocator.
func NewRegistrationAllocator(counters registrationCounterStore, prefixes registrationPrefixSource, logger *zap.Logger) *RegistrationAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationAllocator{counters: counters, prefixes: prefixes, logger: logger, now: time.Now}
}

// Allocate bumps the prefix-year counter inside exec and returns the formatted
// number. The counter is seeded from existing students on first use.
func (a *RegistrationAllocator) Allocate(ctx context.Context, exec sqlx.ExtContext, prefix string, year int) (string, error) {
	exists, err := a.counters.Exists(ctx, exec, prefix, year)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := a.counters.Seed(ctx, exec, prefix, year); err != nil {
			return "", err
		}
	}
	seq, err := a.counters.Next(ctx, exec, prefix, year)
	if err != nil {
		return "", err
	}
	number := FormatRegistrationNumber(prefix, year, seq)
	a.logger.Debug("registration number allocated", zap.String("prefix", prefix), zap.Int("year", year), zap.Int("sequence", seq))
	return number, nil
}

// Next allocates using the configured prefix and the current year.
func (a *RegistrationAllocator) Next(ctx context.Context, exec sqlx.ExtContext) (string, error) {
	prefix, err := a.prefix(ctx)
	if err != nil {
		return "", err
	}
	return a.Allocate(ctx, exec, prefix, a.now().Year())
}

// Preview reports the number the next allocation would produce without
// consuming it.
func (a *RegistrationAllocator) Preview(ctx context.Context) (*dto.RegistrationPreview, error) {
	prefix, err := a.prefix(ctx)
	if err != nil {
		return nil, err
	}
	year := a.now().Year()
	current, err := a.counters.Current(ctx, prefix, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read registration counter")
	}
	return &dto.RegistrationPreview{Prefix: prefix, Year: year, Next: FormatRegistrationNumber(prefix, year, current+1)}, nil
}

// Resync raises the configured prefix-year counter to the highest suffix in
// use. It never lowers a counter.
func (a *RegistrationAllocator) Resync(ctx context.Context, exec sqlx.ExtContext) error {
	prefix, err := a.prefix(ctx)
	if err != nil {
		return err
	}
	return a.counters.Seed(ctx, exec, prefix, a.now().Year())
}

// Reseed drops every counter and seeds the configured prefix for the current
// year from the students table. Other prefix-years seed lazily on first use.
func (a *RegistrationAllocator) Reseed(ctx context.Context, exec sqlx.ExtContext) error {
	if err := a.counters.Clear(ctx, exec); err != nil {
		return err
	}
	prefix, err := a.prefix(ctx)
	if err != nil {
		return err
	}
	return a.counters.Seed(ctx, exec, prefix, a.now().Year())
}

func (a *RegistrationAllocator) prefix(ctx context.Context) (string, error) {
	if a.prefixes == nil {
		return DefaultRegNumberPrefix, nil
	}
	prefix, err := a.prefixes.RegistrationPrefix(ctx)
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return DefaultRegNumberPrefix, nil
	}
	return prefix, nil
}
