package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheServiceParams groups constructor dependencies.
type CacheServiceParams struct {
	Repo       CacheRepository
	Metrics    *MetricsService
	Logger     *zap.Logger
	DefaultTTL time.Duration
	// Prefix namespaces every key so several deployments can share one Redis.
	Prefix  string
	Enabled bool
}

// CacheService wraps the cache repository with key namespacing and metrics.
// A nil or disabled service misses every read and drops every write.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	logger     *zap.Logger
	defaultTTL time.Duration
	prefix     string
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(params CacheServiceParams) *CacheService {
	ttl := params.DefaultTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		repo:       params.Repo,
		metrics:    params.Metrics,
		logger:     logger,
		defaultTTL: ttl,
		prefix:     params.Prefix,
		enabled:    params.Enabled,
	}
}

// Enabled reports whether reads and writes reach the repository.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads key into dest and reports a hit. A miss is not an error.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	began := time.Now()
	err := s.repo.Get(ctx, s.prefix+key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(began))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value under key. A non-positive ttl uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	began := time.Now()
	err := s.repo.Set(ctx, s.prefix+key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(began))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate drops every key matching the glob pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, s.prefix+pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// Remember returns the cached value for key or computes it with load and
// stores the result. Cache failures degrade to load; only load errors are
// returned. The bool reports a cache hit.
func Remember[T any](ctx context.Context, s *CacheService, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	if hit, err := s.Get(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, false, err
	}
	_ = s.Set(ctx, key, value, ttl)
	return value, false, nil
}
