package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotStarted = errors.New("queue not started")
	ErrFull       = errors.New("queue full")
	// ErrDuplicate is returned when a job with the same Key is already
	// pending or running.
	ErrDuplicate = errors.New("job already queued")
)

// Job is one unit of background work. Jobs sharing a non-empty Key are
// coalesced: only one may be in flight at a time.
type Job struct {
	ID       string
	Type     string
	Key      string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

type Handler func(context.Context, Job) error

// ResultFunc observes every finished attempt. err is nil on success.
type ResultFunc func(job Job, err error, took time.Duration)

type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff; each retry doubles it up to MaxDelay.
	RetryDelay time.Duration
	MaxDelay   time.Duration
	JobTimeout time.Duration
	OnResult   ResultFunc
	Logger     *zap.Logger
}

type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
	Pending   int    `json:"pending"`
	Running   int64  `json:"running"`
}

// permanent marks errors that must not be retried.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent wraps err so the queue fails the job without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Queue is an in-process worker pool with bounded buffering and retries.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs chan Job

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	keys    map[string]string

	processed atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
	running   atomic.Int64
}

func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxDelay < cfg.RetryDelay {
		cfg.MaxDelay = cfg.RetryDelay * 32
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
		keys:    make(map[string]string),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.keys = make(map[string]string)
	for i := 1; i <= q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels in-flight jobs and waits for the workers. Buffered jobs are
// dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.started = false
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("queue stopped", zap.Int("dropped", len(q.jobs)))
}

// Enqueue buffers job without blocking and returns its id.
func (q *Queue) Enqueue(job Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return "", fmt.Errorf("%s: %w", q.name, ErrNotStarted)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	if job.Key != "" {
		if owner, busy := q.keys[job.Key]; busy && owner != job.ID {
			return owner, fmt.Errorf("%s: %w", q.name, ErrDuplicate)
		}
	}
	return job.ID, q.push(job)
}

// push requires q.mu.
func (q *Queue) push(job Job) error {
	select {
	case <-q.ctx.Done():
		return fmt.Errorf("%s: %w", q.name, q.ctx.Err())
	case q.jobs <- job:
		if job.Key != "" {
			q.keys[job.Key] = job.ID
		}
		return nil
	default:
		return fmt.Errorf("%s: %w", q.name, ErrFull)
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Retried:   q.retried.Load(),
		Pending:   len(q.jobs),
		Running:   q.running.Load(),
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(id, job)
		}
	}
}

func (q *Queue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.JobTimeout)
	defer cancel()

	q.running.Add(1)
	start := time.Now()
	err := q.handler(ctx, job)
	took := time.Since(start)
	q.running.Add(-1)

	if q.cfg.OnResult != nil {
		q.cfg.OnResult(job, err, took)
	}
	if err == nil {
		q.processed.Add(1)
		q.release(job)
		q.logger.Debug("job done",
			zap.Int("worker", workerID), zap.String("job_id", job.ID),
			zap.String("type", job.Type), zap.Duration("took", took))
		return
	}
	q.fail(job, err)
}

func (q *Queue) fail(job Job, err error) {
	job.Attempt++
	var perm permanent
	if errors.As(err, &perm) || job.Attempt > q.cfg.MaxRetries {
		q.failed.Add(1)
		q.release(job)
		q.logger.Error("job failed",
			zap.String("job_id", job.ID), zap.String("type", job.Type),
			zap.Int("attempts", job.Attempt), zap.Error(err))
		return
	}

	delay := q.backoff(job.Attempt)
	q.retried.Add(1)
	q.logger.Warn("job failed, retrying",
		zap.String("job_id", job.ID), zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt), zap.Duration("in", delay), zap.Error(err))

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.release(job)
		case <-timer.C:
			q.mu.Lock()
			err := q.push(job)
			q.mu.Unlock()
			if err != nil {
				q.failed.Add(1)
				q.release(job)
				q.logger.Error("requeue failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}()
}

func (q *Queue) backoff(attempt int) time.Duration {
	d := q.cfg.RetryDelay
	for i := 1; i < attempt && d < q.cfg.MaxDelay; i++ {
		d *= 2
	}
	if d > q.cfg.MaxDelay {
		d = q.cfg.MaxDelay
	}
	return d
}

func (q *Queue) release(job Job) {
	if job.Key == "" {
		return
	}
	q.mu.Lock()
	if q.keys[job.Key] == job.ID {
		delete(q.keys, job.Key)
	}
	q.mu.Unlock()
}
