package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/jobs"
	"github.com/noah-isme/academy-admin-api/pkg/storage"
)

// JobTypeSnapshot identifies queued snapshot backups.
const JobTypeSnapshot = "backup.snapshot"

const (
	snapshotDir   = "snapshots"
	snapshotScope = "backup"
)

type snapshotExporter interface {
	Export(ctx context.Context, actor *models.JWTClaims) (*models.Snapshot, error)
}

type snapshotStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	List(dir string) ([]storage.FileInfo, error)
	Prune(dir string, maxAge time.Duration, keep int) ([]string, error)
}

type downloadSigner interface {
	Sign(scope, relPath string) (string, time.Time, error)
	Verify(scope, token string) (string, error)
}

type snapshotDispatcher interface {
	Enqueue(job jobs.Job) (string, error)
}

// BackupSchedulerConfig tunes the snapshot schedule.
type BackupSchedulerConfig struct {
	Enabled      bool
	Cron         string
	Retention    time.Duration
	DownloadPath string
}

// SnapshotDownload is an opened snapshot file ready to stream.
type SnapshotDownload struct {
	File     *os.File
	Filename string
}

// BackupScheduler writes snapshots to storage on a cron schedule or on demand.
type BackupScheduler struct {
	exporter snapshotExporter
	store    snapshotStore
	signer   downloadSigner
	queue    snapshotDispatcher
	cfg      BackupSchedulerConfig
	logger   *zap.Logger
	now      func() time.Time

	cron *cron.Cron
}

// NewBackupScheduler constructs the scheduler. The queue is attached separately
// because its handler is the scheduler itself.
func NewBackupScheduler(exporter snapshotExporter, store snapshotStore, signer downloadSigner, cfg BackupSchedulerConfig, logger *zap.Logger) *BackupScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Cron == "" {
		cfg.Cron = "0 2 * * *"
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/backup/snapshots/download"
	}
	return &BackupScheduler{
		exporter: exporter,
		store:    store,
		signer:   signer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// AttachQueue sets the dispatcher used by Trigger and the cron entry.
func (s *BackupScheduler) AttachQueue(queue snapshotDispatcher) {
	s.queue = queue
}

// Start registers the cron entry when scheduling is enabled.
func (s *BackupScheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduled backups disabled")
		return nil
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger.Named("cron")))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger)))
	if _, err := c.AddFunc(s.cfg.Cron, func() {
		if _, err := s.Trigger(context.Background()); err != nil {
			s.logger.Error("failed to enqueue scheduled backup", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("register backup schedule %q: %w", s.cfg.Cron, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("scheduled backups started", zap.String("cron", s.cfg.Cron), zap.Duration("retention", s.cfg.Retention))
	return nil
}

// Stop halts the cron entry and waits for a running trigger.
func (s *BackupScheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// Trigger enqueues a snapshot job and returns its id.
func (s *BackupScheduler) Trigger(ctx context.Context) (string, error) {
	if s.queue == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "backup queue not configured")
	}
	id, err := s.queue.Enqueue(jobs.Job{Type: JobTypeSnapshot, Key: JobTypeSnapshot})
	if errors.Is(err, jobs.ErrDuplicate) {
		s.logger.Info("backup already queued", zap.String("job_id", id))
		return id, nil
	}
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue backup")
	}
	s.logger.Info("backup enqueued", zap.String("job_id", id))
	return id, nil
}

// Handle runs a queued snapshot job.
func (s *BackupScheduler) Handle(ctx context.Context, job jobs.Job) error {
	snapshot, err := s.exporter.Export(ctx, nil)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	name := path.Join(snapshotDir, BackupFilename(s.now()))
	if _, err := s.store.Save(name, data); err != nil {
		return err
	}
	s.logger.Info("snapshot stored", zap.String("job_id", job.ID), zap.String("file", name), zap.Int("bytes", len(data)))

	if s.cfg.Retention > 0 {
		removed, err := s.store.Prune(snapshotDir, s.cfg.Retention, 1)
		if err != nil {
			s.logger.Warn("snapshot retention cleanup failed", zap.Error(err))
		} else if len(removed) > 0 {
			s.logger.Info("expired snapshots removed", zap.Strings("files", removed))
		}
	}
	return nil
}

// List returns stored snapshots, newest first, each with a signed download URL.
func (s *BackupScheduler) List(ctx context.Context) ([]models.StoredSnapshot, error) {
	files, err := s.store.List(snapshotDir)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list snapshots")
	}
	result := make([]models.StoredSnapshot, 0, len(files))
	for _, f := range files {
		if !strings.HasSuffix(f.Name, ".json") {
			continue
		}
		token, _, err := s.signer.Sign(snapshotScope, f.Name)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign snapshot url")
		}
		result = append(result, models.StoredSnapshot{
			Name:        path.Base(f.Name),
			Size:        f.Size,
			CreatedAt:   f.ModifiedAt.Format(time.RFC3339),
			DownloadURL: s.cfg.DownloadPath + "?token=" + url.QueryEscape(token),
		})
	}
	return result, nil
}

// Resolve validates a download token and opens the snapshot it names.
func (s *BackupScheduler) Resolve(token string) (*SnapshotDownload, error) {
	relPath, err := s.signer.Verify(snapshotScope, token)
	if err != nil || !strings.HasPrefix(relPath, snapshotDir+"/") || strings.Contains(relPath, "..") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "snapshot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open snapshot")
	}
	return &SnapshotDownload{File: file, Filename: path.Base(relPath)}, nil
}
