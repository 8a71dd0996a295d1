package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/jobs"
	"github.com/noah-isme/academy-admin-api/pkg/storage"
)

type snapshotExporterStub struct {
	snapshot *models.Snapshot
	err      error
}

func (s *snapshotExporterStub) Export(context.Context, *models.JWTClaims) (*models.Snapshot, error) {
	return s.snapshot, s.err
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.jobs = append(d.jobs, job)
	return "job-1", nil
}

func newSchedulerFixture(t *testing.T, exporter snapshotExporter) (*BackupScheduler, *storage.LocalStorage) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	scheduler := NewBackupScheduler(exporter, store, signer, BackupSchedulerConfig{Retention: 24 * time.Hour}, nil)
	scheduler.now = func() time.Time { return time.Date(2025, 4, 1, 2, 0, 0, 0, time.UTC) }
	return scheduler, store
}

func TestBackupSchedulerHandleStoresSnapshot(t *testing.T) {
	exporter := &snapshotExporterStub{snapshot: &models.Snapshot{
		BackupDate: "01-04-2025 02:00:00",
		Students:   []models.SnapshotStudent{{ID: "s1", FullName: "Ada Lovelace"}},
	}}
	scheduler, store := newSchedulerFixture(t, exporter)

	require.NoError(t, scheduler.Handle(context.Background(), jobs.Job{ID: "job-1", Type: JobTypeSnapshot}))

	files, err := store.List("snapshots")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "snapshots/complete_backup_01_04_2025_02_00_00.json", files[0].Name)

	listed, err := scheduler.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "complete_backup_01_04_2025_02_00_00.json", listed[0].Name)
	require.True(t, strings.HasPrefix(listed[0].DownloadURL, "/api/v1/backup/snapshots/download?token="))

	parsed, err := url.Parse(listed[0].DownloadURL)
	require.NoError(t, err)
	download, err := scheduler.Resolve(parsed.Query().Get("token"))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "complete_backup_01_04_2025_02_00_00.json", download.Filename)

	raw, err := io.ReadAll(download.File)
	require.NoError(t, err)
	var decoded models.Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Ada Lovelace", decoded.Students[0].FullName)
}

func TestBackupSchedulerHandlePropagatesExportFailure(t *testing.T) {
	scheduler, store := newSchedulerFixture(t, &snapshotExporterStub{err: errors.New("db down")})

	require.Error(t, scheduler.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	files, err := store.List("snapshots")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestBackupSchedulerResolveRejectsForeignTokens(t *testing.T) {
	scheduler, _ := newSchedulerFixture(t, &snapshotExporterStub{})

	_, err := scheduler.Resolve("garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	signer := storage.NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("backup", "exports/students.csv")
	require.NoError(t, err)
	_, err = scheduler.Resolve(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	token, _, err = signer.Sign("backup", "snapshots/missing.json")
	require.NoError(t, err)
	_, err = scheduler.Resolve(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBackupSchedulerTrigger(t *testing.T) {
	scheduler, _ := newSchedulerFixture(t, &snapshotExporterStub{})

	_, err := scheduler.Trigger(context.Background())
	require.Error(t, err)

	queue := &dispatcherStub{}
	scheduler.AttachQueue(queue)
	id, err := scheduler.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeSnapshot, queue.jobs[0].Type)

	queue.err = errors.New("queue full")
	_, err = scheduler.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestBackupSchedulerStartDisabledIsNoop(t *testing.T) {
	scheduler, _ := newSchedulerFixture(t, &snapshotExporterStub{})
	require.NoError(t, scheduler.Start())
	scheduler.Stop()

	scheduler.cfg.Enabled = true
	scheduler.cfg.Cron = "not a cron"
	require.Error(t, scheduler.Start())
}
