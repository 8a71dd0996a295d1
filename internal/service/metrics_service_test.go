package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceBackupCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordBackupExport()
	m.RecordBackupExport()
	m.RecordBackupRestore("success")
	m.RecordBackupReset("students")
	m.RecordAllocation("retry")
	m.RecordAllocation("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.backupExports))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backupRestores.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backupResets.WithLabelValues("students")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.allocations.WithLabelValues("ok")))
}

func TestMetricsServiceSnapshotHitRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/students", http.StatusOK, 2*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, 0.5, snap.CacheHitRatio)
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 2.0, snap.AverageRequestDurationMs, 0.001)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordBackupExport()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "academy_backup_exports_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsServiceDBQueryAverages(t *testing.T) {
	m := NewMetricsService()
	m.ObserveDBQuery("dashboard_students", 2*time.Millisecond)
	m.ObserveDBQuery("dashboard_courses", 4*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.DBQueryCount)
	assert.InDelta(t, 3.0, snap.AverageDBQueryDurationMs, 0.001)
	assert.Equal(t, 2, testutil.CollectAndCount(m.dbQueries))
}

func TestMetricsServiceNilIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordBackupExport()
	m.RecordAllocation("failed")
	assert.Equal(t, 0.0, m.Snapshot().CacheHitRatio)
}
