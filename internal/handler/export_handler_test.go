package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-admin-api/internal/service"
)

type fakeExportRenderer struct {
	calls []string
}

func (f *fakeExportRenderer) CSV(_ context.Context, entity service.ExportEntity) (*service.ExportFile, error) {
	f.calls = append(f.calls, "csv:"+string(entity))
	return &service.ExportFile{Filename: string(entity) + ".csv", ContentType: service.ContentTypeCSV, Data: []byte("a,b\n")}, nil
}

func (f *fakeExportRenderer) PDF(_ context.Context, entity service.ExportEntity) (*service.ExportFile, error) {
	f.calls = append(f.calls, "pdf:"+string(entity))
	return &service.ExportFile{Filename: string(entity) + ".pdf", ContentType: service.ContentTypePDF, Data: []byte("%PDF-1.3")}, nil
}

func newExportRouter(renderer exportRenderer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(renderer)
	r := gin.New()
	r.GET("/backup/download/:entity", handler.DownloadCSV)
	r.GET("/exports/:entity", handler.Export)
	return r
}

func TestExportHandlerFormats(t *testing.T) {
	renderer := &fakeExportRenderer{}
	r := newExportRouter(renderer)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exports/payments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ContentTypePDF, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="payments.pdf"`, rec.Header().Get("Content-Disposition"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exports/students?format=CSV", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backup/download/attendance", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a,b\n", rec.Body.String())

	assert.Equal(t, []string{"pdf:payments", "csv:students", "csv:attendance"}, renderer.calls)
}

func TestExportHandlerRejectsUnknownFormat(t *testing.T) {
	renderer := &fakeExportRenderer{}
	r := newExportRouter(renderer)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exports/students?format=xlsx", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, renderer.calls)
}
