package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/service"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

type exportRenderer interface {
	CSV(ctx context.Context, entity service.ExportEntity) (*service.ExportFile, error)
	PDF(ctx context.Context, entity service.ExportEntity) (*service.ExportFile, error)
}

// ExportHandler streams CSV and PDF renditions of the dataset.
type ExportHandler struct {
	service exportRenderer
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportRenderer) *ExportHandler {
	return &ExportHandler{service: service}
}

// DownloadCSV godoc
// @Summary Download a collection as CSV
// @Tags Exports
// @Produce text/csv
// @Param entity path string true "students, courses, payments or attendance"
// @Success 200 {file} file
// @Router /backup/download/{entity} [get]
func (h *ExportHandler) DownloadCSV(c *gin.Context) {
	file, err := h.service.CSV(c.Request.Context(), service.ExportEntity(c.Param("entity")))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// Export godoc
// @Summary Export a collection
// @Tags Exports
// @Produce application/pdf
// @Produce text/csv
// @Param entity path string true "students, courses, payments or attendance"
// @Param format query string false "pdf (default) or csv"
// @Success 200 {file} file
// @Router /exports/{entity} [get]
func (h *ExportHandler) Export(c *gin.Context) {
	entity := service.ExportEntity(c.Param("entity"))
	var (
		file *service.ExportFile
		err  error
	)
	switch strings.ToLower(c.DefaultQuery("format", "pdf")) {
	case "pdf":
		file, err = h.service.PDF(c.Request.Context(), entity)
	case "csv":
		file, err = h.service.CSV(c.Request.Context(), entity)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}
