package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-admin-api/internal/models"
	"github.com/noah-isme/academy-admin-api/internal/service"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
	"github.com/noah-isme/academy-admin-api/pkg/response"
)

const backupFileField = "backup_file"

type backupService interface {
	Export(ctx context.Context, actor *models.JWTClaims) (*models.Snapshot, error)
	Restore(ctx context.Context, raw []byte, actor *models.JWTClaims) (*models.ImportResult, error)
	Reset(ctx context.Context, scope models.ResetScope, actor *models.JWTClaims) (*models.ResetResult, error)
	Stats(ctx context.Context) (*models.BackupStats, error)
}

type snapshotScheduler interface {
	List(ctx context.Context) ([]models.StoredSnapshot, error)
	Trigger(ctx context.Context) (string, error)
	Resolve(token string) (*service.SnapshotDownload, error)
}

type resetRequest struct {
	Scope string `json:"scope"`
}

// BackupHandler serves export, restore, reset and stored snapshots.
type BackupHandler struct {
	service   backupService
	snapshots snapshotScheduler
	maxUpload int64
	now       func() time.Time
}

// NewBackupHandler constructs the handler. maxUpload caps restore bodies in bytes.
func NewBackupHandler(service backupService, snapshots snapshotScheduler, maxUpload int64) *BackupHandler {
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	return &BackupHandler{service: service, snapshots: snapshots, maxUpload: maxUpload, now: time.Now}
}

// Export godoc
// @Summary Export complete backup
// @Description Downloads every collection as one JSON document
// @Tags Backup
// @Produce json
// @Success 200 {object} models.Snapshot
// @Router /backup/export [get]
func (h *BackupHandler) Export(c *gin.Context) {
	snapshot, err := h.service.Export(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode backup"))
		return
	}
	response.Attachment(c, service.BackupFilename(h.now()), "application/json", data)
}

// Restore godoc
// @Summary Restore from backup
// @Description Replaces all data with the uploaded snapshot. Accepts a multipart backup_file or a raw JSON body.
// @Tags Backup
// @Accept json
// @Accept mpfd
// @Produce json
// @Param backup_file formData file false "Backup JSON file"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /backup/restore [post]
func (h *BackupHandler) Restore(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	raw, err := h.readBackupPayload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Restore(c.Request.Context(), raw, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *BackupHandler) readBackupPayload(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile(backupFileField)
		if err != nil {
			if tooLarge(err) {
				return nil, appErrors.ErrPayloadTooLarge
			}
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "backup_file is required")
		}
		return readUploaded(header)
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if tooLarge(err) {
			return nil, appErrors.ErrPayloadTooLarge
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read request body")
	}
	if len(raw) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "backup payload is empty")
	}
	return raw, nil
}

func readUploaded(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to open backup_file")
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read backup_file")
	}
	return raw, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// multipart parsing flattens the MaxBytesError into its message
	return strings.Contains(err.Error(), "request body too large")
}

// Reset godoc
// @Summary Reset data
// @Description Deletes one collection or everything except admin users
// @Tags Backup
// @Accept json
// @Produce json
// @Param payload body resetRequest true "Reset scope"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /backup/reset [post]
func (h *BackupHandler) Reset(c *gin.Context) {
	var req resetRequest
	if !bindJSON(c, &req, "invalid reset payload") {
		return
	}
	result, err := h.service.Reset(c.Request.Context(), models.ResetScope(strings.TrimSpace(req.Scope)), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Stats godoc
// @Summary Backup statistics
// @Tags Backup
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /backup/stats [get]
func (h *BackupHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Snapshots godoc
// @Summary List stored snapshots
// @Tags Backup
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /backup/snapshots [get]
func (h *BackupHandler) Snapshots(c *gin.Context) {
	items, err := h.snapshots.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// TriggerSnapshot godoc
// @Summary Queue a snapshot now
// @Tags Backup
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /backup/snapshots [post]
func (h *BackupHandler) TriggerSnapshot(c *gin.Context) {
	id, err := h.snapshots.Trigger(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"job_id": id}, nil)
}

// DownloadSnapshot godoc
// @Summary Download a stored snapshot
// @Tags Backup
// @Produce json
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /backup/snapshots/download [get]
func (h *BackupHandler) DownloadSnapshot(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.snapshots.Resolve(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()
	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read snapshot"))
		return
	}
	response.Stream(c, download.Filename, "application/json", info.Size(), download.File)
}
