package service

import (
	"context"

	"github.com/noah-isme/academy-admin-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}
