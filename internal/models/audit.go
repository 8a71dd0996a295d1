package models

import (
	"encoding/json"
	"time"
)

// Audit actions. Stored verbatim in audit_logs.action.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionAdminRegister  = "ADMIN_REGISTER"
	AuditActionBackupExport   = "BACKUP_EXPORT"
	AuditActionBackupRestore  = "BACKUP_RESTORE"
	AuditActionBackupReset    = "BACKUP_RESET"
	AuditActionSettingUpdate  = "SETTING_UPDATE"
	AuditActionStudentDelete  = "STUDENT_DELETE"
	AuditActionPaymentDelete  = "PAYMENT_DELETE"
	AuditActionDataDownload   = "DATA_DOWNLOAD"
)

// AuditLog is one row of the append-only audit trail. Old and new values are
// raw JSON documents.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// NewAuditLog starts an entry. The chained setters below fill the rest.
func NewAuditLog(action, resource string) *AuditLog {
	return &AuditLog{Action: action, Resource: resource}
}

// By sets the acting user; an empty id leaves the entry anonymous.
func (a *AuditLog) By(userID string) *AuditLog {
	a.UserID = optional(userID)
	return a
}

// ByClaims is By for an authenticated caller, tolerating nil claims.
func (a *AuditLog) ByClaims(claims *JWTClaims) *AuditLog {
	if claims == nil {
		return a.By("")
	}
	return a.By(claims.UserID)
}

func (a *AuditLog) On(resourceID string) *AuditLog {
	a.ResourceID = optional(resourceID)
	return a
}

func (a *AuditLog) From(meta ClientMeta) *AuditLog {
	a.IPAddress = meta.IP
	a.UserAgent = meta.UserAgent
	return a
}

// FromSystem marks entries raised by a background component rather than a
// client request.
func (a *AuditLog) FromSystem(component string) *AuditLog {
	return a.From(ClientMeta{IP: "system", UserAgent: component})
}

// Change stores before and after snapshots. A nil side is left empty.
func (a *AuditLog) Change(before, after interface{}) *AuditLog {
	if before != nil {
		a.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		a.NewValues, _ = json.Marshal(after)
	}
	return a
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
