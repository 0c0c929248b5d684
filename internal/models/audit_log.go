package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit actions recorded for admin operations.
const (
	AuditUserCreated          = "user.created"
	AuditUserPasswordReset    = "user.password_reset"
	AuditUserDeactivated      = "user.deactivated"
	AuditUserArchived         = "user.archived"
	AuditUserRoleChanged      = "user.role_changed"
	AuditClientInvited        = "client.invited"
	AuditClientUpdated        = "client.updated"
	AuditClientDeleted        = "client.deleted"
	AuditAccessApproved       = "access_request.approved"
	AuditAccessDenied         = "access_request.denied"
	AuditSubmissionStatus     = "submission.status_changed"
	AuditSheetsExportEnqueued = "export.sheets_enqueued"
)

type AuditLog struct {
	ID          string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ActorUserID string            `json:"actor_user_id" gorm:"index;not null"`
	Action      string            `json:"action" gorm:"index;not null"`
	TargetEmail *string           `json:"target_email"`
	Payload     datatypes.JSONMap `json:"payload"`
	CreatedAt   time.Time         `json:"created_at" gorm:"index"`
}

func (AuditLog) TableName() string {
	return "admin_audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
