package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

const JobTypeSheetsExport = "sheets_export"

type Job struct {
	ID          string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Type        string            `json:"type" gorm:"not null"` // "sheets_export"
	Status      JobStatus         `json:"status" gorm:"type:varchar(16);not null"`
	RequestedBy string            `json:"requested_by" gorm:"index"`
	Result      datatypes.JSONMap `json:"result"`
	Error       string            `json:"error"`
	StartedAt   *time.Time        `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&AllowlistClient{},
		&Submission{},
		&SubmissionPhoto{},
		&AccessRequest{},
		&AuditLog{},
		&Job{},
	}
}
