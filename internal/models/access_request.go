package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "pending"
	AccessRequestApproved AccessRequestStatus = "approved"
	AccessRequestDenied   AccessRequestStatus = "denied"
)

type AccessRequest struct {
	ID         string              `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email      string              `json:"email" gorm:"index;not null"`
	Company    string              `json:"company" gorm:"not null"`
	ClientID   string              `json:"client_id,omitempty"`
	Note       string              `json:"note"`
	Status     AccessRequestStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	ResolvedBy *string             `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

func (AccessRequest) TableName() string {
	return "access_requests"
}

func (r *AccessRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = AccessRequestPending
	}
	r.Email = NormalizeEmail(r.Email)
	return nil
}
