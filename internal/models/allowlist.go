package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AllowlistClient pre-approves an email for self-registration and keeps its
// account usable while Active is true.
type AllowlistClient struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email      string    `json:"email" gorm:"uniqueIndex;not null"`
	ClientID   string    `json:"client_id" gorm:"index;not null"`
	ClientName string    `json:"client_name" gorm:"not null"`
	Active     bool      `json:"active" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (AllowlistClient) TableName() string {
	return "allowlist_clients"
}

func (a *AllowlistClient) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Email = NormalizeEmail(a.Email)
	return nil
}
