package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleClient UserRole = "client"
)

// ParseRole accepts the canonical role names and "user" as an alias of client.
func ParseRole(s string) (UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, true
	case "client", "user":
		return RoleClient, true
	default:
		return "", false
	}
}

type User struct {
	ID                string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email             string         `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash      string         `json:"-" gorm:"not null"`
	Role              UserRole       `json:"role" gorm:"type:varchar(16);not null"`
	ClientID          string         `json:"client_id" gorm:"index"`
	ClientName        string         `json:"client_name"`
	MustResetPassword bool           `json:"must_reset_password" gorm:"not null"`
	EmailConfirmedAt  *time.Time     `json:"email_confirmed_at"`
	LastSignInAt      *time.Time     `json:"last_sign_in_at"`
	SessionVersion    int            `json:"-" gorm:"not null"`
	PasswordVersion   int            `json:"-" gorm:"not null"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	return nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
