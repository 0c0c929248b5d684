package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusRejected SubmissionStatus = "rejected"
)

// ParseSubmissionStatus maps canonical and localized status literals onto the
// closed status set.
func ParseSubmissionStatus(s string) (SubmissionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "pendiente":
		return StatusPending, true
	case "approved", "validado":
		return StatusApproved, true
	case "rejected", "rechazado":
		return StatusRejected, true
	default:
		return "", false
	}
}

type Shift string

const (
	ShiftMorning   Shift = "Morning"
	ShiftAfternoon Shift = "Afternoon"
	ShiftNight     Shift = "Night"
)

func ParseShift(s string) (Shift, bool) {
	switch Shift(s) {
	case ShiftMorning, ShiftAfternoon, ShiftNight:
		return Shift(s), true
	default:
		return "", false
	}
}

type PhotoKind string

const (
	PhotoEntry    PhotoKind = "entry"
	PhotoWeighing PhotoKind = "weighing"
	PhotoExtra    PhotoKind = "extra"
)

type Submission struct {
	ID          string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ClientID    string            `json:"client_id" gorm:"index;not null"`
	ClientName  string            `json:"client_name"`
	UserID      string            `json:"user_id" gorm:"index;not null"`
	UserEmail   string            `json:"user_email"`
	Date        string            `json:"date" gorm:"type:varchar(10);index;not null"`
	PartID      string            `json:"part_id"`
	Plant       string            `json:"plant"`
	Shift       Shift             `json:"shift" gorm:"type:varchar(16)"`
	Product     string            `json:"product"`
	ProducedQty *float64          `json:"produced_qty"`
	ScrapQty    *float64          `json:"scrap_qty"`
	WeighingKg  float64           `json:"weighing_kg" gorm:"not null"`
	Notes       string            `json:"notes"`
	Status      SubmissionStatus  `json:"status" gorm:"type:varchar(16);index;not null"`
	Version     int               `json:"version" gorm:"not null"`
	ReviewedBy  *string           `json:"reviewed_by"`
	ReviewedAt  *time.Time        `json:"reviewed_at"`
	Photos      []SubmissionPhoto `json:"photos" gorm:"foreignKey:SubmissionID"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (Submission) TableName() string {
	return "submissions"
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}

// PhotoURL returns the URL of the first photo of the given kind, or "".
func (s *Submission) PhotoURL(kind PhotoKind) string {
	for _, p := range s.Photos {
		if p.Kind == kind {
			return p.URL
		}
	}
	return ""
}

type SubmissionPhoto struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SubmissionID string    `json:"-" gorm:"index;not null"`
	Position     int       `json:"position" gorm:"not null"`
	Kind         PhotoKind `json:"kind" gorm:"type:varchar(16);not null"`
	Path         string    `json:"path" gorm:"not null"`
	URL          string    `json:"url"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"-"`
}

func (SubmissionPhoto) TableName() string {
	return "submission_photos"
}

func (p *SubmissionPhoto) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
