package services

import (
	"context"

	"github.com/martincass/UCAMtracker/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// recordAudit writes an audit entry on tx so it commits with the change it describes.
func recordAudit(tx *gorm.DB, actorID, action, targetEmail string, payload datatypes.JSONMap) error {
	entry := models.AuditLog{
		ActorUserID: actorID,
		Action:      action,
		Payload:     payload,
	}
	if targetEmail != "" {
		entry.TargetEmail = &targetEmail
	}
	return tx.Create(&entry).Error
}

func (s *AuditService) Record(ctx context.Context, actorID, action, targetEmail string, payload datatypes.JSONMap) error {
	return recordAudit(s.db.WithContext(ctx), actorID, action, targetEmail, payload)
}

type AuditFilter struct {
	Action string
	Actor  string
	Limit  int
}

// List returns the newest entries first.
func (s *AuditService) List(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Actor != "" {
		q = q.Where("actor_user_id = ?", f.Actor)
	}
	var logs []models.AuditLog
	err := q.Order("created_at DESC").Limit(f.Limit).Find(&logs).Error
	return logs, err
}
