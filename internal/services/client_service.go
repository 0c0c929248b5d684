package services

import (
	"context"
	"errors"
	"strings"

	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/martincass/UCAMtracker/internal/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ClientService manages the signup allowlist.
type ClientService struct {
	db *gorm.DB
}

func NewClientService(db *gorm.DB) *ClientService {
	return &ClientService{db: db}
}

type InviteInput struct {
	Email      string
	ClientID   string
	ClientName string
}

// ClientUpdate holds the fields an admin may change; nil means unchanged.
type ClientUpdate struct {
	ClientID   *string
	ClientName *string
	Active     *bool
}

func (s *ClientService) List(ctx context.Context) ([]models.AllowlistClient, error) {
	var entries []models.AllowlistClient
	err := s.db.WithContext(ctx).Order("client_name ASC, email ASC").Find(&entries).Error
	return entries, err
}

// Invite adds or re-activates an allowlist entry for the email.
func (s *ClientService) Invite(ctx context.Context, admin *Principal, in InviteInput) (*models.AllowlistClient, error) {
	email := models.NormalizeEmail(in.Email)
	clientID := strings.TrimSpace(in.ClientID)
	clientName := strings.TrimSpace(in.ClientName)

	verr := &ValidationError{}
	if email == "" {
		verr.add("email", "is required")
	}
	if !validation.IsClientCode(clientID) {
		verr.add("client_id", "must contain only letters, digits, dashes or underscores")
	}
	if clientName == "" {
		verr.add("client_name", "is required")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	var entry models.AllowlistClient
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertAllowlist(tx, email, clientID, clientName, true); err != nil {
			return err
		}
		if err := tx.Where("email = ?", email).First(&entry).Error; err != nil {
			return err
		}
		return recordAudit(tx, admin.UserID(), models.AuditClientInvited, email, datatypes.JSONMap{
			"client_id":   clientID,
			"client_name": clientName,
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Update edits an allowlist entry. Turning Active off immediately invalidates
// sessions of the account with that email.
func (s *ClientService) Update(ctx context.Context, admin *Principal, id string, in ClientUpdate) (*models.AllowlistClient, error) {
	updates := map[string]interface{}{}
	verr := &ValidationError{}
	if in.ClientID != nil {
		v := strings.TrimSpace(*in.ClientID)
		if !validation.IsClientCode(v) {
			verr.add("client_id", "must contain only letters, digits, dashes or underscores")
		}
		updates["client_id"] = v
	}
	if in.ClientName != nil {
		v := strings.TrimSpace(*in.ClientName)
		if v == "" {
			verr.add("client_name", "is required")
		}
		updates["client_name"] = v
	}
	if in.Active != nil {
		updates["active"] = *in.Active
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	var entry models.AllowlistClient
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if in.Active != nil && !*in.Active && entry.Email == admin.User.Email {
			return ErrForbidden
		}
		if len(updates) > 0 {
			if err := tx.Model(&entry).Updates(updates).Error; err != nil {
				return err
			}
		}
		// keep the account's tenant in sync with its allowlist entry
		userUpdates := map[string]interface{}{}
		if v, ok := updates["client_id"]; ok {
			userUpdates["client_id"] = v
		}
		if v, ok := updates["client_name"]; ok {
			userUpdates["client_name"] = v
		}
		if len(userUpdates) > 0 {
			if err := tx.Model(&models.User{}).Where("email = ?", entry.Email).Updates(userUpdates).Error; err != nil {
				return err
			}
		}
		payload := datatypes.JSONMap{}
		for k, v := range updates {
			payload[k] = v
		}
		return recordAudit(tx, admin.UserID(), models.AuditClientUpdated, entry.Email, payload)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes an allowlist entry. The account with that email can no
// longer sign in until it is invited again.
func (s *ClientService) Delete(ctx context.Context, admin *Principal, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.AllowlistClient
		if err := tx.First(&entry, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if entry.Email == admin.User.Email {
			return ErrForbidden
		}
		if err := tx.Delete(&entry).Error; err != nil {
			return err
		}
		return recordAudit(tx, admin.UserID(), models.AuditClientDeleted, entry.Email, datatypes.JSONMap{"client_id": entry.ClientID})
	})
}
