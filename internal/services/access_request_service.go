package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/martincass/UCAMtracker/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AccessRequestService struct {
	db *gorm.DB
}

func NewAccessRequestService(db *gorm.DB) *AccessRequestService {
	return &AccessRequestService{db: db}
}

type AccessRequestInput struct {
	Email    string
	Company  string
	ClientID string
	Note     string
}

// Submit stores an anonymous request to be added to the allowlist.
func (s *AccessRequestService) Submit(ctx context.Context, in AccessRequestInput) (*models.AccessRequest, error) {
	req := &models.AccessRequest{
		Email:    models.NormalizeEmail(in.Email),
		Company:  strings.TrimSpace(in.Company),
		ClientID: strings.TrimSpace(in.ClientID),
		Note:     strings.TrimSpace(in.Note),
		Status:   models.AccessRequestPending,
	}
	verr := &ValidationError{}
	if req.Email == "" {
		verr.add("email", "is required")
	}
	if req.Company == "" {
		verr.add("company", "is required")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// List returns pending requests first, oldest first within each status.
func (s *AccessRequestService) List(ctx context.Context, status string) ([]models.AccessRequest, error) {
	q := s.db.WithContext(ctx).Model(&models.AccessRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.AccessRequest
	err := q.Order("CASE WHEN status = 'pending' THEN 0 ELSE 1 END, created_at ASC").Find(&out).Error
	return out, err
}

// Resolve approves or denies a pending request. Approval allowlists the email.
func (s *AccessRequestService) Resolve(ctx context.Context, admin *Principal, id string, approve bool) (*models.AccessRequest, error) {
	var req models.AccessRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&req, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if req.Status != models.AccessRequestPending {
			return ErrConflict
		}

		status := models.AccessRequestDenied
		action := models.AuditAccessDenied
		payload := datatypes.JSONMap{"request_id": req.ID}
		if approve {
			status = models.AccessRequestApproved
			action = models.AuditAccessApproved
			clientID := req.ClientID
			if clientID == "" {
				clientID = ClientCodeFromCompany(req.Company)
			}
			if err := upsertAllowlist(tx, req.Email, clientID, req.Company, true); err != nil {
				return err
			}
			payload["client_id"] = clientID
		}

		now := timeNow()
		actor := admin.UserID()
		res := tx.Model(&models.AccessRequest{}).
			Where("id = ? AND status = ?", req.ID, models.AccessRequestPending).
			Updates(map[string]interface{}{"status": status, "resolved_by": actor, "resolved_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		req.Status = status
		req.ResolvedBy = &actor
		req.ResolvedAt = &now
		return recordAudit(tx, actor, action, req.Email, payload)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

var nonCode = regexp.MustCompile(`[^A-Z0-9]+`)

// ClientCodeFromCompany derives a client id such as "ACME_INC" from a company name.
func ClientCodeFromCompany(company string) string {
	code := strings.Trim(nonCode.ReplaceAllString(strings.ToUpper(company), "_"), "_")
	if len(code) > 32 {
		code = strings.TrimRight(code[:32], "_")
	}
	if code == "" {
		return "CLIENT"
	}
	return code
}
