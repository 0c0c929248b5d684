package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/martincass/UCAMtracker/internal/auth"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/mailer"
	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/martincass/UCAMtracker/internal/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UserStatus string

const (
	UserActive           UserStatus = "ACTIVE"
	UserInactive         UserStatus = "INACTIVE"
	UserPendingReset     UserStatus = "PENDING_RESET"
	UserConfirmationSent UserStatus = "CONFIRMATION_SENT"
	UserInvited          UserStatus = "INVITED"
)

// ManagedUser is a user row enriched with its allowlist state for the admin panel.
type ManagedUser struct {
	models.User
	ActiveOnAllowlist bool       `json:"active_on_allowlist"`
	Status            UserStatus `json:"status"`
}

func deriveStatus(u *models.User, allowlistActive bool) UserStatus {
	switch {
	case !allowlistActive:
		return UserInactive
	case u.MustResetPassword:
		return UserPendingReset
	case u.EmailConfirmedAt == nil:
		return UserConfirmationSent
	case u.LastSignInAt == nil:
		return UserInvited
	default:
		return UserActive
	}
}

type CreateUserInput struct {
	Email      string
	ClientID   string
	ClientName string
	Locale     string
}

// CreateUserResult reports the created account and whether the welcome email
// went out. Password is only set when it did not.
type CreateUserResult struct {
	OK         bool   `json:"ok"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	EmailSent  bool   `json:"email_sent"`
	EmailError string `json:"email_error,omitempty"`
	Password   string `json:"password,omitempty"`
}

type ResetPasswordResult struct {
	UserID            string `json:"user_id"`
	Email             string `json:"email"`
	PasswordCleartext string `json:"password_cleartext"`
}

type UserAdminService struct {
	db         *gorm.DB
	notify     notifier
	bcryptCost int
	siteURL    string
}

func NewUserAdminService(db *gorm.DB, mail mailer.Mailer, tr *i18n.Translator, bcryptCost int, siteURL string) *UserAdminService {
	return &UserAdminService{
		db:         db,
		notify:     notifier{mail: mail, tr: tr},
		bcryptCost: bcryptCost,
		siteURL:    siteURL,
	}
}

// ListUsers returns every non-archived user with its derived status.
func (s *UserAdminService) ListUsers(ctx context.Context) ([]ManagedUser, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("email ASC").Find(&users).Error; err != nil {
		return nil, err
	}

	var entries []models.AllowlistClient
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, err
	}
	active := make(map[string]bool, len(entries))
	for _, e := range entries {
		active[e.Email] = e.Active
	}

	out := make([]ManagedUser, 0, len(users))
	for _, u := range users {
		out = append(out, ManagedUser{
			User:              u,
			ActiveOnAllowlist: active[u.Email],
			Status:            deriveStatus(&u, active[u.Email]),
		})
	}
	return out, nil
}

// CreateUser provisions a client account with a generated temporary password,
// allowlists the email and mails the credentials.
func (s *UserAdminService) CreateUser(ctx context.Context, admin *Principal, in CreateUserInput) (*CreateUserResult, error) {
	email := models.NormalizeEmail(in.Email)
	clientID := strings.TrimSpace(in.ClientID)
	clientName := strings.TrimSpace(in.ClientName)

	verr := &ValidationError{}
	if email == "" {
		verr.add("email", "is required")
	}
	if clientID == "" {
		verr.add("client_id", "is required")
	} else if !validation.IsClientCode(clientID) {
		verr.add("client_id", "must contain only letters, digits, dashes or underscores")
	}
	if clientName == "" {
		verr.add("client_name", "is required")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	password, err := auth.GeneratePassword(auth.TempPasswordLength, auth.UnambiguousCharset)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:             email,
		PasswordHash:      hash,
		Role:              models.RoleClient,
		ClientID:          clientID,
		ClientName:        clientName,
		MustResetPassword: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findUserByEmail(ctx, tx.Unscoped(), email)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: a user with email %s already exists", ErrConflict, email)
		}

		now := timeNow()
		user.EmailConfirmedAt = &now
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		if err := upsertAllowlist(tx, email, clientID, clientName, true); err != nil {
			return err
		}
		return recordAudit(tx, admin.UserID(), models.AuditUserCreated, email, datatypes.JSONMap{
			"client_id":   clientID,
			"client_name": clientName,
		})
	})
	if err != nil {
		return nil, err
	}

	result := &CreateUserResult{
		OK:         true,
		UserID:     user.ID,
		Email:      email,
		ClientID:   clientID,
		ClientName: clientName,
	}
	sendErr := s.notify.send(ctx, email, in.Locale, "welcome", map[string]string{
		"client_name": clientName,
		"email":       email,
		"password":    password,
		"site_url":    s.siteURL,
	})
	if sendErr != nil {
		result.EmailError = sendErr.Error()
		result.Password = password
	} else {
		result.EmailSent = true
	}

	logger.WithUser(admin.UserID(), admin.User.Email).
		WithField("target_email", email).
		WithField("email_sent", result.EmailSent).
		Info("User created")
	return result, nil
}

// ResetUserPassword replaces a user's password with a generated one, forces a
// reset on next login and revokes open sessions.
func (s *UserAdminService) ResetUserPassword(ctx context.Context, admin *Principal, userID string) (*ResetPasswordResult, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	password, err := auth.GeneratePassword(auth.ResetPasswordLength, auth.StandardCharset)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
			"password_hash":       hash,
			"must_reset_password": true,
			"password_version":    gorm.Expr("password_version + 1"),
			"session_version":     gorm.Expr("session_version + 1"),
		}).Error; err != nil {
			return err
		}
		return recordAudit(tx, admin.UserID(), models.AuditUserPasswordReset, user.Email, nil)
	})
	if err != nil {
		return nil, err
	}

	return &ResetPasswordResult{UserID: user.ID, Email: user.Email, PasswordCleartext: password}, nil
}

// Deactivate turns the user's allowlist entry off, which blocks login and
// invalidates existing sessions.
func (s *UserAdminService) Deactivate(ctx context.Context, admin *Principal, userID string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.ID == admin.UserID() {
		return fmt.Errorf("%w: cannot deactivate yourself", ErrForbidden)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureAdminRemains(tx, user); err != nil {
			return err
		}
		if err := deactivate(tx, user); err != nil {
			return err
		}
		return recordAudit(tx, admin.UserID(), models.AuditUserDeactivated, user.Email, nil)
	})
}

// Archive deactivates the user and hides the account. Rows are kept.
func (s *UserAdminService) Archive(ctx context.Context, admin *Principal, userID string) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.ID == admin.UserID() {
		return fmt.Errorf("%w: cannot archive yourself", ErrForbidden)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureAdminRemains(tx, user); err != nil {
			return err
		}
		if err := deactivate(tx, user); err != nil {
			return err
		}
		if err := tx.Delete(user).Error; err != nil {
			return err
		}
		return recordAudit(tx, admin.UserID(), models.AuditUserArchived, user.Email, nil)
	})
}

// SetRole promotes or demotes a user. Admins cannot change their own role and
// the last admin cannot be demoted.
func (s *UserAdminService) SetRole(ctx context.Context, admin *Principal, userID, roleName string) (*models.User, error) {
	role, ok := models.ParseRole(roleName)
	if !ok {
		return nil, invalid("role", "must be one of: admin client user")
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ID == admin.UserID() {
		return nil, ErrSelfRoleChange
	}
	if user.Role == role {
		return user, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if role != models.RoleAdmin {
			if err := s.ensureAdminRemains(tx, user); err != nil {
				return err
			}
		}
		if err := tx.Model(user).Update("role", role).Error; err != nil {
			return err
		}
		return recordAudit(tx, admin.UserID(), models.AuditUserRoleChanged, user.Email, datatypes.JSONMap{"role": string(role)})
	})
	if err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

func (s *UserAdminService) getUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ensureAdminRemains fails when removing user would leave no active admin.
func (s *UserAdminService) ensureAdminRemains(tx *gorm.DB, user *models.User) error {
	if !user.IsAdmin() {
		return nil
	}
	var count int64
	err := tx.Model(&models.User{}).
		Joins("JOIN allowlist_clients ON allowlist_clients.email = users.email AND allowlist_clients.active = ?", true).
		Where("users.role = ? AND users.id <> ?", models.RoleAdmin, user.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrLastAdmin
	}
	return nil
}

func deactivate(tx *gorm.DB, user *models.User) error {
	if err := tx.Model(&models.AllowlistClient{}).Where("email = ?", user.Email).Update("active", false).Error; err != nil {
		return err
	}
	return bumpSessionVersion(tx, user.ID)
}

func upsertAllowlist(tx *gorm.DB, email, clientID, clientName string, active bool) error {
	var entry models.AllowlistClient
	err := tx.Where("email = ?", email).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&models.AllowlistClient{
			Email:      email,
			ClientID:   clientID,
			ClientName: clientName,
			Active:     active,
		}).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&entry).Updates(map[string]interface{}{
		"client_id":   clientID,
		"client_name": clientName,
		"active":      active,
	}).Error
}
