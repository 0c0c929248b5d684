package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/martincass/UCAMtracker/internal/auth"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/mailer"
	"github.com/martincass/UCAMtracker/internal/metrics"
	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/martincass/UCAMtracker/internal/session"
	"gorm.io/gorm"
)

type SignupStatus string

const (
	SignupPendingReview    SignupStatus = "PENDING_REVIEW"
	SignupConfirmationSent SignupStatus = "CONFIRMATION_SENT"
)

type AuthOptions struct {
	Policy     auth.PasswordPolicy
	BcryptCost int
	SiteURL    string
}

type AuthService struct {
	db     *gorm.DB
	tokens *auth.TokenIssuer
	notify notifier
	opts   AuthOptions
	now    func() time.Time
}

func NewAuthService(db *gorm.DB, tokens *auth.TokenIssuer, mail mailer.Mailer, tr *i18n.Translator, opts AuthOptions) *AuthService {
	return &AuthService{
		db:     db,
		tokens: tokens,
		notify: notifier{mail: mail, tr: tr},
		opts:   opts,
		now:    time.Now,
	}
}

// SessionResult is returned whenever a caller obtains a new session token.
type SessionResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *models.User     `json:"user"`
	Decision  session.Decision `json:"session"`
}

// SessionView is the routing decision for the current page load.
type SessionView struct {
	session.Decision
	RecoveryToken string       `json:"recovery_token,omitempty"`
	User          *models.User `json:"user,omitempty"`
}

func (s *AuthService) Policy() auth.PasswordPolicy {
	return s.opts.Policy
}

// Signup registers an allowlisted email. Emails without an active allowlist
// entry are deferred to review and no account is created.
func (s *AuthService) Signup(ctx context.Context, email, password, locale string) (SignupStatus, error) {
	email = models.NormalizeEmail(email)
	if err := passwordViolations("password", s.opts.Policy.Validate(password)); err != nil {
		metrics.Signups.WithLabelValues("invalid").Inc()
		return "", err
	}

	entry, err := findAllowlist(ctx, s.db, email)
	if err != nil {
		return "", fmt.Errorf("allowlist lookup: %w", err)
	}
	if entry == nil || !entry.Active {
		metrics.Signups.WithLabelValues("pending_review").Inc()
		logger.Info("Signup deferred to review", map[string]interface{}{"allowlisted": entry != nil})
		return SignupPendingReview, nil
	}

	existing, err := findUserByEmail(ctx, s.db.Unscoped(), email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		metrics.Signups.WithLabelValues("existing").Inc()
		return SignupConfirmationSent, nil
	}

	hash, err := auth.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return "", err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleClient,
		ClientID:     entry.ClientID,
		ClientName:   entry.ClientName,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	token, _, err := s.tokens.IssueConfirmation(user)
	if err != nil {
		return "", err
	}
	link := s.opts.SiteURL + "/confirm?token=" + url.QueryEscape(token)
	s.notify.send(ctx, email, locale, "confirm", map[string]string{"link": link, "email": email})

	metrics.Signups.WithLabelValues("created").Inc()
	return SignupConfirmationSent, nil
}

// ConfirmEmail marks the token's user as confirmed.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.ParseConfirmation(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", claims.Subject).Error; err != nil {
		return nil, ErrInvalidToken
	}
	if user.EmailConfirmedAt == nil {
		now := s.now()
		if err := s.db.WithContext(ctx).Model(&user).Update("email_confirmed_at", &now).Error; err != nil {
			return nil, err
		}
		user.EmailConfirmedAt = &now
	}
	return &user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*SessionResult, error) {
	user, err := findUserByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		metrics.Logins.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	entry, err := findAllowlist(ctx, s.db, user.Email)
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.Active {
		metrics.Logins.WithLabelValues("disabled").Inc()
		return nil, ErrAccountDisabled
	}
	if user.EmailConfirmedAt == nil {
		metrics.Logins.WithLabelValues("unconfirmed").Inc()
		return nil, ErrEmailNotConfirmed
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(user).Update("last_sign_in_at", &now).Error; err != nil {
		return nil, err
	}
	user.LastSignInAt = &now

	metrics.Logins.WithLabelValues("success").Inc()
	logger.WithUser(user.ID, user.Email).Info("User logged in")
	return s.newSession(user, true)
}

func (s *AuthService) newSession(user *models.User, allowlistActive bool) (*SessionResult, error) {
	token, expiresAt, err := s.tokens.IssueSession(user)
	if err != nil {
		return nil, err
	}
	return &SessionResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
		Decision:  session.ForUser(user, allowlistActive),
	}, nil
}

// Logout revokes every session of the caller.
func (s *AuthService) Logout(ctx context.Context, p *Principal) error {
	return bumpSessionVersion(s.db.WithContext(ctx), p.UserID())
}

func bumpSessionVersion(tx *gorm.DB, userID string) error {
	return tx.Model(&models.User{}).Where("id = ?", userID).
		Update("session_version", gorm.Expr("session_version + 1")).Error
}

// Authenticate validates a session token against the current user and
// allowlist rows. Archived users, inactive allowlist entries and revoked
// session versions are rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.tokens.ParseSession(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var user models.User
	err = s.db.WithContext(ctx).First(&user, "id = ?", claims.Subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionRevoked
	}
	if err != nil {
		return nil, err
	}
	if claims.Version != user.SessionVersion {
		return nil, ErrSessionRevoked
	}

	entry, err := findAllowlist(ctx, s.db, user.Email)
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.Active {
		return nil, ErrSessionRevoked
	}
	return &Principal{User: &user, Allowlist: entry}, nil
}

// ResolveSession computes the view for a page load from an optional session
// token and the location fragment.
func (s *AuthService) ResolveSession(ctx context.Context, token, fragment string) (*SessionView, error) {
	recovery := auth.ParseRecoveryFragment(fragment)
	in := session.Input{RecoveryToken: recovery, HasSession: token != ""}

	var user *models.User
	if token != "" {
		p, err := s.Authenticate(ctx, token)
		switch {
		case err == nil:
			user = p.User
			in.ProfileFound = true
			in.AllowlistActive = true
			in.MustReset = user.MustResetPassword
			in.Role = user.Role
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrSessionRevoked):
			// a stale token is a session whose profile can no longer be trusted
		default:
			return nil, err
		}
	}

	view := &SessionView{Decision: session.Resolve(in), RecoveryToken: recovery}
	if !view.ForceLogout {
		view.User = user
	}
	return view, nil
}

// RequestPasswordReset mails a recovery link when the email belongs to an
// active account. The caller always gets the same answer.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, locale string) {
	if err := s.requestPasswordReset(ctx, email, locale); err != nil {
		logger.WithError(err, "auth_service").Error("Password reset request failed")
	}
}

func (s *AuthService) requestPasswordReset(ctx context.Context, email, locale string) error {
	user, err := findUserByEmail(ctx, s.db, email)
	if err != nil || user == nil {
		return err
	}
	entry, err := findAllowlist(ctx, s.db, user.Email)
	if err != nil || entry == nil || !entry.Active {
		return err
	}

	token, _, err := s.tokens.IssueRecovery(user)
	if err != nil {
		return err
	}
	return s.notify.send(ctx, user.Email, locale, "recovery", map[string]string{
		"email": user.Email,
		"link":  auth.RecoveryLink(s.opts.SiteURL, token),
	})
}

// ResetPassword sets a new password from a recovery token. The token is
// single-use: the password version it carries no longer matches afterwards.
func (s *AuthService) ResetPassword(ctx context.Context, recoveryToken, newPassword string) error {
	claims, err := s.tokens.ParseRecovery(recoveryToken)
	if err != nil {
		return ErrInvalidToken
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", claims.Subject).Error; err != nil {
		return ErrInvalidToken
	}
	if claims.Version != user.PasswordVersion {
		return ErrInvalidToken
	}
	if err := passwordViolations("password", s.opts.Policy.Validate(newPassword)); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if user.EmailConfirmedAt == nil {
		now := s.now()
		updates["email_confirmed_at"] = &now
	}
	return s.setPassword(ctx, &user, newPassword, updates)
}

// ForceResetPassword clears the must-reset flag after the caller picks a new
// password, and returns a fresh session.
func (s *AuthService) ForceResetPassword(ctx context.Context, p *Principal, newPassword, confirm string) (*SessionResult, error) {
	if newPassword != confirm {
		return nil, &ValidationError{Fields: []FieldViolation{{Field: "confirm_password", Message: "password.mismatch", Key: true}}}
	}
	if err := passwordViolations("password", s.opts.Policy.Validate(newPassword)); err != nil {
		return nil, err
	}
	if auth.CheckPassword(p.User.PasswordHash, newPassword) {
		return nil, &ValidationError{Fields: []FieldViolation{{Field: "password", Message: "password.same_as_current", Key: true}}}
	}

	if err := s.setPassword(ctx, p.User, newPassword, nil); err != nil {
		return nil, err
	}
	logger.WithUser(p.User.ID, p.User.Email).Info("Forced password reset completed")
	return s.newSession(p.User, true)
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, p *Principal, current, newPassword string) (*SessionResult, error) {
	if !auth.CheckPassword(p.User.PasswordHash, current) {
		return nil, &ValidationError{Fields: []FieldViolation{{Field: "current_password", Message: "password.current_incorrect", Key: true}}}
	}
	if err := passwordViolations("new_password", s.opts.Policy.Validate(newPassword)); err != nil {
		return nil, err
	}
	if err := s.setPassword(ctx, p.User, newPassword, nil); err != nil {
		return nil, err
	}
	return s.newSession(p.User, true)
}

// setPassword stores a new hash, clears must-reset and revokes outstanding
// sessions and recovery tokens. user is reloaded in place.
func (s *AuthService) setPassword(ctx context.Context, user *models.User, password string, extra map[string]interface{}) error {
	hash, err := auth.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"password_hash":       hash,
		"must_reset_password": false,
		"password_version":    gorm.Expr("password_version + 1"),
		"session_version":     gorm.Expr("session_version + 1"),
	}
	for k, v := range extra {
		updates[k] = v
	}
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return db.First(user, "id = ?", user.ID).Error
}
