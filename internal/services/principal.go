package services

import (
	"context"
	"errors"
	"time"

	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/mailer"
	"github.com/martincass/UCAMtracker/internal/models"
	"gorm.io/gorm"
)

var timeNow = time.Now

// Principal is the authenticated caller of one request, loaded fresh from the
// database each time.
type Principal struct {
	User      *models.User
	Allowlist *models.AllowlistClient
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.User != nil && p.User.IsAdmin()
}

func (p *Principal) UserID() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.ID
}

// ClientID is the tenant the caller belongs to.
func (p *Principal) ClientID() string {
	if p == nil || p.User == nil {
		return ""
	}
	if p.User.ClientID != "" {
		return p.User.ClientID
	}
	if p.Allowlist != nil {
		return p.Allowlist.ClientID
	}
	return ""
}

func (p *Principal) ClientName() string {
	if p == nil || p.User == nil {
		return ""
	}
	if p.User.ClientName != "" {
		return p.User.ClientName
	}
	if p.Allowlist != nil {
		return p.Allowlist.ClientName
	}
	return ""
}

func findAllowlist(ctx context.Context, db *gorm.DB, email string) (*models.AllowlistClient, error) {
	var entry models.AllowlistClient
	err := db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func findUserByEmail(ctx context.Context, db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// notifier renders locale templates and sends them through the mailer.
type notifier struct {
	mail mailer.Mailer
	tr   *i18n.Translator
}

func (n notifier) send(ctx context.Context, to, locale, template string, vars map[string]string) error {
	if locale == "" {
		locale = n.tr.DefaultLocale()
	}
	err := n.mail.Send(ctx, mailer.Message{
		To:      to,
		Subject: n.tr.T(locale, "mail."+template+".subject", vars),
		Text:    n.tr.T(locale, "mail."+template+".body", vars),
	})
	if err != nil {
		logger.WithError(err, "mailer").Warn("Email not sent")
	}
	return err
}
