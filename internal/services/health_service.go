package services

import (
	"context"
	"time"

	"github.com/martincass/UCAMtracker/internal/db"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/storage"
	"gorm.io/gorm"
)

type CheckStatus string

const (
	CheckOK    CheckStatus = "ok"
	CheckWarn  CheckStatus = "warn"
	CheckError CheckStatus = "error"
)

type Check struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
}

// SystemHealth is the admin configuration report. Status is the worst check.
type SystemHealth struct {
	Status    CheckStatus      `json:"status"`
	Checks    map[string]Check `json:"checks"`
	CheckedAt time.Time        `json:"checked_at"`
}

type HealthOptions struct {
	SiteURL          string
	MailEnabled      bool
	SheetsConfigured bool
}

type HealthService struct {
	db     *gorm.DB
	bucket storage.Bucket
	tr     *i18n.Translator
	opts   HealthOptions
}

func NewHealthService(conn *gorm.DB, bucket storage.Bucket, tr *i18n.Translator, opts HealthOptions) *HealthService {
	return &HealthService{db: conn, bucket: bucket, tr: tr, opts: opts}
}

// PingDatabase backs the public liveness endpoint.
func (s *HealthService) PingDatabase(ctx context.Context) error {
	return db.Ping(ctx, s.db, 2*time.Second)
}

// SystemHealth reports presence of the required configuration and reachability
// of the database and photo storage.
func (s *HealthService) SystemHealth(ctx context.Context, locale string) *SystemHealth {
	t := func(key string, vars map[string]string) string { return s.tr.T(locale, key, vars) }
	checks := map[string]Check{}

	if s.opts.SiteURL != "" {
		checks["site_url"] = Check{CheckOK, t("health.site_url.ok", map[string]string{"value": s.opts.SiteURL})}
	} else {
		checks["site_url"] = Check{CheckWarn, t("health.site_url.missing", nil)}
	}

	if err := s.PingDatabase(ctx); err != nil {
		checks["database"] = Check{CheckError, t("health.database.error", map[string]string{"error": err.Error()})}
	} else {
		checks["database"] = Check{CheckOK, t("health.database.ok", nil)}
	}

	if s.opts.MailEnabled {
		checks["smtp"] = Check{CheckOK, t("health.smtp.ok", nil)}
	} else {
		checks["smtp"] = Check{CheckWarn, t("health.smtp.missing", nil)}
	}

	if s.opts.SheetsConfigured {
		checks["sheets"] = Check{CheckOK, t("health.sheets.ok", nil)}
	} else {
		checks["sheets"] = Check{CheckWarn, t("health.sheets.missing", nil)}
	}

	if err := s.bucket.Ping(ctx); err != nil {
		checks["storage"] = Check{CheckError, t("health.storage.error", map[string]string{"error": err.Error()})}
	} else {
		checks["storage"] = Check{CheckOK, t("health.storage.ok", nil)}
	}

	overall := CheckOK
	for _, c := range checks {
		if c.Status == CheckError {
			overall = CheckError
			break
		}
		if c.Status == CheckWarn {
			overall = CheckWarn
		}
	}
	return &SystemHealth{Status: overall, Checks: checks, CheckedAt: timeNow().UTC()}
}
