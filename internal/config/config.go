package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"development"`
	GinMode  string `envconfig:"GIN_MODE" default:"debug"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFile  string `envconfig:"LOG_FILE" default:""`

	DBDriver    string `envconfig:"DB_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`

	JWTSecret   string        `envconfig:"JWT_SECRET" required:"true"`
	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	RecoveryTTL time.Duration `envconfig:"RECOVERY_TTL" default:"1h"`
	BcryptCost  int           `envconfig:"BCRYPT_COST" default:"12"`

	SiteURL     string   `envconfig:"SITE_URL" default:""`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`

	UploadDir      string `envconfig:"UPLOAD_DIR" default:"uploads"`
	PhotoPolicy    string `envconfig:"PHOTO_POLICY" default:"exact-two"`
	MaxPhotoBytes  int64  `envconfig:"MAX_PHOTO_BYTES" default:"5242880"`
	PasswordPolicy string `envconfig:"PASSWORD_POLICY" default:"strict"`
	DefaultLocale  string `envconfig:"DEFAULT_LOCALE" default:"es"`

	ResendAPIKey string `envconfig:"RESEND_API_KEY" default:""`
	MailFrom     string `envconfig:"MAIL_FROM" default:"UCAM Tracker <no-reply@ucamtracker.app>"`

	SheetsClientEmail string `envconfig:"SHEETS_CLIENT_EMAIL" default:""`
	SheetsPrivateKey  string `envconfig:"SHEETS_PRIVATE_KEY" default:""`
	SheetID           string `envconfig:"SHEET_ID" default:""`
	SheetTab          string `envconfig:"SHEET_TAB" default:""`

	JobWorkers       int  `envconfig:"JOB_WORKERS" default:"2"`
	RealtimePGNotify bool `envconfig:"REALTIME_PG_NOTIFY" default:"false"`

	SeedAdminEmail    string `envconfig:"SEED_ADMIN_EMAIL" default:""`
	SeedAdminPassword string `envconfig:"SEED_ADMIN_PASSWORD" default:""`
}

// Load reads an optional .env file and then the process environment into a Config.
// It reports whether a .env file was found so callers can log it once the logger is up.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, dotenv, err
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &cfg, dotenv, nil
}

// SheetsConfigured reports whether every spreadsheet export setting is present.
func (c *Config) SheetsConfigured() bool {
	return c.SheetsClientEmail != "" && c.SheetsPrivateKey != "" && c.SheetID != "" && c.SheetTab != ""
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
