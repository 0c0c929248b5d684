package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SITE_URL", "https://portal.example.com/")

	cfg, _, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "exact-two", cfg.PhotoPolicy)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxPhotoBytes)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "https://portal.example.com", cfg.SiteURL)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	assert.False(t, cfg.SheetsConfigured())
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "placeholder")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, _, err := Load()
	assert.Error(t, err)
}

func TestSheetsConfigured(t *testing.T) {
	cfg := &Config{
		SheetsClientEmail: "svc@project.iam.gserviceaccount.com",
		SheetsPrivateKey:  "key",
		SheetID:           "sheet",
	}
	assert.False(t, cfg.SheetsConfigured())

	cfg.SheetTab = "Submissions"
	assert.True(t, cfg.SheetsConfigured())
}
