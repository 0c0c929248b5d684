package main

import (
	"errors"
	"time"

	"github.com/martincass/UCAMtracker/internal/auth"
	"github.com/martincass/UCAMtracker/internal/config"
	"github.com/martincass/UCAMtracker/internal/db"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/models"
	"gorm.io/gorm"
)

const adminClientID = "ADMIN"

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		logger.Initialize("INFO", "")
		logger.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}
	logger.Initialize(cfg.LogLevel, cfg.LogFile)
	if !dotenv {
		logger.Info("No .env file found, using system environment variables", nil)
	}

	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		logger.Fatal("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required", nil)
	}
	if violations := auth.PolicyByName(cfg.PasswordPolicy).Validate(cfg.SeedAdminPassword); len(violations) > 0 {
		logger.Fatal("SEED_ADMIN_PASSWORD does not meet the password policy", map[string]interface{}{"violations": violations})
	}

	if err := db.Connect(cfg.DBDriver, cfg.DatabaseURL); err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	if err := db.AutoMigrate(db.DB); err != nil {
		logger.Fatal("Migration failed", map[string]interface{}{"error": err.Error()})
	}

	created, err := seedAdmin(db.DB, cfg.SeedAdminEmail, cfg.SeedAdminPassword, cfg.BcryptCost)
	if err != nil {
		logger.Fatal("Failed to seed admin", map[string]interface{}{"error": err.Error()})
	}
	if created {
		logger.Info("Admin account created", map[string]interface{}{"email": models.NormalizeEmail(cfg.SeedAdminEmail)})
	} else {
		logger.Warn("Admin account already exists, allowlist entry refreshed", map[string]interface{}{"email": models.NormalizeEmail(cfg.SeedAdminEmail)})
	}
}

// seedAdmin creates a confirmed admin with an active allowlist entry. An
// existing account is left as is apart from reactivating its allowlist entry.
func seedAdmin(conn *gorm.DB, email, password string, cost int) (bool, error) {
	email = models.NormalizeEmail(email)
	created := false

	err := conn.Transaction(func(tx *gorm.DB) error {
		var entry models.AllowlistClient
		err := tx.Where("email = ?", email).First(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry = models.AllowlistClient{Email: email, ClientID: adminClientID, ClientName: "Administrators", Active: true}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&entry).Update("active", true).Error; err != nil {
				return err
			}
		}

		var user models.User
		err = tx.Unscoped().Where("email = ?", email).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hash, err := auth.HashPassword(password, cost)
		if err != nil {
			return err
		}
		now := time.Now()
		user = models.User{
			Email:            email,
			PasswordHash:     hash,
			Role:             models.RoleAdmin,
			ClientID:         entry.ClientID,
			ClientName:       entry.ClientName,
			EmailConfirmedAt: &now,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
