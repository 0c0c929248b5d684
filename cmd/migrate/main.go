package main

import (
	"github.com/martincass/UCAMtracker/internal/config"
	"github.com/martincass/UCAMtracker/internal/db"
	"github.com/martincass/UCAMtracker/internal/logger"
)

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

	if err := db.Connect(cfg.DBDriver, cfg.DatabaseURL); err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("Running database migrations...", nil)
	if err := db.AutoMigrate(db.GetDB()); err != nil {
		logger.Fatal("Migration failed", map[string]interface{}{"error": err.Error()})
	}
}
