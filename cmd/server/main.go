package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/auth"
	"github.com/martincass/UCAMtracker/internal/config"
	"github.com/martincass/UCAMtracker/internal/db"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/mailer"
	"github.com/martincass/UCAMtracker/internal/realtime"
	"github.com/martincass/UCAMtracker/internal/routes"
	"github.com/martincass/UCAMtracker/internal/services"
	"github.com/martincass/UCAMtracker/internal/sheets"
	"github.com/martincass/UCAMtracker/internal/storage"
)

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		logger.Initialize("INFO", "")
		logger.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	// Initialize logger first
	logger.Initialize(cfg.LogLevel, cfg.LogFile)
	if !dotenv {
		logger.Warn("No .env file found, using environment variables", nil)
	}

	conn, err := db.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	if err := db.AutoMigrate(conn); err != nil {
		logger.Fatal("Failed to migrate database", map[string]interface{}{"error": err.Error()})
	}

	bucket, err := storage.NewLocalBucket(cfg.UploadDir)
	if err != nil {
		logger.Fatal("Failed to prepare photo storage", map[string]interface{}{
			"error":      err.Error(),
			"upload_dir": cfg.UploadDir,
		})
	}

	tr, err := i18n.New(cfg.DefaultLocale)
	if err != nil {
		logger.Fatal("Failed to load translations", map[string]interface{}{"error": err.Error()})
	}

	mail := mailer.New(cfg.ResendAPIKey, cfg.MailFrom)
	if !mail.Enabled() {
		logger.Warn("RESEND_API_KEY not set, emails will not be sent", nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	go hub.Run()

	var publisher realtime.Publisher = hub
	if cfg.RealtimePGNotify && conn.Dialector.Name() == "postgres" {
		publisher = realtime.NewPGPublisher(conn)
		go func() {
			if err := realtime.Listen(ctx, cfg.DatabaseURL, hub); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err, "realtime").Error("Postgres listener stopped")
			}
		}()
		logger.Info("Realtime events fanned out through postgres notifications", nil)
	}

	authService := services.NewAuthService(conn, auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL, cfg.RecoveryTTL), mail, tr, services.AuthOptions{
		Policy:     auth.PolicyByName(cfg.PasswordPolicy),
		BcryptCost: cfg.BcryptCost,
		SiteURL:    cfg.SiteURL,
	})
	submissions := services.NewSubmissionService(conn, bucket, publisher, services.SubmissionOptions{
		Photos:        services.PhotoPolicyByName(cfg.PhotoPolicy),
		MaxPhotoBytes: cfg.MaxPhotoBytes,
	})
	sheetsConfig := sheets.Config{
		ClientEmail: cfg.SheetsClientEmail,
		PrivateKey:  cfg.SheetsPrivateKey,
		SheetID:     cfg.SheetID,
		Tab:         cfg.SheetTab,
	}
	jobs := services.NewJobService(conn, submissions, func(ctx context.Context) (sheets.Appender, error) {
		client, err := sheets.New(ctx, sheetsConfig)
		if err != nil {
			return nil, err
		}
		return client, nil
	}, cfg.JobWorkers)

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router without default middleware
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(gin.Recovery())

	routes.SetupRoutes(r, routes.Dependencies{
		Translator:     tr,
		Auth:           authService,
		Users:          services.NewUserAdminService(conn, mail, tr, cfg.BcryptCost, cfg.SiteURL),
		Clients:        services.NewClientService(conn),
		AccessRequests: services.NewAccessRequestService(conn),
		Submissions:    submissions,
		Jobs:           jobs,
		Health: services.NewHealthService(conn, bucket, tr, services.HealthOptions{
			SiteURL:          cfg.SiteURL,
			MailEnabled:      mail.Enabled(),
			SheetsConfigured: cfg.SheetsConfigured(),
		}),
		Audit:       services.NewAuditService(conn),
		Hub:         hub,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting UCAM Tracker server", map[string]interface{}{
		"port":     cfg.Port,
		"env":      cfg.Env,
		"gin_mode": gin.Mode(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server gracefully...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}
	jobs.Stop()
	hub.Stop()

	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("Server exited gracefully", nil)
}
