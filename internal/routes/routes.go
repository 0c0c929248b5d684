package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/controllers"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/metrics"
	"github.com/martincass/UCAMtracker/internal/middleware"
	"github.com/martincass/UCAMtracker/internal/realtime"
	"github.com/martincass/UCAMtracker/internal/services"
	"github.com/martincass/UCAMtracker/internal/validation"
)

// Dependencies are the services the HTTP layer is built from.
type Dependencies struct {
	Translator     *i18n.Translator
	Auth           *services.AuthService
	Users          *services.UserAdminService
	Clients        *services.ClientService
	AccessRequests *services.AccessRequestService
	Submissions    *services.SubmissionService
	Jobs           *services.JobService
	Health         *services.HealthService
	Audit          *services.AuditService
	Hub            *realtime.Hub
	CORSOrigins    []string
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept-Language"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, d Dependencies) {
	validation.Register()
	tr := d.Translator

	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.Use(middleware.Localize(tr))

	authController := controllers.NewAuthController(d.Auth, tr)
	userController := controllers.NewUserController(d.Auth, d.Users, tr)
	submissionController := controllers.NewSubmissionController(d.Submissions, d.Jobs, tr)
	clientController := controllers.NewClientController(d.Clients, tr)
	accessRequestController := controllers.NewAccessRequestController(d.AccessRequests, tr)
	systemController := controllers.NewSystemController(d.Health, d.Audit, tr)
	realtimeController := controllers.NewRealtimeController(d.Auth, d.Hub, d.CORSOrigins, tr)

	r.GET("/health", systemController.Health)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	{
		// Public
		auth := api.Group("/auth")
		{
			auth.POST("/login", authController.Login)
			auth.POST("/signup", authController.Signup)
			auth.POST("/confirm", authController.Confirm)
			auth.POST("/forgot-password", authController.ForgotPassword)
			auth.POST("/reset-password", authController.ResetPassword)
		}
		api.POST("/access-requests", accessRequestController.Submit)
		api.GET("/session", authController.Session)
		api.GET("/ws", realtimeController.Connect)

		// Authenticated, even while a password reset is pending
		protected := api.Group("/")
		protected.Use(middleware.Auth(d.Auth, tr))
		{
			protected.POST("/auth/logout", authController.Logout)
			protected.POST("/auth/force-reset-password", authController.ForceResetPassword)
			protected.GET("/users/me", userController.GetCurrentUser)
		}

		fresh := protected.Group("/")
		fresh.Use(middleware.RequirePasswordFresh(tr))
		{
			fresh.PUT("/users/me/password", userController.ChangePassword)

			submissions := fresh.Group("/submissions")
			{
				submissions.GET("", submissionController.List)
				submissions.POST("", submissionController.Create)
				submissions.GET("/export.csv", submissionController.ExportCSV)
				submissions.GET("/:id", submissionController.Get)
				submissions.GET("/:id/photos/:position", submissionController.Photo)
			}
		}

		admin := fresh.Group("/admin")
		admin.Use(middleware.RequireAdmin(tr))
		{
			admin.GET("/submissions", submissionController.AdminList)
			admin.GET("/submissions/export.csv", submissionController.AdminExportCSV)
			admin.PATCH("/submissions/:id/status", submissionController.UpdateStatus)

			admin.GET("/users", userController.ListUsers)
			admin.POST("/users", userController.CreateUser)
			admin.POST("/users/:id/reset-password", userController.ResetPassword)
			admin.POST("/users/:id/deactivate", userController.Deactivate)
			admin.PUT("/users/:id/role", userController.UpdateRole)
			admin.DELETE("/users/:id", userController.Archive)

			admin.GET("/clients", clientController.List)
			admin.POST("/clients", clientController.Invite)
			admin.PATCH("/clients/:id", clientController.Update)
			admin.DELETE("/clients/:id", clientController.Delete)

			admin.GET("/access-requests", accessRequestController.List)
			admin.POST("/access-requests/:id/approve", accessRequestController.Approve)
			admin.POST("/access-requests/:id/deny", accessRequestController.Deny)

			admin.GET("/system-health", systemController.SystemHealth)
			admin.POST("/exports/sheets", submissionController.ExportSheets)
			admin.GET("/jobs/:id", submissionController.GetJob)
			admin.GET("/audit-logs", systemController.AuditLogs)
		}
	}
}
