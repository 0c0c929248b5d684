package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/middleware"
	"github.com/martincass/UCAMtracker/internal/services"
)

// SystemController serves health reports and the audit trail.
type SystemController struct {
	responder
	health *services.HealthService
	audit  *services.AuditService
}

func NewSystemController(health *services.HealthService, audit *services.AuditService, tr *i18n.Translator) *SystemController {
	return &SystemController{responder: responder{tr: tr}, health: health, audit: audit}
}

// Health is the public liveness check.
func (sc *SystemController) Health(c *gin.Context) {
	if err := sc.health.PingDatabase(c.Request.Context()); err != nil {
		logger.WithError(err, "health").Error("Database health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "error",
			"database": "error",
			"time":     timeNow().UTC(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "ok",
		"time":     timeNow().UTC(),
	})
}

func (sc *SystemController) SystemHealth(c *gin.Context) {
	report := sc.health.SystemHealth(c.Request.Context(), middleware.Locale(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

func (sc *SystemController) AuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := sc.audit.List(c.Request.Context(), services.AuditFilter{
		Action: c.Query("action"),
		Actor:  c.Query("actor"),
		Limit:  limit,
	})
	if err != nil {
		sc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": logs})
}
