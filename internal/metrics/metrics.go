package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucamtracker_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	Signups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucamtracker_signups_total",
		Help: "Signup attempts by outcome.",
	}, []string{"outcome"})

	SubmissionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ucamtracker_submissions_created_total",
		Help: "Submissions created by clients.",
	})

	StatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucamtracker_submission_status_changes_total",
		Help: "Submission status transitions applied by admins.",
	}, []string{"status"})

	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucamtracker_jobs_total",
		Help: "Background jobs by type and outcome.",
	}, []string{"type", "outcome"})

	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ucamtracker_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
