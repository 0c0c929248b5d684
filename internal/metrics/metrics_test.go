package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	before := testutil.ToFloat64(StatusChanges.WithLabelValues("approved"))
	StatusChanges.WithLabelValues("approved").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(StatusChanges.WithLabelValues("approved")))

	r := gin.New()
	r.GET("/metrics", Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ucamtracker_submission_status_changes_total")
}
