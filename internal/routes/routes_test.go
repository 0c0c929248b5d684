package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/martincass/UCAMtracker/internal/auth"
	"github.com/martincass/UCAMtracker/internal/db"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/mailer"
	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/martincass/UCAMtracker/internal/realtime"
	"github.com/martincass/UCAMtracker/internal/services"
	"github.com/martincass/UCAMtracker/internal/sheets"
	"github.com/martincass/UCAMtracker/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var pngData = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00"), make([]byte, 64)...)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	hub    *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(conn))

	bucket, err := storage.NewLocalBucket(t.TempDir())
	require.NoError(t, err)

	tr := i18n.MustNew("en")
	mail := mailer.Disabled{}
	hub := realtime.NewHub()
	go hub.Run()

	submissions := services.NewSubmissionService(conn, bucket, hub, services.SubmissionOptions{Photos: services.PhotosExactTwo})
	jobs := services.NewJobService(conn, submissions, func(ctx context.Context) (sheets.Appender, error) {
		return nil, sheets.ErrNotConfigured
	}, 1)
	t.Cleanup(func() {
		jobs.Stop()
		hub.Stop()
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	authSvc := services.NewAuthService(conn, auth.NewTokenIssuer("routes-test-secret", time.Hour, time.Hour), mail, tr, services.AuthOptions{
		Policy:     auth.BasicPolicy,
		BcryptCost: bcrypt.MinCost,
		SiteURL:    "https://portal.example.com",
	})

	r := gin.New()
	SetupRoutes(r, Dependencies{
		Translator:     tr,
		Auth:           authSvc,
		Users:          services.NewUserAdminService(conn, mail, tr, bcrypt.MinCost, "https://portal.example.com"),
		Clients:        services.NewClientService(conn),
		AccessRequests: services.NewAccessRequestService(conn),
		Submissions:    submissions,
		Jobs:           jobs,
		Health:         services.NewHealthService(conn, bucket, tr, services.HealthOptions{SiteURL: "https://portal.example.com"}),
		Audit:          services.NewAuditService(conn),
		Hub:            hub,
	})

	hash, err := auth.HashPassword("Admin123!", bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, conn.Create(&models.User{
		Email: "admin@example.com", PasswordHash: hash, Role: models.RoleAdmin,
		ClientID: "ADMIN", ClientName: "Admin", EmailConfirmedAt: &now,
	}).Error)
	require.NoError(t, conn.Create(&models.AllowlistClient{
		Email: "admin@example.com", ClientID: "ADMIN", ClientName: "Admin", Active: true,
	}).Error)

	return &testServer{router: r, db: conn, hub: hub}
}

type response struct {
	Code int
	Body map[string]interface{}
	Raw  string
	Head http.Header
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req, token)
}

func (s *testServer) send(t *testing.T, req *http.Request, token string) response {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	res := response{Code: w.Code, Raw: w.Body.String(), Head: w.Header()}
	_ = json.Unmarshal(w.Body.Bytes(), &res.Body)
	return res
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, res.Code, res.Raw)
	return res.Body["token"].(string)
}

func (s *testServer) submit(t *testing.T, token string, fields map[string]string, photos int) response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	names := []string{"photo_entry", "photo_weighing"}
	for i := 0; i < photos; i++ {
		fw, err := mw.CreateFormFile(names[i%2], fmt.Sprintf("photo-%d.png", i))
		require.NoError(t, err)
		_, err = fw.Write(pngData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(t, req, token)
}

// provision creates a client account through the admin API and completes its
// forced password reset, returning a usable token.
func (s *testServer) provision(t *testing.T, adminToken, email, clientID string) string {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/v1/admin/users", adminToken, gin.H{
		"email": email, "client_id": clientID, "client_name": clientID + " Inc",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Raw)
	assert.Equal(t, false, res.Body["email_sent"])
	assert.Equal(t, "RESEND_API_KEY not set", res.Body["email_error"])
	temp := res.Body["password"].(string)

	token := s.login(t, email, temp)
	res = s.do(t, http.MethodPost, "/api/v1/auth/force-reset-password", token, gin.H{
		"password": "Fresh1234", "confirm_password": "Fresh1234",
	})
	require.Equal(t, http.StatusOK, res.Code, res.Raw)
	return res.Body["token"].(string)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "ok", res.Body["status"])

	admin := s.login(t, "admin@example.com", "Admin123!")
	res = s.do(t, http.MethodGet, "/api/v1/admin/system-health", admin, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Raw)
	data := res.Body["data"].(map[string]interface{})
	assert.Equal(t, "warn", data["status"])
	checks := data["checks"].(map[string]interface{})
	assert.Equal(t, "warn", checks["smtp"].(map[string]interface{})["status"])
	assert.Equal(t, "ok", checks["database"].(map[string]interface{})["status"])

	res = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Raw, "ucamtracker_http_request_duration_seconds")
}

func TestAuthenticationErrors(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/api/v1/submissions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "SESSION_INVALID", res.Body["code"])

	res = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "admin@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", res.Body["code"])

	res = s.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{"email": "not-an-email", "password": "x", "confirm_password": "y"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "VALIDATION_ERROR", res.Body["code"])
	assert.NotEmpty(t, res.Body["details"])

	admin := s.login(t, "admin@example.com", "Admin123!")
	res = s.do(t, http.MethodPost, "/api/v1/auth/logout", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = s.do(t, http.MethodGet, "/api/v1/users/me", admin, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "SESSION_REVOKED", res.Body["code"])
}

func TestSignupAndForgotPasswordAreUniform(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodPost, "/api/v1/auth/signup", "", gin.H{
		"email": "stranger@example.com", "password": "Password1", "confirm_password": "Password1",
	})
	require.Equal(t, http.StatusOK, res.Code, res.Raw)
	assert.Equal(t, "PENDING_REVIEW", res.Body["status"])

	known := s.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", gin.H{"email": "admin@example.com"})
	unknown := s.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", gin.H{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Raw, unknown.Raw)

	res = s.do(t, http.MethodPost, "/api/v1/access-requests", "", gin.H{"email": "stranger@example.com", "company": "Stranger Co"})
	assert.Equal(t, http.StatusCreated, res.Code, res.Raw)

	es := httptest.NewRequest(http.MethodPost, "/api/v1/auth/forgot-password", strings.NewReader(`{"email":"ghost@example.com"}`))
	es.Header.Set("Content-Type", "application/json")
	es.Header.Set("Accept-Language", "es-AR,es;q=0.9")
	res = s.send(t, es, "")
	assert.NotEqual(t, unknown.Body["message"], res.Body["message"])
}

func TestSessionEndpoint(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/api/v1/session", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "login", res.Body["data"].(map[string]interface{})["view"])

	admin := s.login(t, "admin@example.com", "Admin123!")
	res = s.do(t, http.MethodGet, "/api/v1/session", admin, nil)
	assert.Equal(t, "admin-dashboard", res.Body["data"].(map[string]interface{})["view"])

	res = s.do(t, http.MethodGet, "/api/v1/session?fragment=%23access_token%3Dabc%26type%3Drecovery", admin, nil)
	data := res.Body["data"].(map[string]interface{})
	assert.Equal(t, "reset-password", data["view"])
	assert.Equal(t, true, data["clear_fragment"])
}

func TestSubmissionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@example.com", "Admin123!")

	res := s.do(t, http.MethodPost, "/api/v1/admin/users", admin, gin.H{"email": "ana@acme.com", "client_id": "ACME", "client_name": "Acme"})
	require.Equal(t, http.StatusCreated, res.Code, res.Raw)
	stale := s.login(t, "ana@acme.com", res.Body["password"].(string))
	blocked := s.do(t, http.MethodGet, "/api/v1/submissions", stale, nil)
	assert.Equal(t, http.StatusForbidden, blocked.Code)
	assert.Equal(t, "PASSWORD_RESET_REQUIRED", blocked.Body["code"])
	me := s.do(t, http.MethodGet, "/api/v1/users/me", stale, nil)
	assert.Equal(t, "force-reset-password", me.Body["data"].(map[string]interface{})["session"].(map[string]interface{})["view"])

	res = s.do(t, http.MethodPost, "/api/v1/auth/force-reset-password", stale, gin.H{"password": "Fresh1234", "confirm_password": "Fresh1234"})
	require.Equal(t, http.StatusOK, res.Code, res.Raw)
	acme := res.Body["token"].(string)
	globex := s.provision(t, admin, "gus@globex.com", "GLOBEX")

	res = s.submit(t, acme, map[string]string{"date": "2024-05-01", "weighing_kg": "123.45", "product": "Bracket"}, 1)
	assert.Equal(t, http.StatusBadRequest, res.Code, res.Raw)

	for _, weight := range []string{"Inf", "-Inf", "NaN", "1e999"} {
		res = s.submit(t, acme, map[string]string{"date": "2024-05-01", "weighing_kg": weight}, 2)
		assert.Equal(t, http.StatusBadRequest, res.Code, weight)
		assert.Equal(t, "VALIDATION_ERROR", res.Body["code"], weight)
	}
	res = s.submit(t, acme, map[string]string{"date": "2024-05-01", "weighing_kg": "12", "scrap_qty": "+Inf"}, 2)
	assert.Equal(t, http.StatusBadRequest, res.Code, res.Raw)

	res = s.submit(t, acme, map[string]string{"date": "2024-05-01", "weighing_kg": "123.45", "product": "Bracket"}, 2)
	require.Equal(t, http.StatusCreated, res.Code, res.Raw)
	sub := res.Body["data"].(map[string]interface{})
	id := sub["id"].(string)
	assert.Equal(t, "pending", sub["status"])
	assert.Equal(t, 123.45, sub["weighing_kg"])

	res = s.do(t, http.MethodGet, "/api/v1/submissions/"+id, globex, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	res = s.do(t, http.MethodGet, "/api/v1/submissions", globex, nil)
	assert.Empty(t, res.Body["data"])

	res = s.do(t, http.MethodGet, "/api/v1/submissions/"+id+"/photos/1", acme, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "image/png", res.Head.Get("Content-Type"))
	assert.Equal(t, string(pngData), res.Raw)

	res = s.do(t, http.MethodPatch, "/api/v1/admin/submissions/"+id+"/status", acme, gin.H{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	for i := 0; i < 2; i++ {
		res = s.do(t, http.MethodPatch, "/api/v1/admin/submissions/"+id+"/status", admin, gin.H{"status": "approved", "expected_version": 1})
		require.Equal(t, http.StatusOK, res.Code, res.Raw)
		assert.Equal(t, i == 0, res.Body["changed"])
		assert.Equal(t, float64(2), res.Body["data"].(map[string]interface{})["version"])
	}
	res = s.do(t, http.MethodPatch, "/api/v1/admin/submissions/"+id+"/status", admin, gin.H{"status": "rejected", "expected_version": 1})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "CONFLICT", res.Body["code"])

	res = s.do(t, http.MethodGet, "/api/v1/admin/submissions/export.csv", admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/csv; charset=utf-8", res.Head.Get("Content-Type"))
	assert.Contains(t, res.Head.Get("Content-Disposition"), "attachment;")
	lines := strings.Split(strings.TrimSuffix(res.Raw, "\r\n"), "\r\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `"id","date","client_id"`))
	assert.Contains(t, lines[1], `"123.45"`)
	assert.Contains(t, lines[1], `"approved"`)

	res = s.do(t, http.MethodPost, "/api/v1/admin/exports/sheets", admin, nil)
	require.Equal(t, http.StatusAccepted, res.Code, res.Raw)
	jobID := res.Body["data"].(map[string]interface{})["id"].(string)
	require.Eventually(t, func() bool {
		res := s.do(t, http.MethodGet, "/api/v1/admin/jobs/"+jobID, admin, nil)
		return res.Code == http.StatusOK && res.Body["data"].(map[string]interface{})["status"] == "failed"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestAdminDeactivationRevokesClientSession(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@example.com", "Admin123!")
	acme := s.provision(t, admin, "ana@acme.com", "ACME")

	var user models.User
	require.NoError(t, s.db.Where("email = ?", "ana@acme.com").First(&user).Error)

	res := s.do(t, http.MethodPost, "/api/v1/admin/users/"+user.ID+"/deactivate", admin, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Raw)

	res = s.do(t, http.MethodGet, "/api/v1/submissions", acme, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "SESSION_REVOKED", res.Body["code"])

	var adminUser models.User
	require.NoError(t, s.db.Where("email = ?", "admin@example.com").First(&adminUser).Error)
	res = s.do(t, http.MethodPut, "/api/v1/admin/users/"+adminUser.ID+"/role", admin, gin.H{"role": "client"})
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "SELF_ROLE_CHANGE", res.Body["code"])

	res = s.do(t, http.MethodGet, "/api/v1/admin/audit-logs?action="+models.AuditUserDeactivated, admin, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.Body["data"], 1)
}

func TestDeactivationClosesRealtimeConnection(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@example.com", "Admin123!")
	acme := s.provision(t, admin, "ana@acme.com", "ACME")

	res := s.submit(t, acme, map[string]string{"date": "2024-05-01", "weighing_kg": "123.45"}, 2)
	require.Equal(t, http.StatusCreated, res.Code, res.Raw)
	id := res.Body["data"].(map[string]interface{})["id"].(string)

	srv := httptest.NewServer(s.router)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws?token="+acme, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	var user models.User
	require.NoError(t, s.db.Where("email = ?", "ana@acme.com").First(&user).Error)
	res = s.do(t, http.MethodPost, "/api/v1/admin/users/"+user.ID+"/deactivate", admin, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Raw)

	res = s.do(t, http.MethodPatch, "/api/v1/admin/submissions/"+id+"/status", admin, gin.H{"status": "approved"})
	require.Equal(t, http.StatusOK, res.Code, res.Raw)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.Error(t, err, "deactivated session received %s", msg)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), err.Error())
}

func TestRealtimeRejectsInvalidToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// camelKeys returns every object key under v that is not snake_case.
func camelKeys(v interface{}, path string) []string {
	var out []string
	switch node := v.(type) {
	case map[string]interface{}:
		for k, child := range node {
			if strings.ToLower(k) != k {
				out = append(out, path+"."+k)
			}
			out = append(out, camelKeys(child, path+"."+k)...)
		}
	case []interface{}:
		for _, child := range node {
			out = append(out, camelKeys(child, path+"[]")...)
		}
	}
	return out
}

func TestResponsesUseSnakeCaseKeys(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "admin@example.com", "password": "Admin123!"})
	require.Equal(t, http.StatusOK, res.Code, res.Raw)
	assert.Empty(t, camelKeys(res.Body, "login"))
	assert.NotEmpty(t, res.Body["expires_at"])
	admin := res.Body["token"].(string)

	acme := s.provision(t, admin, "ana@acme.com", "ACME")
	res = s.submit(t, acme, map[string]string{"date": "2024-05-01", "weighing_kg": "5"}, 2)
	require.Equal(t, http.StatusCreated, res.Code, res.Raw)

	me := s.do(t, http.MethodGet, "/api/v1/users/me", acme, nil)
	require.Equal(t, http.StatusOK, me.Code, me.Raw)
	assert.Equal(t, "ACME", me.Body["data"].(map[string]interface{})["client_id"])

	export := s.do(t, http.MethodPost, "/api/v1/admin/exports/sheets", admin, nil)
	require.Equal(t, http.StatusAccepted, export.Code, export.Raw)

	for name, path := range map[string]string{
		"users":         "/api/v1/admin/users",
		"submissions":   "/api/v1/admin/submissions",
		"system-health": "/api/v1/admin/system-health",
		"audit-logs":    "/api/v1/admin/audit-logs",
		"session":       "/api/v1/session",
		"job":           "/api/v1/admin/jobs/" + export.Body["data"].(map[string]interface{})["id"].(string),
	} {
		res := s.do(t, http.MethodGet, path, admin, nil)
		require.Equal(t, http.StatusOK, res.Code, name)
		assert.Empty(t, camelKeys(res.Body, name), name)
	}
	assert.Empty(t, camelKeys(me.Body, "me"))
}
