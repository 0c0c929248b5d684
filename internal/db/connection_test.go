package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	conn, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{"users", "allowlist_clients", "submissions", "submission_photos", "access_requests", "admin_audit_logs", "jobs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	require.NoError(t, Ping(context.Background(), conn, time.Second))

	user := models.User{Email: "  Ana@Example.com ", PasswordHash: "x", Role: models.RoleClient}
	require.NoError(t, conn.Create(&user).Error)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "ana@example.com", user.Email)
}

func TestJSONColumnsRoundTrip(t *testing.T) {
	conn, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(conn))

	entry := models.AuditLog{ActorUserID: "u1", Action: models.AuditClientDeleted, Payload: datatypes.JSONMap{"client_id": "ACME", "rows": 3}}
	require.NoError(t, conn.Create(&entry).Error)
	job := models.Job{Type: models.JobTypeSheetsExport, RequestedBy: "u1"}
	require.NoError(t, conn.Create(&job).Error)

	var gotEntry models.AuditLog
	require.NoError(t, conn.First(&gotEntry, "id = ?", entry.ID).Error)
	assert.Equal(t, "ACME", gotEntry.Payload["client_id"])
	assert.Equal(t, "3", fmt.Sprint(gotEntry.Payload["rows"]))

	var gotJob models.Job
	require.NoError(t, conn.First(&gotJob, "id = ?", job.ID).Error)
	assert.Empty(t, gotJob.Result)
	assert.Equal(t, models.JobStatusPending, gotJob.Status)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	assert.Error(t, err)

	_, err = Open("postgres", "")
	assert.Error(t, err)
}

func TestPingWithoutConnection(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil, time.Second))
}
