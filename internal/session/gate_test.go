package session

import (
	"testing"

	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestResolveDecisionTable(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Decision
	}{
		{"no session", Input{}, Decision{View: ViewLogin}},
		{"recovery token without session", Input{RecoveryToken: "t"}, Decision{View: ViewResetPassword, ClearFragment: true}},
		{"recovery token wins over session", Input{RecoveryToken: "t", HasSession: true, ProfileFound: true, AllowlistActive: true, Role: models.RoleAdmin}, Decision{View: ViewResetPassword, ClearFragment: true}},
		{"must reset client", Input{HasSession: true, ProfileFound: true, AllowlistActive: true, MustReset: true, Role: models.RoleClient}, Decision{View: ViewForceResetPassword}},
		{"must reset admin", Input{HasSession: true, ProfileFound: true, AllowlistActive: true, MustReset: true, Role: models.RoleAdmin}, Decision{View: ViewForceResetPassword}},
		{"admin", Input{HasSession: true, ProfileFound: true, AllowlistActive: true, Role: models.RoleAdmin}, Decision{View: ViewAdminDashboard}},
		{"client", Input{HasSession: true, ProfileFound: true, AllowlistActive: true, Role: models.RoleClient}, Decision{View: ViewDashboard}},
		{"inactive allowlist", Input{HasSession: true, ProfileFound: true, AllowlistActive: false, Role: models.RoleAdmin}, Decision{View: ViewLogin, ForceLogout: true}},
		{"inactive allowlist with must reset", Input{HasSession: true, ProfileFound: true, MustReset: true}, Decision{View: ViewLogin, ForceLogout: true}},
		{"missing profile", Input{HasSession: true, AllowlistActive: true}, Decision{View: ViewLogin, ForceLogout: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.in))
		})
	}
}

func TestMustResetAlwaysRoutesToForceReset(t *testing.T) {
	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleClient, ""} {
		user := &models.User{Role: role, MustResetPassword: true}
		assert.Equal(t, ViewForceResetPassword, ForUser(user, true).View, role)
	}
}

func TestForUserWithoutProfile(t *testing.T) {
	d := ForUser(nil, true)
	assert.Equal(t, ViewLogin, d.View)
	assert.True(t, d.ForceLogout)
}

func TestViewsAreDistinct(t *testing.T) {
	seen := map[View]bool{}
	for _, v := range Views {
		assert.False(t, seen[v], v)
		seen[v] = true
	}
	assert.Len(t, seen, 8)
}
