package session

import "github.com/martincass/UCAMtracker/internal/models"

// View is a top-level page of the portal.
type View string

const (
	ViewLogin              View = "login"
	ViewSignup             View = "signup"
	ViewForgotPassword     View = "forgot-password"
	ViewResetPassword      View = "reset-password"
	ViewForceResetPassword View = "force-reset-password"
	ViewRequestAccess      View = "request-access"
	ViewDashboard          View = "dashboard"
	ViewAdminDashboard     View = "admin-dashboard"
)

// Views lists every view in a fixed order.
var Views = []View{
	ViewLogin, ViewSignup, ViewForgotPassword, ViewResetPassword,
	ViewForceResetPassword, ViewRequestAccess, ViewDashboard, ViewAdminDashboard,
}

// Input is the source-of-truth state a routing decision is computed from.
// Nothing is carried over between decisions.
type Input struct {
	RecoveryToken   string
	HasSession      bool
	ProfileFound    bool
	AllowlistActive bool
	MustReset       bool
	Role            models.UserRole
}

type Decision struct {
	View          View `json:"view"`
	ForceLogout   bool `json:"force_logout"`
	ClearFragment bool `json:"clear_fragment"`
}

// Resolve maps the current session state onto the view to render.
func Resolve(in Input) Decision {
	if in.RecoveryToken != "" {
		return Decision{View: ViewResetPassword, ClearFragment: true}
	}
	if !in.HasSession {
		return Decision{View: ViewLogin}
	}
	if !in.ProfileFound || !in.AllowlistActive {
		return Decision{View: ViewLogin, ForceLogout: true}
	}
	if in.MustReset {
		return Decision{View: ViewForceResetPassword}
	}
	if in.Role == models.RoleAdmin {
		return Decision{View: ViewAdminDashboard}
	}
	return Decision{View: ViewDashboard}
}

// ForUser resolves the view for an authenticated user with a known allowlist state.
func ForUser(user *models.User, allowlistActive bool) Decision {
	return Resolve(Input{
		HasSession:      true,
		ProfileFound:    user != nil,
		AllowlistActive: allowlistActive,
		MustReset:       user != nil && user.MustResetPassword,
		Role:            roleOf(user),
	})
}

func roleOf(user *models.User) models.UserRole {
	if user == nil {
		return ""
	}
	return user.Role
}
