package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/services"
)

const (
	principalKey = "principal"
	localeKey    = "locale"

	CodeSessionInvalid        = "SESSION_INVALID"
	CodeSessionRevoked        = "SESSION_REVOKED"
	CodePasswordResetRequired = "PASSWORD_RESET_REQUIRED"
	CodeForbidden             = "FORBIDDEN"
)

// Authenticator resolves a bearer token into the calling principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*services.Principal, error)
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func abort(c *gin.Context, tr *i18n.Translator, status int, code, key string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"code":    code,
		"message": tr.T(Locale(c), key, nil),
	})
}

// Auth loads the caller from the session token on every request, so
// deactivation and revocation take effect immediately.
func Auth(authn Authenticator, tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			abort(c, tr, http.StatusUnauthorized, CodeSessionInvalid, "error.invalid_token")
			return
		}

		p, err := authn.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, services.ErrSessionRevoked):
			abort(c, tr, http.StatusUnauthorized, CodeSessionRevoked, "error.session_revoked")
			return
		case errors.Is(err, services.ErrInvalidToken):
			abort(c, tr, http.StatusUnauthorized, CodeSessionInvalid, "error.invalid_token")
			return
		default:
			logger.WithError(err, "auth_middleware").Error("Failed to authenticate request")
			abort(c, tr, http.StatusInternalServerError, "INTERNAL_ERROR", "error.unexpected")
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// RequirePasswordFresh blocks accounts that still have to replace a
// temporary password.
func RequirePasswordFresh(tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p == nil || p.User.MustResetPassword {
			abort(c, tr, http.StatusForbidden, CodePasswordResetRequired, "error.password_reset_required")
			return
		}
		c.Next()
	}
}

func RequireAdmin(tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentPrincipal(c).IsAdmin() {
			abort(c, tr, http.StatusForbidden, CodeForbidden, "error.forbidden")
			return
		}
		c.Next()
	}
}

// CurrentPrincipal returns the principal set by Auth, or nil.
func CurrentPrincipal(c *gin.Context) *services.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*services.Principal)
	return p
}

// SetPrincipal stores p as the caller of the request.
func SetPrincipal(c *gin.Context, p *services.Principal) {
	c.Set(principalKey, p)
}

// Localize picks the response locale from ?lang= or Accept-Language.
func Localize(tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		locale := c.Query("lang")
		if !tr.Supported(locale) {
			locale = tr.Match(c.GetHeader("Accept-Language"))
		}
		c.Set(localeKey, locale)
		c.Next()
	}
}

// Locale returns the locale chosen by Localize, or "" for the default.
func Locale(c *gin.Context) string {
	return c.GetString(localeKey)
}
