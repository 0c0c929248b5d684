package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/middleware"
	"github.com/martincass/UCAMtracker/internal/services"
	"github.com/martincass/UCAMtracker/internal/validation"
)

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountDisabled    = "ACCOUNT_DISABLED"
	CodeEmailNotConfirmed  = "EMAIL_NOT_CONFIRMED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeLastAdmin          = "LAST_ADMIN"
	CodeSelfRoleChange     = "SELF_ROLE_CHANGE"
	CodeInternal           = "INTERNAL_ERROR"
)

var timeNow = time.Now

type errorMapping struct {
	target error
	status int
	code   string
	key    string
}

var errorMappings = []errorMapping{
	{services.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials, "error.invalid_credentials"},
	{services.ErrSessionRevoked, http.StatusUnauthorized, middleware.CodeSessionRevoked, "error.session_revoked"},
	{services.ErrAccountDisabled, http.StatusForbidden, CodeAccountDisabled, "error.account_disabled"},
	{services.ErrEmailNotConfirmed, http.StatusForbidden, CodeEmailNotConfirmed, "error.email_not_confirmed"},
	{services.ErrPasswordResetRequired, http.StatusForbidden, middleware.CodePasswordResetRequired, "error.password_reset_required"},
	{services.ErrInvalidToken, http.StatusBadRequest, CodeInvalidToken, "error.invalid_token"},
	{services.ErrSelfRoleChange, http.StatusForbidden, CodeSelfRoleChange, "error.self_role"},
	{services.ErrForbidden, http.StatusForbidden, middleware.CodeForbidden, "error.forbidden"},
	{services.ErrNotFound, http.StatusNotFound, CodeNotFound, "error.not_found"},
	{services.ErrLastAdmin, http.StatusConflict, CodeLastAdmin, "error.last_admin"},
	{services.ErrConflict, http.StatusConflict, CodeConflict, "error.conflict"},
}

// responder writes the uniform error envelope in the caller's locale.
type responder struct {
	tr *i18n.Translator
}

func (r responder) t(c *gin.Context, key string, vars map[string]string) string {
	return r.tr.T(middleware.Locale(c), key, vars)
}

func (r responder) respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		details := make([]validation.FieldError, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			msg := f.Message
			if f.Key {
				msg = r.t(c, f.Message, nil)
			}
			details = append(details, validation.FieldError{Field: f.Field, Message: msg})
		}
		r.validationFailed(c, details)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{
				"success": false,
				"code":    m.code,
				"message": r.t(c, m.key, nil),
			})
			return
		}
	}

	logger.WithError(err, "controllers").
		WithField("path", c.Request.URL.Path).
		Error("Unhandled request error")
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"code":    CodeInternal,
		"message": r.t(c, "error.unexpected", nil),
	})
}

func (r responder) validationFailed(c *gin.Context, details []validation.FieldError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"code":    CodeValidation,
		"message": r.t(c, "error.validation", nil),
		"details": details,
	})
}

// bind decodes the JSON body into req and answers 400 when it is invalid.
func (r responder) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		r.validationFailed(c, validation.FieldErrors(err))
		return false
	}
	return true
}
