package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/middleware"
	"github.com/martincass/UCAMtracker/internal/services"
)

type AuthController struct {
	responder
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService, tr *i18n.Translator) *AuthController {
	return &AuthController{responder: responder{tr: tr}, auth: auth}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SignupRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

type ConfirmRequest struct {
	Token string `json:"token" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

type ForceResetRequest struct {
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

func sessionResponse(res *services.SessionResult, message string) gin.H {
	body := gin.H{
		"success":    true,
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"user":       res.User,
		"session":    res.Decision,
	}
	if message != "" {
		body["message"] = message
	}
	return body
}

func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if !ac.bind(c, &req) {
		return
	}

	res, err := ac.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		ac.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(res, ""))
}

func (ac *AuthController) Signup(c *gin.Context) {
	var req SignupRequest
	if !ac.bind(c, &req) {
		return
	}

	status, err := ac.auth.Signup(c.Request.Context(), req.Email, req.Password, middleware.Locale(c))
	if err != nil {
		ac.respondError(c, err)
		return
	}

	key := "signup.confirmation_sent"
	if status == services.SignupPendingReview {
		key = "signup.pending_review"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  status,
		"message": ac.t(c, key, nil),
	})
}

func (ac *AuthController) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if !ac.bind(c, &req) {
		return
	}

	user, err := ac.auth.ConfirmEmail(c.Request.Context(), req.Token)
	if err != nil {
		ac.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// ForgotPassword answers identically whether or not the email exists.
func (ac *AuthController) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !ac.bind(c, &req) {
		return
	}

	ac.auth.RequestPasswordReset(c.Request.Context(), req.Email, middleware.Locale(c))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": ac.t(c, "forgot.sent", nil),
	})
}

func (ac *AuthController) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !ac.bind(c, &req) {
		return
	}

	if err := ac.auth.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		ac.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": ac.t(c, "reset.success", nil),
	})
}

func (ac *AuthController) Logout(c *gin.Context) {
	if err := ac.auth.Logout(c.Request.Context(), middleware.CurrentPrincipal(c)); err != nil {
		ac.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (ac *AuthController) ForceResetPassword(c *gin.Context) {
	var req ForceResetRequest
	if !ac.bind(c, &req) {
		return
	}

	res, err := ac.auth.ForceResetPassword(c.Request.Context(), middleware.CurrentPrincipal(c), req.Password, req.ConfirmPassword)
	if err != nil {
		ac.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(res, ac.t(c, "force_reset.success", nil)))
}

// Session reports which view the portal should render for the current page
// load. The token is optional; the location fragment may carry a recovery link.
func (ac *AuthController) Session(c *gin.Context) {
	view, err := ac.auth.ResolveSession(c.Request.Context(), middleware.BearerToken(c), c.Query("fragment"))
	if err != nil {
		ac.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}
