package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/middleware"
	"github.com/martincass/UCAMtracker/internal/services"
	"github.com/martincass/UCAMtracker/internal/session"
)

type UserController struct {
	responder
	auth  *services.AuthService
	users *services.UserAdminService
}

func NewUserController(auth *services.AuthService, users *services.UserAdminService, tr *i18n.Translator) *UserController {
	return &UserController{responder: responder{tr: tr}, auth: auth, users: users}
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type CreateUserRequest struct {
	Email      string `json:"email" binding:"required,email"`
	ClientID   string `json:"client_id" binding:"required,clientcode"`
	ClientName string `json:"client_name" binding:"required"`
}

type UpdateUserRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (uc *UserController) GetCurrentUser(c *gin.Context) {
	p := middleware.CurrentPrincipal(c)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"user":        p.User,
			"client_id":   p.ClientID(),
			"client_name": p.ClientName(),
			"session":     session.ForUser(p.User, true),
		},
	})
}

func (uc *UserController) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !uc.bind(c, &req) {
		return
	}

	res, err := uc.auth.ChangePassword(c.Request.Context(), middleware.CurrentPrincipal(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		uc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(res, ""))
}

func (uc *UserController) ListUsers(c *gin.Context) {
	users, err := uc.users.ListUsers(c.Request.Context())
	if err != nil {
		uc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": users})
}

// CreateUser answers with the provisioning result, including the temporary
// password when the welcome email could not be sent.
func (uc *UserController) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !uc.bind(c, &req) {
		return
	}

	res, err := uc.users.CreateUser(c.Request.Context(), middleware.CurrentPrincipal(c), services.CreateUserInput{
		Email:      req.Email,
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		Locale:     middleware.Locale(c),
	})
	if err != nil {
		uc.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (uc *UserController) ResetPassword(c *gin.Context) {
	res, err := uc.users.ResetUserPassword(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id"))
	if err != nil {
		uc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": uc.t(c, "admin.password_reset", map[string]string{"email": res.Email}),
		"data":    res,
	})
}

func (uc *UserController) Deactivate(c *gin.Context) {
	if err := uc.users.Deactivate(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id")); err != nil {
		uc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (uc *UserController) Archive(c *gin.Context) {
	if err := uc.users.Archive(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id")); err != nil {
		uc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (uc *UserController) UpdateRole(c *gin.Context) {
	var req UpdateUserRoleRequest
	if !uc.bind(c, &req) {
		return
	}

	user, err := uc.users.SetRole(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id"), req.Role)
	if err != nil {
		uc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}
