package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/middleware"
	"github.com/martincass/UCAMtracker/internal/services"
)

// ClientController manages allowlist entries.
type ClientController struct {
	responder
	clients *services.ClientService
}

func NewClientController(clients *services.ClientService, tr *i18n.Translator) *ClientController {
	return &ClientController{responder: responder{tr: tr}, clients: clients}
}

type InviteClientRequest struct {
	Email      string `json:"email" binding:"required,email"`
	ClientID   string `json:"client_id" binding:"required,clientcode"`
	ClientName string `json:"client_name" binding:"required"`
}

type UpdateClientRequest struct {
	ClientID   *string `json:"client_id" binding:"omitempty,clientcode"`
	ClientName *string `json:"client_name"`
	Active     *bool   `json:"active"`
}

func (cc *ClientController) List(c *gin.Context) {
	entries, err := cc.clients.List(c.Request.Context())
	if err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}

func (cc *ClientController) Invite(c *gin.Context) {
	var req InviteClientRequest
	if !cc.bind(c, &req) {
		return
	}

	entry, err := cc.clients.Invite(c.Request.Context(), middleware.CurrentPrincipal(c), services.InviteInput{
		Email:      req.Email,
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
	})
	if err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": entry})
}

func (cc *ClientController) Update(c *gin.Context) {
	var req UpdateClientRequest
	if !cc.bind(c, &req) {
		return
	}

	entry, err := cc.clients.Update(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id"), services.ClientUpdate{
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		Active:     req.Active,
	})
	if err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entry})
}

func (cc *ClientController) Delete(c *gin.Context) {
	if err := cc.clients.Delete(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id")); err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
