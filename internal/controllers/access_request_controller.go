package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/middleware"
	"github.com/martincass/UCAMtracker/internal/services"
)

type AccessRequestController struct {
	responder
	requests *services.AccessRequestService
}

func NewAccessRequestController(requests *services.AccessRequestService, tr *i18n.Translator) *AccessRequestController {
	return &AccessRequestController{responder: responder{tr: tr}, requests: requests}
}

type AccessRequestBody struct {
	Email    string `json:"email" binding:"required,email"`
	Company  string `json:"company" binding:"required,max=200"`
	ClientID string `json:"client_id" binding:"omitempty,clientcode"`
	Note     string `json:"note" binding:"max=2000"`
}

func (ac *AccessRequestController) Submit(c *gin.Context) {
	var req AccessRequestBody
	if !ac.bind(c, &req) {
		return
	}

	if _, err := ac.requests.Submit(c.Request.Context(), services.AccessRequestInput{
		Email:    req.Email,
		Company:  req.Company,
		ClientID: req.ClientID,
		Note:     req.Note,
	}); err != nil {
		ac.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": ac.t(c, "access_request.sent", nil),
	})
}

func (ac *AccessRequestController) List(c *gin.Context) {
	reqs, err := ac.requests.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		ac.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": reqs})
}

func (ac *AccessRequestController) Approve(c *gin.Context) {
	ac.resolve(c, true)
}

func (ac *AccessRequestController) Deny(c *gin.Context) {
	ac.resolve(c, false)
}

func (ac *AccessRequestController) resolve(c *gin.Context, approve bool) {
	req, err := ac.requests.Resolve(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id"), approve)
	if err != nil {
		ac.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": req})
}
