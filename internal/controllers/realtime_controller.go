package controllers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/logger"
	"github.com/martincass/UCAMtracker/internal/middleware"
	"github.com/martincass/UCAMtracker/internal/realtime"
	"github.com/martincass/UCAMtracker/internal/services"
)

// RealtimeController upgrades dashboards to a websocket carrying submission
// status events.
type RealtimeController struct {
	responder
	auth     middleware.Authenticator
	hub      *realtime.Hub
	upgrader *websocket.Upgrader
}

func NewRealtimeController(auth middleware.Authenticator, hub *realtime.Hub, allowedOrigins []string, tr *i18n.Translator) *RealtimeController {
	return &RealtimeController{
		responder: responder{tr: tr},
		auth:      auth,
		hub:       hub,
		upgrader:  realtime.NewUpgrader(allowedOrigins),
	}
}

// Connect authenticates with ?token= since browsers cannot set headers on
// websocket handshakes.
func (rc *RealtimeController) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c)
	}
	if token == "" {
		rc.respondError(c, services.ErrSessionRevoked)
		return
	}

	p, err := rc.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			err = services.ErrSessionRevoked
		}
		rc.respondError(c, err)
		return
	}
	if p.User.MustResetPassword {
		rc.respondError(c, services.ErrPasswordResetRequired)
		return
	}
	middleware.SetPrincipal(c, p)

	err = rc.hub.Serve(rc.upgrader, c.Writer, c.Request, realtime.Subscriber{
		UserID:   p.UserID(),
		ClientID: p.ClientID(),
		Admin:    p.IsAdmin(),
		Recheck: func(ctx context.Context) error {
			p, err := rc.auth.Authenticate(ctx, token)
			if err != nil {
				return err
			}
			if p.User.MustResetPassword {
				return services.ErrPasswordResetRequired
			}
			return nil
		},
	})
	if err != nil {
		// the upgrader has already written the HTTP error
		logger.WithError(err, "realtime").Warn("Websocket upgrade failed")
	}
}
