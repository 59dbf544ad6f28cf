package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuditLog records every successful state-changing request together with who made it.
// Mount it on the admin and internal groups, after authentication.
func AuditLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		event := log.Info().
			Str("audit", "mutation").
			Str("request_id", c.GetString(CtxRequestID)).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("client_ip", c.ClientIP())
		if actor, ok := ActorFrom(c); ok {
			event = event.Str("actor", actor.String())
			if user, ok := actor.ActingUser(); ok {
				event = event.Str("acting_user", user.String())
			}
		}
		if caller := c.GetString(CtxCaller); caller != "" {
			event = event.Str("caller", caller)
		}
		event.Msg("audit")
	}
}
