package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/medimarket/platform/internal/actorcontext"
	"github.com/medimarket/platform/pkg/log/ctxlogger"
)

const (
	HeaderActor     = "X-Actor"
	HeaderRequestID = "X-Request-ID"
)

// RequestID propagates the caller's request id, minting one when absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := ctxlogger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// ActorContext records the acting identity from the X-Actor header.
// Identity verification happens upstream at the API gateway.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actor != "" {
			ctx := actorcontext.WithActor(c.Request.Context(), actor)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func (s *Server) actorFrom(c *gin.Context) string {
	if actor, ok := actorcontext.ActorFromContext(c.Request.Context()); ok {
		return actor
	}
	return s.cfg.SystemActor
}
