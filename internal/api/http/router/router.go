package router

import (
	"github.com/gin-gonic/gin"

	"github.com/sealkeep/sessionvault/internal/api/http/handler"
	"github.com/sealkeep/sessionvault/internal/api/http/middleware"
	"github.com/sealkeep/sessionvault/internal/logger"
)

// New wires routes and middleware into a gin engine.
func New(sessions *handler.SessionHandler, logger *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logging(logger))

	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", sessions.Create)
		v1.POST("/sessions/rotate", sessions.Rotate)
		v1.POST("/sessions/revoke", sessions.Revoke)
	}

	return r
}
