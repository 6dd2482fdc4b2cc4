package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sealkeep/sessionvault/internal/logger"
	"github.com/sealkeep/sessionvault/internal/model"
)

// writeTokenError maps a service failure to a response. The three token
// conditions collapse into one indistinguishable 401: which one fired is
// preserved in logs and audit, never in the response body. Anything else is
// a server fault, not a token verdict.
func writeTokenError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, model.ErrTokenNotFound),
		errors.Is(err, model.ErrTokenExpired),
		errors.Is(err, model.ErrTokenReuseDetected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_grant"})
	default:
		log.Error("session request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
	}
}

func writeBadRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
}
