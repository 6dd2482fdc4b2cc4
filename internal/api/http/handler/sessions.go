package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sealkeep/sessionvault/internal/logger"
	"github.com/sealkeep/sessionvault/internal/model"
	"github.com/sealkeep/sessionvault/internal/service"
	"github.com/sealkeep/sessionvault/internal/token"
)

// TokenService is the slice of the token service the handlers need.
type TokenService interface {
	Issue(ctx context.Context, p service.IssueParams) (service.IssuedToken, error)
	Rotate(ctx context.Context, rawToken string, client model.ClientContext) (service.RotatedToken, error)
	RevokeAll(ctx context.Context, p service.RevokeAllParams) (int64, error)
}

// SessionHandler exposes session lifecycle endpoints to the trusted login
// and logout flows.
type SessionHandler struct {
	tokens      TokenService
	invalidator model.SessionInvalidator
	manager     *token.Manager
	logger      *logger.Logger
}

func NewSessionHandler(
	tokens TokenService,
	invalidator model.SessionInvalidator,
	manager *token.Manager,
	logger *logger.Logger,
) *SessionHandler {
	return &SessionHandler{
		tokens:      tokens,
		invalidator: invalidator,
		manager:     manager,
		logger:      logger,
	}
}

type createSessionRequest struct {
	PrincipalID       uuid.UUID  `json:"principal_id" binding:"required"`
	TenantID          *uuid.UUID `json:"tenant_id"`
	SubPrincipalID    *uuid.UUID `json:"sub_principal_id"`
	DeviceInfo        string     `json:"device_info"`
	DeviceFingerprint string     `json:"device_fingerprint"`
}

type createSessionResponse struct {
	TokenID      uuid.UUID `json:"token_id"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Create issues the root refresh token of a new session. Called by the
// login flow after it has authenticated the principal.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c)
		return
	}

	issued, err := h.tokens.Issue(c.Request.Context(), service.IssueParams{
		PrincipalID:    req.PrincipalID,
		TenantID:       req.TenantID,
		SubPrincipalID: req.SubPrincipalID,
		Client:         h.clientContext(c, req.DeviceInfo, req.DeviceFingerprint),
	})
	if err != nil {
		writeTokenError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, createSessionResponse{
		TokenID:      issued.TokenID,
		RefreshToken: issued.RawToken,
		ExpiresAt:    issued.ExpiresAt,
	})
}

type rotateSessionRequest struct {
	RefreshToken      string `json:"refresh_token" binding:"required"`
	DeviceInfo        string `json:"device_info"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

type rotateSessionResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenID      uuid.UUID  `json:"token_id"`
	ExpiresAt    time.Time  `json:"expires_at"`
	PrincipalID  uuid.UUID  `json:"principal_id"`
	TenantID     *uuid.UUID `json:"tenant_id,omitempty"`
}

// Rotate exchanges a refresh token for a new pair. Every token failure
// comes back as the same generic response: naming the real condition would
// tell an attacker their replay was noticed.
func (h *SessionHandler) Rotate(c *gin.Context) {
	var req rotateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c)
		return
	}

	ctx := c.Request.Context()
	rotated, err := h.tokens.Rotate(ctx, req.RefreshToken, h.clientContext(c, req.DeviceInfo, req.DeviceFingerprint))
	if err != nil {
		writeTokenError(c, h.logger, err)
		return
	}

	sessionKey := rotated.PrincipalID
	if rotated.SubPrincipalID != nil {
		sessionKey = *rotated.SubPrincipalID
	}
	version, err := h.invalidator.CurrentVersion(ctx, sessionKey)
	if err != nil {
		writeTokenError(c, h.logger, err)
		return
	}

	access, err := h.manager.GenerateAccessToken(rotated.PrincipalID, rotated.TenantID, rotated.SubPrincipalID, version)
	if err != nil {
		writeTokenError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, rotateSessionResponse{
		AccessToken:  access,
		RefreshToken: rotated.RawToken,
		TokenID:      rotated.TokenID,
		ExpiresAt:    rotated.ExpiresAt,
		PrincipalID:  rotated.PrincipalID,
		TenantID:     rotated.TenantID,
	})
}

type revokeSessionsRequest struct {
	PrincipalID    uuid.UUID  `json:"principal_id" binding:"required"`
	TenantID       *uuid.UUID `json:"tenant_id"`
	SubPrincipalID *uuid.UUID `json:"sub_principal_id"`
	Reason         string     `json:"reason" binding:"required"`
}

type revokeSessionsResponse struct {
	RevokedCount int64 `json:"revoked_count"`
}

// Revoke ends every active session in scope.
func (h *SessionHandler) Revoke(c *gin.Context) {
	var req revokeSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c)
		return
	}

	reason := model.RevokeReason(req.Reason)
	if !model.ValidBulkRevokeReason(reason) {
		writeBadRequest(c)
		return
	}

	revoked, err := h.tokens.RevokeAll(c.Request.Context(), service.RevokeAllParams{
		Scope: model.RevokeScope{
			PrincipalID:    req.PrincipalID,
			TenantID:       req.TenantID,
			SubPrincipalID: req.SubPrincipalID,
		},
		Reason: reason,
		Client: h.clientContext(c, "", ""),
	})
	if err != nil {
		writeTokenError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, revokeSessionsResponse{RevokedCount: revoked})
}

func (h *SessionHandler) clientContext(c *gin.Context, deviceInfo, fingerprint string) model.ClientContext {
	return model.ClientContext{
		DeviceInfo:        deviceInfo,
		IPAddress:         c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
		DeviceFingerprint: fingerprint,
	}
}
