package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sealkeep/sessionvault/internal/logger"
	"github.com/sealkeep/sessionvault/internal/model"
	"github.com/sealkeep/sessionvault/internal/secret"
)

// TokenService owns the refresh-token family lifecycle: issuance, rotation
// with reuse detection, and bulk revocation. Concurrency safety comes from
// the store's conditional writes, never from in-process locking, because
// several service instances may share one database.
type TokenService struct {
	store            model.TokenStore
	invalidator      model.SessionInvalidator
	audit            model.AuditSink
	logger           *logger.Logger
	rotationLifetime time.Duration
}

func NewTokenService(
	store model.TokenStore,
	invalidator model.SessionInvalidator,
	audit model.AuditSink,
	logger *logger.Logger,
	rotationLifetime time.Duration,
) *TokenService {
	return &TokenService{
		store:            store,
		invalidator:      invalidator,
		audit:            audit,
		logger:           logger,
		rotationLifetime: rotationLifetime,
	}
}

// ErrInvalidRevokeReason rejects bulk revocations with a reason outside
// logout, force_logout and admin_action.
var ErrInvalidRevokeReason = errors.New("invalid bulk revoke reason")

// IssueParams describes a new session created by the login flow.
type IssueParams struct {
	PrincipalID    uuid.UUID
	TenantID       *uuid.UUID
	SubPrincipalID *uuid.UUID
	Client         model.ClientContext
}

// IssuedToken is returned from Issue. RawToken is handed out exactly once;
// only its digest survives in storage.
type IssuedToken struct {
	RawToken  string
	TokenID   uuid.UUID
	ExpiresAt time.Time
}

// RotatedToken is returned from a successful rotation.
type RotatedToken struct {
	RawToken       string
	TokenID        uuid.UUID
	ExpiresAt      time.Time
	PrincipalID    uuid.UUID
	TenantID       *uuid.UUID
	SubPrincipalID *uuid.UUID
}

// RevokeAllParams scopes a bulk revocation.
type RevokeAllParams struct {
	Scope  model.RevokeScope
	Reason model.RevokeReason
	Client model.ClientContext
}

// Issue creates the root token of a new family: the token is its own
// family, with no parent.
func (s *TokenService) Issue(ctx context.Context, p IssueParams) (IssuedToken, error) {
	raw, err := secret.Generate()
	if err != nil {
		return IssuedToken{}, fmt.Errorf("generate refresh secret: %w", err)
	}

	now := time.Now()
	id := uuid.New()
	rt := model.RefreshToken{
		ID:             id,
		Digest:         secret.Digest(raw),
		PrincipalID:    p.PrincipalID,
		TenantID:       p.TenantID,
		SubPrincipalID: p.SubPrincipalID,
		FamilyID:       id,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.rotationLifetime),
		Client:         p.Client,
	}

	if err := s.store.Create(ctx, rt); err != nil {
		return IssuedToken{}, fmt.Errorf("persist refresh token: %w", err)
	}

	s.emit(ctx, model.AuditEvent{
		Timestamp:   now,
		TenantID:    p.TenantID,
		PrincipalID: p.PrincipalID,
		Action:      model.AuditSessionCreated,
		Resource:    "refresh_token",
		ResourceID:  id.String(),
		Metadata:    map[string]string{"family_id": id.String()},
		IPAddress:   p.Client.IPAddress,
		UserAgent:   p.Client.UserAgent,
	})

	return IssuedToken{RawToken: raw, TokenID: id, ExpiresAt: rt.ExpiresAt}, nil
}

// Rotate exchanges a presented refresh token for a fresh one. Exactly one
// caller can rotate a given token; everyone else lands in reuse handling.
// Classification happens against the stored record, but the decision that
// counts is the conditional revoke: winning it is the only license to mint
// a child.
func (s *TokenService) Rotate(ctx context.Context, rawToken string, client model.ClientContext) (RotatedToken, error) {
	rec, err := s.store.GetByDigest(ctx, secret.Digest(rawToken))
	if err != nil {
		if errors.Is(err, model.ErrTokenNotFound) {
			// Garbage or a purged record. There is no family to revoke.
			s.logger.Warn("refresh token not found", "ip_address", client.IPAddress)
			return RotatedToken{}, model.ErrTokenNotFound
		}
		return RotatedToken{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	now := time.Now()

	if rec.Revoked {
		// Replay of a dead token: the compromise signal this subsystem
		// exists to catch.
		if err := s.handleReuse(ctx, rec, client); err != nil {
			return RotatedToken{}, err
		}
		return RotatedToken{}, model.ErrTokenReuseDetected
	}

	if rec.Expired(now) {
		// Natural expiry is not evidence of theft: revoke this record
		// alone, no family cascade.
		if _, err := s.store.RevokeIfActive(ctx, rec.ID, model.RevokeReasonExpired); err != nil {
			return RotatedToken{}, fmt.Errorf("revoke expired token: %w", err)
		}
		return RotatedToken{}, model.ErrTokenExpired
	}

	won, err := s.store.RevokeIfActive(ctx, rec.ID, model.RevokeReasonRotation)
	if err != nil {
		return RotatedToken{}, fmt.Errorf("revoke presented token: %w", err)
	}
	if !won {
		// A concurrent caller revoked it between our lookup and our write.
		// From here the presented token is an already-revoked token.
		if err := s.handleReuse(ctx, rec, client); err != nil {
			return RotatedToken{}, err
		}
		return RotatedToken{}, model.ErrTokenReuseDetected
	}

	raw, err := secret.Generate()
	if err != nil {
		return RotatedToken{}, fmt.Errorf("generate refresh secret: %w", err)
	}

	child := model.RefreshToken{
		ID:             uuid.New(),
		Digest:         secret.Digest(raw),
		PrincipalID:    rec.PrincipalID,
		TenantID:       rec.TenantID,
		SubPrincipalID: rec.SubPrincipalID,
		FamilyID:       rec.FamilyKey(),
		ParentID:       &rec.ID,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.rotationLifetime),
		Client:         client,
	}
	if err := s.store.Create(ctx, child); err != nil {
		return RotatedToken{}, fmt.Errorf("persist rotated token: %w", err)
	}

	// The forward link is informational. Its failure must not undo a
	// rotation that already committed.
	if err := s.store.SetReplacedBy(ctx, rec.ID, child.ID); err != nil {
		s.logger.Warn("failed to link rotated token",
			"parent_id", rec.ID,
			"child_id", child.ID,
			"error", err)
	}

	s.emit(ctx, model.AuditEvent{
		Timestamp:   now,
		TenantID:    rec.TenantID,
		PrincipalID: rec.PrincipalID,
		Action:      model.AuditTokenRotated,
		Resource:    "refresh_token",
		ResourceID:  child.ID.String(),
		Metadata: map[string]string{
			"family_id": rec.FamilyKey().String(),
			"parent_id": rec.ID.String(),
		},
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return RotatedToken{
		RawToken:       raw,
		TokenID:        child.ID,
		ExpiresAt:      child.ExpiresAt,
		PrincipalID:    rec.PrincipalID,
		TenantID:       rec.TenantID,
		SubPrincipalID: rec.SubPrincipalID,
	}, nil
}

// RevokeAll revokes every active token in scope. force_logout also bumps
// the session version; a voluntary logout does not distrust other devices'
// still-valid access credentials.
func (s *TokenService) RevokeAll(ctx context.Context, p RevokeAllParams) (int64, error) {
	if !model.ValidBulkRevokeReason(p.Reason) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRevokeReason, p.Reason)
	}

	revoked, err := s.store.RevokeAllByPrincipal(ctx, p.Scope, p.Reason)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}

	if p.Reason == model.RevokeReasonForceLogout {
		if _, err := s.invalidator.BumpVersion(ctx, p.Scope.SessionKey()); err != nil {
			return revoked, fmt.Errorf("bump session version: %w", err)
		}
	}

	s.emit(ctx, model.AuditEvent{
		Timestamp:   time.Now(),
		TenantID:    p.Scope.TenantID,
		PrincipalID: p.Scope.PrincipalID,
		Action:      model.AuditSessionsRevoked,
		Resource:    "refresh_token",
		Metadata: map[string]string{
			"reason":        string(p.Reason),
			"revoked_count": strconv.FormatInt(revoked, 10),
		},
		IPAddress: p.Client.IPAddress,
		UserAgent: p.Client.UserAgent,
	})

	return revoked, nil
}

// handleReuse revokes the whole family in one bulk write and invalidates
// the owning session. Runs to completion or fails; it is never partial, and
// a store error here is a store error to the caller, not a token verdict.
func (s *TokenService) handleReuse(ctx context.Context, rec model.RefreshToken, client model.ClientContext) error {
	familyKey := rec.FamilyKey()

	revoked, err := s.store.RevokeFamily(ctx, familyKey)
	if err != nil {
		return fmt.Errorf("revoke token family: %w", err)
	}

	version, err := s.invalidator.BumpVersion(ctx, rec.SessionKey())
	if err != nil {
		return fmt.Errorf("bump session version: %w", err)
	}

	s.logger.Error("refresh token reuse detected, family revoked",
		"family_id", familyKey,
		"principal_id", rec.PrincipalID,
		"presented_token_id", rec.ID,
		"revoked_count", revoked,
		"session_version", version,
		"ip_address", client.IPAddress)

	s.emit(ctx, model.AuditEvent{
		Timestamp:   time.Now(),
		TenantID:    rec.TenantID,
		PrincipalID: rec.PrincipalID,
		Action:      model.AuditSuspiciousReuse,
		Resource:    "refresh_token_family",
		ResourceID:  familyKey.String(),
		Metadata: map[string]string{
			"presented_token_id": rec.ID.String(),
			"revoked_count":      strconv.FormatInt(revoked, 10),
			"device_fingerprint": client.DeviceFingerprint,
		},
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return nil
}

func (s *TokenService) emit(ctx context.Context, event model.AuditEvent) {
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.Error("failed to emit audit event",
			"action", string(event.Action),
			"error", err)
	}
}
