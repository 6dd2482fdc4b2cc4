package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RevokeReason enumerates why a refresh token stopped being usable.
type RevokeReason string

const (
	RevokeReasonRotation      RevokeReason = "rotation"
	RevokeReasonLogout        RevokeReason = "logout"
	RevokeReasonForceLogout   RevokeReason = "force_logout"
	RevokeReasonReuseDetected RevokeReason = "reuse_detected"
	RevokeReasonExpired       RevokeReason = "expired"
	RevokeReasonAdminAction   RevokeReason = "admin_action"
)

// ValidBulkRevokeReason reports whether reason is accepted by bulk revocation.
func ValidBulkRevokeReason(reason RevokeReason) bool {
	switch reason {
	case RevokeReasonLogout, RevokeReasonForceLogout, RevokeReasonAdminAction:
		return true
	}
	return false
}

// ClientContext carries request metadata captured at issuance and rotation.
// It is forensic material only and never feeds authorization decisions.
type ClientContext struct {
	DeviceInfo        string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
}

// RefreshToken is a stored refresh credential. The raw secret is never
// persisted; only its SHA-256 digest is. Tokens form families: the first
// token of a lineage has FamilyID == ID and every rotation child inherits it.
type RefreshToken struct {
	ID                uuid.UUID
	Digest            string
	PrincipalID       uuid.UUID
	TenantID          *uuid.UUID
	SubPrincipalID    *uuid.UUID
	FamilyID          uuid.UUID
	ParentID          *uuid.UUID
	ReplacedByID      *uuid.UUID
	IssuedAt          time.Time
	ExpiresAt         time.Time
	Revoked           bool
	RevokedAt         *time.Time
	RevokeReason      *RevokeReason
	SuspiciousReuseAt *time.Time
	Client            ClientContext
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FamilyKey returns the key a family-wide revocation must use. Rows created
// before families existed carry a nil FamilyID and are their own family.
func (t RefreshToken) FamilyKey() uuid.UUID {
	if t.FamilyID == uuid.Nil {
		return t.ID
	}
	return t.FamilyID
}

// Expired reports whether the validity window has passed at the given instant.
func (t RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// SessionKey returns the identity the session version counter is keyed by:
// the sub-principal when one exists, otherwise the principal itself.
func (t RefreshToken) SessionKey() uuid.UUID {
	if t.SubPrincipalID != nil {
		return *t.SubPrincipalID
	}
	return t.PrincipalID
}

// RevokeScope narrows a bulk revocation to a principal and, optionally,
// a tenant and sub-principal within it.
type RevokeScope struct {
	PrincipalID    uuid.UUID
	TenantID       *uuid.UUID
	SubPrincipalID *uuid.UUID
}

// SessionKey mirrors RefreshToken.SessionKey for bulk revocation scopes.
func (s RevokeScope) SessionKey() uuid.UUID {
	if s.SubPrincipalID != nil {
		return *s.SubPrincipalID
	}
	return s.PrincipalID
}

// TokenStore defines persistence operations for refresh tokens. Writes that
// flip revocation state must be single conditional statements so correctness
// holds across concurrent process instances; the store never relies on
// in-process locking.
type TokenStore interface {
	Create(ctx context.Context, token RefreshToken) error
	GetByDigest(ctx context.Context, digest string) (RefreshToken, error)
	// RevokeIfActive atomically revokes the token iff it is still unrevoked
	// and reports whether this call is the one that revoked it.
	RevokeIfActive(ctx context.Context, id uuid.UUID, reason RevokeReason) (bool, error)
	// SetReplacedBy records the forward rotation link on the parent.
	SetReplacedBy(ctx context.Context, id, replacedByID uuid.UUID) error
	// RevokeFamily revokes every token of the family in one bulk statement,
	// stamping reuse_detected and the suspicious-reuse timestamp on all rows.
	RevokeFamily(ctx context.Context, familyKey uuid.UUID) (int64, error)
	// RevokeAllByPrincipal revokes every active token in scope and returns
	// the number of rows actually revoked.
	RevokeAllByPrincipal(ctx context.Context, scope RevokeScope, reason RevokeReason) (int64, error)
	ListByFamily(ctx context.Context, familyKey uuid.UUID) ([]RefreshToken, error)
}
