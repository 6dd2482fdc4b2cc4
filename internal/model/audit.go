package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies the lifecycle transition an audit event records.
type AuditAction string

const (
	AuditSessionCreated  AuditAction = "SESSION_CREATED"
	AuditTokenRotated    AuditAction = "TOKEN_ROTATED"
	AuditSuspiciousReuse AuditAction = "SUSPICIOUS_LOGIN_DETECTED"
	AuditSessionsRevoked AuditAction = "SESSIONS_REVOKED"
)

// AuditEvent is the structured record emitted for every issuance, rotation,
// reuse detection and bulk revocation.
type AuditEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	TenantID    *uuid.UUID        `json:"tenant_id,omitempty"`
	PrincipalID uuid.UUID         `json:"principal_id"`
	Action      AuditAction       `json:"action"`
	Resource    string            `json:"resource"`
	ResourceID  string            `json:"resource_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	IPAddress   string            `json:"ip_address,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
}

// AuditSink receives emitted audit events. Sinks must tolerate concurrent
// callers; failures are reported to the caller, which decides whether the
// surrounding operation survives them.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent) error
}
