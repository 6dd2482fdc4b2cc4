package model

import (
	"context"

	"github.com/google/uuid"
)

// SessionInvalidator advances the per-principal session version counter.
// Access credentials carry the version they were minted under; bumping the
// counter makes every credential minted before the bump fail verification.
// The bump must be atomic: concurrent bumps may coalesce but must never be
// lost or revert the counter.
type SessionInvalidator interface {
	// BumpVersion advances the counter for key and returns the new version.
	BumpVersion(ctx context.Context, key uuid.UUID) (int64, error)
	// CurrentVersion reads the counter; zero for a key never bumped.
	CurrentVersion(ctx context.Context, key uuid.UUID) (int64, error)
}
