package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sealkeep/sessionvault/internal/mocks"
	"github.com/sealkeep/sessionvault/internal/model"
	"github.com/sealkeep/sessionvault/internal/secret"
	"github.com/sealkeep/sessionvault/internal/testutil"
)

const testLifetime = 30 * 24 * time.Hour

func newService(store *mocks.TokenStore, invalidator *mocks.SessionInvalidator, sink *mocks.AuditSink) *TokenService {
	return NewTokenService(store, invalidator, sink, testutil.MakeNoopLogger(), testLifetime)
}

func activeToken(raw string, principalID uuid.UUID) model.RefreshToken {
	id := uuid.New()
	now := time.Now()
	return model.RefreshToken{
		ID:          id,
		Digest:      secret.Digest(raw),
		PrincipalID: principalID,
		FamilyID:    id,
		IssuedAt:    now.Add(-time.Hour),
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestTokenService_Issue(t *testing.T) {
	ctx := context.Background()
	principalID := uuid.New()

	store := &mocks.TokenStore{}
	invalidator := &mocks.SessionInvalidator{}
	sink := &mocks.AuditSink{}

	var created model.RefreshToken
	store.On("Create", ctx, mock.MatchedBy(func(rt model.RefreshToken) bool {
		created = rt
		return rt.PrincipalID == principalID
	})).Return(nil).Once()
	sink.On("Emit", ctx, mock.MatchedBy(func(e model.AuditEvent) bool {
		return e.Action == model.AuditSessionCreated
	})).Return(nil).Once()

	svc := newService(store, invalidator, sink)

	issued, err := svc.Issue(ctx, IssueParams{PrincipalID: principalID})
	require.NoError(t, err)

	assert.NotEmpty(t, issued.RawToken)
	assert.Equal(t, created.ID, issued.TokenID)
	// a new token is the root of its own family
	assert.Equal(t, created.ID, created.FamilyID)
	assert.Nil(t, created.ParentID)
	assert.Equal(t, secret.Digest(issued.RawToken), created.Digest)
	assert.WithinDuration(t, time.Now().Add(testLifetime), issued.ExpiresAt, time.Minute)

	store.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestTokenService_Issue_StoreError(t *testing.T) {
	ctx := context.Background()

	store := &mocks.TokenStore{}
	store.On("Create", ctx, mock.Anything).Return(assert.AnError).Once()

	svc := newService(store, &mocks.SessionInvalidator{}, &mocks.AuditSink{})

	_, err := svc.Issue(ctx, IssueParams{PrincipalID: uuid.New()})
	require.ErrorIs(t, err, assert.AnError)
}

func TestTokenService_Rotate_Success(t *testing.T) {
	ctx := context.Background()
	principalID := uuid.New()
	tenantID := uuid.New()
	raw := "raw-refresh-token"

	parent := activeToken(raw, principalID)
	parent.TenantID = &tenantID

	store := &mocks.TokenStore{}
	invalidator := &mocks.SessionInvalidator{}
	sink := &mocks.AuditSink{}

	store.On("GetByDigest", ctx, secret.Digest(raw)).Return(parent, nil).Once()
	store.On("RevokeIfActive", ctx, parent.ID, model.RevokeReasonRotation).Return(true, nil).Once()

	var child model.RefreshToken
	store.On("Create", ctx, mock.MatchedBy(func(rt model.RefreshToken) bool {
		child = rt
		return rt.FamilyID == parent.FamilyID && rt.ParentID != nil && *rt.ParentID == parent.ID
	})).Return(nil).Once()
	store.On("SetReplacedBy", ctx, parent.ID, mock.Anything).Return(nil).Once()
	sink.On("Emit", ctx, mock.MatchedBy(func(e model.AuditEvent) bool {
		return e.Action == model.AuditTokenRotated
	})).Return(nil).Once()

	svc := newService(store, invalidator, sink)

	rotated, err := svc.Rotate(ctx, raw, model.ClientContext{})
	require.NoError(t, err)

	assert.NotEmpty(t, rotated.RawToken)
	assert.NotEqual(t, raw, rotated.RawToken)
	assert.Equal(t, child.ID, rotated.TokenID)
	assert.Equal(t, principalID, rotated.PrincipalID)
	require.NotNil(t, rotated.TenantID)
	assert.Equal(t, tenantID, *rotated.TenantID)

	store.AssertExpectations(t)
	invalidator.AssertNotCalled(t, "BumpVersion", mock.Anything, mock.Anything)
}

func TestTokenService_Rotate_NotFound(t *testing.T) {
	ctx := context.Background()

	store := &mocks.TokenStore{}
	store.On("GetByDigest", ctx, mock.Anything).Return(model.RefreshToken{}, model.ErrTokenNotFound).Once()

	svc := newService(store, &mocks.SessionInvalidator{}, &mocks.AuditSink{})

	_, err := svc.Rotate(ctx, "unknown", model.ClientContext{})
	require.ErrorIs(t, err, model.ErrTokenNotFound)

	// nothing to revoke: there is no family behind an unknown digest
	store.AssertNotCalled(t, "RevokeFamily", mock.Anything, mock.Anything)
}

func TestTokenService_Rotate_LookupError_NotTokenVerdict(t *testing.T) {
	ctx := context.Background()

	store := &mocks.TokenStore{}
	store.On("GetByDigest", ctx, mock.Anything).Return(model.RefreshToken{}, assert.AnError).Once()

	svc := newService(store, &mocks.SessionInvalidator{}, &mocks.AuditSink{})

	_, err := svc.Rotate(ctx, "token", model.ClientContext{})
	require.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, model.ErrTokenNotFound)
	assert.NotErrorIs(t, err, model.ErrTokenReuseDetected)
}

func TestTokenService_Rotate_Expired_SingleRevocation(t *testing.T) {
	ctx := context.Background()
	raw := "expired-token"

	rec := activeToken(raw, uuid.New())
	rec.ExpiresAt = time.Now().Add(-time.Minute)

	store := &mocks.TokenStore{}
	store.On("GetByDigest", ctx, secret.Digest(raw)).Return(rec, nil).Once()
	store.On("RevokeIfActive", ctx, rec.ID, model.RevokeReasonExpired).Return(true, nil).Once()

	invalidator := &mocks.SessionInvalidator{}

	svc := newService(store, invalidator, &mocks.AuditSink{})

	_, err := svc.Rotate(ctx, raw, model.ClientContext{})
	require.ErrorIs(t, err, model.ErrTokenExpired)

	// expiry never cascades
	store.AssertNotCalled(t, "RevokeFamily", mock.Anything, mock.Anything)
	invalidator.AssertNotCalled(t, "BumpVersion", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestTokenService_Rotate_Replay_RevokesFamilyAndBumpsSession(t *testing.T) {
	ctx := context.Background()
	raw := "replayed-token"
	principalID := uuid.New()

	rec := activeToken(raw, principalID)
	rec.Revoked = true
	reason := model.RevokeReasonRotation
	rec.RevokeReason = &reason

	store := &mocks.TokenStore{}
	invalidator := &mocks.SessionInvalidator{}
	sink := &mocks.AuditSink{}

	store.On("GetByDigest", ctx, secret.Digest(raw)).Return(rec, nil).Once()
	store.On("RevokeFamily", ctx, rec.FamilyID).Return(int64(3), nil).Once()
	invalidator.On("BumpVersion", ctx, principalID).Return(int64(1), nil).Once()
	sink.On("Emit", ctx, mock.MatchedBy(func(e model.AuditEvent) bool {
		return e.Action == model.AuditSuspiciousReuse && e.ResourceID == rec.FamilyID.String()
	})).Return(nil).Once()

	svc := newService(store, invalidator, sink)

	_, err := svc.Rotate(ctx, raw, model.ClientContext{})
	require.ErrorIs(t, err, model.ErrTokenReuseDetected)

	store.AssertExpectations(t)
	invalidator.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestTokenService_Rotate_Replay_SubPrincipalSessionKey(t *testing.T) {
	ctx := context.Background()
	raw := "replayed-token"
	subID := uuid.New()

	rec := activeToken(raw, uuid.New())
	rec.SubPrincipalID = &subID
	rec.Revoked = true

	store := &mocks.TokenStore{}
	invalidator := &mocks.SessionInvalidator{}
	sink := &mocks.AuditSink{}

	store.On("GetByDigest", ctx, secret.Digest(raw)).Return(rec, nil).Once()
	store.On("RevokeFamily", ctx, rec.FamilyID).Return(int64(1), nil).Once()
	invalidator.On("BumpVersion", ctx, subID).Return(int64(2), nil).Once()
	sink.On("Emit", ctx, mock.Anything).Return(nil).Once()

	svc := newService(store, invalidator, sink)

	_, err := svc.Rotate(ctx, raw, model.ClientContext{})
	require.ErrorIs(t, err, model.ErrTokenReuseDetected)
	invalidator.AssertExpectations(t)
}

func TestTokenService_Rotate_Replay_LegacyFamilyFallback(t *testing.T) {
	ctx := context.Background()
	raw := "legacy-token"

	rec := activeToken(raw, uuid.New())
	rec.FamilyID = uuid.Nil // row predates families
	rec.Revoked = true

	store := &mocks.TokenStore{}
	invalidator := &mocks.SessionInvalidator{}
	sink := &mocks.AuditSink{}

	store.On("GetByDigest", ctx, secret.Digest(raw)).Return(rec, nil).Once()
	store.On("RevokeFamily", ctx, rec.ID).Return(int64(1), nil).Once()
	invalidator.On("BumpVersion", ctx, rec.PrincipalID).Return(int64(1), nil).Once()
	sink.On("Emit", ctx, mock.Anything).Return(nil).Once()

	svc := newService(store, invalidator, sink)

	_, err := svc.Rotate(ctx, raw, model.ClientContext{})
	require.ErrorIs(t, err, model.ErrTokenReuseDetected)
	store.AssertExpectations(t)
}

func TestTokenService_Rotate_LostRace_TreatedAsReuse(t *testing.T) {
	ctx := context.Background()
	raw := "contested-token"

	rec := activeToken(raw, uuid.New())

	store := &mocks.TokenStore{}
	invalidator := &mocks.SessionInvalidator{}
	sink := &mocks.AuditSink{}

	store.On("GetByDigest", ctx, secret.Digest(raw)).Return(rec, nil).Once()
	// a concurrent caller revoked it first: the conditional write changes no row
	store.On("RevokeIfActive", ctx, rec.ID, model.RevokeReasonRotation).Return(false, nil).Once()
	store.On("RevokeFamily", ctx, rec.FamilyID).Return(int64(2), nil).Once()
	invalidator.On("BumpVersion", ctx, rec.PrincipalID).Return(int64(1), nil).Once()
	sink.On("Emit", ctx, mock.Anything).Return(nil).Once()

	svc := newService(store, invalidator, sink)

	_, err := svc.Rotate(ctx, raw, model.ClientContext{})
	require.ErrorIs(t, err, model.ErrTokenReuseDetected)

	// the loser must never mint a child
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestTokenService_Rotate_FamilyRevocationFailure_Propagates(t *testing.T) {
	ctx := context.Background()
	raw := "replayed-token"

	rec := activeToken(raw, uuid.New())
	rec.Revoked = true

	store := &mocks.TokenStore{}
	store.On("GetByDigest", ctx, secret.Digest(raw)).Return(rec, nil).Once()
	store.On("RevokeFamily", ctx, rec.FamilyID).Return(int64(0), assert.AnError).Once()

	svc := newService(store, &mocks.SessionInvalidator{}, &mocks.AuditSink{})

	_, err := svc.Rotate(ctx, raw, model.ClientContext{})
	// a failed cascade is a store error, never a reuse verdict
	require.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, model.ErrTokenReuseDetected)
}

func TestTokenService_Rotate_LinkFailureDoesNotUndoRotation(t *testing.T) {
	ctx := context.Background()
	raw := "raw-refresh-token"

	parent := activeToken(raw, uuid.New())

	store := &mocks.TokenStore{}
	sink := &mocks.AuditSink{}

	store.On("GetByDigest", ctx, secret.Digest(raw)).Return(parent, nil).Once()
	store.On("RevokeIfActive", ctx, parent.ID, model.RevokeReasonRotation).Return(true, nil).Once()
	store.On("Create", ctx, mock.Anything).Return(nil).Once()
	store.On("SetReplacedBy", ctx, parent.ID, mock.Anything).Return(assert.AnError).Once()
	sink.On("Emit", ctx, mock.Anything).Return(nil).Once()

	svc := newService(store, &mocks.SessionInvalidator{}, sink)

	rotated, err := svc.Rotate(ctx, raw, model.ClientContext{})
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.RawToken)
}

func TestTokenService_RevokeAll_Logout(t *testing.T) {
	ctx := context.Background()
	principalID := uuid.New()
	tenantID := uuid.New()

	scope := model.RevokeScope{PrincipalID: principalID, TenantID: &tenantID}

	store := &mocks.TokenStore{}
	invalidator := &mocks.SessionInvalidator{}
	sink := &mocks.AuditSink{}

	store.On("RevokeAllByPrincipal", ctx, scope, model.RevokeReasonLogout).Return(int64(4), nil).Once()
	sink.On("Emit", ctx, mock.MatchedBy(func(e model.AuditEvent) bool {
		return e.Action == model.AuditSessionsRevoked && e.Metadata["revoked_count"] == "4"
	})).Return(nil).Once()

	svc := newService(store, invalidator, sink)

	revoked, err := svc.RevokeAll(ctx, RevokeAllParams{Scope: scope, Reason: model.RevokeReasonLogout})
	require.NoError(t, err)
	assert.Equal(t, int64(4), revoked)

	// voluntary logout leaves other devices' access credentials trusted
	invalidator.AssertNotCalled(t, "BumpVersion", mock.Anything, mock.Anything)
	sink.AssertExpectations(t)
}

func TestTokenService_RevokeAll_ForceLogout_BumpsSession(t *testing.T) {
	ctx := context.Background()
	principalID := uuid.New()

	scope := model.RevokeScope{PrincipalID: principalID}

	store := &mocks.TokenStore{}
	invalidator := &mocks.SessionInvalidator{}
	sink := &mocks.AuditSink{}

	store.On("RevokeAllByPrincipal", ctx, scope, model.RevokeReasonForceLogout).Return(int64(2), nil).Once()
	invalidator.On("BumpVersion", ctx, principalID).Return(int64(5), nil).Once()
	sink.On("Emit", ctx, mock.Anything).Return(nil).Once()

	svc := newService(store, invalidator, sink)

	revoked, err := svc.RevokeAll(ctx, RevokeAllParams{Scope: scope, Reason: model.RevokeReasonForceLogout})
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)
	invalidator.AssertExpectations(t)
}

func TestTokenService_RevokeAll_InvalidReason(t *testing.T) {
	ctx := context.Background()

	svc := newService(&mocks.TokenStore{}, &mocks.SessionInvalidator{}, &mocks.AuditSink{})

	_, err := svc.RevokeAll(ctx, RevokeAllParams{
		Scope:  model.RevokeScope{PrincipalID: uuid.New()},
		Reason: model.RevokeReasonRotation,
	})
	require.ErrorIs(t, err, ErrInvalidRevokeReason)
}

func TestTokenService_RevokeAll_StoreError(t *testing.T) {
	ctx := context.Background()
	scope := model.RevokeScope{PrincipalID: uuid.New()}

	store := &mocks.TokenStore{}
	store.On("RevokeAllByPrincipal", ctx, scope, model.RevokeReasonLogout).Return(int64(0), assert.AnError).Once()

	svc := newService(store, &mocks.SessionInvalidator{}, &mocks.AuditSink{})

	_, err := svc.RevokeAll(ctx, RevokeAllParams{Scope: scope, Reason: model.RevokeReasonLogout})
	require.ErrorIs(t, err, assert.AnError)
}

func TestTokenService_AuditFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()

	store := &mocks.TokenStore{}
	sink := &mocks.AuditSink{}

	store.On("Create", ctx, mock.Anything).Return(nil).Once()
	sink.On("Emit", ctx, mock.Anything).Return(assert.AnError).Once()

	svc := newService(store, &mocks.SessionInvalidator{}, sink)

	_, err := svc.Issue(ctx, IssueParams{PrincipalID: uuid.New()})
	require.NoError(t, err)
}
