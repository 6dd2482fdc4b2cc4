package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sealkeep/sessionvault/internal/model"
)

var _ model.TokenStore = (*RefreshTokenRepository)(nil)

// querier is the slice of pgxpool.Pool the repository needs. Satisfied by
// *Connection in production and by pgxmock in unit tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RefreshTokenRepository struct {
	db querier
}

func NewRefreshTokenRepository(db querier) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const tokenColumns = `
        id, token_digest, principal_id, tenant_id, sub_principal_id,
        family_id, parent_id, replaced_by_token_id, issued_at, expires_at,
        is_revoked, revoked_at, revoke_reason, suspicious_reuse_at,
        device_info, ip_address, user_agent, device_fingerprint,
        created_at, updated_at`

func (r *RefreshTokenRepository) Create(ctx context.Context, token model.RefreshToken) error {
	const query = `
        INSERT INTO refresh_tokens (
            id, token_digest, principal_id, tenant_id, sub_principal_id,
            family_id, parent_id, issued_at, expires_at,
            device_info, ip_address, user_agent, device_fingerprint,
            created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())
    `

	// a nil family means a legacy-style root; stored as NULL, not the zero id
	var familyID *uuid.UUID
	if token.FamilyID != uuid.Nil {
		familyID = &token.FamilyID
	}

	_, err := r.db.Exec(ctx, query,
		token.ID, token.Digest, token.PrincipalID, token.TenantID, token.SubPrincipalID,
		familyID, token.ParentID, token.IssuedAt, token.ExpiresAt,
		token.Client.DeviceInfo, token.Client.IPAddress, token.Client.UserAgent, token.Client.DeviceFingerprint,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) GetByDigest(ctx context.Context, digest string) (model.RefreshToken, error) {
	query := `SELECT` + tokenColumns + `
        FROM refresh_tokens WHERE token_digest = $1
    `

	rt, err := scanToken(r.db.QueryRow(ctx, query, digest))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RefreshToken{}, model.ErrTokenNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("failed to get refresh token by digest: %w", err)
	}
	return rt, nil
}

// RevokeIfActive is the compare-and-swap every rotation hinges on: the
// condition and the write are one statement, and the command tag tells the
// caller whether it won. A prior read of is_revoked would reopen the
// double-rotation race.
func (r *RefreshTokenRepository) RevokeIfActive(ctx context.Context, id uuid.UUID, reason model.RevokeReason) (bool, error) {
	const query = `
        UPDATE refresh_tokens
        SET is_revoked = TRUE, revoked_at = NOW(), revoke_reason = $2, updated_at = NOW()
        WHERE id = $1 AND is_revoked = FALSE
    `

	tag, err := r.db.Exec(ctx, query, id, string(reason))
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RefreshTokenRepository) SetReplacedBy(ctx context.Context, id, replacedByID uuid.UUID) error {
	const query = `
        UPDATE refresh_tokens SET replaced_by_token_id = $2, updated_at = NOW()
        WHERE id = $1
    `

	if _, err := r.db.Exec(ctx, query, id, replacedByID); err != nil {
		return fmt.Errorf("failed to set replaced-by link: %w", err)
	}
	return nil
}

// RevokeFamily stamps the whole lineage in one bulk statement. The id = $1
// alternative covers legacy roots whose family_id is NULL. Already-revoked
// rows keep their original revoked_at but their reason is overwritten, so a
// later query by family shows uniformly why the lineage died.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, familyKey uuid.UUID) (int64, error) {
	const query = `
        UPDATE refresh_tokens
        SET is_revoked = TRUE,
            revoked_at = COALESCE(revoked_at, NOW()),
            revoke_reason = $2,
            suspicious_reuse_at = NOW(),
            updated_at = NOW()
        WHERE family_id = $1 OR id = $1
    `

	tag, err := r.db.Exec(ctx, query, familyKey, string(model.RevokeReasonReuseDetected))
	if err != nil {
		return 0, fmt.Errorf("failed to revoke token family: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepository) RevokeAllByPrincipal(ctx context.Context, scope model.RevokeScope, reason model.RevokeReason) (int64, error) {
	const query = `
        UPDATE refresh_tokens
        SET is_revoked = TRUE, revoked_at = NOW(), revoke_reason = $2, updated_at = NOW()
        WHERE principal_id = $1
          AND is_revoked = FALSE
          AND revoked_at IS NULL
          AND ($3::uuid IS NULL OR tenant_id = $3)
          AND ($4::uuid IS NULL OR sub_principal_id = $4)
    `

	tag, err := r.db.Exec(ctx, query, scope.PrincipalID, string(reason), scope.TenantID, scope.SubPrincipalID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens by principal: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepository) ListByFamily(ctx context.Context, familyKey uuid.UUID) ([]model.RefreshToken, error) {
	query := `SELECT` + tokenColumns + `
        FROM refresh_tokens WHERE family_id = $1 OR id = $1
        ORDER BY issued_at
    `

	rows, err := r.db.Query(ctx, query, familyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list token family: %w", err)
	}
	defer rows.Close()

	var tokens []model.RefreshToken
	for rows.Next() {
		rt, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token family row: %w", err)
		}
		tokens = append(tokens, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read token family rows: %w", err)
	}
	return tokens, nil
}

func scanToken(row pgx.Row) (model.RefreshToken, error) {
	var (
		rt       model.RefreshToken
		familyID *uuid.UUID
		reason   *string
	)

	err := row.Scan(
		&rt.ID, &rt.Digest, &rt.PrincipalID, &rt.TenantID, &rt.SubPrincipalID,
		&familyID, &rt.ParentID, &rt.ReplacedByID, &rt.IssuedAt, &rt.ExpiresAt,
		&rt.Revoked, &rt.RevokedAt, &reason, &rt.SuspiciousReuseAt,
		&rt.Client.DeviceInfo, &rt.Client.IPAddress, &rt.Client.UserAgent, &rt.Client.DeviceFingerprint,
		&rt.CreatedAt, &rt.UpdatedAt,
	)
	if err != nil {
		return model.RefreshToken{}, err
	}

	if familyID != nil {
		rt.FamilyID = *familyID
	}
	if reason != nil {
		rr := model.RevokeReason(*reason)
		rt.RevokeReason = &rr
	}
	return rt, nil
}
