package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the access-token claims. SessionVersion pins the token to the
// session version counter current at mint time; the verifier rejects tokens
// whose version lags the counter.
type Claims struct {
	jwt.RegisteredClaims
	PrincipalID    uuid.UUID  `json:"principal_id"`
	TenantID       *uuid.UUID `json:"tenant_id,omitempty"`
	SubPrincipalID *uuid.UUID `json:"sub_principal_id,omitempty"`
	SessionVersion int64      `json:"sv"`
	TokenType      string     `json:"typ"`
}

const typeAccess = "access"

// Manager signs and parses short-lived access tokens with symmetric HMAC.
// Refresh credentials are opaque and never go through here.
type Manager struct {
	secretKey string
	accessTTL time.Duration
}

func NewManager(secretKey string, accessTTL time.Duration) *Manager {
	return &Manager{secretKey: secretKey, accessTTL: accessTTL}
}

// GenerateAccessToken creates a short-lived access token bound to the
// given session version.
func (m *Manager) GenerateAccessToken(principalID uuid.UUID, tenantID, subPrincipalID *uuid.UUID, sessionVersion int64) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		PrincipalID:    principalID,
		TenantID:       tenantID,
		SubPrincipalID: subPrincipalID,
		SessionVersion: sessionVersion,
		TokenType:      typeAccess,
	})

	tokenString, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// ParseAccessToken validates the signature and shape of an access token and
// returns its claims. Comparing the session version against the counter is
// the verifier's job, not ours.
func (m *Manager) ParseAccessToken(tokenString string) (Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("access token is invalid")
	}
	if claims.TokenType != typeAccess {
		return Claims{}, fmt.Errorf("token type mismatch: %s", claims.TokenType)
	}
	return *claims, nil
}
