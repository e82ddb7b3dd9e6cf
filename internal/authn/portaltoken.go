// Package authn implements the two authentication surfaces of spec §4.2:
// data-plane API-key verification and portal-plane bearer tokens.
package authn

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PortalClaims are the signed claims carried by a portal or admin bearer
// token: {subject: userId, tenantId, role} (spec §4.2).
type PortalClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// TokenIssuer issues and verifies HS256 portal/admin bearer tokens. The
// teacher's TokenIssuer/UserTokenIssuer sign with RS256 under a CA-issued
// key pair; portal/admin secrets here are shared symmetric secrets
// (PORTAL_JWT_SECRET / ADMIN_JWT_SECRET, spec §6), so signing uses HS256
// instead, same library.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer builds a TokenIssuer. ttl defaults to 24h, the spec §4.2
// default expiry for portal tokens.
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue signs a new bearer token for a (user, tenant, role) triple.
func (t *TokenIssuer) Issue(userID, tenantID, role string) (string, error) {
	now := time.Now().UTC()
	claims := PortalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		TenantID: tenantID,
		Role:     role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign portal token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token, failing ErrUnauthorized on
// any invalid-signature or expiry condition (spec §4.2).
func (t *TokenIssuer) Verify(tokenStr string) (*PortalClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&PortalClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*PortalClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
