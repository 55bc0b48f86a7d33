package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind discriminates an access token from a refresh token so a
// refresh token can never be replayed as an access token at the
// boundary.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the JWT payload shiftcore issues and verifies.
type Claims struct {
	JTI       string    `json:"jti"`
	Kind      TokenKind `json:"kind"`
	CompanyID string    `json:"company_id,omitempty"`
	Role      string    `json:"role"`
	jwt.RegisteredClaims
}

// tokenCodec signs and parses Claims with HMAC-SHA256.
type tokenCodec struct {
	signingKey []byte
}

func newTokenCodec(signingKey []byte) *tokenCodec {
	return &tokenCodec{signingKey: signingKey}
}

func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (c *tokenCodec) sign(userID uuid.UUID, companyID *uuid.UUID, role string, kind TokenKind, jti string, ttl time.Duration) (string, error) {
	now := time.Now()
	company := ""
	if companyID != nil {
		company = companyID.String()
	}
	claims := Claims{
		JTI:       jti,
		Kind:      kind,
		CompanyID: company,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.signingKey)
}

// parse verifies the signature and expiry of tokenString and returns its
// claims. It does not consult the revocation set; callers check that
// separately for refresh tokens.
func (c *tokenCodec) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrUnauthenticated
		}
		return nil, ErrUnauthenticated
	}
	if !token.Valid {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}
