package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/caxulex/shiftcore/internal/config"
	"github.com/caxulex/shiftcore/internal/kv"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/google/uuid"
)

// Service implements the Identity component: password hashing and
// JWT issue/verify/rotate/revoke, exactly as spec'd — Verify's failure
// modes (expired, malformed, bad signature, revoked) all collapse to
// ErrUnauthenticated before they reach a caller.
type Service struct {
	hasher     *PasswordHasher
	codec      *tokenCodec
	store      store.Store
	kv         kv.KV
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService wires a Service from its dependencies and the configured
// token lifetimes.
func NewService(cfg config.Config, st store.Store, cache kv.KV) *Service {
	return &Service{
		hasher:     NewPasswordHasher(cfg.HashParams),
		codec:      newTokenCodec(cfg.SigningKey),
		store:      st,
		kv:         cache,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
}

// Hash hashes a plaintext password, enforcing the password policy first.
func (s *Service) Hash(password string) (string, error) {
	return s.hasher.Hash(password)
}

// VerifyPassword checks password against the user's stored hash. When the
// hash was produced with different cost parameters than the service's
// current configuration, it returns a freshly computed hash the caller
// should persist (transparent upgrade), leaving the storage write to the
// caller so Identity never writes to Store directly.
func (s *Service) VerifyPassword(password, storedHash string) (ok bool, upgradedHash string, err error) {
	match, needsRehash, err := s.hasher.Verify(password, storedHash)
	if err != nil || !match {
		return false, "", nil
	}
	if needsRehash {
		if fresh, hashErr := s.hasher.Hash(password); hashErr == nil {
			upgradedHash = fresh
		}
	}
	return true, upgradedHash, nil
}

func revokedKey(jti string) string { return "revoked:" + jti }

// IssuePair mints a fresh access/refresh pair for user and persists the
// refresh session so it can later be rotated or revoked.
func (s *Service) IssuePair(ctx context.Context, user store.User) (access, refresh string, err error) {
	accessJTI, err := newJTI()
	if err != nil {
		return "", "", err
	}
	refreshJTI, err := newJTI()
	if err != nil {
		return "", "", err
	}

	access, err = s.codec.sign(user.ID, user.CompanyID, string(user.Role), KindAccess, accessJTI, s.accessTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err = s.codec.sign(user.ID, user.CompanyID, string(user.Role), KindRefresh, refreshJTI, s.refreshTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}

	now := time.Now()
	if err := s.store.CreateRefreshSession(ctx, store.RefreshSession{
		JTI:        refreshJTI,
		UserID:     user.ID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
		LastUsedAt: now,
	}); err != nil {
		return "", "", fmt.Errorf("persist refresh session: %w", err)
	}

	return access, refresh, nil
}

// Verify checks a bearer token's signature, expiry and (for refresh
// tokens) revocation, collapsing every failure mode to
// ErrUnauthenticated.
func (s *Service) Verify(ctx context.Context, token string, expect TokenKind) (*Claims, error) {
	claims, err := s.codec.parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if claims.Kind != expect {
		return nil, ErrUnauthenticated
	}
	if claims.Kind == KindRefresh {
		revoked, err := s.kv.Exists(ctx, revokedKey(claims.JTI))
		if err != nil || revoked {
			return nil, ErrUnauthenticated
		}
		sess, err := s.store.GetRefreshSession(ctx, claims.JTI)
		if err != nil || sess.RevokedAt != nil || time.Now().After(sess.ExpiresAt) {
			return nil, ErrUnauthenticated
		}
	}
	return claims, nil
}

// Rotate verifies refreshToken, revokes its jti, and issues a new pair.
// A replayed (already-rotated) refresh token fails Verify and the caller
// must re-authenticate — Rotate failures are always fatal to the
// session.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	claims, err := s.Verify(ctx, refreshToken, KindRefresh)
	if err != nil {
		return "", "", err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", "", ErrUnauthenticated
	}

	var companyID *uuid.UUID
	if claims.CompanyID != "" {
		id, err := uuid.Parse(claims.CompanyID)
		if err == nil {
			companyID = &id
		}
	}

	newAccessJTI, err := newJTI()
	if err != nil {
		return "", "", err
	}
	newRefreshJTI, err := newJTI()
	if err != nil {
		return "", "", err
	}

	access, err = s.codec.sign(userID, companyID, claims.Role, KindAccess, newAccessJTI, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.codec.sign(userID, companyID, claims.Role, KindRefresh, newRefreshJTI, s.refreshTTL)
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	if err := s.store.ReplaceRefreshSession(ctx, claims.JTI, store.RefreshSession{
		JTI:        newRefreshJTI,
		UserID:     userID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
		LastUsedAt: now,
	}); err != nil {
		return "", "", fmt.Errorf("replace refresh session: %w", err)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 0 {
		remaining = 0
	}
	if err := s.kv.Set(ctx, revokedKey(claims.JTI), "1", remaining); err != nil {
		return "", "", fmt.Errorf("mirror revocation to kv: %w", err)
	}

	return access, refresh, nil
}

// Revoke adds jti to the revocation set for ttl (its remaining lifetime)
// and marks the persisted session revoked, if one exists.
func (s *Service) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if err := s.kv.Set(ctx, revokedKey(jti), "1", ttl); err != nil {
		return err
	}
	return s.store.RevokeRefreshSession(ctx, jti)
}
