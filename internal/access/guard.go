// Package access implements the Access Guard: the pipeline every inbound
// operation passes through — rate limit, resolve caller, compute
// tenancy scope, authorize, and (by contract, not by code here) force
// every store query through that scope.
package access

import (
	"context"
	"errors"

	"github.com/caxulex/shiftcore/internal/identity"
	"github.com/google/uuid"
)

// ErrForbidden is returned when a resolved caller lacks the authority
// a requested operation needs.
var ErrForbidden = errors.New("access: forbidden")

// ErrUnauthenticated re-exports identity's sentinel so callers of this
// package don't need to import internal/identity just to compare errors.
var ErrUnauthenticated = identity.ErrUnauthenticated

// Caller is the resolved identity of an inbound request: the only shape
// every downstream domain component should need to make an authority
// decision.
type Caller struct {
	UserID    uuid.UUID
	CompanyID *uuid.UUID
	Role      string
	JTI       string
}

// roleWeight orders roles for hierarchy checks. Role is a tagged value
// interpreted only here — no other package branches on it directly.
var roleWeight = map[string]int{
	"super_admin":   4,
	"admin":         3,
	"company_admin": 2,
	"team_lead":     1,
	"regular_user":  0,
}

// Guard ties Identity token verification to rate limiting and
// authorization.
type Guard struct {
	identity    *identity.Service
	rateLimiter *RateLimiter
}

// New constructs a Guard.
func New(identitySvc *identity.Service, limiter *RateLimiter) *Guard {
	return &Guard{identity: identitySvc, rateLimiter: limiter}
}

// CheckRateLimit enforces the per-IP budget for bucket before any other
// processing happens.
func (g *Guard) CheckRateLimit(ctx context.Context, bucket Bucket, ip string) error {
	return g.rateLimiter.Allow(ctx, bucket, ip)
}

// Resolve verifies a bearer access token and returns the caller it
// identifies.
func (g *Guard) Resolve(ctx context.Context, accessToken string) (Caller, error) {
	claims, err := g.identity.Verify(ctx, accessToken, identity.KindAccess)
	if err != nil {
		return Caller{}, ErrUnauthenticated
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Caller{}, ErrUnauthenticated
	}
	var companyID *uuid.UUID
	if claims.CompanyID != "" {
		id, err := uuid.Parse(claims.CompanyID)
		if err != nil {
			return Caller{}, ErrUnauthenticated
		}
		companyID = &id
	}
	return Caller{UserID: userID, CompanyID: companyID, Role: claims.Role, JTI: claims.JTI}, nil
}

// Scope computes the company_id predicate every store query made on
// behalf of caller MUST apply: nil for super_admin (no filter), the
// caller's own company otherwise.
func (c Caller) Scope() *uuid.UUID {
	if c.Role == "super_admin" {
		return nil
	}
	return c.CompanyID
}

// RequireRole authorizes caller against a required role set, using
// hierarchy order: a caller whose weight is ≥ the minimum required
// role's weight passes. Pass an explicit single role (e.g. "super_admin")
// for operations that must never be satisfied by a higher-weighted
// placeholder — there is none above super_admin, so this only matters
// for admin-only vs. super-admin-only distinctions at the call site.
func RequireRole(caller Caller, minRole string) error {
	if roleWeight[caller.Role] < roleWeight[minRole] {
		return ErrForbidden
	}
	return nil
}

// RequireExactRole authorizes only an exact role match, used for
// super-admin-only operations (global toggles, cross-tenant listing)
// that a company_admin must never satisfy no matter how the hierarchy
// is read.
func RequireExactRole(caller Caller, role string) error {
	if caller.Role != role {
		return ErrForbidden
	}
	return nil
}

// SameCompany reports whether caller may operate on a resource owned by
// ownerCompany: true for super_admin, or when the caller's own company
// matches.
func SameCompany(caller Caller, ownerCompany uuid.UUID) bool {
	if caller.Role == "super_admin" {
		return true
	}
	return caller.CompanyID != nil && *caller.CompanyID == ownerCompany
}

// IsSelfOrCompanyAdmin authorizes an operation whose authority is either
// the acting subject or an admin within the same company — the shape
// StartTimer/StopTimer/UpdateEntry/DeleteEntry all share.
func IsSelfOrCompanyAdmin(caller Caller, targetUserID uuid.UUID, targetCompany *uuid.UUID) bool {
	if caller.UserID == targetUserID {
		return true
	}
	if roleWeight[caller.Role] < roleWeight["company_admin"] {
		return false
	}
	if caller.Role == "super_admin" {
		return true
	}
	return targetCompany != nil && caller.CompanyID != nil && *caller.CompanyID == *targetCompany
}
