package middleware

import (
	"context"
	"fmt"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions with
// other packages using plain strings.
type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	CompanyIDKey contextKey = "company_id"
	RoleKey      contextKey = "user_role"
	CallerKey    contextKey = "caller"
)

// WithCaller injects the resolved access.Caller into ctx, alongside the
// individual fields handlers commonly want without re-destructuring it.
func WithCaller(ctx context.Context, caller access.Caller) context.Context {
	ctx = context.WithValue(ctx, CallerKey, caller)
	ctx = context.WithValue(ctx, UserIDKey, caller.UserID)
	ctx = context.WithValue(ctx, RoleKey, caller.Role)
	if caller.CompanyID != nil {
		ctx = context.WithValue(ctx, CompanyIDKey, *caller.CompanyID)
	}
	return ctx
}

// GetCaller extracts the resolved caller from context.
func GetCaller(ctx context.Context) (access.Caller, error) {
	val := ctx.Value(CallerKey)
	if val == nil {
		return access.Caller{}, fmt.Errorf("caller not found in context")
	}
	caller, ok := val.(access.Caller)
	if !ok {
		return access.Caller{}, fmt.Errorf("caller has wrong type: %T", val)
	}
	return caller, nil
}

// MustGetCaller extracts the caller and panics if absent. Use only in
// handlers mounted behind RequireAuth, where this is guaranteed.
func MustGetCaller(ctx context.Context) access.Caller {
	caller, err := GetCaller(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return caller
}

// GetUserID safely extracts the user ID from context.
func GetUserID(ctx context.Context) (uuid.UUID, error) {
	val := ctx.Value(UserIDKey)
	if val == nil {
		return uuid.Nil, fmt.Errorf("user_id not found in context")
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("user_id has wrong type: %T", val)
	}
	return id, nil
}
