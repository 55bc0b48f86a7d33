package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by single-row lookups when nothing matches.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a write would violate a uniqueness
// constraint the store enforces directly (e.g. the single-running-timer
// partial index).
var ErrConflict = errors.New("store: conflict")

// EntryPatch carries the mutable fields of UpdateEntry; nil fields are
// left untouched.
type EntryPatch struct {
	ProjectID   **uuid.UUID
	TaskID      **uuid.UUID
	Description *string
	StartTime   *time.Time
	EndTime     **time.Time
}

// EntryFilter narrows ListEntries. CompanyScope, when non-nil, is always
// applied by the caller (internal/access) before the query reaches here —
// Store itself has no notion of "trusting" an unscoped call.
type EntryFilter struct {
	UserID      *uuid.UUID
	CompanyID   *uuid.UUID
	ProjectID   *uuid.UUID
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// Store is the transactional persistence contract every domain component
// is built against. Implementations: Postgres (production), Memory
// (tests).
type Store interface {
	// Ping verifies the backend is reachable, used by health checks.
	Ping(ctx context.Context) error

	// WithTx runs fn inside a single transaction scoped to companyID (nil
	// for platform-level/super_admin operations). All reads and writes
	// inside fn MUST go through the Tx passed to fn.
	WithTx(ctx context.Context, companyID *uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	// Read-only convenience methods run their own single-statement
	// transaction scoped to companyID.
	GetUser(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetCompany(ctx context.Context, id uuid.UUID) (Company, error)
	GetProject(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (Project, error)
	GetTask(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (Task, error)
	GetTeamByProject(ctx context.Context, projectID uuid.UUID) (Team, error)

	GetRunningEntry(ctx context.Context, companyID *uuid.UUID, userID uuid.UUID) (TimeEntry, error)
	GetEntry(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (TimeEntry, error)
	ListEntries(ctx context.Context, companyID *uuid.UUID, filter EntryFilter) ([]TimeEntry, error)
	ListRunningEntries(ctx context.Context, companyID *uuid.UUID) ([]RunningEntryView, error)

	GetRefreshSession(ctx context.Context, jti string) (RefreshSession, error)
	CreateRefreshSession(ctx context.Context, s RefreshSession) error
	ReplaceRefreshSession(ctx context.Context, oldJTI string, next RefreshSession) error
	RevokeRefreshSession(ctx context.Context, jti string) error

	CreateInvitation(ctx context.Context, inv Invitation) error
	GetInvitationByTokenHash(ctx context.Context, tokenHash string) (Invitation, error)
	DeleteInvitation(ctx context.Context, tokenHash string) error

	// CreateUser provisions a new user row. Returns ErrConflict if the
	// email is already taken.
	CreateUser(ctx context.Context, u User) error

	// CreateCompany provisions a new tenant. Returns ErrConflict if the
	// slug is already taken.
	CreateCompany(ctx context.Context, c Company) error
}

// RunningEntryView joins a running TimeEntry with the denormalized fields
// the Presence Hub needs to avoid a second round-trip per user.
type RunningEntryView struct {
	Entry       TimeEntry
	CompanyID   uuid.UUID
	UserName    string
	ProjectName string
	TaskName    string
}

// Tx is the set of mutating operations valid only inside WithTx. Keeping
// these off Store proper keeps every write inside a transaction boundary.
type Tx interface {
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (User, error)
	GetRunningEntryForUpdate(ctx context.Context, userID uuid.UUID) (TimeEntry, bool, error)
	InsertEntry(ctx context.Context, e TimeEntry) (TimeEntry, error)
	UpdateEntry(ctx context.Context, id uuid.UUID, patch EntryPatch) (TimeEntry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	GetEntry(ctx context.Context, id uuid.UUID) (TimeEntry, error)
	ListClosedEntriesOverlapping(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]TimeEntry, error)
}
