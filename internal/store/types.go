// Package store defines the persistence contract shiftcore's domain
// components are built against, plus a Postgres-backed implementation
// (pgx/v5) and an in-memory fake used by unit tests.
package store

import (
	"time"

	"github.com/google/uuid"
)

// CompanyStatus enumerates the lifecycle states of a tenant.
type CompanyStatus string

const (
	CompanyActive    CompanyStatus = "active"
	CompanyTrial     CompanyStatus = "trial"
	CompanySuspended CompanyStatus = "suspended"
	CompanyCancelled CompanyStatus = "cancelled"
)

// Role is a tagged value interpreted only by internal/access; it is never
// treated as an inheritance hierarchy.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleAdmin        Role = "admin"
	RoleCompanyAdmin Role = "company_admin"
	RoleTeamLead     Role = "team_lead"
	RoleRegularUser  Role = "regular_user"
)

// TeamRole is the role a user holds within a specific team.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleMember TeamRole = "member"
)

// TaskStatus enumerates the lifecycle of a Task.
type TaskStatus string

const (
	TaskTODO       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

// Company is the tenancy root. A nil CompanyID elsewhere in the model
// denotes the platform scope, held only by super_admin users.
type Company struct {
	ID             uuid.UUID
	Slug           string
	Status         CompanyStatus
	MaxUsers       int
	MaxProjects    int
	CreatedAt      time.Time
}

// User is a principal. Every role other than super_admin MUST carry a
// non-nil CompanyID.
type User struct {
	ID           uuid.UUID
	CompanyID    *uuid.UUID
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
}

// Team is scoped to exactly one company.
type Team struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	OwnerUserID uuid.UUID
	Name        string
}

// TeamMember is the compound-keyed membership row.
type TeamMember struct {
	TeamID     uuid.UUID
	UserID     uuid.UUID
	RoleInTeam TeamRole
}

// Project inherits its company via Team.
type Project struct {
	ID         uuid.UUID
	TeamID     uuid.UUID
	Name       string
	IsArchived bool
}

// Task belongs to a Project.
type Task struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Name      string
	Status    TaskStatus
}

// TimeEntry is the core unit the Timer Engine manipulates. IsRunning is
// derived (EndTime == nil); DurationSeconds is persisted at stop/update
// time to keep aggregation queries index-friendly.
type TimeEntry struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	ProjectID       *uuid.UUID
	TaskID          *uuid.UUID
	Description     string
	StartTime       time.Time
	EndTime         *time.Time
	DurationSeconds *int64
}

// IsRunning reports whether the entry has no end time yet.
func (t TimeEntry) IsRunning() bool {
	return t.EndTime == nil
}

// RefreshSession is the persisted half of a refresh AccessToken (the
// access token itself is never stored — it lives only in transit).
type RefreshSession struct {
	JTI        string
	UserID     uuid.UUID
	IssuedAt   time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
	RevokedAt  *time.Time
}

// Invitation lets a company admin pre-provision a user without a public,
// company-wide registration endpoint.
type Invitation struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Email     string
	Role      Role
	TokenHash string
	InvitedBy uuid.UUID
	ExpiresAt time.Time
}
