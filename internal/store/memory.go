package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by unit tests. A single mutex
// serializes all access, which is sufficient to make WithTx's
// read-then-insert sequence for StartTimer atomic under P1's concurrent
// load — exactly the guarantee the partial unique index gives Postgres.
type Memory struct {
	mu sync.Mutex

	companies   map[uuid.UUID]Company
	users       map[uuid.UUID]User
	teams       map[uuid.UUID]Team
	projects    map[uuid.UUID]Project
	tasks       map[uuid.UUID]Task
	entries     map[uuid.UUID]TimeEntry
	refresh     map[string]RefreshSession
	invitations map[string]Invitation
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		companies:   make(map[uuid.UUID]Company),
		users:       make(map[uuid.UUID]User),
		teams:       make(map[uuid.UUID]Team),
		projects:    make(map[uuid.UUID]Project),
		tasks:       make(map[uuid.UUID]Task),
		entries:     make(map[uuid.UUID]TimeEntry),
		refresh:     make(map[string]RefreshSession),
		invitations: make(map[string]Invitation),
	}
}

// Ping always succeeds; the in-memory backend has no connection to lose.
func (m *Memory) Ping(_ context.Context) error { return nil }

// Seed helpers, used directly by tests to populate fixtures.
func (m *Memory) PutCompany(c Company) { m.mu.Lock(); defer m.mu.Unlock(); m.companies[c.ID] = c }
func (m *Memory) PutUser(u User)       { m.mu.Lock(); defer m.mu.Unlock(); m.users[u.ID] = u }
func (m *Memory) PutTeam(t Team)       { m.mu.Lock(); defer m.mu.Unlock(); m.teams[t.ID] = t }
func (m *Memory) PutProject(p Project) { m.mu.Lock(); defer m.mu.Unlock(); m.projects[p.ID] = p }
func (m *Memory) PutTask(t Task)       { m.mu.Lock(); defer m.mu.Unlock(); m.tasks[t.ID] = t }

func inScope(companyID *uuid.UUID, candidate *uuid.UUID) bool {
	if companyID == nil {
		return true
	}
	return candidate != nil && *candidate == *companyID
}

func (m *Memory) WithTx(ctx context.Context, companyID *uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &memTx{m: m, companyID: companyID})
}

func (m *Memory) GetUser(_ context.Context, companyID *uuid.UUID, id uuid.UUID) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !inScope(companyID, u.CompanyID) {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *Memory) GetCompany(_ context.Context, id uuid.UUID) (Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetProject(_ context.Context, companyID *uuid.UUID, id uuid.UUID) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	team, ok := m.teams[pr.TeamID]
	if !ok || !inScope(companyID, &team.CompanyID) {
		return Project{}, ErrNotFound
	}
	return pr, nil
}

func (m *Memory) GetTask(_ context.Context, companyID *uuid.UUID, id uuid.UUID) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	pr, ok := m.projects[t.ProjectID]
	if !ok {
		return Task{}, ErrNotFound
	}
	team, ok := m.teams[pr.TeamID]
	if !ok || !inScope(companyID, &team.CompanyID) {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) GetTeamByProject(_ context.Context, projectID uuid.UUID) (Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.projects[projectID]
	if !ok {
		return Team{}, ErrNotFound
	}
	team, ok := m.teams[pr.TeamID]
	if !ok {
		return Team{}, ErrNotFound
	}
	return team, nil
}

func (m *Memory) runningEntryLocked(userID uuid.UUID) (TimeEntry, bool) {
	for _, e := range m.entries {
		if e.UserID == userID && e.EndTime == nil {
			return e, true
		}
	}
	return TimeEntry{}, false
}

func (m *Memory) GetRunningEntry(_ context.Context, companyID *uuid.UUID, userID uuid.UUID) (TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || !inScope(companyID, u.CompanyID) {
		return TimeEntry{}, ErrNotFound
	}
	e, ok := m.runningEntryLocked(userID)
	if !ok {
		return TimeEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) GetEntry(_ context.Context, companyID *uuid.UUID, id uuid.UUID) (TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return TimeEntry{}, ErrNotFound
	}
	u, ok := m.users[e.UserID]
	if !ok || !inScope(companyID, u.CompanyID) {
		return TimeEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) ListEntries(_ context.Context, companyID *uuid.UUID, filter EntryFilter) ([]TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TimeEntry
	for _, e := range m.entries {
		u, ok := m.users[e.UserID]
		if !ok || !inScope(companyID, u.CompanyID) {
			continue
		}
		if filter.UserID != nil && e.UserID != *filter.UserID {
			continue
		}
		if filter.ProjectID != nil && (e.ProjectID == nil || *e.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.From != nil && e.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.StartTime.After(*filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) ListRunningEntries(_ context.Context, companyID *uuid.UUID) ([]RunningEntryView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RunningEntryView
	for _, e := range m.entries {
		if e.EndTime != nil {
			continue
		}
		u, ok := m.users[e.UserID]
		if !ok || !inScope(companyID, u.CompanyID) {
			continue
		}
		var cid uuid.UUID
		if u.CompanyID != nil {
			cid = *u.CompanyID
		}
		view := RunningEntryView{Entry: e, CompanyID: cid, UserName: u.Name}
		if e.ProjectID != nil {
			if pr, ok := m.projects[*e.ProjectID]; ok {
				view.ProjectName = pr.Name
			}
		}
		if e.TaskID != nil {
			if t, ok := m.tasks[*e.TaskID]; ok {
				view.TaskName = t.Name
			}
		}
		out = append(out, view)
	}
	return out, nil
}

func (m *Memory) GetRefreshSession(_ context.Context, jti string) (RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.refresh[jti]
	if !ok {
		return RefreshSession{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) CreateRefreshSession(_ context.Context, s RefreshSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[s.JTI] = s
	return nil
}

func (m *Memory) ReplaceRefreshSession(_ context.Context, oldJTI string, next RefreshSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.refresh[oldJTI]
	if !ok || old.RevokedAt != nil {
		return ErrConflict
	}
	now := time.Now()
	old.RevokedAt = &now
	m.refresh[oldJTI] = old
	m.refresh[next.JTI] = next
	return nil
}

func (m *Memory) RevokeRefreshSession(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.refresh[jti]
	if !ok {
		return nil
	}
	now := time.Now()
	s.RevokedAt = &now
	m.refresh[jti] = s
	return nil
}

func (m *Memory) CreateInvitation(_ context.Context, inv Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invitations[inv.TokenHash] = inv
	return nil
}

func (m *Memory) GetInvitationByTokenHash(_ context.Context, tokenHash string) (Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[tokenHash]
	if !ok {
		return Invitation{}, ErrNotFound
	}
	return inv, nil
}

func (m *Memory) DeleteInvitation(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invitations, tokenHash)
	return nil
}

func (m *Memory) CreateCompany(_ context.Context, c Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.companies {
		if existing.Slug == c.Slug {
			return ErrConflict
		}
	}
	m.companies[c.ID] = c
	return nil
}

func (m *Memory) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	m.users[u.ID] = u
	return nil
}

// memTx implements Tx over Memory while its parent mutex is held by
// WithTx, giving it the same single-writer serialization Postgres gets
// from row-level locking.
type memTx struct {
	m         *Memory
	companyID *uuid.UUID
}

func (t *memTx) GetUserForUpdate(_ context.Context, id uuid.UUID) (User, error) {
	u, ok := t.m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (t *memTx) GetRunningEntryForUpdate(_ context.Context, userID uuid.UUID) (TimeEntry, bool, error) {
	e, ok := t.m.runningEntryLocked(userID)
	return e, ok, nil
}

func (t *memTx) InsertEntry(_ context.Context, e TimeEntry) (TimeEntry, error) {
	if _, running := t.m.runningEntryLocked(e.UserID); running && e.EndTime == nil {
		return TimeEntry{}, ErrConflict
	}
	t.m.entries[e.ID] = e
	return e, nil
}

func (t *memTx) UpdateEntry(_ context.Context, id uuid.UUID, patch EntryPatch) (TimeEntry, error) {
	e, ok := t.m.entries[id]
	if !ok {
		return TimeEntry{}, ErrNotFound
	}
	if patch.ProjectID != nil {
		e.ProjectID = *patch.ProjectID
	}
	if patch.TaskID != nil {
		e.TaskID = *patch.TaskID
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.StartTime != nil {
		e.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		e.EndTime = *patch.EndTime
	}
	if e.EndTime != nil {
		d := int64(e.EndTime.Sub(e.StartTime).Seconds())
		e.DurationSeconds = &d
	} else {
		e.DurationSeconds = nil
	}
	t.m.entries[id] = e
	return e, nil
}

func (t *memTx) DeleteEntry(_ context.Context, id uuid.UUID) error {
	if _, ok := t.m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(t.m.entries, id)
	return nil
}

func (t *memTx) GetEntry(_ context.Context, id uuid.UUID) (TimeEntry, error) {
	e, ok := t.m.entries[id]
	if !ok {
		return TimeEntry{}, ErrNotFound
	}
	return e, nil
}

func (t *memTx) ListClosedEntriesOverlapping(_ context.Context, userID uuid.UUID, start, end time.Time) ([]TimeEntry, error) {
	var out []TimeEntry
	for _, e := range t.m.entries {
		if e.UserID != userID || e.EndTime == nil {
			continue
		}
		if e.StartTime.Before(end) && e.EndTime.After(start) {
			out = append(out, e)
		}
	}
	return out, nil
}
