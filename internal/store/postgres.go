package store

import (
	"context"
	"fmt"
	"time"

	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store over pgx/v5, wrapping every call in a
// company-scoped (RLS) transaction via withCompanyContext.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a connection pool against dsn and verifies it with a
// ping before returning.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping verifies the underlying pool is reachable, used by the health
// check endpoint.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) WithTx(ctx context.Context, companyID *uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	return withCompanyContext(ctx, p.pool, companyID, func(pgtx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: pgtx})
	})
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.CompanyID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func scanEntry(row pgx.Row) (TimeEntry, error) {
	var e TimeEntry
	if err := row.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.TaskID, &e.Description, &e.StartTime, &e.EndTime, &e.DurationSeconds); err != nil {
		if err == pgx.ErrNoRows {
			return TimeEntry{}, ErrNotFound
		}
		return TimeEntry{}, err
	}
	return e, nil
}

func (p *Postgres) GetUser(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (User, error) {
	var u User
	err := withCompanyContext(ctx, p.pool, companyID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT id, company_id, email, password_hash, name, role, is_active, created_at
			FROM users WHERE id = $1 AND ($2::uuid IS NULL OR company_id = $2)`, id, companyID)
		var scanErr error
		u, scanErr = scanUser(row)
		return scanErr
	})
	return u, err
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT id, company_id, email, password_hash, name, role, is_active, created_at
			FROM users WHERE email = $1`, email)
		var scanErr error
		u, scanErr = scanUser(row)
		return scanErr
	})
	return u, err
}

func (p *Postgres) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	var c Company
	err := withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT id, slug, status, max_users, max_projects, created_at
			FROM companies WHERE id = $1`, id)
		if err := row.Scan(&c.ID, &c.Slug, &c.Status, &c.MaxUsers, &c.MaxProjects, &c.CreatedAt); err != nil {
			if err == pgx.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	return c, err
}

func (p *Postgres) GetProject(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (Project, error) {
	var pr Project
	err := withCompanyContext(ctx, p.pool, companyID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT p.id, p.team_id, p.name, p.is_archived
			FROM projects p JOIN teams t ON t.id = p.team_id
			WHERE p.id = $1 AND ($2::uuid IS NULL OR t.company_id = $2)`, id, companyID)
		if err := row.Scan(&pr.ID, &pr.TeamID, &pr.Name, &pr.IsArchived); err != nil {
			if err == pgx.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	return pr, err
}

func (p *Postgres) GetTask(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (Task, error) {
	var t Task
	err := withCompanyContext(ctx, p.pool, companyID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT tk.id, tk.project_id, tk.name, tk.status
			FROM tasks tk
			JOIN projects p ON p.id = tk.project_id
			JOIN teams tm ON tm.id = p.team_id
			WHERE tk.id = $1 AND ($2::uuid IS NULL OR tm.company_id = $2)`, id, companyID)
		if err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Status); err != nil {
			if err == pgx.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	return t, err
}

func (p *Postgres) GetTeamByProject(ctx context.Context, projectID uuid.UUID) (Team, error) {
	var t Team
	err := withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT t.id, t.company_id, t.owner_user_id, t.name
			FROM teams t JOIN projects p ON p.team_id = t.id WHERE p.id = $1`, projectID)
		if err := row.Scan(&t.ID, &t.CompanyID, &t.OwnerUserID, &t.Name); err != nil {
			if err == pgx.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	return t, err
}

func (p *Postgres) GetRunningEntry(ctx context.Context, companyID *uuid.UUID, userID uuid.UUID) (TimeEntry, error) {
	var e TimeEntry
	err := withCompanyContext(ctx, p.pool, companyID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT te.id, te.user_id, te.project_id, te.task_id, te.description, te.start_time, te.end_time, te.duration_seconds
			FROM time_entries te JOIN users u ON u.id = te.user_id
			WHERE te.user_id = $1 AND te.end_time IS NULL AND ($2::uuid IS NULL OR u.company_id = $2)`, userID, companyID)
		var scanErr error
		e, scanErr = scanEntry(row)
		return scanErr
	})
	return e, err
}

func (p *Postgres) GetEntry(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (TimeEntry, error) {
	var e TimeEntry
	err := withCompanyContext(ctx, p.pool, companyID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT te.id, te.user_id, te.project_id, te.task_id, te.description, te.start_time, te.end_time, te.duration_seconds
			FROM time_entries te JOIN users u ON u.id = te.user_id
			WHERE te.id = $1 AND ($2::uuid IS NULL OR u.company_id = $2)`, id, companyID)
		var scanErr error
		e, scanErr = scanEntry(row)
		return scanErr
	})
	return e, err
}

func (p *Postgres) ListEntries(ctx context.Context, companyID *uuid.UUID, filter EntryFilter) ([]TimeEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []TimeEntry
	err := withCompanyContext(ctx, p.pool, companyID, func(tx pgx.Tx) error {
		query := `SELECT te.id, te.user_id, te.project_id, te.task_id, te.description, te.start_time, te.end_time, te.duration_seconds
			FROM time_entries te JOIN users u ON u.id = te.user_id
			WHERE ($1::uuid IS NULL OR u.company_id = $1)
			AND ($2::uuid IS NULL OR te.user_id = $2)
			AND ($3::uuid IS NULL OR te.project_id = $3)
			AND ($4::timestamptz IS NULL OR te.start_time >= $4)
			AND ($5::timestamptz IS NULL OR te.start_time <= $5)
			ORDER BY te.start_time DESC LIMIT $6 OFFSET $7`
		rows, err := tx.Query(ctx, query, companyID, filter.UserID, filter.ProjectID, filter.From, filter.To, limit, filter.Offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}

func (p *Postgres) ListRunningEntries(ctx context.Context, companyID *uuid.UUID) ([]RunningEntryView, error) {
	var views []RunningEntryView
	err := withCompanyContext(ctx, p.pool, companyID, func(tx pgx.Tx) error {
		query := `SELECT te.id, te.user_id, te.project_id, te.task_id, te.description, te.start_time,
			u.company_id, u.name, COALESCE(p.name, ''), COALESCE(tk.name, '')
			FROM time_entries te
			JOIN users u ON u.id = te.user_id
			LEFT JOIN projects p ON p.id = te.project_id
			LEFT JOIN tasks tk ON tk.id = te.task_id
			WHERE te.end_time IS NULL AND ($1::uuid IS NULL OR u.company_id = $1)`
		rows, err := tx.Query(ctx, query, companyID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v RunningEntryView
			if err := rows.Scan(&v.Entry.ID, &v.Entry.UserID, &v.Entry.ProjectID, &v.Entry.TaskID,
				&v.Entry.Description, &v.Entry.StartTime, &v.CompanyID, &v.UserName, &v.ProjectName, &v.TaskName); err != nil {
				return err
			}
			views = append(views, v)
		}
		return rows.Err()
	})
	return views, err
}

func (p *Postgres) GetRefreshSession(ctx context.Context, jti string) (RefreshSession, error) {
	var s RefreshSession
	err := withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT jti, user_id, issued_at, expires_at, last_used_at, revoked_at
			FROM refresh_sessions WHERE jti = $1`, jti)
		if err := row.Scan(&s.JTI, &s.UserID, &s.IssuedAt, &s.ExpiresAt, &s.LastUsedAt, &s.RevokedAt); err != nil {
			if err == pgx.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	return s, err
}

func (p *Postgres) CreateRefreshSession(ctx context.Context, s RefreshSession) error {
	return withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO refresh_sessions (jti, user_id, issued_at, expires_at, last_used_at)
			VALUES ($1, $2, $3, $4, $5)`, s.JTI, s.UserID, s.IssuedAt, s.ExpiresAt, s.LastUsedAt)
		return err
	})
}

func (p *Postgres) ReplaceRefreshSession(ctx context.Context, oldJTI string, next RefreshSession) error {
	return withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `UPDATE refresh_sessions SET revoked_at = now() WHERE jti = $1 AND revoked_at IS NULL`, oldJTI)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrConflict
		}
		_, err = tx.Exec(ctx, `INSERT INTO refresh_sessions (jti, user_id, issued_at, expires_at, last_used_at)
			VALUES ($1, $2, $3, $4, $5)`, next.JTI, next.UserID, next.IssuedAt, next.ExpiresAt, next.LastUsedAt)
		return err
	})
}

func (p *Postgres) RevokeRefreshSession(ctx context.Context, jti string) error {
	return withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE refresh_sessions SET revoked_at = now() WHERE jti = $1`, jti)
		return err
	})
}

func (p *Postgres) CreateCompany(ctx context.Context, c Company) error {
	return withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO companies (id, slug, status, max_users, max_projects)
			VALUES ($1, $2, $3, $4, $5)`, c.ID, c.Slug, c.Status, c.MaxUsers, c.MaxProjects)
		return translateInsertErr(err)
	})
}

func (p *Postgres) CreateUser(ctx context.Context, u User) error {
	return withCompanyContext(ctx, p.pool, u.CompanyID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO users (id, company_id, email, password_hash, name, role, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`, u.ID, u.CompanyID, u.Email, u.PasswordHash, u.Name, u.Role, u.IsActive)
		return translateInsertErr(err)
	})
}

func (p *Postgres) DeleteInvitation(ctx context.Context, tokenHash string) error {
	return withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM invitations WHERE token_hash = $1`, tokenHash)
		return err
	})
}

func (p *Postgres) CreateInvitation(ctx context.Context, inv Invitation) error {
	return withCompanyContext(ctx, p.pool, &inv.CompanyID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO invitations (id, company_id, email, role, token_hash, invited_by, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`, inv.ID, inv.CompanyID, inv.Email, inv.Role, inv.TokenHash, inv.InvitedBy, inv.ExpiresAt)
		return err
	})
}

func (p *Postgres) GetInvitationByTokenHash(ctx context.Context, tokenHash string) (Invitation, error) {
	var inv Invitation
	err := withCompanyContext(ctx, p.pool, nil, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT id, company_id, email, role, token_hash, invited_by, expires_at
			FROM invitations WHERE token_hash = $1`, tokenHash)
		if err := row.Scan(&inv.ID, &inv.CompanyID, &inv.Email, &inv.Role, &inv.TokenHash, &inv.InvitedBy, &inv.ExpiresAt); err != nil {
			if err == pgx.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	return inv, err
}

// pgTx implements Tx over a live pgx.Tx, used only inside Store.WithTx.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetUserForUpdate(ctx context.Context, id uuid.UUID) (User, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, company_id, email, password_hash, name, role, is_active, created_at
		FROM users WHERE id = $1 FOR UPDATE`, id)
	return scanUser(row)
}

// GetRunningEntryForUpdate locks any running row for userID so concurrent
// StartTimer calls serialize on it; the partial unique index on
// (user_id) WHERE end_time IS NULL is the backstop if two transactions
// race past this lock under a weaker isolation level.
func (t *pgTx) GetRunningEntryForUpdate(ctx context.Context, userID uuid.UUID) (TimeEntry, bool, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, user_id, project_id, task_id, description, start_time, end_time, duration_seconds
		FROM time_entries WHERE user_id = $1 AND end_time IS NULL FOR UPDATE`, userID)
	e, err := scanEntry(row)
	if err == ErrNotFound {
		return TimeEntry{}, false, nil
	}
	if err != nil {
		return TimeEntry{}, false, err
	}
	return e, true, nil
}

func (t *pgTx) InsertEntry(ctx context.Context, e TimeEntry) (TimeEntry, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO time_entries (id, user_id, project_id, task_id, description, start_time, end_time, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, user_id, project_id, task_id, description, start_time, end_time, duration_seconds`,
		e.ID, e.UserID, e.ProjectID, e.TaskID, e.Description, e.StartTime, e.EndTime, e.DurationSeconds)
	inserted, err := scanEntry(row)
	if err != nil {
		return TimeEntry{}, translateInsertErr(err)
	}
	return inserted, nil
}

func (t *pgTx) UpdateEntry(ctx context.Context, id uuid.UUID, patch EntryPatch) (TimeEntry, error) {
	current, err := t.GetEntry(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}
	if patch.ProjectID != nil {
		current.ProjectID = *patch.ProjectID
	}
	if patch.TaskID != nil {
		current.TaskID = *patch.TaskID
	}
	if patch.Description != nil {
		current.Description = *patch.Description
	}
	if patch.StartTime != nil {
		current.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		current.EndTime = *patch.EndTime
	}
	if current.EndTime != nil {
		d := int64(current.EndTime.Sub(current.StartTime).Seconds())
		current.DurationSeconds = &d
	} else {
		current.DurationSeconds = nil
	}

	row := t.tx.QueryRow(ctx, `UPDATE time_entries SET project_id = $2, task_id = $3, description = $4,
		start_time = $5, end_time = $6, duration_seconds = $7 WHERE id = $1
		RETURNING id, user_id, project_id, task_id, description, start_time, end_time, duration_seconds`,
		id, current.ProjectID, current.TaskID, current.Description, current.StartTime, current.EndTime, current.DurationSeconds)
	updated, err := scanEntry(row)
	if err != nil {
		return TimeEntry{}, translateInsertErr(err)
	}
	return updated, nil
}

func (t *pgTx) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM time_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) GetEntry(ctx context.Context, id uuid.UUID) (TimeEntry, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, user_id, project_id, task_id, description, start_time, end_time, duration_seconds
		FROM time_entries WHERE id = $1`, id)
	return scanEntry(row)
}

func (t *pgTx) ListClosedEntriesOverlapping(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]TimeEntry, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, user_id, project_id, task_id, description, start_time, end_time, duration_seconds
		FROM time_entries
		WHERE user_id = $1 AND end_time IS NOT NULL AND start_time < $3 AND end_time > $2`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// translateInsertErr turns the partial-unique-index violation on
// (user_id) WHERE end_time IS NULL into ErrConflict, the signal
// internal/timer uses to report TimerAlreadyRunning.
func translateInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
