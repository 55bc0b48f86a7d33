package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// withCompanyContext runs fn inside a transaction with the
// app.current_company session variable set for Row Level Security. Every
// RLS policy on a tenant-scoped table filters on this variable, so even a
// hand-written query that forgets a `company_id = $1` predicate cannot
// leak across tenants.
//
// The variable is transaction-scoped (SET LOCAL) and is cleared
// automatically when the transaction ends.
func withCompanyContext(ctx context.Context, pool *pgxpool.Pool, companyID *uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if companyID != nil {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.current_company', $1, true)", companyID.String()); err != nil {
			return fmt.Errorf("set company context: %w", err)
		}
	} else {
		// super_admin / platform scope: explicitly clear the variable so a
		// pooled connection can't carry a stale value from a prior
		// transaction into an unscoped query.
		if _, err := tx.Exec(ctx, "SELECT set_config('app.current_company', '', true)"); err != nil {
			return fmt.Errorf("clear company context: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
