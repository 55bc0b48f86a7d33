package timer

import (
	"context"
	"time"

	"github.com/caxulex/shiftcore/internal/presence"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/google/uuid"
)

// Engine implements StartTimer, StopTimer, CreateManual, UpdateEntry and
// DeleteEntry over a Store, notifying a presence.Hub after every commit.
type Engine struct {
	store store.Store
	hub   *presence.Hub
}

// New constructs an Engine.
func New(st store.Store, hub *presence.Hub) *Engine {
	return &Engine{store: st, hub: hub}
}

// validateProjectTask checks that, if set, projectID belongs to a team
// in companyID, and taskID (if set) belongs to projectID — invariant 4.
func (e *Engine) validateProjectTask(ctx context.Context, companyID *uuid.UUID, projectID, taskID *uuid.UUID) error {
	if projectID != nil {
		proj, err := e.store.GetProject(ctx, companyID, *projectID)
		if err != nil {
			return ErrInvariantViolation
		}
		if taskID != nil {
			task, err := e.store.GetTask(ctx, companyID, *taskID)
			if err != nil || task.ProjectID != proj.ID {
				return ErrInvariantViolation
			}
		}
	} else if taskID != nil {
		return ErrInvariantViolation
	}
	return nil
}

// requireActiveUser enforces the active-user precondition shared by
// StartTimer and CreateManual: a deactivated user cannot start or
// backfill time entries, even when acted on by a same-company admin.
func (e *Engine) requireActiveUser(ctx context.Context, companyID *uuid.UUID, userID uuid.UUID) error {
	user, err := e.store.GetUser(ctx, companyID, userID)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return ErrUserInactive
	}
	return nil
}

func (e *Engine) activeInfo(ctx context.Context, entry store.TimeEntry) (presence.ActiveTimerInfo, error) {
	user, err := e.store.GetUser(ctx, nil, entry.UserID)
	if err != nil {
		return presence.ActiveTimerInfo{}, err
	}
	var companyID uuid.UUID
	if user.CompanyID != nil {
		companyID = *user.CompanyID
	}
	info := presence.ActiveTimerInfo{
		EntryID:     entry.ID,
		UserID:      entry.UserID,
		CompanyID:   companyID,
		UserName:    user.Name,
		ProjectID:   entry.ProjectID,
		TaskID:      entry.TaskID,
		Description: entry.Description,
		StartTime:   entry.StartTime,
	}
	if entry.ProjectID != nil {
		if proj, err := e.store.GetProject(ctx, user.CompanyID, *entry.ProjectID); err == nil {
			info.ProjectName = proj.Name
		}
	}
	if entry.TaskID != nil {
		if task, err := e.store.GetTask(ctx, user.CompanyID, *entry.TaskID); err == nil {
			info.TaskName = task.Name
		}
	}
	return info, nil
}

// StartTimer inserts a running entry for userID after checking the
// single-timer invariant inside one transaction, then notifies the
// Presence Hub post-commit.
func (e *Engine) StartTimer(ctx context.Context, companyID *uuid.UUID, userID uuid.UUID, projectID, taskID *uuid.UUID, description string) (store.TimeEntry, error) {
	if err := e.requireActiveUser(ctx, companyID, userID); err != nil {
		return store.TimeEntry{}, err
	}
	if err := e.validateProjectTask(ctx, companyID, projectID, taskID); err != nil {
		return store.TimeEntry{}, err
	}

	var inserted store.TimeEntry
	err := e.store.WithTx(ctx, companyID, func(ctx context.Context, tx store.Tx) error {
		_, running, err := tx.GetRunningEntryForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if running {
			return ErrTimerAlreadyRunning
		}
		entry, err := tx.InsertEntry(ctx, store.TimeEntry{
			ID:          uuid.New(),
			UserID:      userID,
			ProjectID:   projectID,
			TaskID:      taskID,
			Description: description,
			StartTime:   time.Now().UTC(),
		})
		if err != nil {
			if err == store.ErrConflict {
				return ErrTimerAlreadyRunning
			}
			return err
		}
		inserted = entry
		return nil
	})
	if err != nil {
		return store.TimeEntry{}, err
	}

	if info, infoErr := e.activeInfo(ctx, inserted); infoErr == nil {
		e.hub.Upsert(info, presence.EventTimerStarted)
	}
	return inserted, nil
}

// StopTimer closes the unique running entry for userID, computing
// duration_seconds, and notifies the Presence Hub post-commit.
func (e *Engine) StopTimer(ctx context.Context, companyID *uuid.UUID, userID uuid.UUID) (store.TimeEntry, error) {
	var closed store.TimeEntry
	err := e.store.WithTx(ctx, companyID, func(ctx context.Context, tx store.Tx) error {
		running, ok, err := tx.GetRunningEntryForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoRunningTimer
		}
		end := time.Now().UTC()
		if end.Before(running.StartTime) {
			return ErrClockSkew
		}
		endPtr := end
		updated, err := tx.UpdateEntry(ctx, running.ID, store.EntryPatch{EndTime: &endPtr})
		if err != nil {
			return err
		}
		closed = updated
		return nil
	})
	if err != nil {
		return store.TimeEntry{}, err
	}

	if info, infoErr := e.activeInfo(ctx, closed); infoErr == nil {
		e.hub.Remove(userID, info)
	}
	return closed, nil
}

// CreateManual inserts a closed (or open) entry with caller-supplied
// timestamps. Overlap with an existing closed entry never fails the
// call; it is surfaced as a warning so real workflows can still submit
// and correct afterward.
func (e *Engine) CreateManual(ctx context.Context, companyID *uuid.UUID, userID uuid.UUID, start time.Time, end *time.Time, projectID, taskID *uuid.UUID, description string) (store.TimeEntry, []string, error) {
	if end != nil && end.Before(start) {
		return store.TimeEntry{}, nil, ErrInvariantViolation
	}
	if err := e.requireActiveUser(ctx, companyID, userID); err != nil {
		return store.TimeEntry{}, nil, err
	}
	if err := e.validateProjectTask(ctx, companyID, projectID, taskID); err != nil {
		return store.TimeEntry{}, nil, err
	}

	var warnings []string
	var inserted store.TimeEntry
	err := e.store.WithTx(ctx, companyID, func(ctx context.Context, tx store.Tx) error {
		if end == nil {
			_, running, err := tx.GetRunningEntryForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			if running {
				return ErrTimerAlreadyRunning
			}
		} else {
			overlaps, err := tx.ListClosedEntriesOverlapping(ctx, userID, start, *end)
			if err != nil {
				return err
			}
			if len(overlaps) > 0 {
				warnings = append(warnings, "overlaps an existing closed time entry")
			}
		}

		entry := store.TimeEntry{
			ID:          uuid.New(),
			UserID:      userID,
			ProjectID:   projectID,
			TaskID:      taskID,
			Description: description,
			StartTime:   start,
			EndTime:     end,
		}
		if end != nil {
			d := int64(end.Sub(start).Seconds())
			entry.DurationSeconds = &d
		}
		result, err := tx.InsertEntry(ctx, entry)
		if err != nil {
			if err == store.ErrConflict {
				return ErrTimerAlreadyRunning
			}
			return err
		}
		inserted = result
		return nil
	})
	if err != nil {
		return store.TimeEntry{}, nil, err
	}

	if inserted.EndTime == nil {
		if info, infoErr := e.activeInfo(ctx, inserted); infoErr == nil {
			e.hub.Upsert(info, presence.EventEntryCreated)
		}
	}
	return inserted, warnings, nil
}

// EntryPatch is the caller-facing patch shape for UpdateEntry; nil
// fields are left untouched. A non-nil EndTime on a previously running
// entry is equivalent to StopTimer and emits timer.stopped in addition
// to timeentry.updated.
type EntryPatch struct {
	ProjectID   **uuid.UUID
	TaskID      **uuid.UUID
	Description *string
	StartTime   *time.Time
	EndTime     **time.Time
}

// UpdateEntry applies patch to entryID, re-checking all invariants
// afterward.
func (e *Engine) UpdateEntry(ctx context.Context, companyID *uuid.UUID, entryID uuid.UUID, patch EntryPatch) (store.TimeEntry, bool, error) {
	var updated store.TimeEntry
	var wasRunning bool
	err := e.store.WithTx(ctx, companyID, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return ErrNotFound
		}
		wasRunning = current.IsRunning()

		if patch.ProjectID != nil || patch.TaskID != nil {
			projectID := current.ProjectID
			taskID := current.TaskID
			if patch.ProjectID != nil {
				projectID = *patch.ProjectID
			}
			if patch.TaskID != nil {
				taskID = *patch.TaskID
			}
			if err := e.validateProjectTask(ctx, companyID, projectID, taskID); err != nil {
				return err
			}
		}

		start := current.StartTime
		if patch.StartTime != nil {
			start = *patch.StartTime
		}
		end := current.EndTime
		if patch.EndTime != nil {
			end = *patch.EndTime
		}
		if end != nil && end.Before(start) {
			return ErrInvariantViolation
		}

		result, err := tx.UpdateEntry(ctx, entryID, store.EntryPatch{
			ProjectID:   patch.ProjectID,
			TaskID:      patch.TaskID,
			Description: patch.Description,
			StartTime:   patch.StartTime,
			EndTime:     patch.EndTime,
		})
		if err != nil {
			return err
		}
		updated = result
		return nil
	})
	if err != nil {
		return store.TimeEntry{}, false, err
	}

	stoppedNow := wasRunning && updated.EndTime != nil
	if stoppedNow {
		if info, infoErr := e.activeInfo(ctx, updated); infoErr == nil {
			e.hub.Remove(updated.UserID, info)
		}
	} else if updated.IsRunning() {
		if info, infoErr := e.activeInfo(ctx, updated); infoErr == nil {
			e.hub.Upsert(info, presence.EventEntryUpdated)
		}
	}
	return updated, stoppedNow, nil
}

// DeleteEntry removes entryID, clearing it from the Presence Hub if it
// was running.
func (e *Engine) DeleteEntry(ctx context.Context, companyID *uuid.UUID, entryID uuid.UUID) error {
	var removed store.TimeEntry
	err := e.store.WithTx(ctx, companyID, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return ErrNotFound
		}
		removed = current
		return tx.DeleteEntry(ctx, entryID)
	})
	if err != nil {
		return err
	}
	if removed.IsRunning() {
		if info, infoErr := e.activeInfo(ctx, removed); infoErr == nil {
			e.hub.Remove(removed.UserID, info)
		}
	}
	return nil
}
