package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/caxulex/shiftcore/internal/api/helpers"
	"github.com/caxulex/shiftcore/internal/api/middleware"
	"github.com/caxulex/shiftcore/internal/presence"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/caxulex/shiftcore/internal/timer"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TimeHandler implements the Timer Engine's HTTP surface: start/stop,
// manual entry CRUD, listing, and the active-timers snapshot.
type TimeHandler struct {
	timer *timer.Engine
	hub   *presence.Hub
	store store.Store
}

func NewTimeHandler(engine *timer.Engine, hub *presence.Hub, st store.Store) *TimeHandler {
	return &TimeHandler{timer: engine, hub: hub, store: st}
}

type timeEntryResponse struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ProjectID       *uuid.UUID `json:"project_id,omitempty"`
	TaskID          *uuid.UUID `json:"task_id,omitempty"`
	Description     string     `json:"description"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
}

func toEntryResponse(e store.TimeEntry) timeEntryResponse {
	return timeEntryResponse{
		ID:              e.ID,
		UserID:          e.UserID,
		ProjectID:       e.ProjectID,
		TaskID:          e.TaskID,
		Description:     e.Description,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		DurationSeconds: e.DurationSeconds,
	}
}

type startTimerRequest struct {
	ProjectID   *uuid.UUID `json:"project_id"`
	TaskID      *uuid.UUID `json:"task_id"`
	Description string     `json:"description"`
}

// Start begins a new running entry for the caller.
func (h *TimeHandler) Start(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetCaller(r.Context())

	var req startTimerRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.timer.StartTimer(r.Context(), caller.Scope(), caller.UserID, req.ProjectID, req.TaskID, req.Description)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, toEntryResponse(entry))
}

// Stop closes the caller's running entry.
func (h *TimeHandler) Stop(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetCaller(r.Context())

	entry, err := h.timer.StopTimer(r.Context(), caller.Scope(), caller.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, toEntryResponse(entry))
}

type createManualRequest struct {
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end"`
	ProjectID   *uuid.UUID `json:"project_id"`
	TaskID      *uuid.UUID `json:"task_id"`
	Description string     `json:"description"`
}

type createManualResponse struct {
	timeEntryResponse
	Warnings []string `json:"warnings,omitempty"`
}

// CreateManual inserts a caller-supplied entry, reporting overlap as a
// warning rather than a rejection.
func (h *TimeHandler) CreateManual(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetCaller(r.Context())

	var req createManualRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, warnings, err := h.timer.CreateManual(r.Context(), caller.Scope(), caller.UserID, req.Start, req.End, req.ProjectID, req.TaskID, req.Description)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, createManualResponse{timeEntryResponse: toEntryResponse(entry), Warnings: warnings})
}

type updateEntryRequest struct {
	ProjectID   **uuid.UUID `json:"project_id,omitempty"`
	TaskID      **uuid.UUID `json:"task_id,omitempty"`
	Description *string     `json:"description,omitempty"`
	StartTime   *time.Time  `json:"start_time,omitempty"`
	EndTime     **time.Time `json:"end_time,omitempty"`
}

// Update applies a patch to an existing entry. Authority is checked
// against the entry's owner before the patch is applied: the caller
// must be the owner or a same-company admin.
func (h *TimeHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetCaller(r.Context())

	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetEntry(r.Context(), caller.Scope(), entryID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	owner, err := h.store.GetUser(r.Context(), nil, existing.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !access.IsSelfOrCompanyAdmin(caller, existing.UserID, owner.CompanyID) {
		writeDomainError(w, r, access.ErrForbidden)
		return
	}

	var req updateEntryRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, _, err := h.timer.UpdateEntry(r.Context(), caller.Scope(), entryID, timer.EntryPatch{
		ProjectID:   req.ProjectID,
		TaskID:      req.TaskID,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, toEntryResponse(updated))
}

// Delete removes an entry, subject to the same ownership authority as
// Update.
func (h *TimeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetCaller(r.Context())

	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetEntry(r.Context(), caller.Scope(), entryID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	owner, err := h.store.GetUser(r.Context(), nil, existing.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !access.IsSelfOrCompanyAdmin(caller, existing.UserID, owner.CompanyID) {
		writeDomainError(w, r, access.ErrForbidden)
		return
	}

	if err := h.timer.DeleteEntry(r.Context(), caller.Scope(), entryID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{})
}

// List returns a paged, filtered view of the caller's visible entries.
// A regular_user is always scoped to their own entries regardless of the
// user_id filter; an admin-or-above may filter by any user_id within
// their company scope.
func (h *TimeHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetCaller(r.Context())
	q := r.URL.Query()

	filter := store.EntryFilter{CompanyID: caller.Scope(), Limit: 50}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit <= 200 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}
	if pid, err := uuid.Parse(q.Get("project_id")); err == nil {
		filter.ProjectID = &pid
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filter.To = &to
	}

	if access.RequireRole(caller, "company_admin") != nil {
		filter.UserID = &caller.UserID
	} else if uid, err := uuid.Parse(q.Get("user_id")); err == nil {
		filter.UserID = &uid
	}

	entries, err := h.store.ListEntries(r.Context(), caller.Scope(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]timeEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = toEntryResponse(e)
	}
	helpers.RespondJSON(w, http.StatusOK, out)
}

// ActiveSnapshot returns the HTTP fallback view of currently running
// timers — the same data the Broadcast Layer streams, for clients that
// haven't (yet) opened a websocket.
func (h *TimeHandler) ActiveSnapshot(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetCaller(r.Context())
	helpers.RespondJSON(w, http.StatusOK, h.hub.Snapshot(caller.Scope(), nil))
}
