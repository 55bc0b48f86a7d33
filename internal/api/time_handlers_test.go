package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/caxulex/shiftcore/internal/api"
	"github.com/caxulex/shiftcore/internal/api/middleware"
	"github.com/caxulex/shiftcore/internal/presence"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/caxulex/shiftcore/internal/timer"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTimeHandler(st store.Store, hub *presence.Hub) *api.TimeHandler {
	engine := timer.New(st, hub)
	return api.NewTimeHandler(engine, hub, st)
}

func withCaller(r *http.Request, caller access.Caller) *http.Request {
	return r.WithContext(middleware.WithCaller(r.Context(), caller))
}

func seedCompanyUser(t *testing.T, st store.Store) (uuid.UUID, store.User) {
	t.Helper()
	companyID := uuid.New()
	mem, ok := st.(*store.Memory)
	require.True(t, ok)
	mem.PutCompany(store.Company{ID: companyID, Slug: "acme"})
	user := store.User{ID: uuid.New(), CompanyID: &companyID, Role: store.RoleRegularUser, Name: "Ada", IsActive: true}
	mem.PutUser(user)
	return companyID, user
}

func TestTimeHandler_StartThenStopComputesDuration(t *testing.T) {
	st := store.NewMemory()
	hub := presence.New(st)
	h := newTimeHandler(st, hub)
	companyID, user := seedCompanyUser(t, st)
	caller := access.Caller{UserID: user.ID, CompanyID: &companyID, Role: "regular_user"}

	startReq := httptest.NewRequest(http.MethodPost, "/timers/start", bytes.NewReader([]byte(`{"description":"working"}`)))
	startReq = withCaller(startReq, caller)
	startW := httptest.NewRecorder()
	h.Start(startW, startReq)
	require.Equal(t, http.StatusCreated, startW.Code)

	stopReq := httptest.NewRequest(http.MethodPost, "/timers/stop", nil)
	stopReq = withCaller(stopReq, caller)
	stopW := httptest.NewRecorder()
	h.Stop(stopW, stopReq)
	require.Equal(t, http.StatusOK, stopW.Code)

	var resp struct {
		DurationSeconds *int64 `json:"duration_seconds"`
	}
	require.NoError(t, json.Unmarshal(stopW.Body.Bytes(), &resp))
	require.NotNil(t, resp.DurationSeconds)
	assert.GreaterOrEqual(t, *resp.DurationSeconds, int64(0))
}

func TestTimeHandler_StartTwiceConflicts(t *testing.T) {
	st := store.NewMemory()
	hub := presence.New(st)
	h := newTimeHandler(st, hub)
	companyID, user := seedCompanyUser(t, st)
	caller := access.Caller{UserID: user.ID, CompanyID: &companyID, Role: "regular_user"}

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/timers/start", bytes.NewReader([]byte(`{}`)))
		req = withCaller(req, caller)
		w := httptest.NewRecorder()
		h.Start(w, req)
		if i == 0 {
			require.Equal(t, http.StatusCreated, w.Code)
		} else {
			assert.Equal(t, http.StatusConflict, w.Code)
		}
	}
}

func TestTimeHandler_UpdateRejectsStrangerAsForbidden(t *testing.T) {
	st := store.NewMemory()
	hub := presence.New(st)
	h := newTimeHandler(st, hub)
	companyID, owner := seedCompanyUser(t, st)

	entry := store.TimeEntry{ID: uuid.New(), UserID: owner.ID, StartTime: time.Now().UTC()}
	err := st.WithTx(context.Background(), &companyID, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.InsertEntry(ctx, entry)
		return err
	})
	require.NoError(t, err)

	stranger := access.Caller{UserID: uuid.New(), CompanyID: &companyID, Role: "regular_user"}

	req := httptest.NewRequest(http.MethodPatch, "/timers/"+entry.ID.String(), bytes.NewReader([]byte(`{"description":"changed"}`)))
	req = withCaller(req, stranger)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", entry.ID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.Update(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTimeHandler_DeleteByOwnerSucceeds(t *testing.T) {
	st := store.NewMemory()
	hub := presence.New(st)
	h := newTimeHandler(st, hub)
	companyID, owner := seedCompanyUser(t, st)

	entry := store.TimeEntry{ID: uuid.New(), UserID: owner.ID, StartTime: time.Now().UTC()}
	err := st.WithTx(context.Background(), &companyID, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.InsertEntry(ctx, entry)
		return err
	})
	require.NoError(t, err)

	caller := access.Caller{UserID: owner.ID, CompanyID: &companyID, Role: "regular_user"}
	req := httptest.NewRequest(http.MethodDelete, "/timers/"+entry.ID.String(), nil)
	req = withCaller(req, caller)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", entry.ID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.Delete(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	_, err = st.GetEntry(context.Background(), &companyID, entry.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTimeHandler_List_RegularUserIsScopedToOwnEntries(t *testing.T) {
	st := store.NewMemory()
	hub := presence.New(st)
	h := newTimeHandler(st, hub)
	companyID, user := seedCompanyUser(t, st)

	otherUser := store.User{ID: uuid.New(), CompanyID: &companyID, Role: store.RoleRegularUser}
	st.PutUser(otherUser)

	for _, uid := range []uuid.UUID{user.ID, otherUser.ID} {
		entry := store.TimeEntry{ID: uuid.New(), UserID: uid, StartTime: time.Now().UTC()}
		err := st.WithTx(context.Background(), &companyID, func(ctx context.Context, tx store.Tx) error {
			_, err := tx.InsertEntry(ctx, entry)
			return err
		})
		require.NoError(t, err)
	}

	caller := access.Caller{UserID: user.ID, CompanyID: &companyID, Role: "regular_user"}
	req := httptest.NewRequest(http.MethodGet, "/timers", nil)
	req = withCaller(req, caller)
	w := httptest.NewRecorder()
	h.List(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1, "a regular_user must only see their own entries regardless of other company activity")
	assert.Equal(t, user.ID.String(), entries[0]["user_id"])
}
