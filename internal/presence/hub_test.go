package presence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/caxulex/shiftcore/internal/presence"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []presence.Event
}

func (p *recordingPublisher) Publish(e presence.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestHub_UpsertThenSnapshot(t *testing.T) {
	hub := presence.New(store.NewMemory())
	pub := &recordingPublisher{}
	hub.Attach(pub)

	companyID := uuid.New()
	userID := uuid.New()
	info := presence.ActiveTimerInfo{UserID: userID, CompanyID: companyID, StartTime: time.Now()}

	hub.Upsert(info, presence.EventTimerStarted)

	snap := hub.Snapshot(&companyID, nil)
	require.Len(t, snap, 1)
	assert.Equal(t, userID, snap[0].UserID)
	assert.Equal(t, 1, pub.count())
}

func TestHub_SnapshotScopedByCompany(t *testing.T) {
	hub := presence.New(store.NewMemory())
	companyA := uuid.New()
	companyB := uuid.New()

	hub.Upsert(presence.ActiveTimerInfo{UserID: uuid.New(), CompanyID: companyA}, presence.EventTimerStarted)
	hub.Upsert(presence.ActiveTimerInfo{UserID: uuid.New(), CompanyID: companyB}, presence.EventTimerStarted)

	snapA := hub.Snapshot(&companyA, nil)
	require.Len(t, snapA, 1)
	assert.Equal(t, companyA, snapA[0].CompanyID)

	snapAll := hub.Snapshot(nil, nil)
	assert.Len(t, snapAll, 2)
}

func TestHub_SnapshotScopedByTeam(t *testing.T) {
	hub := presence.New(store.NewMemory())
	companyID := uuid.New()
	teamMemberID := uuid.New()
	otherUserID := uuid.New()

	hub.Upsert(presence.ActiveTimerInfo{UserID: teamMemberID, CompanyID: companyID}, presence.EventTimerStarted)
	hub.Upsert(presence.ActiveTimerInfo{UserID: otherUserID, CompanyID: companyID}, presence.EventTimerStarted)

	teamScope := map[uuid.UUID]struct{}{teamMemberID: {}}
	snap := hub.Snapshot(&companyID, teamScope)
	require.Len(t, snap, 1)
	assert.Equal(t, teamMemberID, snap[0].UserID)
}

func TestHub_RemoveClearsActiveTimerAndPublishesStopped(t *testing.T) {
	hub := presence.New(store.NewMemory())
	pub := &recordingPublisher{}
	hub.Attach(pub)

	companyID := uuid.New()
	userID := uuid.New()
	info := presence.ActiveTimerInfo{UserID: userID, CompanyID: companyID}
	hub.Upsert(info, presence.EventTimerStarted)

	hub.Remove(userID, info)

	assert.Empty(t, hub.Snapshot(&companyID, nil))
	require.Equal(t, 2, pub.count())
}

func TestHub_Reload_RebuildsFromStore(t *testing.T) {
	st := store.NewMemory()
	companyID := uuid.New()
	st.PutCompany(store.Company{ID: companyID, Slug: "acme"})
	user := store.User{ID: uuid.New(), CompanyID: &companyID, Name: "Ada", Role: store.RoleRegularUser}
	st.PutUser(user)

	entry := store.TimeEntry{ID: uuid.New(), UserID: user.ID, StartTime: time.Now().UTC()}
	err := st.WithTx(context.Background(), &companyID, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.InsertEntry(ctx, entry)
		return err
	})
	require.NoError(t, err)

	hub := presence.New(st)
	// Before Reload, the hub has no knowledge of the entry the store
	// already holds.
	assert.Empty(t, hub.Snapshot(nil, nil))

	require.NoError(t, hub.Reload(context.Background()))
	snap := hub.Snapshot(nil, nil)
	require.Len(t, snap, 1)
	assert.Equal(t, user.ID, snap[0].UserID)
	assert.Equal(t, "Ada", snap[0].UserName)
}
