// Package presence holds the authoritative in-memory map of active
// timers. It is a derived cache: the Store remains the source of truth,
// and Reload rebuilds the map from the Store on startup.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/caxulex/shiftcore/internal/store"
	"github.com/google/uuid"
)

// ActiveTimerInfo is the denormalized view of a running timer the hub
// holds and publishes.
type ActiveTimerInfo struct {
	EntryID     uuid.UUID
	UserID      uuid.UUID
	CompanyID   uuid.UUID
	UserName    string
	ProjectID   *uuid.UUID
	ProjectName string
	TaskID      *uuid.UUID
	TaskName    string
	Description string
	StartTime   time.Time
}

// EventType names the kind of change published to subscribers.
type EventType string

const (
	EventTimerStarted    EventType = "timer.started"
	EventTimerStopped    EventType = "timer.stopped"
	EventEntryCreated    EventType = "timeentry.created"
	EventEntryUpdated    EventType = "timeentry.updated"
	EventEntryDeleted    EventType = "timeentry.deleted"
)

// Event is what the Hub hands to its Publisher on every mutation. Seq is
// the hub's monotonic counter, giving subscribers a way to detect gaps
// without the Broadcast Layer promising cross-connection ordering.
type Event struct {
	Type      EventType
	Seq       uint64
	CompanyID uuid.UUID
	Info      ActiveTimerInfo
}

// Publisher receives every Hub mutation for fan-out. internal/realtime
// implements this; Hub depends only on the interface to avoid a
// dependency on the websocket transport.
type Publisher interface {
	Publish(Event)
}

// noopPublisher discards events, used when a Hub is constructed without
// a Broadcast Layer attached yet (e.g. early in startup, or in tests).
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Hub is the single in-process structure owned by the service instance.
// All mutations are serialized by mu (single-writer discipline); reads
// take the same lock rather than risk observing a partially-written
// ActiveTimerInfo.
type Hub struct {
	mu        sync.Mutex
	active    map[uuid.UUID]ActiveTimerInfo
	seq       uint64
	publisher Publisher
	store     store.Store
}

// New constructs an empty Hub. Call Reload before serving traffic so the
// map reflects the Store's current running entries.
func New(st store.Store) *Hub {
	return &Hub{active: make(map[uuid.UUID]ActiveTimerInfo), publisher: noopPublisher{}, store: st}
}

// Attach wires a Publisher (the Broadcast Layer) after construction,
// breaking the init-order cycle between Hub and the layer that consumes
// its events.
func (h *Hub) Attach(p Publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publisher = p
}

func (h *Hub) nextSeq() uint64 {
	h.seq++
	return h.seq
}

// Upsert records info as the active timer for its user and publishes
// eventType.
func (h *Hub) Upsert(info ActiveTimerInfo, eventType EventType) {
	h.mu.Lock()
	h.active[info.UserID] = info
	seq := h.nextSeq()
	pub := h.publisher
	h.mu.Unlock()

	pub.Publish(Event{Type: eventType, Seq: seq, CompanyID: info.CompanyID, Info: info})
}

// Remove clears the active timer for userID and publishes
// timer.stopped, carrying the last known info for the event payload.
func (h *Hub) Remove(userID uuid.UUID, last ActiveTimerInfo) {
	h.mu.Lock()
	delete(h.active, userID)
	seq := h.nextSeq()
	pub := h.publisher
	h.mu.Unlock()

	pub.Publish(Event{Type: EventTimerStopped, Seq: seq, CompanyID: last.CompanyID, Info: last})
}

// Snapshot returns the active timers visible to companyScope (nil means
// every company), optionally further narrowed by teamUserIDs — the set
// of user IDs belonging to the team being queried, used for team-lead
// scoped snapshots.
func (h *Hub) Snapshot(companyScope *uuid.UUID, teamUserIDs map[uuid.UUID]struct{}) []ActiveTimerInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ActiveTimerInfo, 0, len(h.active))
	for _, info := range h.active {
		if companyScope != nil && info.CompanyID != *companyScope {
			continue
		}
		if teamUserIDs != nil {
			if _, ok := teamUserIDs[info.UserID]; !ok {
				continue
			}
		}
		out = append(out, info)
	}
	return out
}

// Reload scans the Store for every entry with end_time = null and
// rebuilds the active map in one pass, bounding the divergence the spec
// allows between the Store's running entries and the Hub's view to the
// reload cadence plus the in-flight mutation window.
func (h *Hub) Reload(ctx context.Context) error {
	views, err := h.store.ListRunningEntries(ctx, nil)
	if err != nil {
		return err
	}

	rebuilt := make(map[uuid.UUID]ActiveTimerInfo, len(views))
	for _, v := range views {
		rebuilt[v.Entry.UserID] = ActiveTimerInfo{
			EntryID:     v.Entry.ID,
			UserID:      v.Entry.UserID,
			CompanyID:   v.CompanyID,
			UserName:    v.UserName,
			ProjectID:   v.Entry.ProjectID,
			ProjectName: v.ProjectName,
			TaskID:      v.Entry.TaskID,
			TaskName:    v.TaskName,
			Description: v.Entry.Description,
			StartTime:   v.Entry.StartTime,
		}
	}

	h.mu.Lock()
	h.active = rebuilt
	h.mu.Unlock()
	return nil
}
