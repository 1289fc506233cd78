package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mlourenco/refbox/internal/bus"
	"github.com/mlourenco/refbox/internal/fault"
)

// Status is the aggregate sync status derived from the ledger.
type Status string

const (
	Offline Status = "offline"
	Syncing Status = "syncing"
	Error   Status = "error"
	Idle    Status = "idle"
)

// Kind is the kind of a tracked write.
type Kind string

const (
	Create Kind = "create"
	Update Kind = "update"
	Delete Kind = "delete"
)

// Mutation is one optimistic write tracked by the ledger. A mutation lives
// in exactly one of the pending or failed collections at any time.
type Mutation struct {
	ID          int64
	Kind        Kind
	Entity      string
	Description string
	Timestamp   time.Time
	RetryCount  int
	Err         string
}

// Meta describes a tracked operation for Run.
type Meta struct {
	Kind        Kind
	Entity      string
	Description string
}

// StatusChange is the payload for sync.status_changed events.
type StatusChange struct {
	From Status
	To   Status
}

// Derive computes the aggregate status from the current ledger state. It is
// recomputed on every observation rather than patched incrementally.
func Derive(online bool, pendingCount, failedCount int) Status {
	switch {
	case !online:
		return Offline
	case pendingCount > 0:
		return Syncing
	case failedCount > 0:
		return Error
	default:
		return Idle
	}
}

// Tracker is an in-memory ledger of pending and failed optimistic writes.
// It is constructed explicitly and injected; state is lost when the process
// exits. Retry is single-shot and caller-driven.
type Tracker struct {
	mu         sync.RWMutex
	online     bool
	pending    map[int64]*Mutation
	failed     map[int64]*Mutation
	nextID     int64
	lastSyncAt time.Time
	bus        *bus.Bus
}

// New creates a tracker. The reachability signal defaults to online; a
// missing signal never degrades the status on its own.
func New(b *bus.Bus) *Tracker {
	return &Tracker{
		online:  true,
		pending: make(map[int64]*Mutation),
		failed:  make(map[int64]*Mutation),
		bus:     b,
	}
}

// Status returns the current aggregate status.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Derive(t.online, len(t.pending), len(t.failed))
}

// LastSyncAt returns the time of the last successful tracked write, zero if none.
func (t *Tracker) LastSyncAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSyncAt
}

// Pending returns a snapshot of pending mutations ordered by id.
func (t *Tracker) Pending() []Mutation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return snapshot(t.pending)
}

// Failed returns a snapshot of failed mutations ordered by id.
func (t *Tracker) Failed() []Mutation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return snapshot(t.failed)
}

// SetOnline updates the reachability flag.
func (t *Tracker) SetOnline(online bool) {
	t.mu.Lock()
	before := t.statusLocked()
	t.online = online
	after := t.statusLocked()
	t.mu.Unlock()
	t.publishStatusChange(before, after)
}

// AddPending appends a new pending mutation and returns its id.
func (t *Tracker) AddPending(kind Kind, entity, description string) int64 {
	t.mu.Lock()
	before := t.statusLocked()
	t.nextID++
	m := &Mutation{
		ID:          t.nextID,
		Kind:        kind,
		Entity:      entity,
		Description: description,
		Timestamp:   time.Now(),
	}
	t.pending[m.ID] = m
	after := t.statusLocked()
	snap := *m
	t.mu.Unlock()

	t.publish(bus.KindMutationPending, snap)
	t.publishStatusChange(before, after)
	return m.ID
}

// MarkSuccess removes a pending mutation and records the sync time.
func (t *Tracker) MarkSuccess(id int64) error {
	t.mu.Lock()
	m, ok := t.pending[id]
	if !ok {
		t.mu.Unlock()
		return fault.New(fault.NotFound, "mutation %d is not pending", id)
	}
	before := t.statusLocked()
	delete(t.pending, id)
	t.lastSyncAt = time.Now()
	after := t.statusLocked()
	snap := *m
	t.mu.Unlock()

	t.publish(bus.KindMutationResolved, snap)
	t.publishStatusChange(before, after)
	return nil
}

// MarkFailed moves a pending mutation to the failed collection, incrementing
// its retry count and recording the error.
func (t *Tracker) MarkFailed(id int64, opErr error) error {
	t.mu.Lock()
	m, ok := t.pending[id]
	if !ok {
		t.mu.Unlock()
		return fault.New(fault.NotFound, "mutation %d is not pending", id)
	}
	before := t.statusLocked()
	delete(t.pending, id)
	m.RetryCount++
	if opErr != nil {
		m.Err = opErr.Error()
	}
	t.failed[id] = m
	after := t.statusLocked()
	snap := *m
	t.mu.Unlock()

	t.publish(bus.KindMutationFailed, snap)
	t.publishStatusChange(before, after)
	return nil
}

// Retry moves a failed mutation back to pending with its error cleared.
// It does not re-execute the original operation; that is the caller's
// responsibility once it re-observes the pending entry.
func (t *Tracker) Retry(id int64) error {
	t.mu.Lock()
	m, ok := t.failed[id]
	if !ok {
		t.mu.Unlock()
		return fault.New(fault.NotFound, "mutation %d is not failed", id)
	}
	before := t.statusLocked()
	delete(t.failed, id)
	m.Err = ""
	t.pending[id] = m
	after := t.statusLocked()
	snap := *m
	t.mu.Unlock()

	t.publish(bus.KindMutationPending, snap)
	t.publishStatusChange(before, after)
	return nil
}

// ClearFailed discards a failed mutation without retrying it.
func (t *Tracker) ClearFailed(id int64) error {
	t.mu.Lock()
	m, ok := t.failed[id]
	if !ok {
		t.mu.Unlock()
		return fault.New(fault.NotFound, "mutation %d is not failed", id)
	}
	before := t.statusLocked()
	delete(t.failed, id)
	after := t.statusLocked()
	snap := *m
	t.mu.Unlock()

	t.publish(bus.KindMutationResolved, snap)
	t.publishStatusChange(before, after)
	return nil
}

// ClearAllFailed discards all failed mutations.
func (t *Tracker) ClearAllFailed() {
	t.mu.Lock()
	before := t.statusLocked()
	cleared := snapshot(t.failed)
	t.failed = make(map[int64]*Mutation)
	after := t.statusLocked()
	t.mu.Unlock()

	for _, m := range cleared {
		t.publish(bus.KindMutationResolved, m)
	}
	t.publishStatusChange(before, after)
}

// Run registers op as a pending mutation, executes it, and records the
// outcome. The operation's error is returned to the caller unchanged after
// the ledger is updated.
func (t *Tracker) Run(ctx context.Context, meta Meta, op func(context.Context) error) error {
	id := t.AddPending(meta.Kind, meta.Entity, meta.Description)
	if err := op(ctx); err != nil {
		_ = t.MarkFailed(id, err)
		return err
	}
	_ = t.MarkSuccess(id)
	return nil
}

func (t *Tracker) statusLocked() Status {
	return Derive(t.online, len(t.pending), len(t.failed))
}

func (t *Tracker) publish(kind string, m Mutation) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: m})
}

func (t *Tracker) publishStatusChange(from, to Status) {
	if t.bus == nil || from == to {
		return
	}
	t.bus.Publish(bus.Event{
		Kind:      bus.KindSyncStatusChanged,
		Timestamp: time.Now(),
		Payload:   StatusChange{From: from, To: to},
	})
}

func snapshot(m map[int64]*Mutation) []Mutation {
	out := make([]Mutation, 0, len(m))
	for _, v := range m {
		out = append(out, *v)
	}
	// Ids are monotonic, so ordering by id yields insertion order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
