package desync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pixil98/go-simlock/internal/entity"
)

// Record is what the tracker knows about one entity.
type Record struct {
	Entity       entity.Id
	LastMutation time.Time
	LastOp       uint64
	Desynced     bool
}

// Tracker decides whether destructive actions on an entity are currently
// safe. It never clears a desync flag on its own; only Resync and
// RecordSnapshot do.
type Tracker struct {
	mu           sync.RWMutex
	records      map[entity.Id]*Record
	cooldown     time.Duration
	policy       Policy
	safeBuilding bool
}

func NewTracker(opts ...TrackerOpt) *Tracker {
	t := &Tracker{
		records:      make(map[entity.Id]*Record),
		cooldown:     DefaultCooldown,
		policy:       PolicyCooldownFirst,
		safeBuilding: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Policy() Policy {
	return t.policy
}

func (t *Tracker) Cooldown() time.Duration {
	return t.cooldown
}

func (t *Tracker) ensure(id entity.Id) *Record {
	r, ok := t.records[id]
	if !ok {
		r = &Record{Entity: id}
		t.records[id] = r
	}
	return r
}

func (t *Tracker) IsDesynced(id entity.Id) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[id]
	return ok && r.Desynced
}

// IsCoolingDown reports whether now falls inside the cooldown window that
// started at the entity's last mutation.
func (t *Tracker) IsCoolingDown(id entity.Id, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.coolingLocked(id, now)
}

func (t *Tracker) coolingLocked(id entity.Id, now time.Time) bool {
	r, ok := t.records[id]
	if !ok || r.LastMutation.IsZero() {
		return false
	}
	return now.Sub(r.LastMutation) < t.cooldown
}

// Guard answers whether a destructive action on id may proceed at now. The
// answer is only good for the instant it was asked; callers re-check right
// before committing the action.
func (t *Tracker) Guard(id entity.Id, now time.Time) Verdict {
	t.mu.RLock()
	cooling := t.coolingLocked(id, now)
	r, ok := t.records[id]
	desynced := ok && r.Desynced && t.safeBuilding
	t.mu.RUnlock()

	switch {
	case !cooling && !desynced:
		return Allow()
	case cooling && !desynced:
		return Block(ReasonRecentUpdate)
	case desynced && !cooling:
		return Block(ReasonDesynced)
	}

	switch t.policy {
	case PolicyDesyncFirst:
		return Block(ReasonDesynced)
	case PolicyEitherBlocks:
		return Block(ReasonRecentUpdate, ReasonDesynced)
	default:
		return Block(ReasonRecentUpdate)
	}
}

// RecordMutation restarts the cooldown window for id.
func (t *Tracker) RecordMutation(id entity.Id, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensure(id).LastMutation = now
}

// RecordSnapshot applies a fresh authoritative snapshot of id taken at
// operation opId. It restarts the cooldown and clears any desync.
func (t *Tracker) RecordSnapshot(id entity.Id, opId uint64, now time.Time) {
	t.mu.Lock()
	r := t.ensure(id)
	wasDesynced := r.Desynced
	r.LastMutation = now
	r.LastOp = opId
	r.Desynced = false
	t.mu.Unlock()

	if wasDesynced {
		slog.Info("entity resynchronized from snapshot", "entity", id, "op", opId)
	}
}

// ObserveOperation records an authoritative operation on id. Operation ids
// are expected to increase by one; a skipped or repeated id marks the entity
// desynced. It reports whether opId was the expected one.
func (t *Tracker) ObserveOperation(id entity.Id, opId uint64, now time.Time) bool {
	t.mu.Lock()
	r, known := t.records[id]
	if !known {
		r = t.ensure(id)
	}
	expected := r.LastOp + 1
	inOrder := !known || r.LastOp == 0 || opId == expected
	if opId > r.LastOp {
		r.LastOp = opId
	}
	r.LastMutation = now
	if !inOrder {
		r.Desynced = true
	}
	t.mu.Unlock()

	if !inOrder {
		slog.Warn("entity desync detected", "entity", id, "expected", expected, "got", opId)
	}
	return inOrder
}

// Resync clears the desync flag after the entity was brought back in line
// with the authoritative state at opId.
func (t *Tracker) Resync(id entity.Id, opId uint64) {
	t.mu.Lock()
	r := t.ensure(id)
	wasDesynced := r.Desynced
	r.Desynced = false
	r.LastOp = opId
	t.mu.Unlock()

	if wasDesynced {
		slog.Info("entity resynchronized", "entity", id, "op", opId)
	}
}

// MarkDesynced flags id as diverged from the authoritative state.
func (t *Tracker) MarkDesynced(id entity.Id) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.ensure(id)
	if !r.Desynced {
		slog.Warn("entity marked desynced", "entity", id)
	}
	r.Desynced = true
}

// Retire drops the record of a destroyed entity.
func (t *Tracker) Retire(id entity.Id) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, id)
}

// Record returns a copy of the record for id.
func (t *Tracker) Record(id entity.Id) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}
