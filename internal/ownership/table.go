package ownership

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pixil98/go-simlock/internal/entity"
)

// Entry is a lock table row. An entry without a holder is free.
type Entry struct {
	Entity entity.Id     `json:"entity"`
	Holder ParticipantId `json:"holder,omitempty"`
	// Grant is the request that won the current hold.
	Grant      RequestId `json:"grant,omitempty"`
	Kind       Kind      `json:"kind"`
	AcquiredAt time.Time `json:"acquired_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (e Entry) Held() bool {
	return e.Holder != ""
}

// Table is the authority's record of who holds which entity. All mutations
// happen under a single mutex, and change observers run inside that critical
// section so they see changes in the order they were applied.
type Table struct {
	mu        sync.Mutex
	entries   map[entity.Id]*Entry
	byHolder  map[ParticipantId]map[entity.Id]struct{}
	seq       uint64
	observers []func(StateChange)
}

func NewTable() *Table {
	return &Table{
		entries:  make(map[entity.Id]*Entry),
		byHolder: make(map[ParticipantId]map[entity.Id]struct{}),
	}
}

// OnChange registers fn to receive every state transition. fn must not call
// back into the table.
func (t *Table) OnChange(fn func(StateChange)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// TryAcquire answers a lock request. Exclusive requests are granted only when
// the entity has no holder and are recorded on success. Transient requests
// never touch the table.
func (t *Table) TryAcquire(id entity.Id, kind Kind, p ParticipantId, now time.Time) Outcome {
	return t.TryAcquireGrant(id, kind, p, "", now)
}

// TryAcquireGrant is TryAcquire for a specific request. A granted Exclusive
// hold remembers grant so later releases can be matched against it.
func (t *Table) TryAcquireGrant(id entity.Id, kind Kind, p ParticipantId, grant RequestId, now time.Time) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[id]
	held := e != nil && e.Held()

	if kind == KindTransient {
		return Outcome(!held)
	}
	if held || p == "" {
		return Denied
	}

	if e == nil {
		e = &Entry{Entity: id}
		t.entries[id] = e
	}
	e.Holder = p
	e.Grant = grant
	e.Kind = KindExclusive
	e.AcquiredAt = now
	e.UpdatedAt = now

	holds, ok := t.byHolder[p]
	if !ok {
		holds = make(map[entity.Id]struct{})
		t.byHolder[p] = holds
	}
	holds[id] = struct{}{}

	t.emitLocked(StateChange{Entity: id, Holder: p, Grant: grant, Held: true, Cause: CauseAcquire, At: now})
	return Granted
}

// Release frees id if p is its holder. Any other caller gets ErrNotHolder and
// the entry is left untouched.
func (t *Table) Release(id entity.Id, p ParticipantId, now time.Time) error {
	return t.ReleaseGrant(id, p, "", now)
}

// ReleaseGrant is Release bound to the request that won the hold. A release
// naming an older grant is refused, so a stale release from an abandoned
// request cannot free the lock a newer request holds. An empty grant matches
// any hold by p.
func (t *Table) ReleaseGrant(id entity.Id, p ParticipantId, grant RequestId, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[id]
	if e == nil || e.Holder != p || p == "" {
		return ErrNotHolder
	}
	if grant != "" && e.Grant != grant {
		return fmt.Errorf("%w: release for %s does not match current grant", ErrNotHolder, grant)
	}

	t.releaseLocked(e, now, CauseRelease)
	return nil
}

// ReleaseAll frees every lock held by p and returns the affected entities.
func (t *Table) ReleaseAll(p ParticipantId, now time.Time) []entity.Id {
	t.mu.Lock()
	defer t.mu.Unlock()

	var released []entity.Id
	for id := range t.byHolder[p] {
		released = append(released, id)
	}
	slices.Sort(released)

	for _, id := range released {
		e := t.entries[id]
		if e == nil || e.Holder != p {
			panic(fmt.Sprintf("%v: holder index lists %s for %s but entry disagrees", ErrInvariantViolation, id, p))
		}
		t.releaseLocked(e, now, CauseDisconnect)
	}
	return released
}

// Retire drops the entry for a destroyed entity, releasing it first if held.
func (t *Table) Retire(id entity.Id, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[id]
	if e == nil {
		return
	}
	if e.Held() {
		t.releaseLocked(e, now, CauseRetire)
	}
	delete(t.entries, id)
}

// Sweep evicts free entries not touched for longer than idle.
func (t *Table) Sweep(now time.Time, idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-idle)
	evicted := 0
	for id, e := range t.entries {
		if !e.Held() && e.UpdatedAt.Before(cutoff) {
			delete(t.entries, id)
			evicted++
		}
	}
	return evicted
}

func (t *Table) releaseLocked(e *Entry, now time.Time, cause Cause) {
	holder, grant := e.Holder, e.Grant
	holds := t.byHolder[holder]
	if _, ok := holds[e.Entity]; !ok {
		panic(fmt.Sprintf("%v: %s holds %s but is missing from the holder index", ErrInvariantViolation, holder, e.Entity))
	}
	delete(holds, e.Entity)
	if len(holds) == 0 {
		delete(t.byHolder, holder)
	}

	e.Holder = ""
	e.Grant = ""
	e.UpdatedAt = now

	t.emitLocked(StateChange{Entity: e.Entity, Holder: holder, Grant: grant, Held: false, Cause: cause, At: now})
}

func (t *Table) emitLocked(sc StateChange) {
	t.seq++
	sc.Seq = t.seq
	for _, fn := range t.observers {
		fn(sc)
	}
}

// Holder returns the current Exclusive holder of id.
func (t *Table) Holder(id entity.Id) (ParticipantId, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[id]
	if e == nil || !e.Held() {
		return "", false
	}
	return e.Holder, true
}

// Entry returns a copy of the row for id.
func (t *Table) Entry(id entity.Id) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[id]
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// HeldBy lists the entities p currently holds, sorted.
func (t *Table) HeldBy(p ParticipantId) []entity.Id {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []entity.Id
	for id := range t.byHolder[p] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Snapshot returns every held entry, sorted by entity.
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for _, e := range t.entries {
		if e.Held() {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.Entity < b.Entity:
			return -1
		case a.Entity > b.Entity:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of entries, held or free.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
