package entity

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-simlock/internal/storage"
)

// RetireFunc is called after an entity has been removed from the directory.
type RetireFunc func(Id)

type DirectoryOpt func(*Directory)

// WithRetireHook registers fn to run whenever an entity is retired.
func WithRetireHook(fn RetireFunc) DirectoryOpt {
	return func(d *Directory) {
		d.hooks = append(d.hooks, fn)
	}
}

// Directory maps entity ids to their live records and parent/child layout.
type Directory struct {
	mu       sync.RWMutex
	store    storage.Storer[*Entity]
	entities map[Id]*Entity
	children map[Id][]Id
	retired  map[Id]struct{}
	hooks    []RetireFunc
}

// NewDirectory indexes every entity held by st. Entities whose parent is
// unknown are rejected.
func NewDirectory(st storage.Storer[*Entity], opts ...DirectoryOpt) (*Directory, error) {
	d := &Directory{
		store:    st,
		entities: make(map[Id]*Entity),
		children: make(map[Id][]Id),
		retired:  make(map[Id]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	for id, e := range st.GetAll() {
		d.entities[Id(id)] = e
	}

	el := errors.NewErrorList()
	for id, e := range d.entities {
		if e.Parent.IsZero() {
			continue
		}
		if _, ok := d.entities[e.Parent]; !ok {
			el.Add(fmt.Errorf("entity %q: parent %q not found", id, e.Parent))
			continue
		}
		d.children[e.Parent] = append(d.children[e.Parent], id)
	}
	if err := el.Err(); err != nil {
		return nil, err
	}

	for parent := range d.children {
		slices.Sort(d.children[parent])
	}

	return d, nil
}

// Lookup returns the entity for id.
func (d *Directory) Lookup(id Id) (*Entity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entities[id]
	return e, ok
}

// Children returns the direct children of id, optionally restricted to kinds.
func (d *Directory) Children(id Id, kinds ...Kind) []Id {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Id
	for _, child := range d.children[id] {
		if len(kinds) > 0 && !slices.Contains(kinds, d.entities[child].Kind) {
			continue
		}
		out = append(out, child)
	}
	return out
}

// Add registers a new entity and persists it.
func (d *Directory) Add(id Id, e *Entity) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validating %q: %w", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.retired[id]; ok {
		return fmt.Errorf("%w: %s", ErrRetired, id)
	}
	if _, ok := d.entities[id]; ok {
		return fmt.Errorf("%w: %s", ErrExists, id)
	}
	if !e.Parent.IsZero() {
		if _, ok := d.entities[e.Parent]; !ok {
			return fmt.Errorf("parent %q: %w", e.Parent, ErrNotFound)
		}
	}

	if err := d.store.Save(id.String(), e); err != nil {
		return fmt.Errorf("saving %q: %w", id, err)
	}

	d.entities[id] = e
	if !e.Parent.IsZero() {
		d.children[e.Parent] = append(d.children[e.Parent], id)
	}
	return nil
}

// Retire removes id and all of its descendants. Retired ids can never be
// added again. Hooks run once per retired id, children first.
func (d *Directory) Retire(id Id) error {
	d.mu.Lock()
	if _, ok := d.entities[id]; !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var removed []Id
	d.retireLocked(id, &removed)
	hooks := d.hooks
	d.mu.Unlock()

	for _, r := range removed {
		if err := d.store.Delete(r.String()); err != nil {
			slog.Warn("deleting retired entity", "entity", r, "error", err)
		}
		for _, fn := range hooks {
			fn(r)
		}
	}
	return nil
}

func (d *Directory) retireLocked(id Id, removed *[]Id) {
	for _, child := range slices.Clone(d.children[id]) {
		d.retireLocked(child, removed)
	}

	e := d.entities[id]
	if !e.Parent.IsZero() {
		d.children[e.Parent] = slices.DeleteFunc(d.children[e.Parent], func(c Id) bool { return c == id })
	}
	delete(d.children, id)
	delete(d.entities, id)
	d.retired[id] = struct{}{}
	*removed = append(*removed, id)
}

// IsRetired reports whether id was retired during this directory's lifetime.
func (d *Directory) IsRetired(id Id) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.retired[id]
	return ok
}
