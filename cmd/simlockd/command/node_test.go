package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/messaging"
	"github.com/pixil98/go-simlock/internal/ownership"
	"github.com/pixil98/go-testutil"
)

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time {
	return f.now
}

func writeEntity(t *testing.T, dir, id, body string) {
	t.Helper()
	data := `{"version": 1, "id": "` + id + `", "spec": ` + body + `}`
	if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(data), 0644); err != nil {
		t.Fatalf("writing %s: %v", id, err)
	}
}

func newTestNode(t *testing.T) *authorityNode {
	t.Helper()

	dir := t.TempDir()
	writeEntity(t, dir, "base-7", `{"kind": "base"}`)
	writeEntity(t, dir, "chair-1", `{"kind": "seat", "parent": "base-7"}`)

	cfg := &Config{Desync: DesyncConfig{Cooldown: "5s"}, Entities: EntitiesConfig{Path: dir}}
	n := newAuthorityNode(cfg, nil)
	n.clock = fixedClock{now: time.Date(2026, 1, 1, 0, 0, 100, 0, time.UTC)}

	d, err := cfg.Entities.BuildDirectory(entity.WithRetireHook(n.retire))
	if err != nil {
		t.Fatalf("building directory: %v", err)
	}
	n.directory = d
	return n
}

func TestAuthorityNode_ApplyMutation(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t)
	now := n.clock.Now()

	n.applyMutation(ctx, messaging.MutationMessage{Entity: "base-7", Kind: messaging.MutationChange})
	testutil.AssertEqual(t, "cooling", n.tracker.IsCoolingDown("base-7", now.Add(2*time.Second)), true)

	n.applyMutation(ctx, messaging.MutationMessage{Entity: "base-7", Kind: messaging.MutationChange, Op: 1})
	n.applyMutation(ctx, messaging.MutationMessage{Entity: "base-7", Kind: messaging.MutationChange, Op: 3})
	testutil.AssertEqual(t, "desynced", n.tracker.IsDesynced("base-7"), true)

	n.applyMutation(ctx, messaging.MutationMessage{Entity: "base-7", Kind: messaging.MutationResync, Op: 3})
	testutil.AssertEqual(t, "resynced", n.tracker.IsDesynced("base-7"), false)

	n.tracker.MarkDesynced("base-7")
	n.applyMutation(ctx, messaging.MutationMessage{Entity: "base-7", Kind: messaging.MutationSnapshot, Op: 9})
	testutil.AssertEqual(t, "snapshot", n.tracker.IsDesynced("base-7"), false)
}

func TestAuthorityNode_RetireReleasesLocks(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t)

	coord, err := ownership.NewAuthority("host", nil, nil)
	if err != nil {
		t.Fatalf("creating coordinator: %v", err)
	}
	n.coordinator = coord

	_, _ = coord.RequestLock(ownership.LockRequest{Entity: "chair-1", Kind: ownership.KindExclusive, Participant: "alice"})
	n.tracker.MarkDesynced("base-7")

	n.applyMutation(ctx, messaging.MutationMessage{Entity: "base-7", Kind: messaging.MutationRetire})

	_, held := coord.Table().Holder("chair-1")
	testutil.AssertEqual(t, "chair released", held, false)
	testutil.AssertEqual(t, "tracker forgot base", n.tracker.Len(), 0)
	testutil.AssertEqual(t, "base retired", n.directory.IsRetired("base-7"), true)
	testutil.AssertEqual(t, "chair retired", n.directory.IsRetired("chair-1"), true)
}

func TestAuthorityNode_ApplyMutationKinds(t *testing.T) {
	tests := map[string]struct {
		mutations   []messaging.MutationMessage
		entity      entity.Id
		expDesynced bool
		expExists   bool
		expRetired  bool
	}{
		"desynced report": {
			mutations: []messaging.MutationMessage{
				{Entity: "base-7", Kind: messaging.MutationDesynced},
			},
			entity:      "base-7",
			expDesynced: true,
			expExists:   true,
		},
		"create seat": {
			mutations: []messaging.MutationMessage{
				{Entity: "chair-2", Kind: messaging.MutationCreate, Created: &entity.Entity{Kind: entity.KindSeat, Parent: "base-7"}},
			},
			entity:    "chair-2",
			expExists: true,
		},
		"create under unknown parent": {
			mutations: []messaging.MutationMessage{
				{Entity: "chair-2", Kind: messaging.MutationCreate, Created: &entity.Entity{Kind: entity.KindSeat, Parent: "base-9"}},
			},
			entity: "chair-2",
		},
		"create without body": {
			mutations: []messaging.MutationMessage{
				{Entity: "chair-2", Kind: messaging.MutationCreate},
			},
			entity: "chair-2",
		},
		"retired entity ignored": {
			mutations: []messaging.MutationMessage{
				{Entity: "chair-1", Kind: messaging.MutationRetire},
				{Entity: "chair-1", Kind: messaging.MutationDesynced},
			},
			entity:     "chair-1",
			expRetired: true,
		},
		"retired id not recreated": {
			mutations: []messaging.MutationMessage{
				{Entity: "chair-1", Kind: messaging.MutationRetire},
				{Entity: "chair-1", Kind: messaging.MutationCreate, Created: &entity.Entity{Kind: entity.KindSeat, Parent: "base-7"}},
			},
			entity:     "chair-1",
			expRetired: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			n := newTestNode(t)

			for _, m := range tt.mutations {
				n.applyMutation(ctx, m)
			}

			_, exists := n.directory.Lookup(tt.entity)
			testutil.AssertEqual(t, "exists", exists, tt.expExists)
			testutil.AssertEqual(t, "desynced", n.tracker.IsDesynced(tt.entity), tt.expDesynced)
			testutil.AssertEqual(t, "retired", n.directory.IsRetired(tt.entity), tt.expRetired)
		})
	}
}

func TestAuthorityNode_CreatedSeatJoinsLayout(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t)

	id := entity.NewId()
	n.applyMutation(ctx, messaging.MutationMessage{Entity: id, Kind: messaging.MutationCreate, Created: &entity.Entity{Kind: entity.KindSeat, Parent: "base-7"}})

	testutil.AssertEqual(t, "children", n.directory.Children("base-7", entity.KindSeat), []entity.Id{"chair-1", id})
}
