package construct

import (
	"errors"
	"testing"
	"time"

	"github.com/pixil98/go-simlock/internal/desync"
	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/ownership"
	"github.com/pixil98/go-testutil"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

// fakeLayout is a fixed entity tree.
type fakeLayout map[entity.Id]*entity.Entity

func (l fakeLayout) Lookup(id entity.Id) (*entity.Entity, bool) {
	e, ok := l[id]
	return e, ok
}

func (l fakeLayout) Children(id entity.Id, kinds ...entity.Kind) []entity.Id {
	var out []entity.Id
	for cid, e := range l {
		if e.Parent != id {
			continue
		}
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, cid)
			}
		}
	}
	return out
}

// deferredLocker holds probes until the test answers them.
type deferredLocker struct {
	requests []ownership.LockRequest
	err      error
}

func (d *deferredLocker) RequestLock(req ownership.LockRequest) (*ownership.Ticket, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.requests = append(d.requests, req)
	return nil, nil
}

func (d *deferredLocker) answer(acquired bool, reason ownership.Reason) {
	for _, req := range d.requests {
		req.Callback(ownership.Result{Entity: req.Entity, Kind: req.Kind, Acquired: acquired, Reason: reason, Context: req.Context})
	}
	d.requests = nil
}

func testLayout() fakeLayout {
	return fakeLayout{
		"base-7":   {Kind: entity.KindBase},
		"bench-1":  {Kind: entity.KindFurniture, Parent: "base-7"},
		"side-a":   {Kind: entity.KindSeat, Parent: "bench-1"},
		"side-b":   {Kind: entity.KindSeat, Parent: "bench-1"},
		"chair-1":  {Kind: entity.KindSeat, Parent: "base-7"},
		"bed-1":    {Kind: entity.KindBed, Parent: "base-7"},
		"locker-9": {Kind: entity.KindContainer, Parent: "base-7"},
		"outpost":  {Kind: entity.KindFurniture},
	}
}

func TestGuard_Check(t *testing.T) {
	tests := map[string]struct {
		target  entity.Id
		checker ownership.ParticipantId
		held    []entity.Id
		setup   func(*desync.Tracker, time.Time)
		exp     Decision
		expErr  error
	}{
		"free seat": {
			target: "chair-1",
			exp:    Decision{Target: "chair-1", Base: "base-7", Allowed: true},
		},
		"occupied seat": {
			target: "chair-1",
			held:   []entity.Id{"chair-1"},
			exp:    Decision{Target: "chair-1", Base: "base-7", Reasons: []Reason{ReasonRemotePlayerObstacle}},
		},
		"seat occupied by the checking participant": {
			target:  "chair-1",
			checker: "alice",
			held:    []entity.Id{"chair-1"},
			exp:     Decision{Target: "chair-1", Base: "base-7", Reasons: []Reason{ReasonOccupiedBySelf}},
		},
		"bench with one side occupied": {
			target: "bench-1",
			held:   []entity.Id{"side-b"},
			exp:    Decision{Target: "bench-1", Base: "base-7", Reasons: []Reason{ReasonRemotePlayerObstacle}},
		},
		"bench free": {
			target: "bench-1",
			exp:    Decision{Target: "bench-1", Base: "base-7", Allowed: true},
		},
		"bed is never probed": {
			target: "bed-1",
			held:   []entity.Id{"bed-1"},
			exp:    Decision{Target: "bed-1", Base: "base-7", Allowed: true},
		},
		"base recently updated": {
			target: "locker-9",
			setup: func(tr *desync.Tracker, now time.Time) {
				tr.RecordMutation("base-7", now.Add(-time.Second))
			},
			exp: Decision{Target: "locker-9", Base: "base-7", Reasons: []Reason{ReasonRecentUpdate}},
		},
		"base desynced": {
			target: "locker-9",
			setup: func(tr *desync.Tracker, now time.Time) {
				tr.MarkDesynced("base-7")
			},
			exp: Decision{Target: "locker-9", Base: "base-7", Reasons: []Reason{ReasonDesynced}},
		},
		"obstacle wins over desync": {
			target: "chair-1",
			held:   []entity.Id{"chair-1"},
			setup: func(tr *desync.Tracker, now time.Time) {
				tr.MarkDesynced("base-7")
			},
			exp: Decision{Target: "chair-1", Base: "base-7", Reasons: []Reason{ReasonRemotePlayerObstacle}},
		},
		"no base uses target": {
			target: "outpost",
			exp:    Decision{Target: "outpost", Base: "outpost", Allowed: true},
		},
		"unknown target": {
			target: "missing",
			expErr: entity.ErrNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
			auth, err := ownership.NewAuthority("host", nil, nil, ownership.WithClock(clock))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, id := range tt.held {
				_, _ = auth.RequestLock(ownership.LockRequest{Entity: id, Kind: ownership.KindExclusive, Participant: "alice"})
			}

			tracker := desync.NewTracker(desync.WithCooldown(5 * time.Second))
			if tt.setup != nil {
				tt.setup(tracker, clock.Now())
			}

			g := NewGuard(auth, testLayout(), tracker, WithClock(clock))

			checker := tt.checker
			if checker == "" {
				checker = "bob"
			}

			var got []Decision
			err = g.Check(tt.target, checker, func(d Decision) { got = append(got, d) })
			if tt.expErr != nil {
				if !errors.Is(err, tt.expErr) {
					t.Errorf("expected %v, got %v", tt.expErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			testutil.AssertEqual(t, "decisions", len(got), 1)
			testutil.AssertEqual(t, "target", got[0].Target, tt.exp.Target)
			testutil.AssertEqual(t, "base", got[0].Base, tt.exp.Base)
			testutil.AssertEqual(t, "allowed", got[0].Allowed, tt.exp.Allowed)
			testutil.AssertEqual(t, "reasons", len(got[0].Reasons), len(tt.exp.Reasons))
			for i := range tt.exp.Reasons {
				testutil.AssertEqual(t, "reason", got[0].Reasons[i], tt.exp.Reasons[i])
			}

			for _, id := range tt.held {
				holder, _ := auth.Table().Holder(id)
				testutil.AssertEqual(t, "holder untouched", holder, ownership.ParticipantId("alice"))
			}
		})
	}
}

func TestGuard_DesyncEvaluatedAtResolution(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	locks := &deferredLocker{}
	tracker := desync.NewTracker(desync.WithCooldown(5 * time.Second))
	g := NewGuard(locks, testLayout(), tracker, WithClock(clock))

	var got []Decision
	err := g.Check("bench-1", "bob", func(d Decision) { got = append(got, d) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "probes", len(locks.requests), 2)
	testutil.AssertEqual(t, "resolved early", len(got), 0)

	tracker.RecordMutation("base-7", clock.Now())
	clock.now = clock.now.Add(time.Second)
	locks.answer(true, "")

	testutil.AssertEqual(t, "decisions", len(got), 1)
	testutil.AssertEqual(t, "allowed", got[0].Allowed, false)
	testutil.AssertEqual(t, "reason", got[0].Reasons[0], ReasonRecentUpdate)
}

func TestGuard_ProbeFailures(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	tracker := desync.NewTracker()

	locks := &deferredLocker{}
	g := NewGuard(locks, testLayout(), tracker, WithClock(clock))

	var got []Decision
	_ = g.Check("chair-1", "bob", func(d Decision) { got = append(got, d) })
	locks.answer(false, ownership.ReasonTimeout)

	testutil.AssertEqual(t, "decisions", len(got), 1)
	testutil.AssertEqual(t, "timeout reason", got[0].Reasons[0], ReasonSeatCheckFailed)

	locks.err = errors.New("boom")
	got = nil
	_ = g.Check("bench-1", "bob", func(d Decision) { got = append(got, d) })

	testutil.AssertEqual(t, "decisions", len(got), 1)
	testutil.AssertEqual(t, "allowed", got[0].Allowed, false)
	testutil.AssertEqual(t, "request error reason", got[0].Reasons[0], ReasonSeatCheckFailed)
}
