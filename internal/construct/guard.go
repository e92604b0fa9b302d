package construct

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pixil98/go-simlock/internal/desync"
	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/ownership"
)

// Reason names why a deconstruction was refused.
type Reason string

const (
	ReasonRemotePlayerObstacle Reason = "remote-player-obstacle"
	ReasonOccupiedBySelf       Reason = "occupied-by-self"
	ReasonSeatCheckFailed      Reason = "seat-check-failed"
	ReasonRecentUpdate         Reason = Reason(desync.ReasonRecentUpdate)
	ReasonDesynced             Reason = Reason(desync.ReasonDesynced)
)

// Decision is the outcome of a deconstruction check.
type Decision struct {
	Target  entity.Id `json:"target"`
	Base    entity.Id `json:"base"`
	Allowed bool      `json:"allowed"`
	Reasons []Reason  `json:"reasons,omitempty"`
}

// Locker issues lock requests; *ownership.Coordinator satisfies it.
type Locker interface {
	RequestLock(req ownership.LockRequest) (*ownership.Ticket, error)
}

// Layout answers structural questions about entities; *entity.Directory
// satisfies it.
type Layout interface {
	Lookup(id entity.Id) (*entity.Entity, bool)
	Children(id entity.Id, kinds ...entity.Kind) []entity.Id
}

// Safety answers whether a destructive action is currently safe;
// *desync.Tracker satisfies it.
type Safety interface {
	Guard(id entity.Id, now time.Time) desync.Verdict
}

type GuardOpt func(*Guard)

func WithClock(c ownership.Clock) GuardOpt {
	return func(g *Guard) {
		if c != nil {
			g.clock = c
		}
	}
}

// Guard decides whether an entity may be deconstructed. Occupied seats block
// it, and so does the desync guard of the base the entity belongs to.
type Guard struct {
	locks  Locker
	layout Layout
	safety Safety
	clock  ownership.Clock
}

func NewGuard(locks Locker, layout Layout, safety Safety, opts ...GuardOpt) *Guard {
	g := &Guard{
		locks:  locks,
		layout: layout,
		safety: safety,
		clock:  ownership.SystemClock(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check probes every seat affected by deconstructing target and calls fn
// once with the decision. fn may run before Check returns. The desync guard
// is evaluated when the last probe resolves, never ahead of time.
func (g *Guard) Check(target entity.Id, participant ownership.ParticipantId, fn func(Decision)) error {
	e, ok := g.layout.Lookup(target)
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrNotFound, target)
	}

	j := &join{
		guard:       g,
		participant: participant,
		decision:    Decision{Target: target, Base: g.baseOf(target, e)},
		fn:          fn,
	}

	seats := g.seatsFor(target, e)
	if len(seats) == 0 {
		j.finish()
		return nil
	}

	j.remaining = len(seats)
	for _, seat := range seats {
		_, err := g.locks.RequestLock(ownership.LockRequest{
			Entity:      seat,
			Kind:        ownership.KindTransient,
			Participant: participant,
			Context:     target,
			Callback:    j.probed,
		})
		if err != nil {
			slog.Warn("probing seat before deconstruction", "target", target, "seat", seat, "error", err)
			j.failed()
		}
	}
	return nil
}

// seatsFor lists the seats that would be pulled out from under a player.
// Beds do not take simulation locks while in use so they cannot be probed.
func (g *Guard) seatsFor(target entity.Id, e *entity.Entity) []entity.Id {
	switch e.Kind {
	case entity.KindSeat:
		return []entity.Id{target}
	case entity.KindBed:
		return nil
	}
	return g.layout.Children(target, entity.KindSeat)
}

func (g *Guard) baseOf(id entity.Id, e *entity.Entity) entity.Id {
	for cur, ce := id, e; ce != nil; {
		if ce.Kind == entity.KindBase {
			return cur
		}
		if ce.Parent.IsZero() {
			break
		}
		next, ok := g.layout.Lookup(ce.Parent)
		if !ok {
			break
		}
		cur, ce = ce.Parent, next
	}
	return id
}

// join gathers seat probe results and reports once all have resolved.
type join struct {
	guard       *Guard
	participant ownership.ParticipantId
	fn          func(Decision)

	mu        sync.Mutex
	decision  Decision
	remaining int
	obstacle  bool
	self      bool
	failure   bool
}

func (j *join) probed(r ownership.Result) {
	j.mu.Lock()
	if !r.Acquired {
		switch {
		case r.Reason != ownership.ReasonHeld:
			j.failure = true
		case r.Holder != "" && r.Holder == j.participant:
			j.self = true
		default:
			j.obstacle = true
		}
	}
	j.remaining--
	done := j.remaining == 0
	j.mu.Unlock()

	if done {
		j.finish()
	}
}

func (j *join) failed() {
	j.mu.Lock()
	j.failure = true
	j.remaining--
	done := j.remaining == 0
	j.mu.Unlock()

	if done {
		j.finish()
	}
}

func (j *join) finish() {
	j.mu.Lock()
	d := j.decision
	switch {
	case j.obstacle:
		d.Reasons = []Reason{ReasonRemotePlayerObstacle}
	case j.self:
		d.Reasons = []Reason{ReasonOccupiedBySelf}
	case j.failure:
		d.Reasons = []Reason{ReasonSeatCheckFailed}
	}
	j.mu.Unlock()

	if len(d.Reasons) == 0 {
		v := j.guard.safety.Guard(d.Base, j.guard.clock.Now())
		d.Allowed = v.Allowed
		for _, r := range v.Reasons {
			d.Reasons = append(d.Reasons, Reason(r))
		}
	}

	if !d.Allowed {
		slog.Info("deconstruction blocked", "target", d.Target, "base", d.Base, "reasons", d.Reasons)
	}
	j.fn(d)
}
