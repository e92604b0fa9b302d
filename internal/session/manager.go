package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/ownership"
)

const (
	DefaultLinklessTimeout = 30 * time.Second
	DefaultIdleTimeout     = 15 * time.Minute
)

// Disconnecter is told when a participant's session ends so it can drop
// whatever the participant held.
type Disconnecter interface {
	OnParticipantDisconnected(ctx context.Context, p ownership.ParticipantId)
}

// Holdings reports which locks a participant holds; *ownership.Table
// satisfies it.
type Holdings interface {
	HeldBy(p ownership.ParticipantId) []entity.Id
}

// Session is one connected participant.
type Session struct {
	Participant  ownership.ParticipantId
	ConnectedAt  time.Time
	LastActivity time.Time

	// Linkless is set when the participant's link dropped but its locks are
	// kept for a grace period in case it reconnects.
	Linkless   bool
	LinklessAt time.Time
}

type ManagerOpt func(*Manager)

func WithLinklessTimeout(d time.Duration) ManagerOpt {
	return func(m *Manager) {
		m.linklessTimeout = d
	}
}

// WithIdleTimeout sets how long a participant may stay silent before it is
// disconnected. Zero disables idle kicks.
func WithIdleTimeout(d time.Duration) ManagerOpt {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithHoldings exempts participants that still hold locks from idle kicks.
// A silent holder is still connected; only a dropped link ends its hold.
func WithHoldings(h Holdings) ManagerOpt {
	return func(m *Manager) {
		m.holdings = h
	}
}

func WithClock(c ownership.Clock) ManagerOpt {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// Manager tracks participant sessions and ends the ones that go linkless or
// idle for too long.
type Manager struct {
	mu       sync.Mutex
	sessions map[ownership.ParticipantId]*Session

	target          Disconnecter
	holdings        Holdings
	clock           ownership.Clock
	linklessTimeout time.Duration
	idleTimeout     time.Duration
}

func NewManager(target Disconnecter, opts ...ManagerOpt) *Manager {
	m := &Manager{
		sessions:        make(map[ownership.ParticipantId]*Session),
		target:          target,
		clock:           ownership.SystemClock(),
		linklessTimeout: DefaultLinklessTimeout,
		idleTimeout:     DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect starts a session for p, or reattaches a linkless one.
func (m *Manager) Connect(ctx context.Context, p ownership.ParticipantId) {
	now := m.clock.Now()

	m.mu.Lock()
	s, ok := m.sessions[p]
	if !ok {
		s = &Session{Participant: p, ConnectedAt: now}
		m.sessions[p] = s
	}
	reattached := s.Linkless
	s.Linkless = false
	s.LinklessAt = time.Time{}
	s.LastActivity = now
	m.mu.Unlock()

	switch {
	case reattached:
		slog.InfoContext(ctx, "participant reconnected", "participant", p)
	case !ok:
		slog.InfoContext(ctx, "participant connected", "participant", p)
	}
}

// Touch records activity from p, connecting it if needed.
func (m *Manager) Touch(ctx context.Context, p ownership.ParticipantId) {
	m.mu.Lock()
	s, ok := m.sessions[p]
	active := ok && !s.Linkless
	if active {
		s.LastActivity = m.clock.Now()
	}
	m.mu.Unlock()

	if !active {
		m.Connect(ctx, p)
	}
}

// MarkLinkless records that p's link dropped. Its locks survive until the
// linkless timeout passes.
func (m *Manager) MarkLinkless(ctx context.Context, p ownership.ParticipantId) {
	m.mu.Lock()
	s, ok := m.sessions[p]
	if ok && !s.Linkless {
		s.Linkless = true
		s.LinklessAt = m.clock.Now()
	}
	m.mu.Unlock()

	if ok {
		slog.InfoContext(ctx, "participant went linkless", "participant", p)
	}
}

// Disconnect ends p's session and releases everything it held. It is safe
// to call for participants without a session.
func (m *Manager) Disconnect(ctx context.Context, p ownership.ParticipantId) {
	m.mu.Lock()
	delete(m.sessions, p)
	m.mu.Unlock()

	slog.InfoContext(ctx, "participant disconnected", "participant", p)
	if m.target != nil {
		m.target.OnParticipantDisconnected(ctx, p)
	}
}

// Tick disconnects linkless participants past their grace period and idle
// participants past the idle timeout, unless they hold locks.
func (m *Manager) Tick(ctx context.Context) error {
	now := m.clock.Now()
	linklessCutoff := now.Add(-m.linklessTimeout)
	idleCutoff := now.Add(-m.idleTimeout)

	type action struct {
		participant ownership.ParticipantId
		linkless    bool
	}
	var actions []action

	m.mu.Lock()
	for p, s := range m.sessions {
		if s.Linkless && s.LinklessAt.Before(linklessCutoff) {
			actions = append(actions, action{participant: p, linkless: true})
		} else if !s.Linkless && m.idleTimeout > 0 && s.LastActivity.Before(idleCutoff) {
			actions = append(actions, action{participant: p})
		}
	}
	m.mu.Unlock()

	actions = slices.DeleteFunc(actions, func(a action) bool {
		if a.linkless || m.holdings == nil {
			return false
		}
		held := m.holdings.HeldBy(a.participant)
		if len(held) > 0 {
			slog.DebugContext(ctx, "idle participant kept for its locks", "participant", a.participant, "locks", len(held))
			return true
		}
		return false
	})

	slices.SortFunc(actions, func(a, b action) int {
		switch {
		case a.participant < b.participant:
			return -1
		case a.participant > b.participant:
			return 1
		}
		return 0
	})

	for _, a := range actions {
		if a.linkless {
			slog.InfoContext(ctx, "linkless participant timed out", "participant", a.participant)
		} else {
			slog.InfoContext(ctx, "idle participant kicked", "participant", a.participant)
		}
		m.Disconnect(ctx, a.participant)
	}

	return nil
}

// Session returns a copy of p's session.
func (m *Manager) Session(p ownership.ParticipantId) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[p]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Sessions returns a copy of every session, sorted by participant.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b Session) int {
		switch {
		case a.Participant < b.Participant:
			return -1
		case a.Participant > b.Participant:
			return 1
		}
		return 0
	})
	return out
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
