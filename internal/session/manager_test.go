package session

import (
	"context"
	"testing"
	"time"

	"github.com/pixil98/go-simlock/internal/ownership"
	"github.com/pixil98/go-testutil"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

type recordingAuthority struct {
	disconnected []ownership.ParticipantId
	requests     []ownership.RequestMessage
	releases     []ownership.ReleaseMessage
}

func (r *recordingAuthority) OnParticipantDisconnected(_ context.Context, p ownership.ParticipantId) {
	r.disconnected = append(r.disconnected, p)
}

func (r *recordingAuthority) HandleRequest(_ context.Context, m ownership.RequestMessage) {
	r.requests = append(r.requests, m)
}

func (r *recordingAuthority) HandleRelease(_ context.Context, m ownership.ReleaseMessage) error {
	r.releases = append(r.releases, m)
	return nil
}

func newTestManager() (*Manager, *recordingAuthority, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	auth := &recordingAuthority{}
	m := NewManager(auth,
		WithClock(clock),
		WithLinklessTimeout(30*time.Second),
		WithIdleTimeout(10*time.Minute),
	)
	return m, auth, clock
}

func TestManager_Tick(t *testing.T) {
	tests := map[string]struct {
		linkless      bool
		elapsed       time.Duration
		expDisconnect bool
	}{
		"active within idle timeout": {
			elapsed: 9 * time.Minute,
		},
		"active past idle timeout": {
			elapsed:       11 * time.Minute,
			expDisconnect: true,
		},
		"linkless within grace": {
			linkless: true,
			elapsed:  20 * time.Second,
		},
		"linkless past grace": {
			linkless:      true,
			elapsed:       31 * time.Second,
			expDisconnect: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m, auth, clock := newTestManager()

			m.Connect(ctx, "alice")
			if tt.linkless {
				m.MarkLinkless(ctx, "alice")
			}
			clock.Advance(tt.elapsed)

			if err := m.Tick(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			_, ok := m.Session("alice")
			testutil.AssertEqual(t, "session kept", ok, !tt.expDisconnect)
			expCount := 0
			if tt.expDisconnect {
				expCount = 1
			}
			testutil.AssertEqual(t, "disconnects", len(auth.disconnected), expCount)
		})
	}
}

func TestManager_Reconnect(t *testing.T) {
	ctx := context.Background()
	m, auth, clock := newTestManager()

	m.Connect(ctx, "alice")
	m.MarkLinkless(ctx, "alice")
	clock.Advance(20 * time.Second)

	m.Connect(ctx, "alice")
	s, ok := m.Session("alice")
	testutil.AssertEqual(t, "session", ok, true)
	testutil.AssertEqual(t, "linkless", s.Linkless, false)

	clock.Advance(20 * time.Second)
	_ = m.Tick(ctx)
	testutil.AssertEqual(t, "disconnects", len(auth.disconnected), 0)
}

func TestManager_TouchKeepsSessionAlive(t *testing.T) {
	ctx := context.Background()
	m, auth, clock := newTestManager()

	m.Touch(ctx, "alice")
	testutil.AssertEqual(t, "sessions", m.Len(), 1)

	for i := 0; i < 3; i++ {
		clock.Advance(6 * time.Minute)
		m.Touch(ctx, "alice")
		_ = m.Tick(ctx)
	}
	testutil.AssertEqual(t, "disconnects", len(auth.disconnected), 0)

	m.MarkLinkless(ctx, "alice")
	m.Touch(ctx, "alice")
	s, _ := m.Session("alice")
	testutil.AssertEqual(t, "touch reattaches", s.Linkless, false)
}

func TestManager_Disconnect(t *testing.T) {
	ctx := context.Background()
	m, auth, _ := newTestManager()

	m.Connect(ctx, "alice")
	m.Disconnect(ctx, "alice")
	m.Disconnect(ctx, "ghost")

	testutil.AssertEqual(t, "sessions", m.Len(), 0)
	testutil.AssertEqual(t, "disconnects", len(auth.disconnected), 2)
	testutil.AssertEqual(t, "first", auth.disconnected[0], ownership.ParticipantId("alice"))
}

func TestManager_IdleDisabled(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	auth := &recordingAuthority{}
	m := NewManager(auth, WithClock(clock), WithIdleTimeout(0))

	m.Connect(ctx, "alice")
	clock.Advance(24 * time.Hour)
	_ = m.Tick(ctx)

	testutil.AssertEqual(t, "disconnects", len(auth.disconnected), 0)
}

func TestGateway(t *testing.T) {
	ctx := context.Background()
	m, auth, _ := newTestManager()
	g := NewGateway(m, auth)

	g.HandleRequest(ctx, ownership.RequestMessage{RequestId: "r1", Entity: "chair-1", Kind: ownership.KindExclusive, Participant: "alice"})
	if err := g.HandleRelease(ctx, ownership.ReleaseMessage{Entity: "chair-1", Participant: "bob"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "sessions", m.Len(), 2)
	testutil.AssertEqual(t, "requests forwarded", len(auth.requests), 1)
	testutil.AssertEqual(t, "releases forwarded", len(auth.releases), 1)

	g.HandleDisconnect(ctx, ownership.DisconnectMessage{Participant: "alice"})
	testutil.AssertEqual(t, "sessions after disconnect", m.Len(), 1)
	testutil.AssertEqual(t, "disconnects", len(auth.disconnected), 1)
}

func TestManager_IdleHolderKept(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	auth, err := ownership.NewAuthority("host", nil, nil, ownership.WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := NewManager(auth,
		WithClock(clock),
		WithIdleTimeout(15*time.Minute),
		WithHoldings(auth.Table()),
	)
	g := NewGateway(m, auth)

	g.HandleRequest(ctx, ownership.RequestMessage{RequestId: "r1", Entity: "chair-1", Kind: ownership.KindExclusive, Participant: "alice"})
	g.HandleRequest(ctx, ownership.RequestMessage{RequestId: "r2", Entity: "chair-2", Kind: ownership.KindExclusive, Participant: "bob"})
	if err := g.HandleRelease(ctx, ownership.ReleaseMessage{Entity: "chair-2", Participant: "bob", RequestId: "r2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(16 * time.Minute)
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	holder, held := auth.Table().Holder("chair-1")
	testutil.AssertEqual(t, "holder", holder, ownership.ParticipantId("alice"))
	testutil.AssertEqual(t, "held", held, true)
	_, ok := m.Session("alice")
	testutil.AssertEqual(t, "holder session kept", ok, true)
	_, ok = m.Session("bob")
	testutil.AssertEqual(t, "idle session without locks kicked", ok, false)

	if err := g.HandleRelease(ctx, ownership.ReleaseMessage{Entity: "chair-1", Participant: "alice", RequestId: "r1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(16 * time.Minute)
	_ = m.Tick(ctx)
	_, ok = m.Session("alice")
	testutil.AssertEqual(t, "session kicked once released", ok, false)
}

func TestManager_LinklessHolderTimesOut(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	auth, err := ownership.NewAuthority("host", nil, nil, ownership.WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := NewManager(auth, WithClock(clock), WithHoldings(auth.Table()))
	g := NewGateway(m, auth)

	g.HandleRequest(ctx, ownership.RequestMessage{RequestId: "r1", Entity: "chair-1", Kind: ownership.KindExclusive, Participant: "alice"})
	m.MarkLinkless(ctx, "alice")
	clock.Advance(DefaultLinklessTimeout + time.Second)
	_ = m.Tick(ctx)

	_, held := auth.Table().Holder("chair-1")
	testutil.AssertEqual(t, "held", held, false)
}
