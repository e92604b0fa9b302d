package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/pixil98/go-simlock/internal/construct"
	"github.com/pixil98/go-simlock/internal/desync"
	"github.com/pixil98/go-simlock/internal/driver"
	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/messaging"
	"github.com/pixil98/go-simlock/internal/ownership"
	"github.com/pixil98/go-simlock/internal/session"
)

// authorityNode owns the authority coordinator and everything hanging off
// it. It joins the embedded broker once that accepts connections.
type authorityNode struct {
	cfg       *Config
	ns        *messaging.NatsServer
	directory *entity.Directory
	tracker   *desync.Tracker
	clock     ownership.Clock

	mu          sync.Mutex
	coordinator *ownership.Coordinator
}

func newAuthorityNode(cfg *Config, ns *messaging.NatsServer) *authorityNode {
	return &authorityNode{
		cfg:     cfg,
		ns:      ns,
		tracker: cfg.Desync.BuildTracker(),
		clock:   ownership.SystemClock(),
	}
}

func (n *authorityNode) Start(ctx context.Context) error {
	if err := n.ns.WaitReady(ctx); err != nil {
		return nil
	}

	conn, err := nats.Connect(n.ns.ClientURL(), nats.Name(fmt.Sprintf("simlockd-%s", n.cfg.participant())))
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer conn.Close()

	transport := messaging.NewTransport(conn, messaging.WithSubjectPrefix(n.cfg.Nats.SubjectPrefix))
	defer transport.Close()

	coord, err := ownership.NewAuthority(n.cfg.participant(), nil, transport, n.cfg.Ownership.coordinatorOpts()...)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	n.mu.Lock()
	n.coordinator = coord
	n.mu.Unlock()

	sessions := session.NewManager(coord,
		append(n.cfg.Session.managerOpts(), session.WithHoldings(coord.Table()))...)
	links := session.NewLinkMonitor(sessions, n.ns)
	guard := construct.NewGuard(coord, n.directory, n.tracker)

	if err := transport.ServeAuthority(ctx, session.NewGateway(sessions, coord)); err != nil {
		return err
	}
	if err := transport.ServeGuard(ctx, guard); err != nil {
		return err
	}
	if err := transport.ServeHolds(ctx, coord.Table()); err != nil {
		return err
	}
	if err := transport.WatchMutations(ctx, n.applyMutation); err != nil {
		return err
	}
	if err := transport.Flush(); err != nil {
		return fmt.Errorf("flushing subscriptions: %w", err)
	}

	var opts []driver.DriverOpt
	if d := n.cfg.tickInterval(); d > 0 {
		opts = append(opts, driver.WithTickLength(d))
	}
	opts = append(opts,
		driver.WithTicker("coordinator", coord),
		driver.WithTicker("links", links),
		driver.WithTicker("sessions", sessions),
	)

	slog.InfoContext(ctx, "lock authority ready",
		"participant", coord.Participant(), "subjects", transport.Subjects().Authority())

	return driver.NewDriver(opts...).Start(ctx)
}

// retire is the directory's retire hook.
func (n *authorityNode) retire(id entity.Id) {
	n.tracker.Retire(id)

	n.mu.Lock()
	coord := n.coordinator
	n.mu.Unlock()
	if coord != nil {
		coord.Retire(context.Background(), id)
	}
}

func (n *authorityNode) applyMutation(ctx context.Context, m messaging.MutationMessage) {
	now := n.clock.Now()

	if m.Kind != messaging.MutationCreate && n.directory.IsRetired(m.Entity) {
		slog.DebugContext(ctx, "ignoring mutation for retired entity", "entity", m.Entity, "kind", m.Kind)
		return
	}

	switch m.Kind {
	case messaging.MutationChange:
		if m.Op == 0 {
			n.tracker.RecordMutation(m.Entity, now)
		} else {
			n.tracker.ObserveOperation(m.Entity, m.Op, now)
		}
	case messaging.MutationSnapshot:
		n.tracker.RecordSnapshot(m.Entity, m.Op, now)
	case messaging.MutationResync:
		n.tracker.Resync(m.Entity, m.Op)
	case messaging.MutationDesynced:
		n.tracker.MarkDesynced(m.Entity)
	case messaging.MutationCreate:
		if m.Created == nil {
			slog.WarnContext(ctx, "dropping create without entity body", "entity", m.Entity)
			return
		}
		if err := n.directory.Add(m.Entity, m.Created); err != nil {
			slog.WarnContext(ctx, "creating entity", "entity", m.Entity, "error", err)
			return
		}
		slog.InfoContext(ctx, "entity created", "entity", m.Entity, "kind", m.Created.Kind, "parent", m.Created.Parent)
	case messaging.MutationRetire:
		if err := n.directory.Retire(m.Entity); err != nil {
			slog.WarnContext(ctx, "retiring entity", "entity", m.Entity, "error", err)
		}
	default:
		slog.WarnContext(ctx, "ignoring unknown mutation", "entity", m.Entity, "kind", m.Kind)
	}
}
