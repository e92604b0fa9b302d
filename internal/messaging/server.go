package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/pixil98/go-simlock/internal/ownership"
)

const DefaultStartTimeout = 10 * time.Second

// NatsServer runs an embedded NATS broker that every participant's lock
// traffic flows through.
type NatsServer struct {
	ns    *server.Server
	ready chan struct{}

	startupTimeout time.Duration
	host           string
	port           int
}

func NewNatsServer(opts ...NatsServerOpt) (*NatsServer, error) {
	s := &NatsServer{
		ready:          make(chan struct{}),
		startupTimeout: DefaultStartTimeout,
		host:           "127.0.0.1",
	}

	for _, opt := range opts {
		opt(s)
	}

	ns, err := server.NewServer(&server.Options{
		Host:   s.host,
		Port:   s.port,
		NoSigs: true, // Let the application handle signals
	})
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	s.ns = ns

	return s, nil
}

// Start runs the broker until ctx is cancelled.
func (n *NatsServer) Start(ctx context.Context) error {
	n.ns.Start()

	if !n.ns.ReadyForConnections(n.startupTimeout) {
		n.ns.Shutdown()
		return fmt.Errorf("nats server not ready for connections")
	}
	close(n.ready)

	slog.InfoContext(ctx, "nats server listening", "addr", n.ns.Addr())

	<-ctx.Done()
	n.ns.Shutdown()
	n.ns.WaitForShutdown()

	return nil
}

// Ready is closed once the broker accepts connections.
func (n *NatsServer) Ready() <-chan struct{} {
	return n.ready
}

// WaitReady blocks until the broker accepts connections or ctx is done.
func (n *NatsServer) WaitReady(ctx context.Context) error {
	select {
	case <-n.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientURL is the address clients dial. It is only meaningful once Ready
// has fired, since a random port is chosen at start.
func (n *NatsServer) ClientURL() string {
	return n.ns.ClientURL()
}

// LinkedParticipants lists the participants with an open connection to the
// broker, identified by their connection names.
func (n *NatsServer) LinkedParticipants() ([]ownership.ParticipantId, error) {
	var out []ownership.ParticipantId
	opts := &server.ConnzOptions{Limit: 256}
	for {
		cz, err := n.ns.Connz(opts)
		if err != nil {
			return nil, fmt.Errorf("listing connections: %w", err)
		}
		for _, ci := range cz.Conns {
			if p, ok := ParticipantFromConnection(ci.Name); ok {
				out = append(out, p)
			}
		}
		opts.Offset += len(cz.Conns)
		if len(cz.Conns) == 0 || opts.Offset >= cz.Total {
			return out, nil
		}
	}
}
