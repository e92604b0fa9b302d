package session

import (
	"context"
	"log/slog"

	"github.com/pixil98/go-simlock/internal/ownership"
)

// LinkSource lists the participants whose connections are currently open.
type LinkSource interface {
	LinkedParticipants() ([]ownership.ParticipantId, error)
}

// LinkMonitor compares open connections with known sessions on every tick.
// A session whose connection is gone goes linkless, and one whose
// connection came back is reattached.
type LinkMonitor struct {
	sessions *Manager
	source   LinkSource
}

func NewLinkMonitor(sessions *Manager, source LinkSource) *LinkMonitor {
	return &LinkMonitor{sessions: sessions, source: source}
}

func (l *LinkMonitor) Tick(ctx context.Context) error {
	linked, err := l.source.LinkedParticipants()
	if err != nil {
		// A failed listing must not look like every participant dropping.
		slog.WarnContext(ctx, "listing participant connections", "error", err)
		return nil
	}

	open := make(map[ownership.ParticipantId]struct{}, len(linked))
	for _, p := range linked {
		open[p] = struct{}{}
	}

	for _, s := range l.sessions.Sessions() {
		_, ok := open[s.Participant]
		switch {
		case ok && s.Linkless:
			l.sessions.Connect(ctx, s.Participant)
		case !ok && !s.Linkless:
			l.sessions.MarkLinkless(ctx, s.Participant)
		}
	}
	return nil
}
