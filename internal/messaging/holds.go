package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/pixil98/go-simlock/internal/ownership"
)

// HoldsRequest asks the authority which locks are held. An empty
// Participant asks for every hold.
type HoldsRequest struct {
	Participant ownership.ParticipantId `json:"participant,omitempty"`
}

type HoldsReply struct {
	Entries []ownership.Entry `json:"entries"`
	Error   string            `json:"error,omitempty"`
}

// HoldsSource lists held locks; *ownership.Table satisfies it.
type HoldsSource interface {
	Snapshot() []ownership.Entry
}

// ServeHolds answers hold listings from src.
func (t *Transport) ServeHolds(ctx context.Context, src HoldsSource) error {
	return t.subscribe(t.subjects.Holds(), func(msg *nats.Msg) {
		var req HoldsRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.respond(ctx, msg, HoldsReply{Error: fmt.Sprintf("decoding request: %v", err)})
			return
		}

		entries := []ownership.Entry{}
		for _, e := range src.Snapshot() {
			if req.Participant == "" || e.Holder == req.Participant {
				entries = append(entries, e)
			}
		}
		t.respond(ctx, msg, HoldsReply{Entries: entries})
	})
}

// RequestHolds lists the locks the authority currently has granted.
func (t *Transport) RequestHolds(ctx context.Context, req HoldsRequest) ([]ownership.Entry, error) {
	var reply HoldsReply
	if err := t.request(ctx, t.subjects.Holds(), req, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return reply.Entries, nil
}
