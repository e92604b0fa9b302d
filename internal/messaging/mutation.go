package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/pixil98/go-simlock/internal/entity"
)

// MutationKind says what the replication layer observed about an entity.
type MutationKind string

const (
	// MutationChange is an authoritative operation. A zero Op only restarts
	// the cooldown.
	MutationChange MutationKind = "change"
	// MutationSnapshot is a full authoritative snapshot taken at Op.
	MutationSnapshot MutationKind = "snapshot"
	// MutationResync reports the entity was brought back in line at Op.
	MutationResync MutationKind = "resync"
	// MutationRetire reports the entity was destroyed.
	MutationRetire MutationKind = "retire"
	// MutationDesynced reports a replica diverged and the entity awaits
	// resync.
	MutationDesynced MutationKind = "desynced"
	// MutationCreate reports a new entity; Created carries its layout.
	MutationCreate MutationKind = "create"
)

// MutationMessage is published by the replication layer whenever an
// entity's authoritative state changes.
type MutationMessage struct {
	Entity entity.Id    `json:"entity"`
	Kind   MutationKind `json:"kind"`
	Op     uint64       `json:"op,omitempty"`

	Created *entity.Entity `json:"created,omitempty"`
}

func (t *Transport) PublishMutation(m MutationMessage) error {
	return t.publish(t.subjects.Mutation(), m)
}

// WatchMutations calls fn for every mutation notice.
func (t *Transport) WatchMutations(ctx context.Context, fn func(context.Context, MutationMessage)) error {
	return t.subscribe(t.subjects.Mutation(), func(msg *nats.Msg) {
		var m MutationMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			slog.WarnContext(ctx, "dropping malformed mutation", "error", err)
			return
		}
		if m.Entity.IsZero() {
			slog.WarnContext(ctx, "dropping mutation without entity", "kind", m.Kind)
			return
		}
		fn(ctx, m)
	})
}
