package ownership

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pixil98/go-simlock/internal/entity"
)

// Replica is a read-only copy of the authority's holders, rebuilt from
// StateChange broadcasts. It can lag behind the authority and must never be
// used to grant locks.
type Replica struct {
	mu      sync.RWMutex
	holders map[entity.Id]ParticipantId
	lastSeq uint64
}

func NewReplica() *Replica {
	return &Replica{
		holders: make(map[entity.Id]ParticipantId),
	}
}

// Apply folds sc into the replica. Stale or repeated changes are ignored,
// except that a change numbered one after later ones starts over. An
// acquisition reported over a different holder, with no missed changes in
// between, means two Exclusive holders and returns ErrInvariantViolation.
func (r *Replica) Apply(ctx context.Context, sc StateChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Sequence numbers restart at one when the authority restarts; what we
	// held before no longer describes its table.
	if sc.Seq == 1 && r.lastSeq > 1 {
		slog.WarnContext(ctx, "lock authority restarted, resetting replica", "last_seq", r.lastSeq, "entries", len(r.holders))
		r.holders = make(map[entity.Id]ParticipantId)
		r.lastSeq = 0
	}

	if sc.Seq != 0 && sc.Seq <= r.lastSeq {
		return nil
	}

	contiguous := r.lastSeq == 0 || sc.Seq == r.lastSeq+1
	if !contiguous {
		slog.WarnContext(ctx, "lock replica missed state changes", "from", r.lastSeq+1, "to", sc.Seq-1)
	}
	if sc.Seq != 0 {
		r.lastSeq = sc.Seq
	}

	current, held := r.holders[sc.Entity]
	if !sc.Held {
		delete(r.holders, sc.Entity)
		return nil
	}

	if held && current != sc.Holder && contiguous {
		slog.ErrorContext(ctx, "lock replica saw two exclusive holders",
			"entity", sc.Entity, "holder", current, "incoming", sc.Holder, "seq", sc.Seq)
		r.holders[sc.Entity] = sc.Holder
		return fmt.Errorf("%w: %s held by %s and %s", ErrInvariantViolation, sc.Entity, current, sc.Holder)
	}

	r.holders[sc.Entity] = sc.Holder
	return nil
}

// Holder returns the last known holder of id.
func (r *Replica) Holder(id entity.Id) (ParticipantId, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.holders[id]
	return p, ok
}

// LastSeq returns the sequence number of the newest applied change.
func (r *Replica) LastSeq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeq
}

func (r *Replica) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.holders)
}
