package ownership

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pixil98/go-simlock/internal/entity"
)

// ParticipantId identifies a connected peer (the host or a client).
type ParticipantId string

func (p ParticipantId) String() string {
	return string(p)
}

// RequestId identifies one submitted lock request.
type RequestId string

func newRequestId() RequestId {
	return RequestId(uuid.NewString())
}

// LockRequest describes a lock the caller wants. Context is handed back
// unchanged in the Result; the coordinator never inspects it.
type LockRequest struct {
	Entity      entity.Id
	Kind        Kind
	Participant ParticipantId
	Context     any

	// Callback, if set, is invoked once with the final Result. It may run on
	// the caller's goroutine, the transport's receive goroutine, or the tick
	// goroutine.
	Callback func(Result)
}

func (r LockRequest) validate() error {
	if r.Entity.IsZero() {
		return fmt.Errorf("%w: entity is required", ErrInvalidRequest)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, r.Kind)
	}
	return nil
}

// Result is the resolution of a LockRequest.
type Result struct {
	RequestId RequestId
	Entity    entity.Id
	Kind      Kind
	Acquired  bool
	Reason    Reason
	// Holder is who blocked a request denied with ReasonHeld, when known.
	Holder  ParticipantId
	Context any
}

// Ticket is the caller's handle on a submitted request. It resolves exactly
// once; later resolution attempts are ignored.
type Ticket struct {
	id       RequestId
	callback func(Result)

	once   sync.Once
	done   chan struct{}
	result Result
}

func newTicket(id RequestId, callback func(Result)) *Ticket {
	return &Ticket{
		id:       id,
		callback: callback,
		done:     make(chan struct{}),
	}
}

func (t *Ticket) Id() RequestId {
	return t.id
}

// Done is closed once the ticket has resolved.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Result returns the resolution without blocking. ok is false while the
// request is still pending.
func (t *Ticket) Result() (res Result, ok bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the ticket resolves or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// resolve records r and fires the callback. It reports whether this call
// was the one that resolved the ticket.
func (t *Ticket) resolve(r Result) bool {
	resolved := false
	t.once.Do(func() {
		r.RequestId = t.id
		t.result = r
		close(t.done)
		resolved = true
	})
	if resolved && t.callback != nil {
		t.callback(r)
	}
	return resolved
}
