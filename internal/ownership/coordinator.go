package ownership

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pixil98/go-simlock/internal/entity"
)

type role int

const (
	roleAuthority role = iota
	roleRequester
)

type inflightKey struct {
	entity      entity.Id
	participant ParticipantId
}

type pendingRequest struct {
	req      LockRequest
	ticket   *Ticket
	deadline time.Time
}

// Coordinator is the single entry point for lock operations. An authority
// coordinator decides requests against its Table; a requester coordinator
// forwards them over the Transport and tracks them until a response, a
// timeout, or a cancellation resolves them. No method blocks on the network.
type Coordinator struct {
	participant    ParticipantId
	role           role
	table          *Table
	transport      Transport
	clock          Clock
	requestTimeout time.Duration
	idleEviction   time.Duration
	limiter        *participantLimiter

	mu       sync.Mutex
	pending  map[RequestId]*pendingRequest
	inflight map[inflightKey]RequestId
	held     map[entity.Id]RequestId // requester only: Exclusive locks granted to us, by grant
}

func newCoordinator(participant ParticipantId, r role, transport Transport, opts []CoordinatorOpt) (*Coordinator, error) {
	if participant == "" {
		return nil, fmt.Errorf("participant id is required")
	}

	c := &Coordinator{
		participant:    participant,
		role:           r,
		transport:      transport,
		clock:          systemClock{},
		requestTimeout: DefaultRequestTimeout,
		idleEviction:   DefaultIdleEviction,
		pending:        make(map[RequestId]*pendingRequest),
		inflight:       make(map[inflightKey]RequestId),
		held:           make(map[entity.Id]RequestId),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewAuthority builds the coordinator whose table decisions are final.
// transport may be nil when no remote participants exist. Every table change
// is published through transport.
func NewAuthority(participant ParticipantId, table *Table, transport Transport, opts ...CoordinatorOpt) (*Coordinator, error) {
	c, err := newCoordinator(participant, roleAuthority, transport, opts)
	if err != nil {
		return nil, err
	}

	if table == nil {
		table = NewTable()
	}
	c.table = table

	if transport != nil {
		table.OnChange(func(sc StateChange) {
			if err := transport.PublishState(sc); err != nil {
				slog.Warn("publishing lock state", "entity", sc.Entity, "seq", sc.Seq, "error", err)
			}
		})
	}
	return c, nil
}

// NewRequester builds a coordinator that forwards requests to a remote authority.
func NewRequester(participant ParticipantId, transport Transport, opts ...CoordinatorOpt) (*Coordinator, error) {
	if transport == nil {
		return nil, fmt.Errorf("requester needs a transport")
	}
	return newCoordinator(participant, roleRequester, transport, opts)
}

func (c *Coordinator) Participant() ParticipantId {
	return c.participant
}

func (c *Coordinator) IsAuthority() bool {
	return c.role == roleAuthority
}

// Table returns the authority's lock table, or nil for a requester.
func (c *Coordinator) Table() *Table {
	return c.table
}

// RequestLock submits req and returns immediately. The returned ticket (and
// req.Callback, if set) resolves exactly once. A second Exclusive request for
// an entity while one is outstanding fails with ErrDuplicateRequest and is
// never sent.
func (c *Coordinator) RequestLock(req LockRequest) (*Ticket, error) {
	if req.Participant == "" {
		req.Participant = c.participant
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	ticket := newTicket(newRequestId(), req.Callback)

	if c.role == roleAuthority {
		c.decideLocal(req, ticket)
		return ticket, nil
	}

	if req.Participant != c.participant {
		return nil, fmt.Errorf("%w: %s cannot request on behalf of %s", ErrInvalidRequest, c.participant, req.Participant)
	}
	if err := c.forward(req, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (c *Coordinator) decideLocal(req LockRequest, ticket *Ticket) {
	outcome := c.table.TryAcquireGrant(req.Entity, req.Kind, req.Participant, ticket.Id(), c.clock.Now())

	slog.Debug("lock decision",
		"entity", req.Entity, "kind", req.Kind, "participant", req.Participant, "outcome", outcome)

	res := Result{
		Entity:   req.Entity,
		Kind:     req.Kind,
		Acquired: bool(outcome),
		Context:  req.Context,
	}
	if !res.Acquired {
		res.Reason = ReasonHeld
		res.Holder, _ = c.table.Holder(req.Entity)
	}
	ticket.resolve(res)
}

func (c *Coordinator) forward(req LockRequest, ticket *Ticket) error {
	key := inflightKey{entity: req.Entity, participant: req.Participant}

	c.mu.Lock()
	if req.Kind == KindExclusive {
		if prev, ok := c.inflight[key]; ok {
			c.mu.Unlock()
			slog.Warn("rejecting duplicate exclusive request",
				"entity", req.Entity, "participant", req.Participant, "outstanding", prev)
			return fmt.Errorf("%w: %s", ErrDuplicateRequest, req.Entity)
		}
		c.inflight[key] = ticket.Id()
	}
	c.pending[ticket.Id()] = &pendingRequest{
		req:      req,
		ticket:   ticket,
		deadline: c.clock.Now().Add(c.requestTimeout),
	}
	c.mu.Unlock()

	err := c.transport.SendRequest(RequestMessage{
		RequestId:   ticket.Id(),
		Entity:      req.Entity,
		Kind:        req.Kind,
		Participant: req.Participant,
	})
	if err != nil {
		slog.Warn("sending lock request", "entity", req.Entity, "request", ticket.Id(), "error", err)
		if p := c.take(ticket.Id(), false); p != nil {
			c.resolvePending(p, false, ReasonTransportFailure, "")
		}
	}
	return nil
}

// take removes a pending request. When granted is set for an Exclusive
// request the entity is recorded as held by this participant.
func (c *Coordinator) take(id RequestId, granted bool) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)

	if p.req.Kind == KindExclusive {
		key := inflightKey{entity: p.req.Entity, participant: p.req.Participant}
		if c.inflight[key] == id {
			delete(c.inflight, key)
		}
		if granted {
			c.held[p.req.Entity] = id
		}
	}
	return p
}

func (c *Coordinator) resolvePending(p *pendingRequest, acquired bool, reason Reason, holder ParticipantId) {
	if !acquired && reason == "" {
		reason = ReasonHeld
	}
	if acquired || reason != ReasonHeld {
		holder = ""
	}
	if acquired {
		reason = ""
	}
	p.ticket.resolve(Result{
		Entity:   p.req.Entity,
		Kind:     p.req.Kind,
		Acquired: acquired,
		Reason:   reason,
		Holder:   holder,
		Context:  p.req.Context,
	})
}

// relinquish asks the authority to drop a lock the request grant may have
// won without us learning about it, e.g. after a timeout or a cancellation.
// The release names grant, so it cannot free a hold won by a later request.
func (c *Coordinator) relinquish(ctx context.Context, id entity.Id, grant RequestId) {
	err := c.transport.SendRelease(ReleaseMessage{Entity: id, Participant: c.participant, RequestId: grant})
	if err != nil {
		slog.WarnContext(ctx, "relinquishing unacknowledged lock", "entity", id, "request", grant, "error", err)
	}
}

// Cancel withdraws a pending request. The ticket resolves as denied with
// ReasonCancelled and any later response is discarded.
func (c *Coordinator) Cancel(ctx context.Context, id RequestId) bool {
	p := c.take(id, false)
	if p == nil {
		return false
	}

	c.resolvePending(p, false, ReasonCancelled, "")
	slog.DebugContext(ctx, "lock request cancelled", "entity", p.req.Entity, "request", id)

	if p.req.Kind == KindExclusive {
		c.relinquish(ctx, p.req.Entity, id)
	}
	return true
}

// ReleaseLock gives up an Exclusive lock. An empty participant means this
// coordinator's own participant.
func (c *Coordinator) ReleaseLock(id entity.Id, participant ParticipantId) error {
	if participant == "" {
		participant = c.participant
	}

	if c.role == roleAuthority {
		if err := c.table.Release(id, participant, c.clock.Now()); err != nil {
			slog.Warn("release by non-holder", "entity", id, "participant", participant)
			return err
		}
		slog.Info("lock released", "entity", id, "participant", participant)
		return nil
	}

	c.mu.Lock()
	grant, held := c.held[id]
	c.mu.Unlock()
	if participant != c.participant || !held {
		slog.Warn("release by non-holder", "entity", id, "participant", participant)
		return ErrNotHolder
	}

	if err := c.transport.SendRelease(ReleaseMessage{Entity: id, Participant: participant, RequestId: grant}); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}

	c.mu.Lock()
	delete(c.held, id)
	c.mu.Unlock()
	return nil
}

// HandleRequest decides a request forwarded by a remote participant.
func (c *Coordinator) HandleRequest(ctx context.Context, msg RequestMessage) {
	if c.role != roleAuthority {
		slog.WarnContext(ctx, "ignoring lock request on non-authority", "request", msg.RequestId)
		return
	}

	now := c.clock.Now()
	resp := ResponseMessage{
		RequestId:   msg.RequestId,
		Entity:      msg.Entity,
		Kind:        msg.Kind,
		Participant: msg.Participant,
	}

	switch {
	case msg.Entity.IsZero() || !msg.Kind.Valid() || msg.Participant == "":
		slog.WarnContext(ctx, "rejecting malformed lock request",
			"request", msg.RequestId, "entity", msg.Entity, "participant", msg.Participant)
		resp.Reason = ReasonInvalid
	case !c.limiter.allow(msg.Participant, now):
		slog.WarnContext(ctx, "rate limiting lock request",
			"request", msg.RequestId, "entity", msg.Entity, "participant", msg.Participant)
		resp.Reason = ReasonRateLimited
	default:
		outcome := c.table.TryAcquireGrant(msg.Entity, msg.Kind, msg.Participant, msg.RequestId, now)
		resp.Acquired = bool(outcome)
		if !resp.Acquired {
			resp.Reason = ReasonHeld
			resp.Holder, _ = c.table.Holder(msg.Entity)
		}
		slog.DebugContext(ctx, "lock decision",
			"entity", msg.Entity, "kind", msg.Kind, "participant", msg.Participant, "outcome", outcome)
	}

	if c.transport == nil {
		return
	}
	if err := c.transport.SendResponse(resp); err != nil {
		slog.WarnContext(ctx, "sending lock response", "request", msg.RequestId, "participant", msg.Participant, "error", err)
	}
}

// HandleResponse resolves the pending request the response belongs to.
// Responses for unknown requests are discarded; an unexpected Exclusive grant
// is handed straight back to the authority so it does not leak.
func (c *Coordinator) HandleResponse(ctx context.Context, msg ResponseMessage) {
	p := c.take(msg.RequestId, msg.Acquired)
	if p == nil {
		slog.DebugContext(ctx, "discarding response for unknown request", "request", msg.RequestId, "entity", msg.Entity)
		if msg.Acquired && msg.Kind == KindExclusive && msg.Participant == c.participant {
			c.relinquish(ctx, msg.Entity, msg.RequestId)
		}
		return
	}

	c.resolvePending(p, msg.Acquired, msg.Reason, msg.Holder)
}

// HandleRelease applies a release sent by a remote participant. It returns
// ErrNotHolder when the participant does not hold the entity, or when the
// release names a grant that has since been superseded.
func (c *Coordinator) HandleRelease(ctx context.Context, msg ReleaseMessage) error {
	if c.role != roleAuthority {
		slog.WarnContext(ctx, "ignoring lock release on non-authority", "entity", msg.Entity)
		return fmt.Errorf("%w: %s is not the authority", ErrInvalidRequest, c.participant)
	}

	if err := c.table.ReleaseGrant(msg.Entity, msg.Participant, msg.RequestId, c.clock.Now()); err != nil {
		slog.WarnContext(ctx, "release by non-holder",
			"entity", msg.Entity, "participant", msg.Participant, "request", msg.RequestId)
		return err
	}
	slog.InfoContext(ctx, "lock released", "entity", msg.Entity, "participant", msg.Participant)
	return nil
}

// HandleStateChange keeps a requester's view of its own locks in line with
// the authority, e.g. when a lock is retired out from under it.
func (c *Coordinator) HandleStateChange(ctx context.Context, sc StateChange) {
	if c.role != roleRequester || sc.Held || sc.Holder != c.participant {
		return
	}

	c.mu.Lock()
	grant, held := c.held[sc.Entity]
	// A release of an older grant says nothing about the one we hold now.
	if held && sc.Grant != "" && sc.Grant != grant {
		held = false
	}
	if held {
		delete(c.held, sc.Entity)
	}
	c.mu.Unlock()

	if held {
		slog.InfoContext(ctx, "authority released our lock", "entity", sc.Entity, "cause", sc.Cause)
	}
}

// OnParticipantDisconnected releases every lock p held. On a requester only
// its own disconnection matters: all pending requests resolve as denied.
func (c *Coordinator) OnParticipantDisconnected(ctx context.Context, p ParticipantId) {
	if c.role == roleAuthority {
		released := c.table.ReleaseAll(p, c.clock.Now())
		c.limiter.forget(p)
		if len(released) > 0 {
			slog.InfoContext(ctx, "released locks for disconnected participant", "participant", p, "count", len(released))
		}
		return
	}

	if p != c.participant {
		return
	}

	c.mu.Lock()
	var dropped []*pendingRequest
	for id, pr := range c.pending {
		dropped = append(dropped, pr)
		delete(c.pending, id)
	}
	c.inflight = make(map[inflightKey]RequestId)
	c.held = make(map[entity.Id]RequestId)
	c.mu.Unlock()

	for _, pr := range dropped {
		c.resolvePending(pr, false, ReasonDisconnected, "")
	}
}

// HandleDisconnect is the transport-facing form of OnParticipantDisconnected.
func (c *Coordinator) HandleDisconnect(ctx context.Context, msg DisconnectMessage) {
	c.OnParticipantDisconnected(ctx, msg.Participant)
}

// Retire forgets a destroyed entity. Pending requests for it resolve as
// denied with ReasonRetired.
func (c *Coordinator) Retire(ctx context.Context, id entity.Id) {
	if c.role == roleAuthority {
		c.table.Retire(id, c.clock.Now())
		return
	}

	c.mu.Lock()
	delete(c.held, id)
	var dropped []*pendingRequest
	for rid, pr := range c.pending {
		if pr.req.Entity != id {
			continue
		}
		dropped = append(dropped, pr)
		delete(c.pending, rid)
		delete(c.inflight, inflightKey{entity: id, participant: pr.req.Participant})
	}
	c.mu.Unlock()

	for _, pr := range dropped {
		c.resolvePending(pr, false, ReasonRetired, "")
	}
	if len(dropped) > 0 {
		slog.DebugContext(ctx, "dropped pending requests for retired entity", "entity", id, "count", len(dropped))
	}
}

// Holds reports whether this coordinator's participant holds id.
func (c *Coordinator) Holds(id entity.Id) bool {
	if c.role == roleAuthority {
		holder, ok := c.table.Holder(id)
		return ok && holder == c.participant
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.held[id]
	return ok
}

// Pending returns the number of unresolved forwarded requests.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Tick expires forwarded requests whose deadline has passed and evicts idle
// lock table entries.
func (c *Coordinator) Tick(ctx context.Context) error {
	now := c.clock.Now()

	c.mu.Lock()
	var expired []RequestId
	for id, p := range c.pending {
		if !now.Before(p.deadline) {
			expired = append(expired, id)
		}
	}
	c.mu.Unlock()

	for _, id := range expired {
		p := c.take(id, false)
		if p == nil {
			continue
		}
		c.resolvePending(p, false, ReasonTimeout, "")
		slog.WarnContext(ctx, "lock request timed out",
			"entity", p.req.Entity, "kind", p.req.Kind, "request", id, "timeout", c.requestTimeout)
		if p.req.Kind == KindExclusive {
			c.relinquish(ctx, p.req.Entity, id)
		}
	}

	if c.table != nil {
		if n := c.table.Sweep(now, c.idleEviction); n > 0 {
			slog.DebugContext(ctx, "evicted idle lock entries", "count", n)
		}
	}
	return nil
}
