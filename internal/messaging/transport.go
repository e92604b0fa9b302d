package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/pixil98/go-simlock/internal/construct"
	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/ownership"
)

type envelopeType string

const (
	envelopeRequest    envelopeType = "request"
	envelopeRelease    envelopeType = "release"
	envelopeDisconnect envelopeType = "disconnect"
)

// envelope wraps everything sent to the authority subject.
type envelope struct {
	Type       envelopeType                 `json:"type"`
	Request    *ownership.RequestMessage    `json:"request,omitempty"`
	Release    *ownership.ReleaseMessage    `json:"release,omitempty"`
	Disconnect *ownership.DisconnectMessage `json:"disconnect,omitempty"`
}

// GuardRequest asks the authority whether target may be deconstructed.
type GuardRequest struct {
	Target      entity.Id               `json:"target"`
	Participant ownership.ParticipantId `json:"participant"`
}

// GuardReply answers a GuardRequest.
type GuardReply struct {
	Decision construct.Decision `json:"decision"`
	Error    string             `json:"error,omitempty"`
}

// ReleaseReply answers a release sent with RequestRelease.
type ReleaseReply struct {
	Entity   entity.Id `json:"entity"`
	Released bool      `json:"released"`
	Error    string    `json:"error,omitempty"`
}

// AuthorityHandler consumes traffic addressed to the authority.
type AuthorityHandler interface {
	HandleRequest(context.Context, ownership.RequestMessage)
	HandleRelease(context.Context, ownership.ReleaseMessage) error
	HandleDisconnect(context.Context, ownership.DisconnectMessage)
}

// RequesterHandler consumes traffic addressed to one requester.
type RequesterHandler interface {
	HandleResponse(context.Context, ownership.ResponseMessage)
	HandleStateChange(context.Context, ownership.StateChange)
}

// GuardChecker answers deconstruction checks; *construct.Guard satisfies it.
type GuardChecker interface {
	Check(target entity.Id, participant ownership.ParticipantId, fn func(construct.Decision)) error
}

type TransportOpt func(*Transport)

func WithSubjectPrefix(prefix string) TransportOpt {
	return func(t *Transport) {
		t.subjects = NewSubjects(prefix)
	}
}

// Transport carries lock protocol messages over a NATS connection.
type Transport struct {
	conn     *nats.Conn
	subjects Subjects

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewTransport(conn *nats.Conn, opts ...TransportOpt) *Transport {
	t := &Transport{
		conn:     conn,
		subjects: NewSubjects(""),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Subjects() Subjects {
	return t.subjects
}

func (t *Transport) SendRequest(m ownership.RequestMessage) error {
	return t.publish(t.subjects.Authority(), envelope{Type: envelopeRequest, Request: &m})
}

func (t *Transport) SendRelease(m ownership.ReleaseMessage) error {
	return t.publish(t.subjects.Authority(), envelope{Type: envelopeRelease, Release: &m})
}

// SendDisconnect tells the authority that p has left.
func (t *Transport) SendDisconnect(p ownership.ParticipantId) error {
	return t.publish(t.subjects.Authority(), envelope{
		Type:       envelopeDisconnect,
		Disconnect: &ownership.DisconnectMessage{Participant: p},
	})
}

func (t *Transport) SendResponse(m ownership.ResponseMessage) error {
	if err := validToken(m.Participant); err != nil {
		return err
	}
	return t.publish(t.subjects.Response(m.Participant), m)
}

func (t *Transport) PublishState(sc ownership.StateChange) error {
	return t.publish(t.subjects.State(), sc)
}

func (t *Transport) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", subject, err)
	}
	if err := t.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (t *Transport) Flush() error {
	return t.conn.Flush()
}

func (t *Transport) subscribe(subject string, handler nats.MsgHandler) error {
	sub, err := t.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return nil
}

// ServeAuthority dispatches requests, releases and disconnect notices to h.
func (t *Transport) ServeAuthority(ctx context.Context, h AuthorityHandler) error {
	return t.subscribe(t.subjects.Authority(), func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			slog.WarnContext(ctx, "dropping malformed authority message", "error", err)
			return
		}

		switch {
		case env.Type == envelopeRequest && env.Request != nil:
			h.HandleRequest(ctx, *env.Request)
		case env.Type == envelopeRelease && env.Release != nil:
			err := h.HandleRelease(ctx, *env.Release)
			if msg.Reply == "" {
				if err != nil {
					slog.DebugContext(ctx, "release refused", "entity", env.Release.Entity, "participant", env.Release.Participant, "error", err)
				}
				return
			}
			reply := ReleaseReply{Entity: env.Release.Entity, Released: err == nil}
			if err != nil {
				reply.Error = err.Error()
			}
			t.respond(ctx, msg, reply)
		case env.Type == envelopeDisconnect && env.Disconnect != nil:
			h.HandleDisconnect(ctx, *env.Disconnect)
		default:
			slog.WarnContext(ctx, "dropping unknown authority message", "type", env.Type)
		}
	})
}

// ServeRequester delivers p's responses and every state change to h.
func (t *Transport) ServeRequester(ctx context.Context, p ownership.ParticipantId, h RequesterHandler) error {
	if err := validToken(p); err != nil {
		return err
	}

	err := t.subscribe(t.subjects.Response(p), func(msg *nats.Msg) {
		var resp ownership.ResponseMessage
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			slog.WarnContext(ctx, "dropping malformed lock response", "error", err)
			return
		}
		h.HandleResponse(ctx, resp)
	})
	if err != nil {
		return err
	}

	return t.WatchState(ctx, h.HandleStateChange)
}

// WatchState calls fn for every lock state change broadcast by the authority.
func (t *Transport) WatchState(ctx context.Context, fn func(context.Context, ownership.StateChange)) error {
	return t.subscribe(t.subjects.State(), func(msg *nats.Msg) {
		var sc ownership.StateChange
		if err := json.Unmarshal(msg.Data, &sc); err != nil {
			slog.WarnContext(ctx, "dropping malformed state change", "error", err)
			return
		}
		fn(ctx, sc)
	})
}

// respond answers a request-reply message, logging failures since the
// requester is only left waiting for its timeout.
func (t *Transport) respond(ctx context.Context, msg *nats.Msg, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.WarnContext(ctx, "encoding reply", "subject", msg.Subject, "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.WarnContext(ctx, "sending reply", "subject", msg.Subject, "error", err)
	}
}

// request sends v to subject and decodes the reply into out.
func (t *Transport) request(ctx context.Context, subject string, v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", subject, err)
	}

	msg, err := t.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ownership.ErrTransportFailure, err)
	}

	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("decoding %s reply: %w", subject, err)
	}
	return nil
}

// RequestRelease sends a release and waits for the authority's verdict.
func (t *Transport) RequestRelease(ctx context.Context, m ownership.ReleaseMessage) (ReleaseReply, error) {
	var reply ReleaseReply
	err := t.request(ctx, t.subjects.Authority(), envelope{Type: envelopeRelease, Release: &m}, &reply)
	return reply, err
}

// ServeGuard answers deconstruction checks. The reply is sent when the
// check resolves, which may be after the handler returns.
func (t *Transport) ServeGuard(ctx context.Context, g GuardChecker) error {
	return t.subscribe(t.subjects.Guard(), func(msg *nats.Msg) {
		respond := func(reply GuardReply) {
			t.respond(ctx, msg, reply)
		}

		var req GuardRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			respond(GuardReply{Error: fmt.Sprintf("decoding request: %v", err)})
			return
		}

		err := g.Check(req.Target, req.Participant, func(d construct.Decision) {
			respond(GuardReply{Decision: d})
		})
		if err != nil {
			respond(GuardReply{Decision: construct.Decision{Target: req.Target}, Error: err.Error()})
		}
	})
}

// RequestGuard asks the authority for a deconstruction decision.
func (t *Transport) RequestGuard(ctx context.Context, req GuardRequest) (construct.Decision, error) {
	var reply GuardReply
	if err := t.request(ctx, t.subjects.Guard(), req, &reply); err != nil {
		return construct.Decision{}, err
	}
	if reply.Error != "" {
		return reply.Decision, errors.New(reply.Error)
	}
	return reply.Decision, nil
}

// Close removes every subscription made through t. The connection itself is
// owned by the caller.
func (t *Transport) Close() error {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
