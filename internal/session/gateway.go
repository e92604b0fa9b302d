package session

import (
	"context"

	"github.com/pixil98/go-simlock/internal/ownership"
)

// Authority is the part of the authority coordinator the gateway forwards to.
type Authority interface {
	Disconnecter
	HandleRequest(context.Context, ownership.RequestMessage)
	HandleRelease(context.Context, ownership.ReleaseMessage) error
}

// Gateway sits between the transport and the authority so every inbound
// message counts as session activity and disconnect notices end sessions.
type Gateway struct {
	sessions  *Manager
	authority Authority
}

func NewGateway(sessions *Manager, authority Authority) *Gateway {
	return &Gateway{sessions: sessions, authority: authority}
}

func (g *Gateway) HandleRequest(ctx context.Context, msg ownership.RequestMessage) {
	if msg.Participant != "" {
		g.sessions.Touch(ctx, msg.Participant)
	}
	g.authority.HandleRequest(ctx, msg)
}

func (g *Gateway) HandleRelease(ctx context.Context, msg ownership.ReleaseMessage) error {
	if msg.Participant != "" {
		g.sessions.Touch(ctx, msg.Participant)
	}
	return g.authority.HandleRelease(ctx, msg)
}

func (g *Gateway) HandleDisconnect(ctx context.Context, msg ownership.DisconnectMessage) {
	g.sessions.Disconnect(ctx, msg.Participant)
}
