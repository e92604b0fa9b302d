package command

import (
	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-simlock/internal/session"
)

type SessionConfig struct {
	IdleTimeout     string `json:"idle_timeout"`
	LinklessTimeout string `json:"linkless_timeout"`
}

func (c *SessionConfig) validate() error {
	el := errors.NewErrorList()

	if _, err := parseOptionalDuration("idle_timeout", c.IdleTimeout); err != nil {
		el.Add(err)
	}
	if _, err := parseOptionalDuration("linkless_timeout", c.LinklessTimeout); err != nil {
		el.Add(err)
	}

	return el.Err()
}

func (c *SessionConfig) managerOpts() []session.ManagerOpt {
	var opts []session.ManagerOpt
	if c.IdleTimeout != "" {
		d, _ := parseOptionalDuration("idle_timeout", c.IdleTimeout)
		opts = append(opts, session.WithIdleTimeout(d))
	}
	if d, _ := parseOptionalDuration("linkless_timeout", c.LinklessTimeout); d > 0 {
		opts = append(opts, session.WithLinklessTimeout(d))
	}
	return opts
}
