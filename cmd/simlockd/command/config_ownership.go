package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-simlock/internal/ownership"
)

type OwnershipConfig struct {
	RequestTimeout string  `json:"request_timeout"`
	IdleEviction   string  `json:"idle_eviction"`
	MaxRequestRate float64 `json:"max_request_rate"`
	RequestBurst   int     `json:"request_burst"`
}

func (c *OwnershipConfig) validate() error {
	el := errors.NewErrorList()

	if _, err := parseOptionalDuration("request_timeout", c.RequestTimeout); err != nil {
		el.Add(err)
	}
	if _, err := parseOptionalDuration("idle_eviction", c.IdleEviction); err != nil {
		el.Add(err)
	}
	if c.MaxRequestRate < 0 {
		el.Add(fmt.Errorf("max_request_rate must not be negative"))
	}
	if c.RequestBurst < 0 {
		el.Add(fmt.Errorf("request_burst must not be negative"))
	}

	return el.Err()
}

func (c *OwnershipConfig) coordinatorOpts() []ownership.CoordinatorOpt {
	var opts []ownership.CoordinatorOpt
	if d, _ := parseOptionalDuration("request_timeout", c.RequestTimeout); d > 0 {
		opts = append(opts, ownership.WithRequestTimeout(d))
	}
	if d, _ := parseOptionalDuration("idle_eviction", c.IdleEviction); d > 0 {
		opts = append(opts, ownership.WithIdleEviction(d))
	}
	if c.MaxRequestRate > 0 {
		opts = append(opts, ownership.WithRateLimit(c.MaxRequestRate, c.RequestBurst))
	}
	return opts
}
