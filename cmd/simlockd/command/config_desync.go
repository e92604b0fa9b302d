package command

import (
	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-simlock/internal/desync"
)

type DesyncConfig struct {
	Cooldown string        `json:"cooldown"`
	Policy   desync.Policy `json:"policy"`

	// SafeBuilding defaults to on when omitted.
	SafeBuilding *bool `json:"safe_building,omitempty"`
}

func (c *DesyncConfig) validate() error {
	el := errors.NewErrorList()

	if _, err := parseOptionalDuration("cooldown", c.Cooldown); err != nil {
		el.Add(err)
	}

	return el.Err()
}

func (c *DesyncConfig) BuildTracker() *desync.Tracker {
	opts := []desync.TrackerOpt{desync.WithPolicy(c.Policy)}
	if c.Cooldown != "" {
		d, _ := parseOptionalDuration("cooldown", c.Cooldown)
		opts = append(opts, desync.WithCooldown(d))
	}
	if c.SafeBuilding != nil {
		opts = append(opts, desync.WithSafeBuilding(*c.SafeBuilding))
	}
	return desync.NewTracker(opts...)
}
