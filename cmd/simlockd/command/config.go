package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-simlock/internal/ownership"
)

const defaultParticipant = ownership.ParticipantId("host")

type Config struct {
	ParticipantId string          `json:"participant_id"`
	TickInterval  string          `json:"tick_interval"`
	Ownership     OwnershipConfig `json:"ownership"`
	Desync        DesyncConfig    `json:"desync"`
	Session       SessionConfig   `json:"session"`
	Nats          NatsConfig      `json:"nats"`
	Entities      EntitiesConfig  `json:"entities"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if c.TickInterval != "" {
		d, err := time.ParseDuration(c.TickInterval)
		if err != nil {
			el.Add(fmt.Errorf("parsing tick_interval: %w", err))
		} else if d <= 0 {
			el.Add(fmt.Errorf("tick_interval must be positive"))
		}
	}

	el.Add(c.Ownership.validate())
	el.Add(c.Desync.validate())
	el.Add(c.Session.validate())
	el.Add(c.Nats.validate())
	el.Add(c.Entities.validate())

	return el.Err()
}

func (c *Config) participant() ownership.ParticipantId {
	if c.ParticipantId == "" {
		return defaultParticipant
	}
	return ownership.ParticipantId(c.ParticipantId)
}

func (c *Config) tickInterval() time.Duration {
	d, _ := time.ParseDuration(c.TickInterval)
	return d
}

// parseOptionalDuration parses s, treating "" as unset.
func parseOptionalDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}
