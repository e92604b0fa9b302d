package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultTickLength = 250 * time.Millisecond
)

// Ticker is periodic maintenance work: request timeouts, lock table
// eviction, session sweeps.
type Ticker interface {
	Tick(context.Context) error
}

// Driver runs its tickers in order on a fixed interval.
type Driver struct {
	tickLength time.Duration
	tickers    map[string]Ticker
	order      []string
}

func NewDriver(opts ...DriverOpt) *Driver {
	d := &Driver{
		tickLength: DefaultTickLength,
		tickers:    map[string]Ticker{},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Add registers t under name. Tickers run in the order they were added.
func (d *Driver) Add(name string, t Ticker) {
	if _, ok := d.tickers[name]; !ok {
		d.order = append(d.order, name)
	}
	d.tickers[name] = t
}

func (d *Driver) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "driver started", "tick", d.tickLength, "tickers", d.order)

	ticker := time.NewTicker(d.tickLength)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := d.Tick(ctx)
			if err != nil {
				return err
			}
		}
	}
}

// Tick runs every ticker once, stopping at the first error.
func (d *Driver) Tick(ctx context.Context) error {
	for _, name := range d.order {
		if err := d.tickers[name].Tick(ctx); err != nil {
			return fmt.Errorf("ticking %s: %w", name, err)
		}
	}
	return nil
}
