package driver

import "time"

type DriverOpt func(*Driver)

func WithTickLength(tickLength time.Duration) DriverOpt {
	return func(d *Driver) {
		if tickLength > 0 {
			d.tickLength = tickLength
		}
	}
}

// WithTicker registers t under name, see Driver.Add.
func WithTicker(name string, t Ticker) DriverOpt {
	return func(d *Driver) {
		d.Add(name, t)
	}
}
