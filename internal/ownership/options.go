package ownership

import "time"

const (
	DefaultRequestTimeout = 2 * time.Second
	DefaultIdleEviction   = 10 * time.Minute
)

type CoordinatorOpt func(*Coordinator)

// WithClock replaces the wall clock used for deadlines and timestamps.
func WithClock(c Clock) CoordinatorOpt {
	return func(co *Coordinator) {
		if c != nil {
			co.clock = c
		}
	}
}

// WithRequestTimeout sets how long a forwarded request may stay pending.
func WithRequestTimeout(d time.Duration) CoordinatorOpt {
	return func(co *Coordinator) {
		if d > 0 {
			co.requestTimeout = d
		}
	}
}

// WithIdleEviction sets how long a free lock table entry is kept.
func WithIdleEviction(d time.Duration) CoordinatorOpt {
	return func(co *Coordinator) {
		if d > 0 {
			co.idleEviction = d
		}
	}
}

// WithRateLimit caps how many remote requests each participant may send to
// the authority per second. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) CoordinatorOpt {
	return func(co *Coordinator) {
		co.limiter = newParticipantLimiter(perSecond, burst)
	}
}
