package desync

import "time"

const DefaultCooldown = 5 * time.Second

type TrackerOpt func(*Tracker)

// WithCooldown sets how long destructive actions stay blocked after a
// mutation. Zero disables the cooldown.
func WithCooldown(d time.Duration) TrackerOpt {
	return func(t *Tracker) {
		if d >= 0 {
			t.cooldown = d
		}
	}
}

func WithPolicy(p Policy) TrackerOpt {
	return func(t *Tracker) {
		t.policy = p
	}
}

// WithSafeBuilding toggles whether a desynced entity blocks destructive
// actions. The cooldown applies either way.
func WithSafeBuilding(enabled bool) TrackerOpt {
	return func(t *Tracker) {
		t.safeBuilding = enabled
	}
}
