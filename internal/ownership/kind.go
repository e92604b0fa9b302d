package ownership

import "fmt"

// Kind selects how a lock request is treated by the lock table.
type Kind int

const (
	// KindExclusive is held until released or until the holder disconnects.
	KindExclusive Kind = iota + 1
	// KindTransient is a point-in-time availability check that is never stored.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindExclusive:
		return "exclusive"
	case KindTransient:
		return "transient"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) Valid() bool {
	return k == KindExclusive || k == KindTransient
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown lock kind: %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "exclusive":
		*k = KindExclusive
	case "transient":
		*k = KindTransient
	default:
		return fmt.Errorf("unknown lock kind: %s", text)
	}
	return nil
}

// Outcome is the lock table's answer to TryAcquire.
type Outcome bool

const (
	Granted Outcome = true
	Denied  Outcome = false
)

func (o Outcome) String() string {
	if o {
		return "granted"
	}
	return "denied"
}

// Reason explains why a request was denied. It is empty for grants.
type Reason string

const (
	ReasonHeld             Reason = "held"
	ReasonTimeout          Reason = "timeout"
	ReasonCancelled        Reason = "cancelled"
	ReasonTransportFailure Reason = "transport-failure"
	ReasonRateLimited      Reason = "rate-limited"
	ReasonDisconnected     Reason = "disconnected"
	ReasonRetired          Reason = "retired"
	ReasonInvalid          Reason = "invalid"
)
