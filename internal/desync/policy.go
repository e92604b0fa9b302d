package desync

import "fmt"

// Policy decides which reason wins when an entity is both cooling down and
// desynced.
type Policy int

const (
	// PolicyCooldownFirst reports a recent update before a desync.
	PolicyCooldownFirst Policy = iota
	// PolicyDesyncFirst reports a desync before a recent update.
	PolicyDesyncFirst
	// PolicyEitherBlocks reports every reason that applies.
	PolicyEitherBlocks
)

func (p Policy) String() string {
	switch p {
	case PolicyCooldownFirst:
		return "cooldown-first"
	case PolicyDesyncFirst:
		return "desync-first"
	case PolicyEitherBlocks:
		return "either-blocks"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a configured policy name. An empty name selects
// PolicyCooldownFirst.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "cooldown-first":
		return PolicyCooldownFirst, nil
	case "desync-first":
		return PolicyDesyncFirst, nil
	case "either-blocks":
		return PolicyEitherBlocks, nil
	}
	return 0, fmt.Errorf("unknown desync policy: %s", s)
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
