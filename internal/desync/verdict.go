package desync

import "strings"

// Reason names why a destructive action was blocked.
type Reason string

const (
	ReasonRecentUpdate Reason = "recent-update"
	ReasonDesynced     Reason = "desynced"
)

// Verdict is the answer of a destructive action guard. A blocked verdict
// carries at least one reason.
type Verdict struct {
	Allowed bool     `json:"allowed"`
	Reasons []Reason `json:"reasons,omitempty"`
}

func Allow() Verdict {
	return Verdict{Allowed: true}
}

func Block(reasons ...Reason) Verdict {
	return Verdict{Reasons: reasons}
}

// Reason returns the first blocking reason, or "" when allowed.
func (v Verdict) Reason() Reason {
	if v.Allowed || len(v.Reasons) == 0 {
		return ""
	}
	return v.Reasons[0]
}

func (v Verdict) String() string {
	if v.Allowed {
		return "allowed"
	}
	parts := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		parts[i] = string(r)
	}
	return "blocked(" + strings.Join(parts, ",") + ")"
}
