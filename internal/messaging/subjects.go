package messaging

import (
	"fmt"
	"strings"

	"github.com/pixil98/go-simlock/internal/ownership"
)

const DefaultSubjectPrefix = "simlock"

// Subjects names the NATS subjects lock traffic uses. Requests, releases and
// disconnect notices share the authority subject so the authority sees them
// in the order each participant sent them.
type Subjects struct {
	prefix string
}

func NewSubjects(prefix string) Subjects {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return Subjects{prefix: prefix}
}

func (s Subjects) Authority() string {
	return s.prefix + ".authority"
}

func (s Subjects) Response(p ownership.ParticipantId) string {
	return fmt.Sprintf("%s.response.%s", s.prefix, p)
}

func (s Subjects) State() string {
	return s.prefix + ".state"
}

func (s Subjects) Guard() string {
	return s.prefix + ".guard"
}

func (s Subjects) Holds() string {
	return s.prefix + ".holds"
}

func (s Subjects) Mutation() string {
	return s.prefix + ".mutation"
}

// validToken reports whether p can be embedded in a subject as one token.
func validToken(p ownership.ParticipantId) error {
	if p == "" {
		return fmt.Errorf("participant id is required")
	}
	if strings.ContainsAny(string(p), ".*> \t\r\n") {
		return fmt.Errorf("participant id %q is not a valid subject token", p)
	}
	return nil
}
