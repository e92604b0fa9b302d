package messaging

import (
	"strings"

	"github.com/pixil98/go-simlock/internal/ownership"
)

const participantConnPrefix = "simlock-participant:"

// ConnectionName is the NATS connection name a participant dials with. The
// authority maps open connections back to sessions through it.
func ConnectionName(p ownership.ParticipantId) string {
	return participantConnPrefix + string(p)
}

// ParticipantFromConnection reverses ConnectionName. Connections not named
// after a participant report false.
func ParticipantFromConnection(name string) (ownership.ParticipantId, bool) {
	p, ok := strings.CutPrefix(name, participantConnPrefix)
	if !ok || p == "" {
		return "", false
	}
	return ownership.ParticipantId(p), true
}
