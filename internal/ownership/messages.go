package ownership

import (
	"time"

	"github.com/pixil98/go-simlock/internal/entity"
)

// RequestMessage carries a lock request from a requester to the authority.
type RequestMessage struct {
	RequestId   RequestId     `json:"request_id"`
	Entity      entity.Id     `json:"entity"`
	Kind        Kind          `json:"kind"`
	Participant ParticipantId `json:"participant"`
}

// ResponseMessage carries the authority's decision back to the requester.
type ResponseMessage struct {
	RequestId   RequestId     `json:"request_id"`
	Entity      entity.Id     `json:"entity"`
	Kind        Kind          `json:"kind"`
	Participant ParticipantId `json:"participant"`
	Acquired    bool          `json:"acquired"`
	Reason      Reason        `json:"reason,omitempty"`
	// Holder names who blocked a request denied with ReasonHeld.
	Holder ParticipantId `json:"holder,omitempty"`
}

// ReleaseMessage asks the authority to release an Exclusive lock. RequestId,
// when set, names the grant being released; the authority ignores it if that
// grant is no longer the current one.
type ReleaseMessage struct {
	Entity      entity.Id     `json:"entity"`
	Participant ParticipantId `json:"participant"`
	RequestId   RequestId     `json:"request_id,omitempty"`
}

// DisconnectMessage reports that a participant's session has ended.
type DisconnectMessage struct {
	Participant ParticipantId `json:"participant"`
}

// Cause names the operation that produced a StateChange.
type Cause string

const (
	CauseAcquire    Cause = "acquire"
	CauseRelease    Cause = "release"
	CauseDisconnect Cause = "disconnect"
	CauseRetire     Cause = "retire"
)

// StateChange is broadcast every time the authority's lock table mutates.
// Seq increases by one per change.
type StateChange struct {
	Seq    uint64        `json:"seq"`
	Entity entity.Id     `json:"entity"`
	Holder ParticipantId `json:"holder,omitempty"`
	Grant  RequestId     `json:"grant,omitempty"`
	Held   bool          `json:"held"`
	Cause  Cause         `json:"cause"`
	At     time.Time     `json:"at"`
}

// Transport moves protocol messages between participants. Implementations
// must deliver messages for a single entity in order; loss is tolerated.
type Transport interface {
	SendRequest(RequestMessage) error
	SendResponse(ResponseMessage) error
	SendRelease(ReleaseMessage) error
	PublishState(StateChange) error
}
