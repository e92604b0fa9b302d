package ownership

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSendFailed = errors.New("send failed")

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// recordingTransport captures outbound messages and optionally fails sends.
type recordingTransport struct {
	mu        sync.Mutex
	requests  []RequestMessage
	responses []ResponseMessage
	releases  []ReleaseMessage
	states    []StateChange
	fail      bool
}

func (r *recordingTransport) SendRequest(m RequestMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errSendFailed
	}
	r.requests = append(r.requests, m)
	return nil
}

func (r *recordingTransport) SendResponse(m ResponseMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errSendFailed
	}
	r.responses = append(r.responses, m)
	return nil
}

func (r *recordingTransport) SendRelease(m ReleaseMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errSendFailed
	}
	r.releases = append(r.releases, m)
	return nil
}

func (r *recordingTransport) PublishState(sc StateChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errSendFailed
	}
	r.states = append(r.states, sc)
	return nil
}

// loopback wires requesters to an authority with synchronous delivery.
// Setting drop discards everything sent toward the authority.
type loopback struct {
	authority  *Coordinator
	requesters map[ParticipantId]*Coordinator
	drop       bool
}

func (l *loopback) SendRequest(m RequestMessage) error {
	if !l.drop {
		l.authority.HandleRequest(context.Background(), m)
	}
	return nil
}

func (l *loopback) SendResponse(m ResponseMessage) error {
	if r, ok := l.requesters[m.Participant]; ok {
		r.HandleResponse(context.Background(), m)
	}
	return nil
}

func (l *loopback) SendRelease(m ReleaseMessage) error {
	if !l.drop {
		_ = l.authority.HandleRelease(context.Background(), m)
	}
	return nil
}

func (l *loopback) PublishState(sc StateChange) error {
	for _, r := range l.requesters {
		r.HandleStateChange(context.Background(), sc)
	}
	return nil
}

// resultRecorder counts callback invocations.
type resultRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultRecorder) record(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *resultRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}
