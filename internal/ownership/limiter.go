package ownership

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// participantLimiter keeps one token bucket per remote participant so a
// single misbehaving client cannot flood the authority with requests.
type participantLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[ParticipantId]*rate.Limiter
}

func newParticipantLimiter(perSecond float64, burst int) *participantLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &participantLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[ParticipantId]*rate.Limiter),
	}
}

// allow reports whether p may issue another request at now. A nil limiter
// allows everything.
func (l *participantLimiter) allow(p ParticipantId, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[p]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[p] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(now, 1)
}

func (l *participantLimiter) forget(p ParticipantId) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, p)
}
