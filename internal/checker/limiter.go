package checker

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limiter is the availability lookup budget shared by every job in the
// process. It caps requests in flight and requests per second. Callers must
// pair every successful Acquire with exactly one Release.
type Limiter struct {
	slots    chan struct{}
	rate     *rate.Limiter
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// NewLimiter creates a limiter allowing maxInFlight concurrent lookups and
// perSecond lookups per second with the given burst
func NewLimiter(maxInFlight int, perSecond float64, burst int) *Limiter {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		slots: make(chan struct{}, maxInFlight),
		rate:  rate.NewLimiter(limit, burst),
	}
}

// Acquire blocks until a slot and a rate token are available or ctx is done
func (l *Limiter) Acquire(ctx context.Context) error {
	l.waiting.Add(1)
	defer l.waiting.Add(-1)

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := l.rate.Wait(ctx); err != nil {
		<-l.slots
		return err
	}

	l.inFlight.Add(1)
	return nil
}

// Release returns the slot taken by Acquire
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	<-l.slots
}

// InFlight returns the number of lookups currently holding a slot
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

// Waiting returns the number of callers blocked in Acquire
func (l *Limiter) Waiting() int64 {
	return l.waiting.Load()
}

// Capacity returns the in-flight cap
func (l *Limiter) Capacity() int {
	return cap(l.slots)
}
