package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirychukyurii/domain-search/internal/model"
)

const defaultBufferSize = 64

// MemoryPublisher delivers events to subscribers in the same process
type MemoryPublisher struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
	logger *slog.Logger
}

// NewMemoryPublisher creates an in-process publisher. Every subscriber gets a
// buffer of the given size; a listener whose buffer is full misses the event.
func NewMemoryPublisher(buffer int, logger *slog.Logger) *MemoryPublisher {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &MemoryPublisher{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Publish never blocks on slow listeners
func (p *MemoryPublisher) Publish(_ context.Context, event model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for sub := range p.subs[event.JobID] {
		select {
		case sub.events <- event:
		default:
			p.logger.Warn("dropping event for slow subscriber",
				slog.String("job_id", event.JobID),
				slog.Int64("seq", event.Seq),
				slog.String("type", string(event.Type)))
		}
	}

	if event.Terminal() {
		for sub := range p.subs[event.JobID] {
			close(sub.events)
			sub.finish()
		}
		delete(p.subs, event.JobID)
	}

	return nil
}

// Subscribe registers a listener; it is closed when ctx is done
func (p *MemoryPublisher) Subscribe(ctx context.Context, jobID string) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(jobID, p.buffer, func() { p.remove(sub) })

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(sub.events)
		sub.finish()
		return sub, nil
	}
	if p.subs[jobID] == nil {
		p.subs[jobID] = make(map[*Subscription]struct{})
	}
	p.subs[jobID][sub] = struct{}{}
	p.mu.Unlock()

	sub.watch(ctx)
	return sub, nil
}

// remove detaches a subscription if it is still registered
func (p *MemoryPublisher) remove(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.subs[sub.JobID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.events)
	sub.finish()
	if len(set) == 0 {
		delete(p.subs, sub.JobID)
	}
}

// SubscriberCount returns the number of live listeners for a job
func (p *MemoryPublisher) SubscriberCount(jobID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[jobID])
}

// Close ends every subscription
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for jobID, set := range p.subs {
		for sub := range set {
			close(sub.events)
			sub.finish()
		}
		delete(p.subs, jobID)
	}
	p.closed = true
	return nil
}
