package events

import (
	"context"
	"sync"

	"github.com/kirychukyurii/domain-search/internal/model"
)

// Publisher fans job events out to live subscribers.
//
// Delivery is at-most-once per connected listener: events published while
// nobody is subscribed are dropped, never replayed.
type Publisher interface {
	// Publish delivers the event to every current subscriber of event.JobID
	Publish(ctx context.Context, event model.Event) error

	// Subscribe registers a live listener for jobID
	Subscribe(ctx context.Context, jobID string) (*Subscription, error)

	// Close releases all subscriptions and connections
	Close() error
}

// Subscription is a live event stream for one job
type Subscription struct {
	JobID string

	events    chan model.Event
	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
	stop      func()
}

func newSubscription(jobID string, buffer int, stop func()) *Subscription {
	return &Subscription{
		JobID:  jobID,
		events: make(chan model.Event, buffer),
		done:   make(chan struct{}),
		stop:   stop,
	}
}

// Events returns the event channel. It is closed after a terminal event,
// when the subscription is closed, or when the publisher shuts down.
func (s *Subscription) Events() <-chan model.Event {
	return s.events
}

// Done is closed once the subscription has ended for any reason
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription; safe to call more than once
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.finish()
	})
}

func (s *Subscription) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// watch closes the subscription when ctx is done
func (s *Subscription) watch(ctx context.Context) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}
