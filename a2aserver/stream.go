package a2aserver

import (
	"context"
	"sync"

	"goa.design/a2a-runtime/a2a"
)

// ReplayPolicy controls what a late subscriber (one that attaches via
// tasks/resubscribe after events have already been emitted) receives before
// live events. "Subscribe from now" vs. "replay the last snapshot" is left
// configurable (§9) rather than picked silently.
type ReplayPolicy int

const (
	// ReplayNone delivers only events emitted after subscription.
	ReplayNone ReplayPolicy = iota
	// ReplayLastSnapshot additionally delivers the most recently broadcast
	// Task (if any) and the current status of every known task, before
	// live events resume. This is the default (§5: "at minimum: the most
	// recent Task and the current status").
	ReplayLastSnapshot
)

const (
	// subscriberBufferSize bounds the per-subscriber queue. A subscriber
	// that cannot keep up is dropped rather than applying backpressure to
	// the producer (§5, §9).
	subscriberBufferSize = 64
)

type (
	// eventStream is a hot, multi-subscriber, replayable broadcaster of
	// a2a.Event values. It is the implementation of the "event stream"
	// referenced throughout §4.4-§4.6: each Session owns exactly one,
	// created by its SessionEventProcessor.
	//
	// Broadcasting never blocks on a slow subscriber: sends are
	// non-blocking, and a subscriber whose buffer is full is dropped with
	// an InternalError delivered on its own subscription only (§5).
	eventStream struct {
		mu          sync.Mutex
		subscribers map[int]*subscription
		nextID      int
		closed      bool
		closeErr    error

		replay ReplayPolicy
		// lastTask is the most recently broadcast *a2a.Task snapshot, used
		// for ReplayLastSnapshot.
		lastTask *a2a.Task
		// lastStatus snapshots the most recent status per taskId, used for
		// ReplayLastSnapshot.
		lastStatus map[string]a2a.TaskStatusUpdateEvent
	}

	// subscription is one consumer's view of an eventStream.
	subscription struct {
		ch     chan a2a.Event
		done   chan struct{}
		errMu  sync.Mutex
		err    error
		closed bool
	}
)

// newEventStream constructs an empty eventStream with the given replay
// policy.
func newEventStream(replay ReplayPolicy) *eventStream {
	return &eventStream{
		subscribers: make(map[int]*subscription),
		replay:      replay,
		lastStatus:  make(map[string]a2a.TaskStatusUpdateEvent),
	}
}

// subscribe registers a new subscriber and returns its Subscription. If the
// stream is already closed, the returned subscription's channel is closed
// immediately and Err reflects the stream's terminal error, if any.
func (s *eventStream) subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{ch: make(chan a2a.Event, subscriberBufferSize), done: make(chan struct{})}

	if s.closed {
		sub.setErr(s.closeErr)
		close(sub.ch)
		return &Subscription{sub: sub}
	}

	id := s.nextID
	s.nextID++
	s.subscribers[id] = sub

	if s.replay == ReplayLastSnapshot {
		if s.lastTask != nil {
			sub.ch <- s.lastTask
		}
		for _, st := range s.lastStatus {
			st := st
			sub.ch <- &st
		}
	}

	go func() {
		<-sub.done
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}()

	return &Subscription{sub: sub}
}

// publish broadcasts e to every live subscriber. Subscribers whose buffer is
// full are dropped with an InternalError on their own subscription; other
// subscribers are unaffected (§5).
func (s *eventStream) publish(e a2a.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch v := e.(type) {
	case *a2a.Task:
		cp := *v
		s.lastTask = &cp
	case *a2a.TaskStatusUpdateEvent:
		cp := *v
		s.lastStatus[v.TaskID] = cp
	}

	for id, sub := range s.subscribers {
		select {
		case sub.ch <- e:
		default:
			sub.setErr(a2a.NewInternalError(errSubscriberTooSlow))
			close(sub.ch)
			delete(s.subscribers, id)
		}
	}
}

// close terminates the stream: every live subscriber's channel is closed,
// carrying cause (nil for a clean close) as the terminal error observed by
// Subscription.Err after the channel drains.
func (s *eventStream) close(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeErr = cause
	for id, sub := range s.subscribers {
		sub.setErr(cause)
		close(sub.ch)
		delete(s.subscribers, id)
	}
}

func (sub *subscription) setErr(err error) {
	sub.errMu.Lock()
	sub.err = err
	sub.errMu.Unlock()
}

func (sub *subscription) getErr() error {
	sub.errMu.Lock()
	defer sub.errMu.Unlock()
	return sub.err
}

// Subscription is a consumer's view of a live or terminated eventStream.
type Subscription struct {
	sub    *subscription
	closed sync.Once
}

// Events returns the channel of events for this subscription. The channel
// closes when the stream terminates or this subscription is dropped for
// being too slow; callers should check Err after observing channel closure.
func (s *Subscription) Events() <-chan a2a.Event { return s.sub.ch }

// Err returns the terminal error for this subscription, if any. It is only
// meaningful after Events()'s channel has closed.
func (s *Subscription) Err() error { return s.sub.getErr() }

// Close releases this subscription's slot in the stream. Idempotent.
func (s *Subscription) Close() {
	s.closed.Do(func() { close(s.sub.done) })
}

// Range consumes every event of a Subscription in order until the channel
// closes, ctx is canceled, or fn returns false, invoking fn for each. It
// returns ctx.Err() on cancellation, nil when fn stops the iteration, or the
// subscription's terminal error once the channel closes.
func (s *Subscription) Range(ctx context.Context, fn func(a2a.Event) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-s.Events():
			if !ok {
				return s.Err()
			}
			if !fn(e) {
				return nil
			}
		}
	}
}
