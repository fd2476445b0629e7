// Package broadcast fans run events out to in-process subscribers.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/spboyer/promptbench/internal/models"
)

// DefaultBuffer is the per-subscription event buffer.
const DefaultBuffer = 64

// Subscription receives the events published for one run. The channel is
// closed when the subscription is released, unregistered or evicted.
type Subscription struct {
	id    uint64
	runID string

	mu     sync.Mutex
	ch     chan models.Event
	closed bool
}

// Events returns the channel events are delivered on.
func (s *Subscription) Events() <-chan models.Event {
	return s.ch
}

// RunID returns the run this subscription belongs to.
func (s *Subscription) RunID() string {
	return s.runID
}

// send delivers evt without blocking. It returns false when the buffer is
// full. Sends after close are dropped.
func (s *Subscription) send(evt models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Broadcaster keeps the subscriber registry keyed by run id.
type Broadcaster struct {
	logger *slog.Logger
	buffer int

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*Subscription
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithBuffer sets the per-subscription buffer size.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithLogger sets the logger used for eviction messages.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates an empty Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		logger: slog.Default(),
		buffer: DefaultBuffer,
		subs:   make(map[string]map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds a subscriber for runID. Backlog events are queued on the
// new subscription before any later publish can reach it.
func (b *Broadcaster) Register(runID string, backlog ...models.Event) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:    b.nextID,
		runID: runID,
		ch:    make(chan models.Event, b.buffer+len(backlog)),
	}
	for _, evt := range backlog {
		sub.ch <- evt
	}

	set, ok := b.subs[runID]
	if !ok {
		set = make(map[uint64]*Subscription)
		b.subs[runID] = set
	}
	set[sub.id] = sub
	return sub
}

// Unregister removes sub and closes its channel. It is safe to call more
// than once and on replay subscriptions.
func (b *Broadcaster) Unregister(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if set, ok := b.subs[sub.runID]; ok {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(b.subs, sub.runID)
		}
	}
	b.mu.Unlock()

	sub.close()
}

// Publish delivers evt to every current subscriber of runID. The subscriber
// set is snapshotted under the lock and delivery happens outside it, so a
// subscriber registering or leaving concurrently never blocks publishers.
// A subscriber whose buffer is full is evicted.
func (b *Broadcaster) Publish(runID string, evt models.Event) {
	b.mu.Lock()
	snapshot := make([]*Subscription, 0, len(b.subs[runID]))
	for _, sub := range b.subs[runID] {
		snapshot = append(snapshot, sub)
	}
	b.mu.Unlock()

	for _, sub := range snapshot {
		if !sub.send(evt) {
			b.logger.Warn("Evicting slow subscriber", "runID", runID, "subscriber", sub.id)
			b.Unregister(sub)
		}
	}
}

// Release drops every subscriber of runID and closes their channels.
func (b *Broadcaster) Release(runID string) {
	b.mu.Lock()
	set := b.subs[runID]
	delete(b.subs, runID)
	b.mu.Unlock()

	for _, sub := range set {
		sub.close()
	}
}

// ReleaseAfter schedules Release(runID) after d. then, if non-nil, runs
// right after the release.
func (b *Broadcaster) ReleaseAfter(runID string, d time.Duration, then func()) *time.Timer {
	return time.AfterFunc(d, func() {
		b.Release(runID)
		if then != nil {
			then()
		}
	})
}

// Subscribers returns the number of registered subscribers for runID.
func (b *Broadcaster) Subscribers(runID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs[runID])
}

// Replay returns a detached subscription that yields events and is then
// closed. It is used for subscribers that arrive after a run finished.
func Replay(runID string, events []models.Event) *Subscription {
	sub := &Subscription{
		runID: runID,
		ch:    make(chan models.Event, len(events)),
	}
	for _, evt := range events {
		sub.ch <- evt
	}
	sub.close()
	return sub
}
