// Package orchestration drives runs: it fans one prompt out to several
// models concurrently, persists each result transition and broadcasts it to
// live subscribers.
package orchestration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spboyer/promptbench/internal/broadcast"
	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/spboyer/promptbench/internal/store"
)

const (
	DefaultMaxTokens      = 4096
	DefaultTemperature    = 0.7
	DefaultDoneGrace      = 5 * time.Second
	DefaultPersistRetries = 3
	DefaultPersistBackoff = 100 * time.Millisecond
)

// Orchestrator owns run execution and the subscriber registry for the runs
// it drives.
type Orchestrator struct {
	store   store.RunStore
	invoker execution.ModelInvoker
	bcast   *broadcast.Broadcaster
	logger  *slog.Logger

	newID              func() string
	now                func() time.Time
	maxTokens          int
	defaultTemperature float64
	doneGrace          time.Duration
	persistRetries     uint64
	persistBackoff     time.Duration
	listLimit          int

	mu     sync.Mutex
	active map[string]*runState

	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIDGenerator replaces the UUID run id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		o.newID = newID
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithMaxTokens sets the ceiling used when a model spec has none.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithDefaultTemperature sets the temperature used when a model spec has none.
func WithDefaultTemperature(t float64) Option {
	return func(o *Orchestrator) {
		o.defaultTemperature = t
	}
}

// WithDoneGrace sets how long subscribers stay registered after the done
// event.
func WithDoneGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.doneGrace = d
		}
	}
}

func WithBroadcaster(b *broadcast.Broadcaster) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.bcast = b
		}
	}
}

// WithPersistRetries sets how often a failed store update is retried, and
// the initial backoff between attempts.
func WithPersistRetries(retries uint64, backoff time.Duration) Option {
	return func(o *Orchestrator) {
		o.persistRetries = retries
		if backoff > 0 {
			o.persistBackoff = backoff
		}
	}
}

// WithListLimit sets the default page size of ListRuns.
func WithListLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.listLimit = n
		}
	}
}

// New creates an Orchestrator.
func New(runStore store.RunStore, invoker execution.ModelInvoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:              runStore,
		invoker:            invoker,
		logger:             slog.Default(),
		newID:              uuid.NewString,
		now:                time.Now,
		maxTokens:          DefaultMaxTokens,
		defaultTemperature: DefaultTemperature,
		doneGrace:          DefaultDoneGrace,
		persistRetries:     DefaultPersistRetries,
		persistBackoff:     DefaultPersistBackoff,
		listLimit:          store.DefaultListLimit,
		active:             map[string]*runState{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bcast == nil {
		o.bcast = broadcast.New(broadcast.WithLogger(o.logger))
	}
	return o
}

// Broadcaster returns the subscriber registry of this orchestrator.
func (o *Orchestrator) Broadcaster() *broadcast.Broadcaster {
	return o.bcast
}

// GetRun returns the current stored snapshot of a run.
func (o *Orchestrator) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return o.store.FindByID(ctx, id)
}

// ListRuns returns stored runs, newest first.
func (o *Orchestrator) ListRuns(ctx context.Context, filter store.ListFilter) ([]*models.Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = o.listLimit
	}
	return o.store.List(ctx, filter)
}

// Subscribe returns a stream of events for a run. Subscribers of a run in
// progress first receive the latest event of every result that has left
// pending, then live events, then {done:true}. Subscribers of a finished run
// receive the final state of each result and {done:true}. In both cases the
// channel is closed after the done event has been delivered and the grace
// period has passed, or immediately for finished runs.
func (o *Orchestrator) Subscribe(ctx context.Context, runID string) (*broadcast.Subscription, error) {
	o.mu.Lock()
	st, ok := o.active[runID]
	o.mu.Unlock()

	if ok {
		return st.subscribe(o.bcast), nil
	}

	run, err := o.store.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	fatal := ""
	if !run.Settled() {
		fatal = "run is not active in this process"
	}
	return broadcast.Replay(runID, replayEvents(run, fatal)), nil
}

// Unsubscribe removes a subscription. It is safe to call after the
// subscription was released.
func (o *Orchestrator) Unsubscribe(sub *broadcast.Subscription) {
	o.bcast.Unregister(sub)
}

// Wait blocks until the run has emitted its done event or ctx ends. Runs that
// are not being driven by this orchestrator return immediately.
func (o *Orchestrator) Wait(ctx context.Context, runID string) error {
	o.mu.Lock()
	st, ok := o.active[runID]
	o.mu.Unlock()

	if !ok {
		return nil
	}

	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown waits for every launched run to finish, or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func replayEvents(run *models.Run, fatal string) []models.Event {
	events := make([]models.Event, 0, len(run.Results)+1)
	for i, res := range run.Results {
		if res.Status == models.StatusPending {
			continue
		}
		events = append(events, models.ProgressEvent(i, res))
	}
	return append(events, models.DoneEvent(fatal))
}
