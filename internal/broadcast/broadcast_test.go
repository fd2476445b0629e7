package broadcast

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/spboyer/promptbench/internal/models"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sub *Subscription) []models.Event {
	t.Helper()

	var events []models.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, evt)
		case <-timeout:
			require.FailNow(t, "subscription was never closed")
		}
	}
}

func TestPublish_DeliversToRunSubscribersOnly(t *testing.T) {
	b := New()
	a1 := b.Register("run-a")
	a2 := b.Register("run-a")
	other := b.Register("run-b")

	b.Publish("run-a", models.ProgressEvent(0, models.Result{Model: "m", Status: models.StatusRunning}))
	b.Publish("run-a", models.DoneEvent(""))
	b.Release("run-a")
	b.Release("run-b")

	for _, sub := range []*Subscription{a1, a2} {
		events := drain(t, sub)
		require.Len(t, events, 2)
		require.Equal(t, models.StatusRunning, events[0].Status)
		require.True(t, events[1].Done)
	}
	require.Empty(t, drain(t, other))
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := New()
	require.NotPanics(t, func() {
		b.Publish("nobody", models.DoneEvent(""))
	})
}

func TestUnregister(t *testing.T) {
	b := New()
	sub := b.Register("run")
	require.Equal(t, 1, b.Subscribers("run"))

	b.Unregister(sub)
	b.Unregister(sub)
	b.Unregister(nil)
	require.Equal(t, 0, b.Subscribers("run"))

	_, ok := <-sub.Events()
	require.False(t, ok)

	// publishing after unregister is a no-op
	b.Publish("run", models.DoneEvent(""))
}

func TestPublish_EvictsFullSubscriber(t *testing.T) {
	var buf bytes.Buffer
	b := New(WithBuffer(2), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	slow := b.Register("run")
	fast := b.Register("run")

	received := make(chan []models.Event)
	go func() {
		received <- drain(t, fast)
	}()

	for i := range 5 {
		b.Publish("run", models.ProgressEvent(i, models.Result{Status: models.StatusRunning}))
		// give the reader a chance to keep up
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, b.Subscribers("run"))
	require.Contains(t, buf.String(), "Evicting slow subscriber")

	b.Release("run")
	require.Len(t, <-received, 5)
	require.Len(t, drain(t, slow), 2)
}

func TestReleaseAfter(t *testing.T) {
	b := New()
	sub := b.Register("run")

	released := make(chan int, 1)
	b.ReleaseAfter("run", 20*time.Millisecond, func() {
		released <- b.Subscribers("run")
	})
	require.Equal(t, 1, b.Subscribers("run"))

	require.Empty(t, drain(t, sub))
	require.Equal(t, 0, <-released, "callback runs after subscribers are dropped")
}

func TestReplay(t *testing.T) {
	events := []models.Event{
		models.ProgressEvent(0, models.Result{Model: "a", Status: models.StatusCompleted, Output: "x"}),
		models.DoneEvent(""),
	}

	sub := Replay("run", events)
	require.Equal(t, "run", sub.RunID())
	require.Equal(t, events, drain(t, sub))

	// unregistering a replay subscription is harmless
	New().Unregister(sub)
}

func TestConcurrentPublishAndRegister(t *testing.T) {
	b := New(WithBuffer(1024))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Register("run")
			for range 10 {
				b.Publish("run", models.DoneEvent(""))
			}
			b.Unregister(sub)
		}()
	}
	wg.Wait()

	b.Release("run")
	require.Equal(t, 0, b.Subscribers("run"))
}

func TestRegister_Backlog(t *testing.T) {
	b := New(WithBuffer(1))
	backlog := []models.Event{
		models.ProgressEvent(0, models.Result{Status: models.StatusCompleted}),
		models.ProgressEvent(1, models.Result{Status: models.StatusRunning}),
		models.ProgressEvent(2, models.Result{Status: models.StatusRunning}),
	}

	sub := b.Register("run", backlog...)
	b.Publish("run", models.DoneEvent(""))
	b.Release("run")

	events := drain(t, sub)
	require.Len(t, events, 4)
	require.Equal(t, backlog, events[:3])
	require.True(t, events[3].Done)
}
