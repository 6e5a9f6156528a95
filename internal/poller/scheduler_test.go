package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/refwatch/internal/checks"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestScheduler_StopBeforeStart verifies that calling Stop() on a scheduler
// that was never started does not panic and is a safe no-op.
func TestScheduler_StopBeforeStart(t *testing.T) {
	r := newRig(t, &fakeClient{}, signedIn(), 1)

	// this must not panic
	r.scheduler.Stop()
}

// TestScheduler_StopTwice verifies that Stop() is idempotent and can be
// called multiple times without panic or deadlock.
func TestScheduler_StopTwice(t *testing.T) {
	r := newRig(t, &fakeClient{}, signedIn(), 1)
	r.scheduler.Start(context.Background())
	r.scheduler.StartBackground()

	// both calls must complete without panic or deadlock
	r.scheduler.Stop()
	r.scheduler.Stop()

	if r.scheduler.BackgroundRunning() {
		t.Error("background timer still running after Stop()")
	}
}

// TestScheduler_ConcurrentStartStop verifies that calling Start() and Stop()
// concurrently does not cause a race condition or panic.
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	// run multiple iterations to increase chance of catching races
	for i := 0; i < 100; i++ {
		r := newRig(t, &fakeClient{}, signedIn(), 1)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			r.scheduler.Start(context.Background())
			r.scheduler.StartBackground()
		}()

		go func() {
			defer wg.Done()
			r.scheduler.Stop()
		}()

		wg.Wait()
	}
}

// TestScheduler_StopBeforeStartThenStart verifies that if Stop() is called
// before Start(), a subsequent Start() call is a no-op.
func TestScheduler_StopBeforeStartThenStart(t *testing.T) {
	r := newRig(t, &fakeClient{}, signedIn(), 1)

	r.scheduler.Stop()
	r.scheduler.Start(context.TODO())
	r.scheduler.StartBackground()

	if r.scheduler.BackgroundRunning() {
		t.Error("background timer started after Stop()")
	}
	r.scheduler.Stop()
}

// TestScheduler_ContextCancellation verifies that cancelling the parent context
// stops the scheduler gracefully.
func TestScheduler_ContextCancellation(t *testing.T) {
	r := newRig(t, &fakeClient{}, signedIn(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	r.scheduler.Start(ctx)
	r.scheduler.StartBackground()

	cancel()

	done := make(chan struct{})
	go func() {
		r.scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
		// success
	case <-time.After(2 * time.Second):
		t.Error("Stop() did not complete after parent context cancellation")
	}
}

func TestScheduler_RequestSweepCoalesces(t *testing.T) {
	r := newRig(t, &fakeClient{}, signedIn(), 1)

	// the loop is not running, so requests stay pending
	for i := 0; i < 5; i++ {
		r.scheduler.RequestSweep()
	}

	if got := len(r.scheduler.trigger); got != 1 {
		t.Errorf("pending sweep requests = %d, want 1", got)
	}
}

// TestScheduler_SubscribeThenSweep covers the first-subscriber flow: an
// empty cache, one sweep, one fetch, one notification.
func TestScheduler_SubscribeThenSweep(t *testing.T) {
	client := &fakeClient{}
	client.set(successStatus(), nil)
	r := newRig(t, client, signedIn(), 2)

	var mu sync.Mutex
	var delivered []*checks.Combined
	r.registry.Subscribe(target("main"), func(s *checks.Combined) {
		mu.Lock()
		delivered = append(delivered, s)
		mu.Unlock()
	})

	r.scheduler.Start(context.Background())
	r.scheduler.RequestSweep()

	key := target("main").Key()
	waitUntil(t, "cache entry", func() bool {
		_, ok := r.cache.Get(key)
		return ok && !r.scheduler.InFlight(key)
	})

	entry, _ := r.cache.Get(key)
	if client.calls.Load() != 1 {
		t.Errorf("fetches = %d, want 1", client.calls.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != entry.Check {
		t.Errorf("deliveries = %d, want exactly one with the cached value", len(delivered))
	}
}

func TestScheduler_SweepSkipsFreshEntries(t *testing.T) {
	client := &fakeClient{}
	client.set(successStatus(), nil)
	r := newRig(t, client, signedIn(), 1)
	r.registry.Subscribe(target("main"), func(*checks.Combined) {})
	key := target("main").Key()

	ctx := context.Background()
	r.scheduler.sweep(ctx)
	waitUntil(t, "first refresh", func() bool { return client.calls.Load() == 1 && !r.scheduler.InFlight(key) })

	r.clock.Advance(30 * time.Second)
	r.scheduler.sweep(ctx)
	if r.scheduler.InFlight(key) {
		t.Fatal("fresh entry was dispatched")
	}

	r.clock.Advance(31 * time.Second)
	r.scheduler.sweep(ctx)
	waitUntil(t, "stale refresh", func() bool { return client.calls.Load() == 2 && !r.scheduler.InFlight(key) })
}

func TestScheduler_AtMostOneRefreshPerKey(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	client.set(successStatus(), nil)
	r := newRig(t, client, signedIn(), 4)
	r.registry.Subscribe(target("main"), func(*checks.Combined) {})
	key := target("main").Key()

	ctx := context.Background()
	r.scheduler.sweep(ctx)
	waitUntil(t, "fetch to start", func() bool { return client.active.Load() == 1 })

	r.scheduler.sweep(ctx)
	r.scheduler.sweep(ctx)
	status, err := r.scheduler.RefreshNow(ctx, target("main"))
	if err != nil || status != nil {
		t.Errorf("RefreshNow() during flight = %+v, %v; want cached nil, nil", status, err)
	}

	if got := client.calls.Load(); got != 1 {
		t.Errorf("fetches while in flight = %d, want 1", got)
	}

	close(client.block)
	waitUntil(t, "in-flight marker to clear", func() bool { return !r.scheduler.InFlight(key) })

	if got := client.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent fetches for one key = %d, want 1", got)
	}
}

func TestScheduler_AtMostNRefreshes(t *testing.T) {
	const capacity = 3
	const refs = 10

	client := &fakeClient{block: make(chan struct{})}
	client.set(successStatus(), nil)
	r := newRig(t, client, signedIn(), capacity)

	for i := 0; i < refs; i++ {
		r.registry.Subscribe(target(fmt.Sprintf("branch-%d", i)), func(*checks.Combined) {})
	}

	r.scheduler.sweep(context.Background())
	waitUntil(t, "limiter to fill", func() bool { return client.active.Load() == capacity })

	if got := r.limiter.Queued(); got != refs-capacity {
		t.Errorf("Queued() = %d, want %d", got, refs-capacity)
	}

	close(client.block)
	waitUntil(t, "all refreshes", func() bool { return r.cache.Len() == refs && r.limiter.Active() == 0 })

	if got := client.maxActive.Load(); got > capacity {
		t.Errorf("max concurrent fetches = %d, want <= %d", got, capacity)
	}
}

func TestScheduler_StartBackgroundSweepsImmediately(t *testing.T) {
	client := &fakeClient{}
	client.set(successStatus(), nil)
	r := newRig(t, client, signedIn(), 1)
	r.registry.Subscribe(target("main"), func(*checks.Combined) {})

	r.scheduler.Start(context.Background())
	r.scheduler.StartBackground()
	r.scheduler.StartBackground()

	if !r.scheduler.BackgroundRunning() {
		t.Fatal("BackgroundRunning() = false after StartBackground()")
	}
	waitUntil(t, "background sweep", func() bool { return r.cache.Len() == 1 })

	r.scheduler.StopBackground()
	r.scheduler.StopBackground()
	if r.scheduler.BackgroundRunning() {
		t.Error("BackgroundRunning() = true after StopBackground()")
	}
}

func TestScheduler_RefreshNowWithoutSubscription(t *testing.T) {
	client := &fakeClient{}
	client.set(successStatus(), nil)
	r := newRig(t, client, signedIn(), 1)

	status, err := r.scheduler.RefreshNow(context.Background(), target("main"))
	if err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}
	if status == nil || status.Conclusion != checks.ConclusionSuccess {
		t.Errorf("RefreshNow() = %+v, want completed/success", status)
	}
	if r.scheduler.InFlight(target("main").Key()) {
		t.Error("in-flight marker left after RefreshNow()")
	}
}
