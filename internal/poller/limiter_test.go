package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitUntil polls cond until it holds or two seconds pass.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	const capacity = 2
	const tasks = 10

	limiter := NewLimiter(capacity, testLogger(), nil)
	release := make(chan struct{})

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	wg.Add(tasks)

	for i := 0; i < tasks; i++ {
		limiter.Go(context.Background(), func(ctx context.Context) error {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			<-release
			active.Add(-1)
			return nil
		}, func(error) { wg.Done() })
	}

	waitUntil(t, "slots to fill", func() bool { return limiter.Active() == capacity })
	if got := limiter.Queued(); got != tasks-capacity {
		t.Errorf("Queued() = %d, want %d", got, tasks-capacity)
	}

	close(release)
	wg.Wait()

	if got := maxActive.Load(); got > capacity {
		t.Errorf("max concurrent tasks = %d, want <= %d", got, capacity)
	}
	waitUntil(t, "slots to drain", func() bool { return limiter.Active() == 0 })
	if got := limiter.Queued(); got != 0 {
		t.Errorf("Queued() = %d after drain, want 0", got)
	}
}

func TestLimiter_FIFOOrder(t *testing.T) {
	limiter := NewLimiter(1, testLogger(), nil)
	release := make(chan struct{})

	limiter.Go(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	}, nil)
	waitUntil(t, "first task to start", func() bool { return limiter.Active() == 1 })

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		i := i
		wg.Add(1)
		limiter.Go(context.Background(), func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, func(error) { wg.Done() })
	}

	close(release)
	wg.Wait()

	want := []int{1, 2, 3, 4, 5}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestLimiter_ErrorFreesSlot(t *testing.T) {
	limiter := NewLimiter(1, testLogger(), nil)
	boom := errors.New("boom")

	if err := limiter.Do(context.Background(), func(ctx context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want %v", err, boom)
	}

	ran := false
	if err := limiter.Do(context.Background(), func(ctx context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !ran {
		t.Error("task after a failing task never ran")
	}
}

// TestLimiter_PanicFreesSlot verifies that a panicking task is recovered,
// reported with a correlation id and does not leak its slot.
func TestLimiter_PanicFreesSlot(t *testing.T) {
	limiter := NewLimiter(1, testLogger(), nil)

	err := limiter.Do(context.Background(), func(ctx context.Context) error {
		panic("simulated failure")
	})
	if err == nil {
		t.Fatal("Do() error = nil, want error describing panic")
	}
	if !strings.Contains(err.Error(), "correlation_id") {
		t.Errorf("Do() error = %q, want to contain 'correlation_id'", err)
	}

	if err := limiter.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Do() after panic error = %v", err)
	}
	waitUntil(t, "slot release", func() bool { return limiter.Active() == 0 })
}

func TestLimiter_SkipsCancelledQueuedTask(t *testing.T) {
	limiter := NewLimiter(1, testLogger(), nil)
	release := make(chan struct{})

	limiter.Go(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	}, nil)
	waitUntil(t, "first task to start", func() bool { return limiter.Active() == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	ran := false
	limiter.Go(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	}, func(err error) { result <- err })

	cancel()
	close(release)

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("done error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for cancelled task to settle")
	}
	if ran {
		t.Error("cancelled task ran")
	}
}

func TestLimiter_DoReturnsOnContextCancel(t *testing.T) {
	limiter := NewLimiter(1, testLogger(), nil)
	release := make(chan struct{})
	defer close(release)

	limiter.Go(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Do(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestNewLimiter_DefaultCapacity(t *testing.T) {
	limiter := NewLimiter(0, nil, nil)
	release := make(chan struct{})
	defer close(release)

	for i := 0; i < DefaultMaxConcurrency+1; i++ {
		limiter.Go(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		}, nil)
	}

	waitUntil(t, "default slots to fill", func() bool { return limiter.Active() == DefaultMaxConcurrency })
	if got := limiter.Queued(); got != 1 {
		t.Errorf("Queued() = %d, want 1", got)
	}
}
