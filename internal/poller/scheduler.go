package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/refwatch/internal/cache"
	"github.com/jpalmerr/refwatch/internal/checks"
	"github.com/jpalmerr/refwatch/internal/metrics"
	"github.com/jpalmerr/refwatch/internal/store"
)

// DefaultRefreshInterval is the period of the background sweep.
const DefaultRefreshInterval = 3 * time.Minute

// Scheduler sweeps subscriptions and dispatches refreshes for stale keys
// through a [Limiter].
//
// Sweep requests are coalesced: while a request is pending, further requests
// are dropped. Each key has at most one refresh in flight at a time.
//
// All lifecycle methods (Start, Stop, StartBackground, StopBackground) are
// safe for concurrent use and idempotent.
type Scheduler struct {
	refresher *Refresher
	limiter   *Limiter
	cache     *cache.Cache
	registry  *store.Registry
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics

	trigger chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
	started  bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// SchedulerConfig holds the dependencies of a [Scheduler].
type SchedulerConfig struct {
	Refresher *Refresher
	Limiter   *Limiter
	Cache     *cache.Cache
	Registry  *store.Registry

	// Interval is the background sweep period. Zero means
	// [DefaultRefreshInterval].
	Interval time.Duration

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewScheduler creates a [Scheduler]. It must be started with
// [Scheduler.Start] before sweeps run.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		refresher: cfg.Refresher,
		limiter:   cfg.Limiter,
		cache:     cfg.Cache,
		registry:  cfg.Registry,
		interval:  cfg.Interval,
		now:       cfg.Now,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		trigger:   make(chan struct{}, 1),
		inFlight:  make(map[string]struct{}),
	}
	if s.interval <= 0 {
		s.interval = DefaultRefreshInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Start begins the sweep loop in a background goroutine.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	loopCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-s.trigger:
				s.sweep(loopCtx)
			}
		}
	}()
}

// Stop halts the sweep loop and the background timer and waits for both
// goroutines to exit. Refreshes already dispatched are cancelled through
// their context but not waited for.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.bgCancel != nil {
			s.bgCancel()
			s.bgCancel = nil
		}
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// RequestSweep asks for a sweep without blocking. If a request is already
// pending this one is dropped.
func (s *Scheduler) RequestSweep() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// StartBackground requests a sweep now and then every interval until
// [Scheduler.StopBackground] or [Scheduler.Stop] is called. Calling it while
// the timer is already running has no effect.
func (s *Scheduler) StartBackground() {
	s.mu.Lock()
	if !s.started || s.stopped || s.bgCancel != nil {
		s.mu.Unlock()
		return
	}
	bgCtx, cancel := context.WithCancel(s.ctx)
	s.bgCancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.RequestSweep()

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				s.RequestSweep()
			}
		}
	}()
}

// StopBackground cancels the background timer. Pending and in-flight work
// is unaffected.
func (s *Scheduler) StopBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bgCancel != nil {
		s.bgCancel()
		s.bgCancel = nil
	}
}

// BackgroundRunning reports whether the background timer is active.
func (s *Scheduler) BackgroundRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bgCancel != nil
}

// RefreshNow refreshes target through the limiter and waits for the result.
//
// If a refresh for the same key is already in flight no second request is
// issued and the currently cached status is returned. The error is
// [ErrNoAccount] or [ErrFetchFailed] from the refresher, or ctx.Err().
func (s *Scheduler) RefreshNow(ctx context.Context, target store.Target) (*checks.Combined, error) {
	key := target.Key()
	if !s.markInFlight(key) {
		s.metrics.RefreshDone(metrics.OutcomeSkippedInFlight)
		entry, _ := s.cache.Get(key)
		return entry.Check, nil
	}

	type outcome struct {
		status *checks.Combined
		err    error
	}
	result := make(chan outcome, 1)

	var status *checks.Combined
	s.limiter.Go(ctx, func(ctx context.Context) error {
		var err error
		status, err = s.refresher.RefreshTarget(ctx, target)
		return err
	}, func(err error) {
		s.clearInFlight(key)
		result <- outcome{status: status, err: err}
	})

	select {
	case out := <-result:
		return out.status, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight reports whether a refresh for key is currently dispatched.
func (s *Scheduler) InFlight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[key]
	return ok
}

// sweep dispatches a refresh for every subscribed key that is missing from
// the cache or stale and has no refresh in flight.
func (s *Scheduler) sweep(ctx context.Context) {
	s.metrics.Sweep()
	now := s.now()

	dispatched := 0
	for _, key := range s.registry.Keys() {
		if s.InFlight(key) {
			continue
		}
		if entry, ok := s.cache.Get(key); ok && !s.cache.IsStale(entry, now) {
			continue
		}
		if !s.markInFlight(key) {
			continue
		}

		key := key
		s.limiter.Go(ctx, func(ctx context.Context) error {
			return s.refresher.RefreshSubscription(ctx, key)
		}, func(error) {
			s.clearInFlight(key)
		})
		dispatched++
	}

	s.logger.Debug("sweep finished", "subscriptions", s.registry.Len(), "dispatched", dispatched)
}

// markInFlight records key as in flight and reports whether it was not
// already.
func (s *Scheduler) markInFlight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inFlight[key]; ok {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Scheduler) clearInFlight(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}
