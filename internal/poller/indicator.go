package poller

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/refwatch/internal/metrics"
)

const (
	// DefaultIndicatorInterval is the period between indicator sweeps.
	DefaultIndicatorInterval = 15 * time.Minute

	// MaxIndicatorSkew bounds the delay added to every scheduled sweep.
	MaxIndicatorSkew = 30 * time.Second
)

// ProcessSkew is drawn once per process in (0, MaxIndicatorSkew] so that
// several running instances do not sweep in lockstep.
var ProcessSkew = time.Duration(rand.Int63n(int64(MaxIndicatorSkew))) + 1

// IndicatorConfig configures an [IndicatorUpdater].
type IndicatorConfig[T any] struct {
	// Items returns the current collection. It is consulted before every
	// item, so the collection may change during a sweep.
	Items func() []T

	// ID identifies an item. Each ID is visited at most once per sweep.
	ID func(T) int64

	// Refresh is called for each item in turn, never concurrently.
	Refresh func(ctx context.Context, item T) error

	// Interval is the target period between sweep starts. Zero means
	// [DefaultIndicatorInterval].
	Interval time.Duration

	// Skew is added to every scheduled delay. Zero means [ProcessSkew].
	Skew time.Duration

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Indicator
}

// IndicatorUpdater walks a caller-supplied collection, refreshing one item
// at a time, and repeats on a skewed interval.
//
// Running and paused are independent states. While paused, a sweep waits
// before starting and between items; in-progress work is never interrupted.
type IndicatorUpdater[T any] struct {
	items    func() []T
	id       func(T) int64
	refresh  func(ctx context.Context, item T) error
	interval time.Duration
	skew     time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Indicator

	mu          sync.Mutex
	running     bool
	generation  uint64
	ctx         context.Context
	stop        chan struct{}
	timer       *time.Timer
	paused      bool
	gate        chan struct{}
	lastSweepAt time.Time
}

// NewIndicatorUpdater creates a stopped, unpaused [IndicatorUpdater].
func NewIndicatorUpdater[T any](cfg IndicatorConfig[T]) *IndicatorUpdater[T] {
	u := &IndicatorUpdater[T]{
		items:    cfg.Items,
		id:       cfg.ID,
		refresh:  cfg.Refresh,
		interval: cfg.Interval,
		skew:     cfg.Skew,
		now:      cfg.Now,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if u.interval <= 0 {
		u.interval = DefaultIndicatorInterval
	}
	if u.skew <= 0 {
		u.skew = ProcessSkew
	}
	if u.now == nil {
		u.now = time.Now
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	return u
}

// Start runs a sweep immediately and keeps sweeping until [IndicatorUpdater.Stop].
// ctx is passed to every Refresh call. Start is a no-op while running.
func (u *IndicatorUpdater[T]) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return
	}
	u.running = true
	u.generation++
	gen := u.generation
	u.ctx = ctx
	u.stop = make(chan struct{})
	stop := u.stop
	u.mu.Unlock()

	u.logger.Debug("indicator updater starting")
	go u.sweep(gen, stop)
}

// Stop cancels the pending sweep timer. An item being refreshed is allowed
// to finish but no further item is started. Stop is a no-op when stopped.
func (u *IndicatorUpdater[T]) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.running {
		return
	}
	u.logger.Debug("indicator updater stopping")
	u.running = false
	close(u.stop)
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
}

// Pause blocks sweeps at the next gate check. Pausing twice is the same as
// pausing once.
func (u *IndicatorUpdater[T]) Pause() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.paused {
		u.paused = true
		u.gate = make(chan struct{})
	}
}

// Resume releases a paused sweep. A later Pause installs a fresh gate.
func (u *IndicatorUpdater[T]) Resume() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.paused {
		u.paused = false
		close(u.gate)
		u.gate = nil
	}
}

// Running reports whether the updater is started.
func (u *IndicatorUpdater[T]) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

// Paused reports whether the updater is paused.
func (u *IndicatorUpdater[T]) Paused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.paused
}

// LastSweepStartedAt returns when the most recent sweep began, or the zero
// time if none has.
func (u *IndicatorUpdater[T]) LastSweepStartedAt() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastSweepAt
}

// sweep visits every item once, then schedules the next sweep.
func (u *IndicatorUpdater[T]) sweep(gen uint64, stop chan struct{}) {
	u.mu.Lock()
	if u.generation == gen {
		u.timer = nil
	}
	ctx := u.ctx
	u.mu.Unlock()

	if u.Paused() {
		u.logger.Debug("indicator updater paused before sweep")
	}
	if _, ok := u.waitGate(stop); !ok || !u.current(gen) {
		return
	}

	start := u.now()
	u.mu.Lock()
	u.lastSweepAt = start
	u.mu.Unlock()

	done := make(map[int64]struct{})
	var pausedFor time.Duration

	for u.current(gen) {
		item, ok := u.next(done)
		if !ok {
			break
		}

		u.refreshSafe(ctx, item)

		waited, ok := u.waitGate(stop)
		if waited > 0 {
			pausedFor += waited
			u.logger.Debug("indicator updater resumed", "after_items", len(done), "paused", pausedFor)
		}
		done[u.id(item)] = struct{}{}
		if !ok {
			break
		}
	}

	if len(done) > 0 {
		total := u.now().Sub(start)
		active := total - pausedFor
		u.logger.Info("indicator sweep finished",
			"items", len(done),
			"active", active.Round(100*time.Millisecond).String(),
			"paused", pausedFor.Round(100*time.Millisecond).String(),
			"total", total.Round(100*time.Millisecond).String(),
		)
		u.metrics.Sweep(len(done), active, pausedFor)
	}

	u.schedule(gen, stop)
}

// schedule arms the timer for the next sweep.
func (u *IndicatorUpdater[T]) schedule(gen uint64, stop chan struct{}) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.running || u.generation != gen || u.timer != nil {
		return
	}

	wait := u.interval
	last := "never"
	if !u.lastSweepAt.IsZero() {
		since := u.now().Sub(u.lastSweepAt)
		wait = max(u.interval-since, 0)
		last = since.Round(time.Millisecond).String() + " ago"
	}
	delay := wait + u.skew

	u.logger.Debug("indicator sweep scheduled", "last_sweep", last, "delay", delay.Round(time.Millisecond).String())
	u.timer = time.AfterFunc(delay, func() { u.sweep(gen, stop) })
}

// next returns the first item whose ID has not been visited.
func (u *IndicatorUpdater[T]) next(done map[int64]struct{}) (T, bool) {
	for _, item := range u.items() {
		if _, ok := done[u.id(item)]; !ok {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// waitGate blocks while paused. It returns how long it waited and false if
// the updater was stopped while waiting.
func (u *IndicatorUpdater[T]) waitGate(stop chan struct{}) (time.Duration, bool) {
	u.mu.Lock()
	if !u.paused {
		u.mu.Unlock()
		return 0, true
	}
	gate := u.gate
	u.mu.Unlock()

	start := u.now()
	select {
	case <-gate:
		return u.now().Sub(start), true
	case <-stop:
		return u.now().Sub(start), false
	}
}

func (u *IndicatorUpdater[T]) current(gen uint64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running && u.generation == gen
}

// refreshSafe calls Refresh with panic recovery. Errors are logged and the
// sweep moves on to the next item.
func (u *IndicatorUpdater[T]) refreshSafe(ctx context.Context, item T) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			u.logger.Error("indicator refresh panic",
				"correlation_id", correlationID,
				"item", u.id(item),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := u.refresh(ctx, item); err != nil {
		u.logger.Warn("indicator refresh failed", "item", u.id(item), "error", err)
	}
}
