package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jpalmerr/refwatch/internal/metrics"
)

// DefaultMaxConcurrency is the default number of concurrent API refreshes.
const DefaultMaxConcurrency = 6

// Task is a unit of work run by a [Limiter].
type Task func(ctx context.Context) error

type queuedTask struct {
	ctx  context.Context
	task Task
	done func(error)
}

// Limiter runs at most N tasks at a time. Excess submissions wait in FIFO
// order and start as slots free up.
//
// A task that returns an error or panics still frees its slot. A task that
// never returns holds its slot forever; timeouts are the task's concern.
type Limiter struct {
	slots   *semaphore.Weighted
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	queue  []queuedTask
	active int
}

// NewLimiter creates a [Limiter] allowing n concurrent tasks.
func NewLimiter(n int, logger *slog.Logger, m *metrics.Metrics) *Limiter {
	if n <= 0 {
		n = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		slots:   semaphore.NewWeighted(int64(n)),
		logger:  logger,
		metrics: m,
	}
}

// Go submits task without blocking. done, if non-nil, is called exactly once
// with the task's result after it settles, before the slot is handed on.
//
// If ctx is already cancelled when the task reaches the front of the queue
// the task is skipped and done receives ctx.Err().
func (l *Limiter) Go(ctx context.Context, task Task, done func(error)) {
	item := queuedTask{ctx: ctx, task: task, done: done}

	l.mu.Lock()
	// permits are only released while the queue is empty, so a successful
	// TryAcquire can never overtake a queued task
	if l.slots.TryAcquire(1) {
		l.active++
		l.record()
		l.mu.Unlock()
		go l.run(item)
		return
	}
	l.queue = append(l.queue, item)
	l.record()
	l.mu.Unlock()
}

// Do submits task and waits for it to settle or for ctx to be cancelled.
func (l *Limiter) Do(ctx context.Context, task Task) error {
	result := make(chan error, 1)
	l.Go(ctx, task, func(err error) { result <- err })

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of tasks holding a slot.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Queued returns the number of tasks waiting for a slot.
func (l *Limiter) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// run executes item and then hands its slot to the next queued task.
func (l *Limiter) run(item queuedTask) {
	for {
		err := l.execute(item)
		if item.done != nil {
			item.done(err)
		}

		l.mu.Lock()
		if len(l.queue) == 0 {
			l.active--
			l.slots.Release(1)
			l.record()
			l.mu.Unlock()
			return
		}
		item = l.queue[0]
		l.queue[0] = queuedTask{}
		l.queue = l.queue[1:]
		l.record()
		l.mu.Unlock()
	}
}

// execute runs a single task with panic recovery.
func (l *Limiter) execute(item queuedTask) (err error) {
	if ctxErr := item.ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			l.logger.Error("limiter task panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("task panic (correlation_id: %s)", correlationID)
		}
	}()

	if err := item.task(item.ctx); err != nil {
		l.logger.Warn("limiter task failed", "error", err)
		return err
	}
	return nil
}

// record publishes occupancy. Must be called with l.mu held.
func (l *Limiter) record() {
	l.metrics.SetLimiter(l.active, len(l.queue))
}
