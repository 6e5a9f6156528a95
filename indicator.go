package refwatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/refwatch/internal/metrics"
	"github.com/jpalmerr/refwatch/internal/poller"
)

// RepositoryRefresher refreshes the indicator of a single repository.
type RepositoryRefresher func(ctx context.Context, repo Repository) error

// indicatorConfig holds mutable state during IndicatorUpdater construction.
type indicatorConfig struct {
	interval   time.Duration
	skew       time.Duration
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// IndicatorOption configures an [IndicatorUpdater] during construction.
type IndicatorOption func(*indicatorConfig) error

// WithIndicatorInterval sets the target period between sweep starts.
// Defaults to 15 minutes.
//
// Returns an error if the duration is zero or negative.
func WithIndicatorInterval(d time.Duration) IndicatorOption {
	return func(cfg *indicatorConfig) error {
		if d <= 0 {
			return errors.New("indicator interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithSkew overrides the delay added to every scheduled sweep. By default a
// value in (0, 30s] is drawn once per process.
//
// Returns an error if the duration is zero or negative.
func WithSkew(d time.Duration) IndicatorOption {
	return func(cfg *indicatorConfig) error {
		if d <= 0 {
			return errors.New("skew must be positive")
		}
		cfg.skew = d
		return nil
	}
}

// WithIndicatorLogger sets the logger for sweep telemetry.
//
// Returns an error if the logger is nil.
func WithIndicatorLogger(logger *slog.Logger) IndicatorOption {
	return func(cfg *indicatorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithIndicatorMetrics registers sweep timing collectors with reg. The same
// registerer may also be passed to [WithMetrics].
//
// Returns an error if reg is nil.
func WithIndicatorMetrics(reg prometheus.Registerer) IndicatorOption {
	return func(cfg *indicatorConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}

// IndicatorUpdater periodically walks a set of repositories, refreshing one
// at a time.
//
// Each sweep visits every repository returned by the getter once, by ID,
// even if the set changes mid-sweep. The next sweep starts one interval
// after the previous one started, plus a fixed per-process skew.
//
// Pause and Resume hold a sweep between repositories without losing or
// repeating any of them. Stop lets the current repository finish.
type IndicatorUpdater struct {
	updater *poller.IndicatorUpdater[Repository]
}

// NewIndicatorUpdater creates a stopped [IndicatorUpdater] over the
// repositories returned by getRepos.
//
// Returns an error if getRepos or refresh is nil or any option is invalid.
func NewIndicatorUpdater(getRepos func() []Repository, refresh RepositoryRefresher, opts ...IndicatorOption) (*IndicatorUpdater, error) {
	if getRepos == nil {
		return nil, errors.New("repository getter is required")
	}
	if refresh == nil {
		return nil, errors.New("refresh function is required")
	}

	cfg := &indicatorConfig{interval: poller.DefaultIndicatorInterval}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	var m *metrics.Indicator
	if cfg.registerer != nil {
		m = metrics.NewIndicator(cfg.registerer)
	}

	return &IndicatorUpdater{
		updater: poller.NewIndicatorUpdater(poller.IndicatorConfig[Repository]{
			Items:    getRepos,
			ID:       func(r Repository) int64 { return r.ID },
			Refresh:  refresh,
			Interval: cfg.interval,
			Skew:     cfg.skew,
			Logger:   cfg.logger,
			Metrics:  m,
		}),
	}, nil
}

// Start sweeps immediately and then keeps sweeping until Stop. ctx is passed
// to every refresh; cancelling it does not stop the updater. Start is a
// no-op while running.
func (u *IndicatorUpdater) Start(ctx context.Context) {
	u.updater.Start(ctx)
}

// Stop cancels the next scheduled sweep and prevents further repositories
// from being refreshed. Stop is a no-op when not running.
func (u *IndicatorUpdater) Stop() {
	u.updater.Stop()
}

// Pause holds sweeps before they start and between repositories until
// Resume. Pausing an already paused updater has no effect.
func (u *IndicatorUpdater) Pause() {
	u.updater.Pause()
}

// Resume releases a paused updater.
func (u *IndicatorUpdater) Resume() {
	u.updater.Resume()
}

// Running reports whether the updater is started.
func (u *IndicatorUpdater) Running() bool {
	return u.updater.Running()
}

// Paused reports whether the updater is paused.
func (u *IndicatorUpdater) Paused() bool {
	return u.updater.Paused()
}

// LastSweepStartedAt returns when the most recent sweep began, or the zero
// time if none has.
func (u *IndicatorUpdater) LastSweepStartedAt() time.Time {
	return u.updater.LastSweepStartedAt()
}

// RefreshDefaultBranch returns a [RepositoryRefresher] that refreshes the
// default branch of each repository through s. Repositories without a
// default branch and endpoints without an account are skipped.
func RefreshDefaultBranch(s *Store) RepositoryRefresher {
	return func(ctx context.Context, repo Repository) error {
		if repo.DefaultBranch == "" {
			return nil
		}
		_, err := s.Refresh(ctx, repo, repo.DefaultBranch)
		if errors.Is(err, ErrNoAccount) {
			return nil
		}
		return err
	}
}
