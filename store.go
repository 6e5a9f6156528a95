package refwatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jpalmerr/refwatch/internal/cache"
	"github.com/jpalmerr/refwatch/internal/github"
	"github.com/jpalmerr/refwatch/internal/metrics"
	"github.com/jpalmerr/refwatch/internal/poller"
	"github.com/jpalmerr/refwatch/internal/store"
)

// Store is a bounded, freshness-aware cache of commit statuses with
// subscriptions.
//
// Any number of callbacks may subscribe to the same ref; they share one
// subscription and one refresh. Refreshes of different refs run
// concurrently up to the configured limit; a ref is never refreshed twice
// at the same time.
//
// Store is safe for concurrent use. Create one with [New] and release it
// with [Store.Close].
type Store struct {
	cache      *cache.Cache
	registry   *store.Registry
	scheduler  *poller.Scheduler
	httpClient *http.Client
	logger     *slog.Logger

	closeOnce sync.Once
}

// New creates a [Store] resolving API credentials through accounts.
//
// Defaults:
//   - Cache size: 250 refs
//   - Stale threshold: 60 seconds
//   - Max concurrency: 6 refreshes
//   - Background refresh interval: 3 minutes
//
// The store starts idle. Subscribing to a ref requests a sweep; periodic
// sweeps begin with [Store.StartBackgroundRefresh].
//
// Returns an error if accounts is nil or any option is invalid.
func New(accounts AccountResolver, opts ...Option) (*Store, error) {
	if accounts == nil {
		return nil, errors.New("account resolver is required")
	}

	cfg := defaultStoreConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	var m *metrics.Metrics
	if cfg.registerer != nil {
		m = metrics.New(cfg.registerer)
	}

	statusCache, err := cache.New(cfg.cacheSize, cfg.staleAfter, func(key string) {
		m.Evicted()
		logger.Debug("status evicted", "key", key)
	})
	if err != nil {
		return nil, err
	}

	var httpClient *http.Client
	clients := cfg.clients
	if clients == nil {
		httpClient = github.NewHTTPClient()
		timeout := cfg.requestTimeout
		clients = func(account Account) APIClient {
			return github.NewClient(account, httpClient, timeout, logger)
		}
	}

	registry := store.NewRegistry()
	refresher := poller.NewRefresher(poller.RefresherConfig{
		Cache:    statusCache,
		Registry: registry,
		Accounts: accounts,
		Clients:  clients,
		Now:      cfg.now,
		Logger:   logger,
		Metrics:  m,
	})
	limiter := poller.NewLimiter(cfg.maxConcurrency, logger, m)
	scheduler := poller.NewScheduler(poller.SchedulerConfig{
		Refresher: refresher,
		Limiter:   limiter,
		Cache:     statusCache,
		Registry:  registry,
		Interval:  cfg.refreshInterval,
		Now:       cfg.now,
		Logger:    logger,
		Metrics:   m,
	})
	scheduler.Start(context.Background())

	return &Store{
		cache:      statusCache,
		registry:   registry,
		scheduler:  scheduler,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Subscribe registers cb for status updates of ref in repo and requests a
// sweep so a first subscriber does not wait for the next periodic tick.
//
// The returned [Disposable] removes exactly this callback; once disposed, cb
// is never invoked again even if a refresh is already in flight. Disposing
// does not cancel that refresh.
//
// A nil cb is ignored and yields a no-op Disposable.
func (s *Store) Subscribe(repo Repository, ref string, cb StatusCallback) Disposable {
	if cb == nil {
		return store.DisposeFunc(func() {})
	}

	d := s.registry.Subscribe(store.Target{Repository: repo, Ref: ref}, cb)
	s.scheduler.RequestSweep()
	return d
}

// TryGetStatus returns the cached status of ref in repo, or nil when it is
// not cached or has no checks. It never performs network activity. Use
// [Store.Lookup] to tell those two cases apart.
func (s *Store) TryGetStatus(repo Repository, ref string) *CombinedStatus {
	status, _ := s.Lookup(repo, ref)
	return status
}

// Lookup returns the cached status of ref in repo and whether an entry
// exists. A cached entry with a nil status means the ref has no checks.
func (s *Store) Lookup(repo Repository, ref string) (*CombinedStatus, bool) {
	entry, ok := s.cache.Get(store.Target{Repository: repo, Ref: ref}.Key())
	if !ok {
		return nil, false
	}
	return entry.Check, true
}

// Refresh fetches the status of ref in repo now, whether or not it has
// subscribers, writes it to the cache and notifies any subscribers.
//
// If a refresh of the same ref is already in flight, no request is made
// and the cached status is returned. Returns [ErrNoAccount] when no account
// matches the repository endpoint and [ErrFetchFailed], together with the
// previously cached status, when both API calls failed.
func (s *Store) Refresh(ctx context.Context, repo Repository, ref string) (*CombinedStatus, error) {
	return s.scheduler.RefreshNow(ctx, store.Target{Repository: repo, Ref: ref})
}

// StartBackgroundRefresh sweeps subscriptions now and then periodically,
// refreshing every ref whose cached status is missing or stale. Calling it
// while background refresh is active has no effect.
func (s *Store) StartBackgroundRefresh() {
	s.scheduler.StartBackground()
}

// StopBackgroundRefresh stops periodic sweeps. Refreshes already running
// complete normally and subscribing still requests a sweep.
func (s *Store) StopBackgroundRefresh() {
	s.scheduler.StopBackground()
}

// BackgroundRefreshRunning reports whether periodic sweeps are active.
func (s *Store) BackgroundRefreshRunning() bool {
	return s.scheduler.BackgroundRunning()
}

// Subscriptions returns the number of refs with at least one subscriber.
func (s *Store) Subscriptions() int {
	return s.registry.Len()
}

// Close stops all sweeps and cancels refreshes started by them. Close is
// idempotent. The store must not be used afterwards.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.scheduler.Stop()
		if s.httpClient != nil {
			s.httpClient.CloseIdleConnections()
		}
		s.logger.Debug("status store closed")
	})
}
