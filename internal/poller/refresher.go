package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/refwatch/internal/cache"
	"github.com/jpalmerr/refwatch/internal/checks"
	"github.com/jpalmerr/refwatch/internal/github"
	"github.com/jpalmerr/refwatch/internal/metrics"
	"github.com/jpalmerr/refwatch/internal/store"
)

var (
	// ErrNoAccount is returned when no account is signed in to the endpoint
	// of the repository being refreshed.
	ErrNoAccount = errors.New("no account for endpoint")

	// ErrFetchFailed is returned when both API calls for a ref failed.
	ErrFetchFailed = errors.New("fetching commit status failed")
)

// APIClient fetches the raw inputs of a combined status. Both methods return
// nil on failure.
type APIClient interface {
	FetchCombinedRefStatus(ctx context.Context, owner, name, ref string) *checks.CombinedRefStatus
	FetchRefCheckRuns(ctx context.Context, owner, name, ref string) *checks.CheckRunList
}

// AccountResolver finds the account signed in to an API endpoint.
type AccountResolver interface {
	FindAccountForEndpoint(endpoint string) (github.Account, bool)
}

// ClientFactory returns the API client to use for account.
type ClientFactory func(account github.Account) APIClient

// Refresher performs a single refresh of one cache key: fetch, aggregate,
// write the cache, notify subscribers.
type Refresher struct {
	cache    *cache.Cache
	registry *store.Registry
	accounts AccountResolver
	clients  ClientFactory
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// RefresherConfig holds the dependencies of a [Refresher].
type RefresherConfig struct {
	Cache    *cache.Cache
	Registry *store.Registry
	Accounts AccountResolver
	Clients  ClientFactory
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// NewRefresher creates a [Refresher]. Now defaults to time.Now and Logger to
// slog.Default.
func NewRefresher(cfg RefresherConfig) *Refresher {
	r := &Refresher{
		cache:    cfg.Cache,
		registry: cfg.Registry,
		accounts: cfg.Accounts,
		clients:  cfg.Clients,
		now:      cfg.Now,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// RefreshSubscription refreshes the subscription registered under key.
//
// A key whose subscription was disposed while the task waited is skipped,
// as is a repository whose endpoint has no account. Neither case writes the
// cache. A failed fetch is recorded in the cache and not reported as an
// error.
func (r *Refresher) RefreshSubscription(ctx context.Context, key string) error {
	target, ok := r.registry.Target(key)
	if !ok {
		r.metrics.RefreshDone(metrics.OutcomeVanished)
		return nil
	}

	_, err := r.RefreshTarget(ctx, target)
	if errors.Is(err, ErrNoAccount) || errors.Is(err, ErrFetchFailed) {
		return nil
	}
	return err
}

// RefreshTarget refreshes target whether or not it has subscribers and
// returns the resulting combined status.
//
// On a failed fetch the previously cached status is kept, its fetch time is
// advanced and the previous status is returned together with
// [ErrFetchFailed]. Subscribers are not notified in that case.
func (r *Refresher) RefreshTarget(ctx context.Context, target store.Target) (*checks.Combined, error) {
	key := target.Key()
	repo := target.Repository

	account, ok := r.accounts.FindAccountForEndpoint(repo.APIEndpoint())
	if !ok {
		r.metrics.RefreshDone(metrics.OutcomeNoAccount)
		r.logger.Debug("no account for endpoint", "endpoint", repo.APIEndpoint(), "key", key)
		return nil, fmt.Errorf("%w: %s", ErrNoAccount, repo.APIEndpoint())
	}

	client := r.clients(account)

	var (
		statuses *checks.CombinedRefStatus
		runs     *checks.CheckRunList
		g        errgroup.Group
	)
	g.Go(func() error {
		statuses = client.FetchCombinedRefStatus(ctx, repo.Owner, repo.Name, target.Ref)
		return nil
	})
	g.Go(func() error {
		runs = client.FetchRefCheckRuns(ctx, repo.Owner, repo.Name, target.Ref)
		return nil
	})
	_ = g.Wait()

	if statuses == nil && runs == nil {
		previous, _ := r.cache.Get(key)
		r.cache.Set(key, cache.Entry{Check: previous.Check, FetchedAt: r.now()})
		r.metrics.RefreshDone(metrics.OutcomeFailed)
		r.logger.Debug("keeping previous status after failed fetch", "key", key)
		return previous.Check, ErrFetchFailed
	}

	combined := checks.Aggregate(statuses, runs)
	r.cache.Set(key, cache.Entry{Check: combined, FetchedAt: r.now()})
	r.metrics.RefreshDone(metrics.OutcomeSuccess)

	r.notify(key, combined)
	return combined, nil
}

// notify delivers status to the current subscribers of key in registration
// order.
func (r *Refresher) notify(key string, status *checks.Combined) {
	for _, sub := range r.registry.Subscribers(key) {
		r.deliverSafe(key, sub, status)
	}
}

// deliverSafe invokes a subscriber with panic recovery so that one failing
// callback does not prevent the others from being notified.
func (r *Refresher) deliverSafe(key string, sub *store.Subscriber, status *checks.Combined) {
	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			r.metrics.CallbackPanic()
			r.logger.Error("status callback panic",
				"correlation_id", correlationID,
				"key", key,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.Deliver(status)
}
