// Package refwatch keeps the CI status of git refs fresh and fans it out to
// any number of observers.
//
// A [Store] caches the combined status of each ref (legacy commit statuses
// and check runs reduced to one status/conclusion pair), refreshes stale
// entries through a bounded pool of concurrent API requests, and notifies
// every subscriber of a ref after each successful refresh. Failed fetches
// never evict what is already known; staleness is the only visible symptom.
//
// # Quick Start
//
//	accounts := refwatch.NewAccounts(refwatch.Account{
//	    Endpoint: refwatch.DefaultEndpoint,
//	    Token:    os.Getenv("GITHUB_TOKEN"),
//	})
//
//	s, err := refwatch.New(accounts)
//	if err != nil {
//	    slog.Error("failed to create store", "error", err)
//	    os.Exit(1)
//	}
//	defer s.Close()
//
//	repo := refwatch.Repository{Owner: "octo", Name: "hello"}
//	sub := s.Subscribe(repo, "main", func(status *refwatch.CombinedStatus) {
//	    if status == nil {
//	        return // no checks for this ref
//	    }
//	    slog.Info("status", "status", status.Status, "conclusion", status.Conclusion)
//	})
//	defer sub.Dispose()
//
//	s.StartBackgroundRefresh()
//
// # Configuration
//
// Store uses the functional options pattern:
//
//	s, err := refwatch.New(accounts,
//	    refwatch.WithMaxConcurrency(4),
//	    refwatch.WithStaleThreshold(2*time.Minute),
//	    refwatch.WithRefreshInterval(5*time.Minute),
//	    refwatch.WithMetrics(prometheus.DefaultRegisterer),
//	)
//
// # Indicators
//
// [IndicatorUpdater] is an independent, pausable walker that refreshes a
// larger set of repositories one at a time, typically through
// [RefreshDefaultBranch]:
//
//	u, _ := refwatch.NewIndicatorUpdater(listRepos, refwatch.RefreshDefaultBranch(s))
//	u.Start(ctx)
//	defer u.Stop()
//
// # Architecture
//
//   - internal/checks: status aggregation
//   - internal/cache: bounded LRU with freshness
//   - internal/store: cache keys and the subscription registry
//   - internal/poller: limiter, refresher, scheduler and indicator walker
//   - internal/github: REST client
//   - internal/metrics: Prometheus collectors
//   - internal/server: HTTP API with Server-Sent Events
//
// The internal packages are not part of the public API and may change
// without notice.
package refwatch
