package refwatch

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/refwatch/internal/cache"
	"github.com/jpalmerr/refwatch/internal/github"
	"github.com/jpalmerr/refwatch/internal/poller"
)

// storeConfig holds mutable state during Store construction.
type storeConfig struct {
	logger          *slog.Logger
	cacheSize       int
	maxConcurrency  int
	staleAfter      time.Duration
	refreshInterval time.Duration
	requestTimeout  time.Duration
	now             func() time.Time
	clients         ClientFactory
	registerer      prometheus.Registerer
}

func defaultStoreConfig() *storeConfig {
	return &storeConfig{
		cacheSize:       cache.DefaultSize,
		maxConcurrency:  poller.DefaultMaxConcurrency,
		staleAfter:      cache.DefaultStaleAfter,
		refreshInterval: poller.DefaultRefreshInterval,
		requestTimeout:  github.DefaultTimeout,
		now:             time.Now,
	}
}

// Option is a function that configures a [Store] during construction.
//
// Options return an error if validation fails.
type Option func(*storeConfig) error

// WithLogger sets a custom [slog.Logger] for the store. If not specified,
// [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithCacheSize sets how many refs the status cache holds before evicting
// the least recently used one. Defaults to 250.
//
// Returns an error if the size is zero or negative.
func WithCacheSize(n int) Option {
	return func(cfg *storeConfig) error {
		if n <= 0 {
			return errors.New("cache size must be positive")
		}
		cfg.cacheSize = n
		return nil
	}
}

// WithMaxConcurrency sets the maximum number of refreshes in flight across
// all refs. Excess refreshes wait in FIFO order. Defaults to 6.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *storeConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithStaleThreshold sets the age after which a cached status is refreshed
// by the next sweep. Defaults to 60 seconds, the API's own cache lifetime.
//
// Returns an error if the duration is zero or negative.
func WithStaleThreshold(d time.Duration) Option {
	return func(cfg *storeConfig) error {
		if d <= 0 {
			return errors.New("stale threshold must be positive")
		}
		cfg.staleAfter = d
		return nil
	}
}

// WithRefreshInterval sets the period of the background sweep started by
// [Store.StartBackgroundRefresh]. Defaults to 3 minutes.
//
// Returns an error if the duration is zero or negative.
func WithRefreshInterval(d time.Duration) Option {
	return func(cfg *storeConfig) error {
		if d <= 0 {
			return errors.New("refresh interval must be positive")
		}
		cfg.refreshInterval = d
		return nil
	}
}

// WithRequestTimeout bounds each API request made by the default client
// factory. Defaults to 30 seconds. Ignored when [WithClientFactory] is used.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *storeConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithClock replaces time.Now for freshness decisions.
//
// Returns an error if now is nil.
func WithClock(now func() time.Time) Option {
	return func(cfg *storeConfig) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.now = now
		return nil
	}
}

// WithClientFactory replaces the REST client used for each account.
//
// Returns an error if the factory is nil.
func WithClientFactory(f ClientFactory) Option {
	return func(cfg *storeConfig) error {
		if f == nil {
			return errors.New("client factory cannot be nil")
		}
		cfg.clients = f
		return nil
	}
}

// WithMetrics registers the store's Prometheus collectors with reg.
//
// Registering two stores with the same registerer panics, as with any
// duplicate Prometheus registration.
//
// Returns an error if reg is nil.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *storeConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}
