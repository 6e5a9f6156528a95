package config

import (
	"strings"

	"github.com/jpalmerr/refwatch"
)

// Target is a configured ref to subscribe to.
type Target struct {
	Repository refwatch.Repository
	Ref        string
}

// BuildAccounts converts configured accounts into SDK accounts.
func BuildAccounts(cfg *Config) []refwatch.Account {
	accounts := make([]refwatch.Account, 0, len(cfg.Accounts))
	for _, ac := range cfg.Accounts {
		endpoint := strings.TrimRight(ac.Endpoint, "/")
		if endpoint == "" {
			endpoint = refwatch.DefaultEndpoint
		}
		accounts = append(accounts, refwatch.Account{
			Endpoint: endpoint,
			Login:    ac.Login,
			Token:    ac.Token,
		})
	}
	return accounts
}

// BuildRepositories converts configured repositories into SDK repositories,
// preserving their order.
func BuildRepositories(cfg *Config) []refwatch.Repository {
	repos := make([]refwatch.Repository, 0, len(cfg.Repositories))
	for _, rc := range cfg.Repositories {
		repos = append(repos, buildRepository(rc))
	}
	return repos
}

func buildRepository(rc RepositoryConfig) refwatch.Repository {
	return refwatch.Repository{
		ID:            rc.ID,
		Endpoint:      rc.Endpoint,
		Owner:         rc.Owner,
		Name:          rc.Name,
		DefaultBranch: rc.DefaultBranch,
	}
}

// BuildTargets expands every repository's refs into subscription targets,
// in configuration order.
func BuildTargets(cfg *Config) []Target {
	var targets []Target
	for _, rc := range cfg.Repositories {
		repo := buildRepository(rc)
		for _, ref := range rc.Refs {
			targets = append(targets, Target{Repository: repo, Ref: ref})
		}
	}
	return targets
}

// StoreOptions converts the tuning fields into [refwatch.Option] values.
func StoreOptions(cfg *Config) []refwatch.Option {
	opts := []refwatch.Option{
		refwatch.WithRefreshInterval(cfg.RefreshInterval.Duration()),
		refwatch.WithStaleThreshold(cfg.StaleAfter.Duration()),
		refwatch.WithMaxConcurrency(cfg.MaxConcurrency),
		refwatch.WithCacheSize(cfg.CacheSize),
	}
	if cfg.RequestTimeout != 0 {
		opts = append(opts, refwatch.WithRequestTimeout(cfg.RequestTimeout.Duration()))
	}
	return opts
}

// IndicatorOptions converts the indicators section into
// [refwatch.IndicatorOption] values.
func IndicatorOptions(cfg *Config) []refwatch.IndicatorOption {
	return []refwatch.IndicatorOption{
		refwatch.WithIndicatorInterval(cfg.Indicators.Interval.Duration()),
	}
}
