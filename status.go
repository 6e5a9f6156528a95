package refwatch

import (
	"github.com/jpalmerr/refwatch/internal/checks"
	"github.com/jpalmerr/refwatch/internal/github"
	"github.com/jpalmerr/refwatch/internal/poller"
	"github.com/jpalmerr/refwatch/internal/store"
)

// CombinedStatus is the unified view of every check reported for a ref,
// reduced to one status and conclusion plus the detailed list.
//
// Methods of [Store] pass *CombinedStatus values around; a nil pointer means
// the ref has no checks at all. Values are never mutated after they are
// cached, so callers may keep them.
type CombinedStatus = checks.Combined

// RefCheck is a single legacy status context or check run.
type RefCheck = checks.RefCheck

// CheckStatus is the progress of a check.
type CheckStatus = checks.Status

// CheckConclusion is the outcome of a completed check. It is empty unless
// the status is [StatusCompleted].
type CheckConclusion = checks.Conclusion

const (
	StatusQueued     = checks.StatusQueued
	StatusInProgress = checks.StatusInProgress
	StatusCompleted  = checks.StatusCompleted
)

const (
	ConclusionSuccess        = checks.ConclusionSuccess
	ConclusionFailure        = checks.ConclusionFailure
	ConclusionNeutral        = checks.ConclusionNeutral
	ConclusionSkipped        = checks.ConclusionSkipped
	ConclusionTimedOut       = checks.ConclusionTimedOut
	ConclusionStale          = checks.ConclusionStale
	ConclusionCancelled      = checks.ConclusionCancelled
	ConclusionActionRequired = checks.ConclusionActionRequired
)

// Repository identifies a hosted repository. An empty Endpoint means
// [DefaultEndpoint].
type Repository = store.Repository

// DefaultEndpoint is the public API endpoint.
const DefaultEndpoint = store.DefaultEndpoint

// StatusCallback receives the combined status of a ref after every
// successful refresh.
//
// Callbacks are invoked synchronously, in subscription order, from the
// goroutine that completed the refresh. They must not block. Panics are
// recovered and logged; they do not affect other subscribers.
type StatusCallback = store.Callback

// Disposable cancels a subscription. Dispose is idempotent.
type Disposable = store.Disposable

// Account is a signed-in identity on one API endpoint.
type Account = github.Account

// AccountResolver finds the account signed in to an API endpoint.
type AccountResolver = poller.AccountResolver

// APIClient fetches commit statuses and check runs for a ref. Both methods
// return nil on failure.
type APIClient = poller.APIClient

// ClientFactory returns the API client to use for an account.
type ClientFactory = poller.ClientFactory

var (
	// ErrNoAccount is returned by [Store.Refresh] when no account is signed
	// in to the repository's endpoint.
	ErrNoAccount = poller.ErrNoAccount

	// ErrFetchFailed is returned by [Store.Refresh] when both API calls
	// failed. The previously cached status is returned alongside it.
	ErrFetchFailed = poller.ErrFetchFailed
)
