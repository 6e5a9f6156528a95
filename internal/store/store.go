package store

import (
	"strings"
	"sync"

	"github.com/jpalmerr/refwatch/internal/checks"
)

// DefaultEndpoint is the API endpoint used when a repository has none.
const DefaultEndpoint = "https://api.github.com"

// Repository identifies a hosted repository.
type Repository struct {
	// ID is a caller-assigned identity, used by the indicator updater to
	// visit each repository once per sweep.
	ID int64 `json:"id" yaml:"id"`

	// Endpoint is the API base URL, e.g. https://api.github.com or
	// https://ghe.example.com/api/v3.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Owner is the login of the repository owner.
	Owner string `json:"owner" yaml:"owner"`

	// Name is the repository name.
	Name string `json:"name" yaml:"name"`

	// DefaultBranch is the ref refreshed by the indicator updater.
	DefaultBranch string `json:"default_branch,omitempty" yaml:"default_branch"`
}

// APIEndpoint returns the endpoint with the default applied and any
// trailing slash removed.
func (r Repository) APIEndpoint() string {
	if r.Endpoint == "" {
		return DefaultEndpoint
	}
	return strings.TrimRight(r.Endpoint, "/")
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Target is a single ref within a repository.
type Target struct {
	Repository Repository
	Ref        string
}

// Key returns the cache key for the target.
func (t Target) Key() string {
	return Key(t.Repository.APIEndpoint(), t.Repository.Owner, t.Repository.Name, t.Ref)
}

// Key builds the cache key for a ref. It mirrors the canonical status URL,
// which keeps keys readable in logs.
func Key(endpoint, owner, name, ref string) string {
	return strings.TrimRight(endpoint, "/") + "/repos/" + owner + "/" + name + "/commits/" + ref
}

// Callback receives the combined status of a ref after every successful
// refresh. A nil status means the ref has no checks.
type Callback func(status *checks.Combined)

// Disposable releases a resource such as a subscription.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function into a [Disposable] that runs at most once.
func DisposeFunc(fn func()) Disposable {
	return &onceDisposable{fn: fn}
}

type onceDisposable struct {
	once sync.Once
	fn   func()
}

func (d *onceDisposable) Dispose() {
	d.once.Do(d.fn)
}
