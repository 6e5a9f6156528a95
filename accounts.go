package refwatch

import (
	"strings"
	"sync"
)

// Accounts is a thread-safe list of signed-in accounts. It implements
// [AccountResolver].
//
// The list can be replaced at any time with [Accounts.Set]; refreshes pick
// up the change on their next lookup.
type Accounts struct {
	mu       sync.RWMutex
	accounts []Account
}

// NewAccounts creates an account list holding accounts.
func NewAccounts(accounts ...Account) *Accounts {
	a := &Accounts{}
	a.Set(accounts)
	return a
}

// Set replaces the account list.
func (a *Accounts) Set(accounts []Account) {
	cp := make([]Account, len(accounts))
	copy(cp, accounts)

	a.mu.Lock()
	a.accounts = cp
	a.mu.Unlock()
}

// All returns a copy of the account list.
func (a *Accounts) All() []Account {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cp := make([]Account, len(a.accounts))
	copy(cp, a.accounts)
	return cp
}

// FindAccountForEndpoint returns the first account whose endpoint matches.
// Trailing slashes are ignored and an empty account endpoint means
// [DefaultEndpoint].
func (a *Accounts) FindAccountForEndpoint(endpoint string) (Account, bool) {
	want := normalizeEndpoint(endpoint)

	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, account := range a.accounts {
		if normalizeEndpoint(account.Endpoint) == want {
			return account, true
		}
	}
	return Account{}, false
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return DefaultEndpoint
	}
	return endpoint
}
