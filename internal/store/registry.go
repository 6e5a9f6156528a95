package store

import (
	"sync"
	"sync/atomic"

	"github.com/jpalmerr/refwatch/internal/checks"
)

// Subscriber is a single registered callback.
//
// Once its subscription is disposed a Subscriber never delivers again, even
// if it was captured by a refresh that was already in flight.
type Subscriber struct {
	cb     Callback
	active atomic.Bool
}

// Deliver invokes the callback if the subscriber is still active and
// reports whether it did.
func (s *Subscriber) Deliver(status *checks.Combined) bool {
	if !s.active.Load() {
		return false
	}
	s.cb(status)
	return true
}

// Subscription is the single logical subscription for one cache key.
type Subscription struct {
	Key    string
	Target Target

	// subscribers is guarded by Registry.mu and kept in registration order.
	subscribers []*Subscriber
}

// Registry maps cache keys to subscriptions.
//
// Registry is safe for concurrent use. All methods are non-blocking and
// callbacks are never invoked while the registry lock is held.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[string]*Subscription),
	}
}

// Subscribe attaches cb to the subscription for target, creating the
// subscription if this is its first callback.
//
// Disposing the returned [Disposable] removes exactly this callback. When
// the last callback is removed the subscription is deleted, so a later
// Subscribe for the same key starts a fresh subscription.
func (r *Registry) Subscribe(target Target, cb Callback) Disposable {
	key := target.Key()
	sub := &Subscriber{cb: cb}
	sub.active.Store(true)

	r.mu.Lock()
	subscription, ok := r.subs[key]
	if !ok {
		subscription = &Subscription{Key: key, Target: target}
		r.subs[key] = subscription
	}
	subscription.subscribers = append(subscription.subscribers, sub)
	r.mu.Unlock()

	return DisposeFunc(func() {
		sub.active.Store(false)
		r.remove(subscription, sub)
	})
}

// remove detaches sub from subscription, deleting the subscription from
// the registry when it becomes empty. A newer subscription registered
// under the same key is left untouched.
func (r *Registry) remove(subscription *Subscription, sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range subscription.subscribers {
		if s == sub {
			subscription.subscribers = append(subscription.subscribers[:i:i], subscription.subscribers[i+1:]...)
			break
		}
	}

	if len(subscription.subscribers) == 0 && r.subs[subscription.Key] == subscription {
		delete(r.subs, subscription.Key)
	}
}

// Target returns the target of the subscription for key.
func (r *Registry) Target(key string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscription, ok := r.subs[key]
	if !ok {
		return Target{}, false
	}
	return subscription.Target, true
}

// Keys returns a snapshot of every subscribed cache key.
// Order is not guaranteed.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.subs))
	for key := range r.subs {
		keys = append(keys, key)
	}
	return keys
}

// Subscribers returns a snapshot of the subscribers for key in
// registration order, or nil if there is no subscription.
func (r *Registry) Subscribers(key string) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscription, ok := r.subs[key]
	if !ok {
		return nil
	}
	return append([]*Subscriber(nil), subscription.subscribers...)
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
