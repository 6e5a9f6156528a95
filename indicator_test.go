package refwatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndicatorUpdater_Validation(t *testing.T) {
	repos := func() []Repository { return nil }
	refresh := func(context.Context, Repository) error { return nil }

	_, err := NewIndicatorUpdater(nil, refresh)
	assert.Error(t, err)

	_, err = NewIndicatorUpdater(repos, nil)
	assert.Error(t, err)

	for name, opt := range map[string]IndicatorOption{
		"zero interval": WithIndicatorInterval(0),
		"negative skew": WithSkew(-time.Second),
		"nil logger":    WithIndicatorLogger(nil),
		"nil metrics":   WithIndicatorMetrics(nil),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewIndicatorUpdater(repos, refresh, opt)
			assert.Error(t, err)
		})
	}
}

func TestIndicatorUpdater_RefreshesDefaultBranches(t *testing.T) {
	api := &fakeAPI{}
	api.set(nil, passingRuns())
	s := newTestStore(t, api)

	repos := []Repository{
		{ID: 1, Owner: "octo", Name: "one", DefaultBranch: "main"},
		{ID: 2, Owner: "octo", Name: "two", DefaultBranch: "trunk"},
		{ID: 3, Owner: "octo", Name: "empty"},
		{ID: 4, Endpoint: "https://ghe.example.com/api/v3", Owner: "corp", Name: "app", DefaultBranch: "main"},
	}

	u, err := NewIndicatorUpdater(func() []Repository { return repos }, RefreshDefaultBranch(s),
		WithIndicatorInterval(time.Hour),
		WithSkew(time.Millisecond),
		WithIndicatorLogger(testLogger()),
	)
	require.NoError(t, err)

	u.Start(context.Background())
	defer u.Stop()
	assert.True(t, u.Running())

	require.Eventually(t, func() bool {
		return s.TryGetStatus(repos[0], "main") != nil && s.TryGetStatus(repos[1], "trunk") != nil
	}, 2*time.Second, 5*time.Millisecond)

	// no default branch and no account are both skipped without a fetch
	assert.False(t, u.LastSweepStartedAt().IsZero())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), api.calls.Load())
	_, ok := s.Lookup(repos[3], "main")
	assert.False(t, ok)
}

func TestIndicatorUpdater_PauseResume(t *testing.T) {
	var mu sync.Mutex
	visited := map[int64]int{}
	refresh := func(_ context.Context, r Repository) error {
		mu.Lock()
		visited[r.ID]++
		mu.Unlock()
		return nil
	}
	repos := func() []Repository {
		return []Repository{{ID: 1}, {ID: 2}, {ID: 3}}
	}

	u, err := NewIndicatorUpdater(repos, refresh, WithIndicatorInterval(time.Hour), WithSkew(time.Millisecond))
	require.NoError(t, err)

	u.Pause()
	u.Pause()
	assert.True(t, u.Paused())

	u.Start(context.Background())
	defer u.Stop()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, visited, "visited while paused")
	mu.Unlock()

	u.Resume()
	assert.False(t, u.Paused())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(visited) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for id, n := range visited {
		assert.Equal(t, 1, n, "repository %d visited %d times", id, n)
	}
}

func TestIndicatorUpdater_StopIsIdempotent(t *testing.T) {
	u, err := NewIndicatorUpdater(func() []Repository { return nil }, func(context.Context, Repository) error { return nil })
	require.NoError(t, err)

	u.Stop()
	u.Start(context.Background())
	u.Stop()
	u.Stop()

	assert.False(t, u.Running())
}
