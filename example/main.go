package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/refwatch"
)

const mockEndpoint = "http://localhost:9999"

func main() {
	// start mock API (see mock_server.go)
	go StartMockAPIServer(":9999")
	time.Sleep(100 * time.Millisecond)

	accounts := refwatch.NewAccounts(refwatch.Account{Endpoint: mockEndpoint, Login: "demo"})

	s, err := refwatch.New(accounts,
		refwatch.WithStaleThreshold(5*time.Second),
		refwatch.WithRefreshInterval(10*time.Second),
		refwatch.WithMaxConcurrency(2),
	)
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	repos := []refwatch.Repository{
		{ID: 1, Endpoint: mockEndpoint, Owner: "octo", Name: "api", DefaultBranch: "main"},
		{ID: 2, Endpoint: mockEndpoint, Owner: "octo", Name: "web", DefaultBranch: "main"},
	}

	// watch a feature branch on each repository; default branches are
	// handled by the indicator updater below
	for _, repo := range repos {
		repo := repo
		sub := s.Subscribe(repo, "feature", func(status *refwatch.CombinedStatus) {
			if status == nil {
				slog.Info("no checks", "repo", repo.FullName())
				return
			}
			slog.Info("status", "repo", repo.FullName(), "ref", "feature",
				"status", status.Status, "conclusion", status.Conclusion)
		})
		defer sub.Dispose()
	}

	s.StartBackgroundRefresh()

	u, err := refwatch.NewIndicatorUpdater(
		func() []refwatch.Repository { return repos },
		refwatch.RefreshDefaultBranch(s),
		refwatch.WithIndicatorInterval(30*time.Second),
	)
	if err != nil {
		slog.Error("failed to create indicator updater", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  refwatch demo")
	fmt.Println()
	fmt.Println("  Mock API on " + mockEndpoint)
	fmt.Println("  • 2 feature-branch subscriptions (5s staleness, 10s sweep)")
	fmt.Println("  • 2 default branches refreshed by the indicator updater (30s)")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	u.Start(ctx)
	defer u.Stop()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, repo := range repos {
				if status := s.TryGetStatus(repo, repo.DefaultBranch); status != nil {
					slog.Info("indicator", "repo", repo.FullName(), "status", status.Status, "conclusion", status.Conclusion)
				}
			}
		}
	}
}
