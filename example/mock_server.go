package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockRun tracks the simulated CI run of a single ref.
type mockRun struct {
	phase        int
	nextChangeAt time.Time
}

// phases a mock ref cycles through: status, conclusion.
var mockPhases = [][2]string{
	{"queued", ""},
	{"in_progress", ""},
	{"completed", "success"},
	{"in_progress", ""},
	{"completed", "failure"},
}

// StartMockAPIServer runs a fake commit status API whose check runs advance
// one phase every 10-30 seconds per ref.
// Call this in a goroutine before creating the store.
func StartMockAPIServer(addr string) {
	var (
		runs = make(map[string]*mockRun)
		mu   sync.Mutex
	)

	current := func(key string) [2]string {
		mu.Lock()
		defer mu.Unlock()

		run, exists := runs[key]
		if !exists {
			run = &mockRun{nextChangeAt: time.Now().Add(time.Duration(10+rand.Intn(21)) * time.Second)}
			runs[key] = run
		}

		// advance when scheduled time is reached
		if time.Now().After(run.nextChangeAt) {
			run.phase = (run.phase + 1) % len(mockPhases)
			run.nextChangeAt = time.Now().Add(time.Duration(10+rand.Intn(21)) * time.Second)
			slog.Info("mock run advanced", "ref", key, "status", mockPhases[run.phase][0], "conclusion", mockPhases[run.phase][1])
		}
		return mockPhases[run.phase]
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /repos/{owner}/{name}/commits/{ref}/status", func(w http.ResponseWriter, r *http.Request) {
		// legacy statuses are always green; check runs carry the signal
		writeMockJSON(w, map[string]any{
			"state": "success",
			"statuses": []map[string]string{
				{"context": "ci/lint", "state": "success", "description": "lint passed"},
			},
		})
	})

	mux.HandleFunc("GET /repos/{owner}/{name}/commits/{ref}/check-runs", func(w http.ResponseWriter, r *http.Request) {
		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		key := r.PathValue("owner") + "/" + r.PathValue("name") + "@" + r.PathValue("ref")
		phase := current(key)

		run := map[string]any{
			"name":        "build",
			"status":      phase[0],
			"conclusion":  nil,
			"check_suite": map[string]int{"id": 1},
		}
		if phase[1] != "" {
			run["conclusion"] = phase[1]
		}
		writeMockJSON(w, map[string]any{
			"total_count": 1,
			"check_runs":  []any{run},
		})
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func writeMockJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
