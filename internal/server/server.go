package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/refwatch/internal/checks"
	"github.com/jpalmerr/refwatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown after the server context ends.
	shutdownTimeout = 5 * time.Second

	// sseBuffer is the number of notifications queued per SSE client before
	// new ones are dropped.
	sseBuffer = 16
)

// StatusSource is the subset of the status store the server reads from.
// *refwatch.Store satisfies it.
type StatusSource interface {
	Subscribe(repo store.Repository, ref string, cb store.Callback) store.Disposable
	Lookup(repo store.Repository, ref string) (*checks.Combined, bool)
}

// IndicatorControl exposes pause and resume of the indicator updater.
type IndicatorControl interface {
	Pause()
	Resume()
	Running() bool
	Paused() bool
}

// Server handles HTTP requests for the refwatch API.
//
// Routes:
//   - GET /api/status: cached combined status of one ref
//   - GET /api/sse: Server-Sent Events stream of one ref's notifications
//   - GET /api/indicators, POST /api/indicators/pause, POST /api/indicators/resume
//   - GET /metrics: Prometheus exposition, when a gatherer is configured
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	source     StatusSource
	indicators IndicatorControl
	gatherer   prometheus.Gatherer
	port       int
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// indicators and gatherer may be nil, in which case their routes answer 404.
// The server is not started until [Server.Start] is called.
func NewServer(src StatusSource, indicators IndicatorControl, gatherer prometheus.Gatherer, port int, logger *slog.Logger) *Server {
	return &Server{
		source:     src,
		indicators: indicators,
		gatherer:   gatherer,
		port:       port,
		logger:     logger,
	}
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/indicators", s.handleIndicators)
	mux.HandleFunc("/api/indicators/pause", s.handleIndicatorAction)
	mux.HandleFunc("/api/indicators/resume", s.handleIndicatorAction)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("http server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// statusEvent is the JSON body of /api/status and of every SSE event.
// A null status means the ref has no checks.
type statusEvent struct {
	Key    string           `json:"key"`
	Status *checks.Combined `json:"status"`
}

type indicatorState struct {
	Running bool `json:"running"`
	Paused  bool `json:"paused"`
}

// parseTarget reads endpoint, owner, repo and ref from the query string.
func parseTarget(r *http.Request) (store.Target, error) {
	q := r.URL.Query()
	t := store.Target{
		Repository: store.Repository{
			Endpoint: q.Get("endpoint"),
			Owner:    q.Get("owner"),
			Name:     q.Get("repo"),
		},
		Ref: q.Get("ref"),
	}
	switch {
	case t.Repository.Owner == "":
		return t, errors.New("owner is required")
	case t.Repository.Name == "":
		return t, errors.New("repo is required")
	case t.Ref == "":
		return t, errors.New("ref is required")
	}
	return t, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

// handleStatus returns the cached status of one ref. It never fetches.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target, err := parseTarget(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, ok := s.source.Lookup(target.Repository, target.Ref)
	if !ok {
		s.writeError(w, http.StatusNotFound, "status not cached")
		return
	}

	s.writeJSON(w, http.StatusOK, statusEvent{Key: target.Key(), Status: status})
}

// handleSSE subscribes to one ref and streams its notifications via
// Server-Sent Events. The subscription is disposed when the client goes away.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	target, err := parseTarget(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := target.Key()

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(status *checks.Combined) error {
		data, err := json.Marshal(statusEvent{Key: key, Status: status})
		if err != nil {
			return err
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// callbacks run on refresh goroutines and must not block
	events := make(chan *checks.Combined, sseBuffer)
	sub := s.source.Subscribe(target.Repository, target.Ref, func(status *checks.Combined) {
		select {
		case events <- status:
		default:
			s.logger.Warn("sse client too slow, dropping notification", "key", key)
		}
	})
	defer sub.Dispose()

	s.logger.Debug("sse client subscribed", "key", key)
	defer s.logger.Debug("sse client disconnected", "key", key)

	if status, ok := s.source.Lookup(target.Repository, target.Ref); ok {
		if err := writeAndFlush(status); err != nil {
			return
		}
	}

	for {
		select {
		case status := <-events:
			if err := writeAndFlush(status); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.indicators == nil {
		s.writeError(w, http.StatusNotFound, "indicators disabled")
		return
	}

	s.writeJSON(w, http.StatusOK, indicatorState{
		Running: s.indicators.Running(),
		Paused:  s.indicators.Paused(),
	})
}

// handleIndicatorAction pauses or resumes the indicator updater and
// responds with the resulting state.
func (s *Server) handleIndicatorAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.indicators == nil {
		s.writeError(w, http.StatusNotFound, "indicators disabled")
		return
	}

	switch r.URL.Path {
	case "/api/indicators/pause":
		s.indicators.Pause()
		s.logger.Info("indicator updater paused")
	case "/api/indicators/resume":
		s.indicators.Resume()
		s.logger.Info("indicator updater resumed")
	}

	s.writeJSON(w, http.StatusOK, indicatorState{
		Running: s.indicators.Running(),
		Paused:  s.indicators.Paused(),
	})
}
