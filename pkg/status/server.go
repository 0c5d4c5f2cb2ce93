package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/storage"
)

// History serves journaled events
type History interface {
	Recent(ctx context.Context, username string, limit int) ([]storage.Record, error)
	CountByType(ctx context.Context, username string) (map[string]int, error)
}

// defaultEventLimit is used when /events has no limit parameter
const defaultEventLimit = 50

// Server exposes health, status, metrics and event history over HTTP
type Server struct {
	addr    string
	router  *chi.Mux
	tracker *Tracker
	history History
	logger  logger.Logger
}

// NewServer builds the router. history may be nil, in which case /events
// and /events/counts answer 503.
func NewServer(addr string, tracker *Tracker, history History, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Server{addr: addr, tracker: tracker, history: history, logger: log.WithField("component", "status_server")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/events", s.handleEvents)
	r.Get("/events/counts", s.handleEventCounts)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	s.router = r
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.InfoWithFields("Status server started", map[string]interface{}{"addr": ln.Addr().String()})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop status server: %w", err)
	}
	s.logger.Info("Status server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) historyDisabled(w http.ResponseWriter) bool {
	if s.history != nil {
		return false
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event history is disabled"})
	return true
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.historyDisabled(w) {
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := s.history.Recent(r.Context(), r.URL.Query().Get("username"), limit)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read event history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read event history"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleEventCounts(w http.ResponseWriter, r *http.Request) {
	if s.historyDisabled(w) {
		return
	}

	counts, err := s.history.CountByType(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		s.logger.WithError(err).Warn("Failed to count journaled events")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read event history"})
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
