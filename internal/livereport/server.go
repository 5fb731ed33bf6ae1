package livereport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/conneroisu/tagnest/internal/errors"
	"github.com/conneroisu/tagnest/internal/logging"
	"github.com/conneroisu/tagnest/internal/report"
	"github.com/conneroisu/tagnest/internal/version"
)

// Server exposes the hub over HTTP.
//
//	/ws       summary feed
//	/summary  latest summary as JSON
//	/healthz  liveness probe
type Server struct {
	httpServer *http.Server
	hub        *Hub
	logger     logging.Logger
}

// NewServer builds a server listening on addr.
func NewServer(addr string, allowedOrigins []string, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	hub := NewHub(NewAllowList(allowedOrigins), logger)
	s := &Server{
		hub:    hub,
		logger: logger.WithComponent("livereport"),
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	mux.HandleFunc("/summary", s.handleSummary)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Publish broadcasts a fresh summary to subscribers.
func (s *Server) Publish(summary *report.Summary) {
	s.hub.Broadcast(summary)
}

// Start listens until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Serving live report", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and disconnects every subscriber.
func (s *Server) Shutdown(ctx context.Context) error {
	hubErr := s.hub.Shutdown(ctx)
	return errors.CombineErrors(s.httpServer.Shutdown(ctx), hubErr)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	latest := s.hub.Latest()
	if latest == nil {
		http.Error(w, "No summary yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(latest)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"clients":   s.hub.ConnectedClients(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode health response")
	}
}
