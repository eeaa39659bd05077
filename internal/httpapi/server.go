// Package httpapi serves the read-only dashboard surface: health,
// snapshot JSON, Prometheus metrics, and a WebSocket snapshot stream.
// No mutation endpoints exist here apart from review resolution, which
// is the one human-in-the-loop input the core needs.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/review"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/snapshot"
)

// Server is the read-only HTTP front.
type Server struct {
	aggregator *snapshot.Aggregator
	reviews    *review.Queue
	registry   *prometheus.Registry
	httpServer *http.Server
	upgrader   websocket.Upgrader
	wsInterval time.Duration
}

// Options configures a Server.
type Options struct {
	Addr       string
	Aggregator *snapshot.Aggregator
	Reviews    *review.Queue
	Registry   *prometheus.Registry
	WSInterval time.Duration // snapshot push interval, default 2s
}

// NewServer builds the router and server.
func NewServer(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8087"
	}
	if opts.WSInterval <= 0 {
		opts.WSInterval = 2 * time.Second
	}

	s := &Server{
		aggregator: opts.Aggregator,
		reviews:    opts.Reviews,
		registry:   opts.Registry,
		wsInterval: opts.WSInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/reviews", s.handleReviews).Methods(http.MethodGet)
	r.HandleFunc("/reviews/{id}/approve", s.handleResolve(true)).Methods(http.MethodPost)
	r.HandleFunc("/reviews/{id}/reject", s.handleResolve(false)).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWS)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("httpapi: listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("httpapi: request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.aggregator.Snapshot())
}

func (s *Server) handleReviews(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reviews.Pending())
}

func (s *Server) handleResolve(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		note := r.URL.Query().Get("note")

		var err error
		if approve {
			_, err = s.reviews.Approve(id, note)
		} else {
			err = s.reviews.Reject(id, note)
		}
		if err == review.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"review_id": id, "status": statusWord(approve)})
	}
}

func statusWord(approve bool) string {
	if approve {
		return "approved"
	}
	return "rejected"
}

// handleWS streams snapshots until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("httpapi: websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.wsInterval)
	defer ticker.Stop()

	// Reader goroutine drains control frames and signals close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.aggregator.Snapshot()); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("httpapi: response encode failed")
	}
}
