// Package ops exposes the operational HTTP surface: health checks and a
// websocket feed of pipeline progress events.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/studylab/paperextract/internal/paper"
)

const readyCheckTimeout = 2 * time.Second

// Server serves /healthz, /readyz and /ws/progress. Readiness checks are
// registered by name; the feed may be nil, disabling the websocket endpoint.
type Server struct {
	checks map[string]func(context.Context) error
	feed   *paper.BroadcastSink
}

// New creates a server streaming events from feed.
func New(feed *paper.BroadcastSink) *Server {
	return &Server{
		checks: make(map[string]func(context.Context) error),
		feed:   feed,
	}
}

// AddCheck registers a readiness check, such as a database or cache ping.
func (s *Server) AddCheck(name string, fn func(context.Context) error) {
	s.checks[name] = fn
}

// Mux creates the HTTP router.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /ws/progress", s.handleProgress)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unavailable",
				"check":  name,
			})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// handleProgress streams pipeline events to the client until it disconnects.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		http.Error(w, "progress feed not enabled", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := s.feed.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				slog.Debug("websocket write failed, dropping subscriber", "error", err)
				return
			}
		}
	}
}
