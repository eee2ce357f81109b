// Package api is the daemon's control surface: status, run-now, health and
// Prometheus metrics over HTTP, plus a websocket feed of status snapshots.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/amtoaer/bili-sync-sub000/internal/log"
	"github.com/amtoaer/bili-sync-sub000/internal/scheduler"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
)

const statusPushInterval = time.Second

// Server wires the control endpoints to the scheduler and the store.
type Server struct {
	sched    *scheduler.Scheduler
	st       *store.Store
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer builds the control server.
func NewServer(sched *scheduler.Scheduler, st *store.Store) *Server {
	return &Server{
		sched:  sched,
		st:     st,
		logger: log.WithComponent("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Router assembles the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/api/status", s.handleStatus)
	r.Post("/api/run", s.handleRun)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", s.handleWS)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.sched.TriggerNow() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cycle already running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.st.DB().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWS streams status snapshots until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Str("event", "ws.upgrade_failed").Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// drain control frames so pings and close get processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(s.sched.Status()); err != nil {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
