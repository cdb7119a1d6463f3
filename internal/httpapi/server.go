// Package httpapi exposes the agent's control surface: monitor enumeration
// and selection, health, engine status, and the WebSocket streaming session.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openctrol/agent/internal/health"
	"github.com/openctrol/agent/internal/logging"
	"github.com/openctrol/agent/internal/remote/desktop"
	"github.com/openctrol/agent/internal/secmem"
)

var log = logging.L("httpapi")

const (
	authHeader      = "X-Openctrol-Key"
	shutdownTimeout = 5 * time.Second
)

// Config holds the server's settings.
type Config struct {
	ListenAddr  string
	AgentID     string
	APIKey      *secmem.Secret // nil or empty disables authentication
	Version     string
	MaxSessions int
}

// Server serves the HTTP API and upgrades streaming sessions.
type Server struct {
	cfg        Config
	engine     *desktop.Engine
	dispatcher *desktop.Dispatcher
	dist       *desktop.Distributor
	monitor    *health.Monitor

	httpServer *http.Server
	upgrader   websocket.Upgrader
	sessions   atomic.Int32
}

func New(cfg Config, eng *desktop.Engine, disp *desktop.Dispatcher, dist *desktop.Distributor, mon *health.Monitor) *Server {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 4
	}
	s := &Server{
		cfg:        cfg,
		engine:     eng,
		dispatcher: disp,
		dist:       dist,
		monitor:    mon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.routes(),
	}
	return s
}

// Handler returns the server's route tree, wrapped in authentication.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/rd/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/rd/monitors", s.handleMonitors)
	mux.HandleFunc("POST /api/v1/rd/monitor", s.handleMonitorSelect)
	mux.HandleFunc("GET /api/v1/rd/session", s.handleSession)
	return s.requireAuth(mux)
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.Info("api listening", "addr", s.cfg.ListenAddr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes the listener and waits for in-flight requests. Hijacked
// streaming connections are not covered by http.Server.Shutdown; cancel the
// base context to end them.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// SetBaseContext makes every request context derive from ctx, so cancelling
// it ends active streaming sessions during shutdown.
func (s *Server) SetBaseContext(ctx context.Context) {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
}

// requireAuth rejects requests whose key header does not match the
// configured API key. With no key configured, all requests pass.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.APIKey.IsEmpty() {
			if !s.cfg.APIKey.Matches(r.Header.Get(authHeader)) {
				log.Warn("rejected unauthenticated request", "path", r.URL.Path, "remote", r.RemoteAddr)
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Summary())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RefreshMonitors(); err != nil {
		log.Warn("monitor refresh failed", "error", err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"monitors": s.engine.Monitors(),
		"current":  s.engine.CurrentMonitorID(),
	})
}

func (s *Server) handleMonitorSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MonitorID string `json:"monitor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MonitorID == "" {
		writeError(w, http.StatusBadRequest, "monitor_id is required")
		return
	}
	if err := s.engine.SelectMonitor(req.MonitorID); err != nil {
		if errors.Is(err, desktop.ErrMonitorNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current": s.engine.CurrentMonitorID(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	// Reserve the slot before the upgrade so concurrent connects cannot
	// overshoot the cap; the deferred release also covers a failed upgrade.
	if n := s.sessions.Add(1); int(n) > s.cfg.MaxSessions {
		s.sessions.Add(-1)
		writeError(w, http.StatusServiceUnavailable, "session limit reached")
		return
	}
	defer s.sessions.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err.Error(), "remote", r.RemoteAddr)
		return
	}

	sessionID := uuid.NewString()

	sess := desktop.NewSession(desktop.SessionConfig{
		SessionID: sessionID,
		AgentID:   s.cfg.AgentID,
		Version:   s.cfg.Version,
	}, conn, s.engine, s.dispatcher, s.dist)

	log.Info("session accepted",
		logging.KeySessionID, sessionID, "remote", r.RemoteAddr)
	if err := sess.Run(r.Context()); err != nil {
		log.Warn("session ended with error",
			logging.KeySessionID, sessionID, "error", err.Error())
	}
}

// SessionCount returns the number of active streaming sessions.
func (s *Server) SessionCount() int { return int(s.sessions.Load()) }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("response encode failed", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
