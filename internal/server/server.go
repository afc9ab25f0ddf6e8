// Package server mounts the protocol endpoint and its HTTP surroundings:
// discovery routes, a health probe, and the optional admin status route.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/neboloop/browserd/internal/backend"
	"github.com/neboloop/browserd/internal/cdp"
	"github.com/neboloop/browserd/internal/config"
	"github.com/neboloop/browserd/internal/db"
	"github.com/neboloop/browserd/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Access control is the shared secret, not the Origin header.
		return true
	},
}

// Server is the HTTP front of one browserd process.
type Server struct {
	cfg     config.Config
	version string
	log     *slog.Logger
	secrets *middleware.SecretProvider
	store   *db.Store // nil disables persistent auditing

	// launcher starts a browser process per session. Swappable for tests.
	launcher func(ctx context.Context) (backend.Browser, error)

	// baseCtx is the process lifetime; sessions bind to it so shutdown
	// reaches connections the HTTP server no longer owns after hijack.
	baseCtx context.Context

	mu       sync.Mutex
	sessions map[string]struct{}
	started  time.Time
}

// New builds a Server. store may be nil.
func New(cfg config.Config, version string, secrets *middleware.SecretProvider, store *db.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		version:  version,
		log:      logger.With("component", "server"),
		secrets:  secrets,
		store:    store,
		baseCtx:  context.Background(),
		sessions: make(map[string]struct{}),
		started:  time.Now(),
	}
	s.launcher = s.launch
	return s
}

// Routes assembles the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", s.handleHealth)

	gate := middleware.SecretGate(s.secrets, s.log)
	r.Group(func(r chi.Router) {
		r.Use(gate)
		r.Get("/json/version", s.handleJSONVersion)
		r.Get("/json", s.handleJSONList)
		r.Get("/json/list", s.handleJSONList)
		r.HandleFunc("/cdp", s.handleCDP)
	})

	if s.cfg.Auth.JWTSecret != "" {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.JWTGuard(s.cfg.Auth.JWTSecret))
			r.Get("/status", s.handleStatus)
		})
	}

	return r
}

// launch starts one browser process per session from the configured options.
func (s *Server) launch(ctx context.Context) (backend.Browser, error) {
	return backend.Launch(ctx, backend.LaunchOptions{
		Headless:       s.cfg.Browser.Headless,
		ExecPath:       s.cfg.Browser.ExecPath,
		Args:           s.cfg.Browser.Args,
		ViewportWidth:  s.cfg.Browser.ViewportWidth,
		ViewportHeight: s.cfg.Browser.ViewportHeight,
		DefaultTimeout: time.Duration(s.cfg.Browser.TimeoutMS) * time.Millisecond,
	})
}

// handleCDP upgrades the connection and runs a session on it until either
// side hangs up. Browser launch failure is the one fatal path: the socket
// closes with an internal-error frame before any command is read.
func (s *Server) handleCDP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade wrote its own error response.
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	var recorder cdp.Recorder
	if s.store != nil {
		recorder = s.store
	}

	sess, err := cdp.NewSession(r.Context(), conn, cdp.Config{
		Launcher:       s.launcher,
		Logger:         s.log,
		Recorder:       recorder,
		DefaultTimeout: time.Duration(s.cfg.Browser.TimeoutMS) * time.Millisecond,
		ViewportWidth:  s.cfg.Browser.ViewportWidth,
		ViewportHeight: s.cfg.Browser.ViewportHeight,
	})
	if err != nil {
		s.log.Error("session start failed", "remote", r.RemoteAddr, "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "browser launch failed")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	s.trackSession(sess.ID())
	defer s.untrackSession(sess.ID())

	// The process context, not the request context: shutdown must reach
	// sessions even though the connection is hijacked.
	sess.Run(s.baseCtx)
}

func (s *Server) trackSession(id string) {
	s.mu.Lock()
	s.sessions[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	// ReadTimeout/WriteTimeout are intentionally omitted: they set
	// deadlines on the underlying net.Conn, which interferes with
	// hijacked WebSocket connections. Keepalive is ping/pong at the
	// session layer.
	httpServer := &http.Server{
		Handler:     s.Routes(),
		IdleTimeout: 120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Addr, err)
	}
	s.log.Info("listening", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("shutdown incomplete", "error", err)
	}
	return nil
}
