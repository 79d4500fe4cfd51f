package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/desertthunder/pulse/internal/nowplaying"
	"github.com/desertthunder/pulse/internal/shared"
	"github.com/desertthunder/pulse/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows the path patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Server serves the sync and now-playing endpoints.
type Server struct {
	addr    string
	router  *BasicRouter
	surface *nowplaying.WSSurface
	logger  *log.Logger
}

// New builds a Server for local. A nil surface leaves /nowplaying unmounted.
func New(cfg *shared.Config, local *store.Local, surface *nowplaying.WSSurface, logger *log.Logger) *Server {
	s := &Server{
		addr:    cfg.Server.Addr(),
		router:  NewBasicRouter(),
		surface: surface,
		logger:  shared.WithLogger(logger, "component", "server"),
	}

	s.router.Use(Recover(s.logger), RequestLogger(s.logger), Identity(cfg.Admin))
	s.router.Handler(NewSyncHandler(local, s.logger))
	if surface != nil {
		s.router.Handler(routed{Handler: surface, routes: []string{"/nowplaying"}})
	}
	s.router.HandleFunc(http.MethodGet, "/healthz", s.health)
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed", "error", err)
		return srv.Close()
	}
	s.logger.Info("server stopped")
	return nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"nowPlayingClients"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.surface != nil {
		resp.Clients = s.surface.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to write health response", "error", err)
	}
}

// routed attaches routes to a plain http.Handler.
type routed struct {
	http.Handler
	routes []string
}

func (r routed) Routes() []string { return r.routes }
