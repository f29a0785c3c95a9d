package metric

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/mediaconnector/errors"
)

const (
	defaultPort = 9090
	defaultPath = "/metrics"
	healthPath  = "/health"
)

// Server serves the registry over HTTP next to /health and any extra routes
// added with Handle, such as a tap snapshot.
type Server struct {
	port     int
	path     string
	registry *MetricsRegistry

	mu     sync.Mutex
	routes map[string]http.Handler
	server *http.Server
}

// NewServer creates a stopped server. Zero port and empty path mean 9090 and
// /metrics.
func NewServer(port int, path string, registry *MetricsRegistry) *Server {
	if path == "" {
		path = defaultPath
	}
	if port == 0 {
		port = defaultPort
	}
	return &Server{
		port:     port,
		path:     path,
		registry: registry,
		routes:   make(map[string]http.Handler),
	}
}

// Handle adds or replaces a route. Routes added after Start take effect on
// the next Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[pattern] = h
}

// SetHealthHandler replaces the plain "OK" /health handler
func (s *Server) SetHealthHandler(h http.Handler) {
	s.Handle(healthPath, h)
}

// Handler builds the mux served by Start
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux := http.NewServeMux()
	if s.registry != nil {
		mux.Handle(s.path, promhttp.HandlerFor(
			s.registry.PrometheusRegistry(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
	}
	if _, ok := s.routes[healthPath]; !ok {
		mux.HandleFunc(healthPath, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
	}
	for pattern, h := range s.routes {
		mux.Handle(pattern, h)
	}
	return mux
}

// Start serves until Stop. It returns nil after a clean stop.
func (s *Server) Start() error {
	if s.registry == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Server", "Start", "metrics registry not provided")
	}

	handler := s.Handler()

	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "state check")
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.server = nil
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on port %d", s.port))
	}
	return nil
}

// Stop shuts the server down, letting in-flight scrapes finish until ctx
// ends. The server may be started again afterwards.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return errors.WrapTransient(err, "Server", "Stop", "shutdown")
	}
	return nil
}

// Address returns the metrics URL on localhost
func (s *Server) Address() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}
