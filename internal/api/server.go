package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/michalvitousek/miot/internal/agent"
	"github.com/michalvitousek/miot/internal/infrastructure/config"
	"github.com/michalvitousek/miot/internal/journal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HTTP server timeouts.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// Logger is the logging interface used by the server.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StatusProvider reports agent health. *agent.Agent implements it.
type StatusProvider interface {
	Status() agent.Status
	HealthCheck(ctx context.Context) error
}

// JournalReader lists journaled actuations. *journal.SQLiteRepository implements it.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  Logger
	Agent   StatusProvider
	Journal JournalReader // optional; /actuations returns 404 without it
	Metrics http.Handler  // optional; /metrics returns 404 without it
	Version string
}

// Server is the HTTP status server.
type Server struct {
	cfg       config.APIConfig
	logger    Logger
	agent     StatusProvider
	journal   JournalReader
	metrics   http.Handler
	version   string
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	serveErr chan error
}

// New creates a new API server with the given dependencies.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the agent is missing
func New(deps Deps) (*Server, error) {
	if deps.Agent == nil {
		return nil, errors.New("agent is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		agent:     deps.Agent,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound or the server is already started
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.serveErr = make(chan error, 1)
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	srv, errCh := s.server, s.serveErr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("API server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until ctx is done or serving fails.
// It always shuts the server down before returning.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	errCh := s.serveErr
	s.mu.Unlock()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	closeErr := s.Close()
	if serveErr != nil {
		return fmt.Errorf("api server error: %w", serveErr)
	}
	return closeErr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
