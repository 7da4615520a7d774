// Package embedded runs the development task backend in process, for tests
// and for local use without a remote deployment.
package embedded

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"

	"github.com/mistakeknot/tasksync/internal/auth"
	httpapi "github.com/mistakeknot/tasksync/internal/http"
	"github.com/mistakeknot/tasksync/internal/server"
	"github.com/mistakeknot/tasksync/internal/storage/sqlite"
	"github.com/mistakeknot/tasksync/internal/ws"
)

// Config configures the embedded backend
type Config struct {
	// DBPath is the SQLite file holding backend tasks.
	// If empty, tasks live in memory for the life of the server.
	DBPath string

	// Port is the HTTP port to listen on.
	// If 0, a free port is chosen.
	Port int

	// Host is the host to bind to.
	// If empty, defaults to localhost (127.0.0.1).
	Host string

	// AccountsFile restricts the backend to registered owners.
	// If empty, any complete identity is accepted.
	AccountsFile string

	Logger *log.Logger
}

// Server is an embedded development backend
type Server struct {
	store *sqlite.Store
	hub   *ws.Hub
	svc   *httpapi.Service
	srv   *server.Server
	log   *log.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	errc    chan error
}

// New builds the backend and binds its listener.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	l := cfg.Logger
	if l == nil {
		l = log.Default()
	}

	reg, err := auth.LoadRegistry(cfg.AccountsFile)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	var store *sqlite.Store
	if cfg.DBPath == "" {
		store, err = sqlite.NewInMemory(sqlite.WithLogger(l))
	} else {
		store, err = sqlite.New(cfg.DBPath, sqlite.WithLogger(l))
	}
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	hub := ws.NewHub(l)
	svc := httpapi.NewService(store).WithBroadcaster(hub).WithRegistry(reg).WithLogger(l)
	router := httpapi.NewRouter(svc, hub.Handler(), auth.Middleware(reg))

	srv, err := server.New(server.Config{
		Addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler: router,
		Logger:  l,
	})
	if err != nil {
		svc.Close()
		store.Close()
		return nil, err
	}

	return &Server{store: store, hub: hub, svc: svc, srv: srv, log: l}, nil
}

// Start serves in a goroutine. The listener is already bound, so requests
// may be sent as soon as Start returns.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("dev backend stopped")
	}
	if s.started {
		return nil
	}
	s.started = true
	s.errc = make(chan error, 1)
	go func() {
		err := s.srv.Start()
		if err != nil {
			s.log.Error("dev backend stopped", "err", err)
		}
		s.errc <- err
	}()
	return nil
}

// Stop shuts the listener down, drains the job queue and closes the store.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	var err error
	if started {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, s.srv.Shutdown(ctx))
		err = multierr.Append(err, <-s.errc)
	}
	s.svc.Close()
	return multierr.Append(err, s.store.Close())
}

// Wait blocks until every accepted mutation has been applied.
func (s *Server) Wait() {
	s.svc.Jobs().Wait()
}

// Addr returns the server's listen address
func (s *Server) Addr() string {
	return s.srv.Addr()
}

// URL returns the base URL for the server
func (s *Server) URL() string {
	return s.srv.URL()
}

// Store returns the backend task store for direct access if needed
func (s *Server) Store() *sqlite.Store {
	return s.store
}

// Hub returns the push channel hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}
