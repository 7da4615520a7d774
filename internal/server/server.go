// Package server runs an HTTP handler on a TCP address and, optionally, a
// unix socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"
)

type Config struct {
	// Addr is a host:port; port 0 picks a free port.
	Addr       string
	SocketPath string
	Handler    http.Handler
	Logger     *log.Logger
}

type Server struct {
	cfg    Config
	log    *log.Logger
	http   *http.Server
	ln     net.Listener
	unix   *http.Server
	unixLn net.Listener
}

// New binds the listeners. Nothing is served until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr required")
	}
	h := cfg.Handler
	if h == nil {
		h = http.NewServeMux()
	}
	l := cfg.Logger
	if l == nil {
		l = log.Default()
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	s := &Server{
		cfg:  cfg,
		log:  l,
		ln:   ln,
		http: &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second},
	}

	if cfg.SocketPath != "" {
		// Remove stale socket file from previous run
		if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
			ln.Close()
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
		uln, err := net.Listen("unix", cfg.SocketPath)
		if err != nil {
			ln.Close()
			return nil, fmt.Errorf("unix listen: %w", err)
		}
		if err := os.Chmod(cfg.SocketPath, 0660); err != nil {
			uln.Close()
			ln.Close()
			return nil, fmt.Errorf("chmod socket: %w", err)
		}
		s.unixLn = uln
		s.unix = &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	}

	return s, nil
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	if s.unixLn != nil {
		go func() {
			if err := s.unix.Serve(s.unixLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("unix socket server", "err", err)
			}
		}()
	}
	s.log.Info("listening", "addr", s.Addr(), "socket", s.cfg.SocketPath)
	if err := s.http.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.unix != nil {
		err = multierr.Append(err, s.unix.Shutdown(ctx))
	}
	if s.cfg.SocketPath != "" {
		if rmErr := os.Remove(s.cfg.SocketPath); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
	}
	return multierr.Append(err, s.http.Shutdown(ctx))
}

// Addr is the bound TCP address, with the chosen port when Addr used port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// URL is the http base URL of the TCP listener.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// SocketPath returns the configured socket path, or empty if not configured.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}
