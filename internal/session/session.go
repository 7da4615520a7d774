// Package session ties the local store, remote client, mutation coordinator
// and push listener to one authenticated owner.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"

	"github.com/mistakeknot/tasksync/client"
	"github.com/mistakeknot/tasksync/internal/coordinator"
	"github.com/mistakeknot/tasksync/internal/core"
	"github.com/mistakeknot/tasksync/internal/push"
	"github.com/mistakeknot/tasksync/internal/storage/sqlite"
)

type Config struct {
	// BackendURL overrides the URL carried by the credentials.
	BackendURL string
	// DBPath is the local store file. Empty keeps the store in memory.
	DBPath          string
	RequestTimeout  time.Duration
	BulkConcurrency int
	Logger          *log.Logger
	// Notifier receives user notices from the push channel.
	Notifier push.Notifier
	// DisablePush skips the push channel, for one-shot commands.
	DisablePush bool
}

const defaultDialTimeout = 30 * time.Second

// Session owns every resource opened for one owner. Close releases them.
type Session struct {
	creds    core.Credentials
	store    *sqlite.ResilientStore
	coord    *coordinator.Coordinator
	listener *push.Listener
	log      *log.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open builds a session for creds. It fails with core.ErrNoIdentity until
// the owner email and uuid are known. A push channel that cannot be opened
// is logged and leaves the session usable without live refreshes.
func Open(ctx context.Context, cfg Config, creds core.Credentials) (*Session, error) {
	if !creds.HasIdentity() {
		return nil, core.ErrNoIdentity
	}
	if cfg.BackendURL != "" {
		creds.BackendURL = cfg.BackendURL
	}
	if creds.BackendURL == "" {
		return nil, errors.New("backend url required")
	}
	l := cfg.Logger
	if l == nil {
		l = log.Default()
	}

	inner, err := openStore(cfg.DBPath, l)
	if err != nil {
		return nil, err
	}
	store := sqlite.NewResilient(inner)

	clientOpts := []client.Option{client.WithLogger(l)}
	if cfg.RequestTimeout > 0 {
		clientOpts = append(clientOpts, client.WithTimeout(cfg.RequestTimeout))
	}
	remote := client.New(creds.BackendURL, clientOpts...)

	coordOpts := []coordinator.Option{coordinator.WithLogger(l)}
	if cfg.BulkConcurrency > 0 {
		coordOpts = append(coordOpts, coordinator.WithBulkConcurrency(cfg.BulkConcurrency))
	}
	coord, err := coordinator.New(store, remote, creds, coordOpts...)
	if err != nil {
		store.Close()
		return nil, err
	}

	s := &Session{creds: creds, store: store, coord: coord, log: l}
	if cfg.DisablePush {
		return s, nil
	}

	s.listener = push.NewListener(
		push.ChannelDialer(creds.BackendURL, creds.UUID, client.WithPushHTTPClient(&http.Client{})),
		coord, cfg.Notifier, push.WithLogger(l))
	dialCtx, cancel := dialContext(ctx, cfg.RequestTimeout)
	defer cancel()
	if err := s.listener.Start(dialCtx); err != nil {
		l.Warn("push channel unavailable", "err", err)
	}
	return s, nil
}

// dialContext bounds the push channel handshake by the caller's ctx and the
// request timeout. The read loop is detached from it by the listener.
func dialContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func openStore(path string, l *log.Logger) (*sqlite.Store, error) {
	var (
		st  *sqlite.Store
		err error
	)
	if path == "" {
		st, err = sqlite.NewInMemory(sqlite.WithLogger(l))
	} else {
		st, err = sqlite.New(path, sqlite.WithLogger(l))
	}
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return st, nil
}

func (s *Session) Credentials() core.Credentials { return s.creds }

func (s *Session) Coordinator() *coordinator.Coordinator { return s.coord }

// Listener is nil when the session was opened with DisablePush.
func (s *Session) Listener() *push.Listener { return s.listener }

// StoreState reports the local store circuit breaker state.
func (s *Session) StoreState() string { return s.store.CircuitBreakerState() }

// Close stops the push listener before closing the store, so no refresh can
// run against a closed store.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var err error
		if s.listener != nil {
			err = multierr.Append(err, s.listener.Close())
		}
		s.closeErr = multierr.Append(err, s.store.Close())
	})
	return s.closeErr
}
