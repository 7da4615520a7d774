// Package push listens on the backend notification channel and turns job
// status updates into refreshes and user notices.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mistakeknot/tasksync/client"
	"github.com/mistakeknot/tasksync/internal/core"
)

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateNotifying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateNotifying:
		return "notifying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Source is an open push channel.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

type Dialer func(ctx context.Context) (Source, error)

// ChannelDialer dials the backend websocket for clientID, the owner uuid.
func ChannelDialer(baseURL, clientID string, opts ...client.PushOption) Dialer {
	return func(ctx context.Context) (Source, error) {
		if clientID == "" {
			return nil, core.ErrNoIdentity
		}
		return client.DialPushChannel(ctx, baseURL, clientID, opts...)
	}
}

type Refresher interface {
	RefreshFromRemote(ctx context.Context) (int, error)
}

type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

var ErrAlreadyStarted = errors.New("push listener already started")

// Listener owns one push channel. Messages are handled one at a time in the
// read loop, so refreshes it triggers never overlap each other.
type Listener struct {
	dial      Dialer
	refresher Refresher
	notifier  Notifier
	log       *log.Logger

	mu       sync.Mutex
	state    State
	starting bool
	src      Source
	cancel   context.CancelFunc
	done     chan struct{}
}

type Option func(*Listener)

func WithLogger(l *log.Logger) Option {
	return func(ln *Listener) {
		if l != nil {
			ln.log = l
		}
	}
}

func NewListener(dial Dialer, refresher Refresher, notifier Notifier, opts ...Option) *Listener {
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	l := &Listener{
		dial:      dial,
		refresher: refresher,
		notifier:  notifier,
		log:       log.Default(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) setState(from, to State) {
	l.mu.Lock()
	if l.state == from {
		l.state = to
	}
	l.mu.Unlock()
}

// Done is closed when the read loop exits.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Start opens the channel and begins reading. ctx bounds the dial only: the
// read loop keeps its values but runs until Close is called or the channel
// fails. It never reconnects.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateDisconnected || l.src != nil || l.starting {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.starting = true
	l.mu.Unlock()

	src, err := l.dial(ctx)

	l.mu.Lock()
	l.starting = false
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("open push channel: %w", err)
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if l.state == StateClosed {
		l.mu.Unlock()
		cancel()
		_ = src.Close()
		return fmt.Errorf("open push channel: listener closed")
	}
	l.src = src
	l.cancel = cancel
	l.state = StateConnected
	l.mu.Unlock()

	l.log.Info("push channel connected")
	go l.readLoop(loopCtx, src)
	return nil
}

func (l *Listener) readLoop(ctx context.Context, src Source) {
	defer close(l.done)
	for {
		raw, err := src.Read(ctx)
		if err != nil {
			l.mu.Lock()
			closing := l.state == StateClosed
			if !closing {
				l.state = StateDisconnected
			}
			l.mu.Unlock()
			if closing || client.IsNormalClose(err) {
				l.log.Info("push channel closed")
			} else {
				l.log.Warn("push channel lost", "err", err)
			}
			return
		}
		l.Handle(ctx, raw)
	}
}

// Handle processes one raw channel payload. Payloads that do not parse are
// logged and dropped.
func (l *Listener) Handle(ctx context.Context, raw []byte) {
	msg, err := ParseMessage(raw)
	if err != nil {
		l.log.Warn("ignoring push payload", "err", err)
		return
	}
	note, notify := NotificationFor(msg)
	refresh := ShouldRefresh(msg)
	if !notify && !refresh {
		return
	}

	l.setState(StateConnected, StateNotifying)
	defer l.setState(StateNotifying, StateConnected)

	if notify {
		l.notifier.Notify(note)
	}
	if refresh && l.refresher != nil {
		if _, err := l.refresher.RefreshFromRemote(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				l.log.Debug("refresh after push abandoned", "job", msg.Job, "err", err)
				return
			}
			l.log.Error("refresh after push failed", "job", msg.Job, "err", err)
			l.notifier.Notify(Notification{Level: LevelError, Text: syncFailureText})
		}
	}
}

// Close stops the read loop and closes the channel. It is safe to call more
// than once and before Start.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return nil
	}
	l.state = StateClosed
	src, cancel := l.src, l.cancel
	l.mu.Unlock()

	if src == nil {
		// Start never got as far as the read loop
		close(l.done)
		return nil
	}
	err := src.Close()
	cancel()
	<-l.done
	if client.IsNormalClose(err) {
		err = nil
	}
	return err
}
