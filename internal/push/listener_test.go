package push

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mistakeknot/tasksync/internal/core"
)

// chanSource is a Source fed from a channel. Closing it ends Read.
type chanSource struct {
	msgs   chan []byte
	once   sync.Once
	closed chan struct{}
}

func newChanSource() *chanSource {
	return &chanSource{msgs: make(chan []byte, 16), closed: make(chan struct{})}
}

func (s *chanSource) Read(ctx context.Context) ([]byte, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case <-s.closed:
		return nil, errors.New("source closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) RefreshFromRemote(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return 0, r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func newTestListener(ref Refresher, rec Notifier) (*Listener, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewListener(nil, ref, rec, WithLogger(log.New(&buf)))
	return l, &buf
}

func TestEditSuccessDoesNotRefresh(t *testing.T) {
	ref := &countingRefresher{}
	rec := &recorder{}
	l, _ := newTestListener(ref, rec)
	ctx := context.Background()

	l.Handle(ctx, []byte(`{"status":"success","job":"Edit Task"}`))
	if ref.count() != 0 {
		t.Fatal("edit echo must not refresh")
	}
	if notes := rec.all(); len(notes) != 1 || notes[0].Text != "Task edited successfully!" {
		t.Fatalf("unexpected notes %+v", notes)
	}

	l.Handle(ctx, []byte(`{"status":"success","job":"Add Task"}`))
	if ref.count() != 1 {
		t.Fatalf("add should refresh once, got %d", ref.count())
	}
}

func TestMalformedPayloadIsInert(t *testing.T) {
	ref := &countingRefresher{}
	rec := &recorder{}
	l, buf := newTestListener(ref, rec)

	l.Handle(context.Background(), []byte("NOT_JSON"))
	if ref.count() != 0 || len(rec.all()) != 0 {
		t.Fatalf("malformed payload caused refresh=%d notes=%v", ref.count(), rec.all())
	}
	if n := strings.Count(buf.String(), "ignoring push payload"); n != 1 {
		t.Fatalf("expected one log line, got %d: %s", n, buf.String())
	}
}

func TestFailureNotifiesWithoutRefresh(t *testing.T) {
	ref := &countingRefresher{}
	rec := &recorder{}
	l, _ := newTestListener(ref, rec)

	l.Handle(context.Background(), []byte(`{"status":"failure","job":"Complete Task"}`))
	notes := rec.all()
	if ref.count() != 0 || len(notes) != 1 || notes[0].Level != LevelError {
		t.Fatalf("unexpected refresh=%d notes=%+v", ref.count(), notes)
	}
}

func TestUnknownJobRefreshesSilently(t *testing.T) {
	ref := &countingRefresher{}
	rec := &recorder{}
	l, _ := newTestListener(ref, rec)

	l.Handle(context.Background(), []byte(`{"status":"success"}`))
	if ref.count() != 1 || len(rec.all()) != 0 {
		t.Fatalf("unexpected refresh=%d notes=%v", ref.count(), rec.all())
	}
}

func TestRefreshFailureNotifiesOnce(t *testing.T) {
	ref := &countingRefresher{err: &core.FetchError{StatusCode: 500}}
	rec := &recorder{}
	l, _ := newTestListener(ref, rec)

	l.Handle(context.Background(), []byte(`{"status":"success"}`))
	notes := rec.all()
	if len(notes) != 1 || notes[0].Level != LevelError || notes[0].Text != syncFailureText {
		t.Fatalf("expected one sync failure notice, got %+v", notes)
	}
}

func TestListenerLifecycle(t *testing.T) {
	src := newChanSource()
	ref := &countingRefresher{}
	rec := &recorder{}
	dials := 0
	l := NewListener(func(context.Context) (Source, error) {
		dials++
		return src, nil
	}, ref, rec, WithLogger(log.New(&bytes.Buffer{})))

	if l.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", l.State())
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if l.State() != StateConnected {
		t.Fatalf("expected connected, got %s", l.State())
	}
	if err := l.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	src.msgs <- []byte(`{"status":"success","job":"Delete Task"}`)
	deadline := time.Now().Add(2 * time.Second)
	for ref.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ref.count() != 1 {
		t.Fatal("message was not handled")
	}

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-l.Done():
	default:
		t.Fatal("read loop still running after Close")
	}
	if l.State() != StateClosed || dials != 1 {
		t.Fatalf("state=%s dials=%d", l.State(), dials)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestChannelLossDoesNotReconnect(t *testing.T) {
	src := newChanSource()
	dials := 0
	var buf bytes.Buffer
	l := NewListener(func(context.Context) (Source, error) {
		dials++
		return src, nil
	}, &countingRefresher{}, &recorder{}, WithLogger(log.New(&buf)))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = src.Close()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}
	if l.State() != StateDisconnected || dials != 1 {
		t.Fatalf("state=%s dials=%d", l.State(), dials)
	}
	if !strings.Contains(buf.String(), "push channel lost") {
		t.Fatalf("expected loss to be logged: %s", buf.String())
	}
}

func TestChannelDialerRequiresIdentity(t *testing.T) {
	l := NewListener(ChannelDialer("http://127.0.0.1:1", ""), nil, nil, WithLogger(log.New(&bytes.Buffer{})))
	if err := l.Start(context.Background()); !errors.Is(err, core.ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if l.State() != StateDisconnected {
		t.Fatalf("failed start should stay disconnected, got %s", l.State())
	}
}

func TestCloseBeforeStart(t *testing.T) {
	l := NewListener(nil, nil, nil)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	<-l.Done()
	if err := l.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("start after close should fail, got %v", err)
	}
}

// blockingRefresher holds every refresh until its context ends.
type blockingRefresher struct {
	started chan struct{}
}

func (r *blockingRefresher) RefreshFromRemote(ctx context.Context) (int, error) {
	close(r.started)
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestCloseDuringRefreshIsSilent(t *testing.T) {
	src := newChanSource()
	ref := &blockingRefresher{started: make(chan struct{})}
	rec := &recorder{}
	l := NewListener(func(context.Context) (Source, error) { return src, nil },
		ref, rec, WithLogger(log.New(&bytes.Buffer{})))
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	src.msgs <- []byte(`{"status":"success","job":"Add Task"}`)
	select {
	case <-ref.started:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never started")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	notes := rec.all()
	if len(notes) != 1 || notes[0].Level == LevelError {
		t.Fatalf("teardown should not report a sync failure, got %+v", notes)
	}
}

func TestStartDialHonorsContext(t *testing.T) {
	l := NewListener(func(ctx context.Context) (Source, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil, nil, WithLogger(log.New(&bytes.Buffer{})))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- l.Start(ctx) }()
	select {
	case err := <-errc:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start ignored its context")
	}
	if l.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", l.State())
	}
}

func TestReadLoopOutlivesStartContext(t *testing.T) {
	src := newChanSource()
	ref := &countingRefresher{}
	l := NewListener(func(context.Context) (Source, error) { return src, nil },
		ref, &recorder{}, WithLogger(log.New(&bytes.Buffer{})))

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	defer l.Close()

	src.msgs <- []byte(`{"status":"success","job":"Add Task"}`)
	deadline := time.Now().Add(2 * time.Second)
	for ref.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ref.count() != 1 || l.State() != StateConnected {
		t.Fatalf("loop stopped with its start context: refreshes=%d state=%s", ref.count(), l.State())
	}
}

func TestConcurrentStartDialsOnce(t *testing.T) {
	src := newChanSource()
	dialing := make(chan struct{})
	release := make(chan struct{})
	var dials atomic.Int32
	l := NewListener(func(context.Context) (Source, error) {
		dials.Add(1)
		close(dialing)
		<-release
		return src, nil
	}, &countingRefresher{}, &recorder{}, WithLogger(log.New(&bytes.Buffer{})))

	first := make(chan error, 1)
	go func() { first <- l.Start(context.Background()) }()
	<-dialing
	if err := l.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start during dial: expected ErrAlreadyStarted, got %v", err)
	}
	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first start: %v", err)
	}
	if dials.Load() != 1 {
		t.Fatalf("expected one dial, got %d", dials.Load())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCloseWhileDialing(t *testing.T) {
	src := newChanSource()
	dialing := make(chan struct{})
	release := make(chan struct{})
	l := NewListener(func(context.Context) (Source, error) {
		close(dialing)
		<-release
		return src, nil
	}, nil, nil, WithLogger(log.New(&bytes.Buffer{})))

	errc := make(chan error, 1)
	go func() { errc <- l.Start(context.Background()) }()
	<-dialing
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	close(release)
	if err := <-errc; err == nil {
		t.Fatal("start should fail once the listener is closed")
	}
	select {
	case <-src.closed:
	default:
		t.Fatal("late channel was not closed")
	}
	<-l.Done()
}
