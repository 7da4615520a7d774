package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mistakeknot/tasksync/internal/auth"
	"github.com/mistakeknot/tasksync/internal/core"
	"github.com/mistakeknot/tasksync/internal/storage"
)

var (
	alice = core.Credentials{Email: "alice@example.com", UUID: "u-alice", EncryptionSecret: "s-alice"}
	bob   = core.Credentials{Email: "bob@example.com", UUID: "u-bob", EncryptionSecret: "s-bob"}
)

type sent struct {
	clientID string
	status   JobStatus
}

// recorder is a Broadcaster that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []sent
}

func (r *recorder) Broadcast(clientID string, event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{clientID: clientID, status: event.(JobStatus)})
}

func (r *recorder) statuses(clientID string) []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []JobStatus
	for _, e := range r.events {
		if e.clientID == clientID {
			out = append(out, e.status)
		}
	}
	return out
}

// testEnv bundles a Service + httptest.Server + broadcast recorder for handler tests.
type testEnv struct {
	srv   *httptest.Server
	svc   *Service
	store *storage.InMemory
	bus   *recorder
}

func newTestEnv(t *testing.T, reg *auth.Registry) *testEnv {
	t.Helper()
	st := storage.NewInMemory()
	bus := &recorder{}
	svc := NewService(st).WithBroadcaster(bus).WithRegistry(reg).WithLogger(log.New(io.Discard))
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	srv := httptest.NewServer(NewRouter(svc, nil, auth.Middleware(svc.Registry())))
	t.Cleanup(func() {
		srv.Close()
		svc.Close()
	})
	return &testEnv{srv: srv, svc: svc, store: st, bus: bus}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) getAs(t *testing.T, path string, c core.Credentials) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(auth.HeaderEmail, c.Email)
	req.Header.Set(auth.HeaderUUID, c.UUID)
	req.Header.Set(auth.HeaderEncryptionSecret, c.EncryptionSecret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// seed stores tasks directly, bypassing the job queue.
func (e *testEnv) seed(t *testing.T, tasks ...core.Task) {
	t.Helper()
	if err := e.store.UpsertMany(context.Background(), tasks); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

func requireJobSequence(t *testing.T, got []JobStatus, job string, final string) {
	t.Helper()
	want := []JobStatus{{job, StatusQueued}, {job, StatusInProgress}, {job, final}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
