package embedded

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/mistakeknot/tasksync/client"
	"github.com/mistakeknot/tasksync/internal/core"
)

var owner = core.Credentials{Email: "alice@example.com", UUID: "u-alice", EncryptionSecret: "s-alice"}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Logger = log.New(io.Discard)
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func TestEmbeddedHealth(t *testing.T) {
	srv := startServer(t, Config{})
	resp, err := http.Get(srv.URL() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestEmbeddedRoundTrip(t *testing.T) {
	srv := startServer(t, Config{DBPath: filepath.Join(t.TempDir(), "backend.db")})
	c := client.New(srv.URL())
	ctx := context.Background()

	if err := c.PushCreate(ctx, owner, client.CreateFields{Description: "buy milk", Project: "home"}); err != nil {
		t.Fatalf("push create: %v", err)
	}
	srv.Wait()

	tasks, err := c.PullAll(ctx, owner)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Description != "buy milk" || tasks[0].Email != owner.Email {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
}

func TestEmbeddedStopIsIdempotent(t *testing.T) {
	srv, err := New(Config{Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if err := srv.Start(); err == nil {
		t.Fatalf("expected start after stop to fail")
	}
}
