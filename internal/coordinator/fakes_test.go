package coordinator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mistakeknot/tasksync/client"
	"github.com/mistakeknot/tasksync/internal/core"
	"github.com/mistakeknot/tasksync/internal/storage"
)

var owner = core.Credentials{Email: "a@x", EncryptionSecret: "s", UUID: "owner-1"}

// fakeRemote records every call and serves a fixed backend task list.
type fakeRemote struct {
	mu         sync.Mutex
	backend    []core.Task
	pulls      int
	creates    []client.CreateFields
	edits      []client.EditFields
	modifies   []client.ModifyFields
	failFor    map[string]error
	pullErr    error
	modifyHook func(client.ModifyFields)
}

func newFakeRemote(backend ...core.Task) *fakeRemote {
	return &fakeRemote{backend: backend, failFor: map[string]error{}}
}

func (f *fakeRemote) PullAll(ctx context.Context, creds core.Credentials) ([]core.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	out := make([]core.Task, len(f.backend))
	for i, t := range f.backend {
		out[i] = t.Clone()
	}
	return out, nil
}

func (f *fakeRemote) PushCreate(ctx context.Context, creds core.Credentials, in client.CreateFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, in)
	return f.failFor["create"]
}

func (f *fakeRemote) PushEdit(ctx context.Context, creds core.Credentials, in client.EditFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, in)
	return f.failFor[in.TaskUUID]
}

func (f *fakeRemote) PushModify(ctx context.Context, creds core.Credentials, in client.ModifyFields) error {
	if f.modifyHook != nil {
		f.modifyHook(in)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modifies = append(f.modifies, in)
	return f.failFor[in.TaskUUID]
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls + len(f.creates) + len(f.edits) + len(f.modifies)
}

// brokenStore fails the operations named in failing and counts deletes.
type brokenStore struct {
	*storage.InMemory
	failing map[string]bool
	deletes int
}

var errDisk = &core.StorageError{Op: "test", Err: errors.New("disk full")}

func (b *brokenStore) UpsertOne(ctx context.Context, t core.Task) error {
	if b.failing["upsert"] {
		return errDisk
	}
	return b.InMemory.UpsertOne(ctx, t)
}

func (b *brokenStore) QueryByOwnerAndStatus(ctx context.Context, email string, s core.Status) ([]core.Task, error) {
	if b.failing["query"] {
		return nil, errDisk
	}
	return b.InMemory.QueryByOwnerAndStatus(ctx, email, s)
}

func (b *brokenStore) DeleteByOwner(ctx context.Context, email string) (int, error) {
	b.deletes++
	return b.InMemory.DeleteByOwner(ctx, email)
}

func (b *brokenStore) LastSync(ctx context.Context, email string) (time.Time, error) {
	if b.failing["lastsync"] {
		return time.Time{}, errDisk
	}
	return b.InMemory.LastSync(ctx, email)
}

func newTestCoordinator(t *testing.T, st storage.Store, remote Remote, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithLogger(log.New(io.Discard))}, opts...)
	c, err := New(st, remote, owner, opts...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}
