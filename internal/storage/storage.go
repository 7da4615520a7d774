package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mistakeknot/tasksync/internal/core"
	"github.com/mistakeknot/tasksync/internal/ownerkey"
)

// TaskStore is the on-device mirror of an owner's tasks, keyed by task uuid.
// Writes are serialized; ReplaceOwner and UpsertMany are atomic with respect
// to readers.
type TaskStore interface {
	UpsertMany(ctx context.Context, tasks []core.Task) error
	// ReplaceOwner drops every task owned by email and inserts tasks in a
	// single transaction.
	ReplaceOwner(ctx context.Context, email string, tasks []core.Task) error
	UpsertOne(ctx context.Context, task core.Task) error
	Get(ctx context.Context, uuid string) (core.Task, bool, error)
	// QueryByOwnerAndStatus returns a snapshot; an empty status matches all.
	QueryByOwnerAndStatus(ctx context.Context, email string, status core.Status) ([]core.Task, error)
	QueryByOwnerAndProject(ctx context.Context, email, project string) ([]core.Task, error)
	DeleteByOwner(ctx context.Context, email string) (int, error)
	Count(ctx context.Context, email string) (int, error)
	Close() error
}

// PinStore holds the per-owner pinned-task set. Entries are keyed by an
// obfuscated owner key, never the raw email.
type PinStore interface {
	Pinned(ctx context.Context, email string) ([]string, error)
	SetPinned(ctx context.Context, email, uuid string, pinned bool) error
}

// SyncStateStore remembers when an owner's tasks were last pulled.
type SyncStateStore interface {
	LastSync(ctx context.Context, email string) (time.Time, error)
	SetLastSync(ctx context.Context, email string, at time.Time) error
}

// Store bundles every local persistence concern of a session.
type Store interface {
	TaskStore
	PinStore
	SyncStateStore
}

// InMemory is a Store kept in process memory, for tests and ephemeral sessions.
type InMemory struct {
	mu       sync.RWMutex
	tasks    map[string]core.Task
	pins     map[string]map[string]struct{}
	lastSync map[string]time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		tasks:    make(map[string]core.Task),
		pins:     make(map[string]map[string]struct{}),
		lastSync: make(map[string]time.Time),
	}
}

func (m *InMemory) UpsertMany(_ context.Context, tasks []core.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		m.tasks[t.UUID] = t.Clone()
	}
	return nil
}

func (m *InMemory) ReplaceOwner(_ context.Context, email string, tasks []core.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tasks {
		if core.SameEmail(t.Email, email) {
			delete(m.tasks, id)
		}
	}
	for _, t := range tasks {
		t.Email = email
		m.tasks[t.UUID] = t.Clone()
	}
	return nil
}

func (m *InMemory) UpsertOne(_ context.Context, task core.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.UUID] = task.Clone()
	return nil
}

func (m *InMemory) Get(_ context.Context, uuid string) (core.Task, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[uuid]
	if !ok {
		return core.Task{}, false, nil
	}
	return t.Clone(), true, nil
}

func (m *InMemory) QueryByOwnerAndStatus(_ context.Context, email string, status core.Status) ([]core.Task, error) {
	return m.collect(func(t core.Task) bool {
		return core.SameEmail(t.Email, email) && (status == "" || t.Status == status)
	}), nil
}

func (m *InMemory) QueryByOwnerAndProject(_ context.Context, email, project string) ([]core.Task, error) {
	return m.collect(func(t core.Task) bool {
		return core.SameEmail(t.Email, email) && t.Project == project
	}), nil
}

func (m *InMemory) collect(match func(core.Task) bool) []core.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Task, 0)
	for _, t := range m.tasks {
		if match(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

func (m *InMemory) DeleteByOwner(_ context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.tasks {
		if core.SameEmail(t.Email, email) {
			delete(m.tasks, id)
			n++
		}
	}
	return n, nil
}

func (m *InMemory) Count(_ context.Context, email string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tasks {
		if core.SameEmail(t.Email, email) {
			n++
		}
	}
	return n, nil
}

func (m *InMemory) Pinned(_ context.Context, email string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.pins[ownerkey.Derive(ownerkey.PurposePinnedTasks, email)]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *InMemory) SetPinned(_ context.Context, email, uuid string, pinned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ownerkey.Derive(ownerkey.PurposePinnedTasks, email)
	set, ok := m.pins[key]
	if !ok {
		set = make(map[string]struct{})
		m.pins[key] = set
	}
	if pinned {
		set[uuid] = struct{}{}
	} else {
		delete(set, uuid)
	}
	return nil
}

func (m *InMemory) LastSync(_ context.Context, email string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync[ownerkey.Derive(ownerkey.PurposeLastSync, email)], nil
}

func (m *InMemory) SetLastSync(_ context.Context, email string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSync[ownerkey.Derive(ownerkey.PurposeLastSync, email)] = at.UTC()
	return nil
}

func (m *InMemory) Close() error { return nil }
