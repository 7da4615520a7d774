package sqlite

import (
	"context"
	"time"

	"github.com/mistakeknot/tasksync/internal/core"
	"github.com/mistakeknot/tasksync/internal/storage"
)

var _ storage.Store = (*ResilientStore)(nil)

// ResilientStore runs every Store call through a CircuitBreaker and retries
// calls that hit a busy database.
type ResilientStore struct {
	inner *Store
	cb    *CircuitBreaker
	retry RetryConfig
}

// NewResilient wraps inner with a breaker that opens after 5 consecutive
// failures and probes again after 30s.
func NewResilient(inner *Store) *ResilientStore {
	return NewResilientWithBreaker(inner, NewCircuitBreaker(5, 30*time.Second))
}

func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *ResilientStore {
	l := inner.log
	cb.OnStateChange(func(from, to BreakerState) {
		l.Warn("local store breaker", "from", from, "to", to)
	})
	return &ResilientStore{inner: inner, cb: cb, retry: DefaultRetryConfig()}
}

func (r *ResilientStore) CircuitBreakerState() string {
	return r.cb.State().String()
}

func (r *ResilientStore) do(ctx context.Context, fn func() error) error {
	return r.cb.Execute(func() error {
		return RetryOnBusyWithConfig(ctx, r.retry, fn)
	})
}

func (r *ResilientStore) UpsertMany(ctx context.Context, tasks []core.Task) error {
	return r.do(ctx, func() error { return r.inner.UpsertMany(ctx, tasks) })
}

func (r *ResilientStore) ReplaceOwner(ctx context.Context, email string, tasks []core.Task) error {
	return r.do(ctx, func() error { return r.inner.ReplaceOwner(ctx, email, tasks) })
}

func (r *ResilientStore) UpsertOne(ctx context.Context, task core.Task) error {
	return r.do(ctx, func() error { return r.inner.UpsertOne(ctx, task) })
}

func (r *ResilientStore) Get(ctx context.Context, uuid string) (core.Task, bool, error) {
	var (
		task  core.Task
		found bool
	)
	err := r.do(ctx, func() error {
		var err error
		task, found, err = r.inner.Get(ctx, uuid)
		return err
	})
	return task, found, err
}

func (r *ResilientStore) QueryByOwnerAndStatus(ctx context.Context, email string, status core.Status) ([]core.Task, error) {
	var out []core.Task
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.QueryByOwnerAndStatus(ctx, email, status)
		return err
	})
	return out, err
}

func (r *ResilientStore) QueryByOwnerAndProject(ctx context.Context, email, project string) ([]core.Task, error) {
	var out []core.Task
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.QueryByOwnerAndProject(ctx, email, project)
		return err
	})
	return out, err
}

func (r *ResilientStore) DeleteByOwner(ctx context.Context, email string) (int, error) {
	var n int
	err := r.do(ctx, func() error {
		var err error
		n, err = r.inner.DeleteByOwner(ctx, email)
		return err
	})
	return n, err
}

func (r *ResilientStore) Count(ctx context.Context, email string) (int, error) {
	var n int
	err := r.do(ctx, func() error {
		var err error
		n, err = r.inner.Count(ctx, email)
		return err
	})
	return n, err
}

func (r *ResilientStore) Pinned(ctx context.Context, email string) ([]string, error) {
	var out []string
	err := r.do(ctx, func() error {
		var err error
		out, err = r.inner.Pinned(ctx, email)
		return err
	})
	return out, err
}

func (r *ResilientStore) SetPinned(ctx context.Context, email, uuid string, pinned bool) error {
	return r.do(ctx, func() error { return r.inner.SetPinned(ctx, email, uuid, pinned) })
}

func (r *ResilientStore) LastSync(ctx context.Context, email string) (time.Time, error) {
	var at time.Time
	err := r.do(ctx, func() error {
		var err error
		at, err = r.inner.LastSync(ctx, email)
		return err
	})
	return at, err
}

func (r *ResilientStore) SetLastSync(ctx context.Context, email string, at time.Time) error {
	return r.do(ctx, func() error { return r.inner.SetLastSync(ctx, email, at) })
}

func (r *ResilientStore) Close() error {
	return r.inner.Close()
}
