// Package coordinator pairs every backend push with the matching Local Store
// write. It is the only place where task state changes.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/mistakeknot/tasksync/client"
	"github.com/mistakeknot/tasksync/internal/core"
	"github.com/mistakeknot/tasksync/internal/storage"
)

// Remote is the subset of client.Client the coordinator drives.
type Remote interface {
	PullAll(ctx context.Context, creds core.Credentials) ([]core.Task, error)
	PushCreate(ctx context.Context, creds core.Credentials, f client.CreateFields) error
	PushEdit(ctx context.Context, creds core.Credentials, f client.EditFields) error
	PushModify(ctx context.Context, creds core.Credentials, f client.ModifyFields) error
}

var _ Remote = (*client.Client)(nil)

// Outcome tells the caller what happened to the local copy after a mutation.
type Outcome int

const (
	// OutcomeFailed: the backend rejected the push; nothing was written locally.
	OutcomeFailed Outcome = iota
	// OutcomeApplied: the backend accepted and the local record is committed.
	OutcomeApplied
	// OutcomeProvisional: committed locally under a provisional uuid that the
	// next refresh replaces with the backend's.
	OutcomeProvisional
	// OutcomeRemoteOnly: the backend accepted but the local write failed. The
	// next refresh corrects the local copy.
	OutcomeRemoteOnly
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeApplied:
		return "applied"
	case OutcomeProvisional:
		return "provisional"
	case OutcomeRemoteOnly:
		return "remote_only"
	default:
		return "unknown"
	}
}

// Phase is a step of one in-flight mutation: pending, then applied or failed.
type Phase int

const (
	PhasePending Phase = iota
	PhaseApplied
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseApplied:
		return "applied"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Event struct {
	Op       string
	TaskUUID string
	Phase    Phase
	Err      error
}

// Observer receives mutation phase changes. Bulk operations call it from
// several goroutines at once.
type Observer func(Event)

const defaultBulkConcurrency = 8

type Coordinator struct {
	store     storage.Store
	remote    Remote
	creds     core.Credentials
	log       *log.Logger
	observer  Observer
	bulkLimit int
	now       func() time.Time
	newUUID   func() string
}

type Option func(*Coordinator)

func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithBulkConcurrency caps how many pushes a bulk operation keeps in flight.
func WithBulkConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.bulkLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// New binds a coordinator to one owner's store and credentials.
func New(store storage.Store, remote Remote, creds core.Credentials, opts ...Option) (*Coordinator, error) {
	if !creds.HasIdentity() {
		return nil, core.ErrNoIdentity
	}
	c := &Coordinator{
		store:     store,
		remote:    remote,
		creds:     creds,
		log:       log.Default(),
		bulkLimit: defaultBulkConcurrency,
		now:       time.Now,
		newUUID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) Credentials() core.Credentials { return c.creds }

func (c *Coordinator) emit(op, id string, phase Phase, err error) {
	if c.observer != nil {
		c.observer(Event{Op: op, TaskUUID: id, Phase: phase, Err: err})
	}
}

// commit writes task locally after a successful push and maps the result to
// an Outcome.
func (c *Coordinator) commit(ctx context.Context, op string, task core.Task, ok Outcome) (Outcome, error) {
	if err := c.store.UpsertOne(ctx, task); err != nil {
		c.log.Warn("local write failed after push", "op", op, "task", task.UUID, "err", err)
		c.emit(op, task.UUID, PhaseFailed, err)
		return OutcomeRemoteOnly, err
	}
	c.emit(op, task.UUID, PhaseApplied, nil)
	return ok, nil
}

func (c *Coordinator) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

// CreateInput is the field set of a new task.
type CreateInput = client.CreateFields

// CreateTask pushes a new task and, once the backend accepts it, records it
// locally under a provisional uuid.
func (c *Coordinator) CreateTask(ctx context.Context, in CreateInput) (core.Task, Outcome, error) {
	if err := core.ValidateDescription(in.Description); err != nil {
		return core.Task{}, OutcomeFailed, err
	}
	if err := core.ValidatePriority(in.Priority); err != nil {
		return core.Task{}, OutcomeFailed, err
	}
	if in.Entry == "" {
		in.Entry = c.timestamp()
	}

	c.emit("create", "", PhasePending, nil)
	if err := c.remote.PushCreate(ctx, c.creds, in); err != nil {
		c.emit("create", "", PhaseFailed, err)
		return core.Task{}, OutcomeFailed, err
	}

	task := core.Task{
		UUID:        c.newUUID(),
		Description: in.Description,
		Project:     in.Project,
		Priority:    in.Priority,
		Status:      core.StatusPending,
		Tags:        core.NormalizeTags(in.Tags),
		Entry:       in.Entry,
		Start:       in.Start,
		Wait:        in.Wait,
		Due:         in.Due,
		End:         in.End,
		Recur:       in.Recur,
		Depends:     append([]string(nil), in.Depends...),
		Annotations: core.FilterAnnotations(in.Annotations),
		Email:       c.creds.Email,
	}
	out, err := c.commit(ctx, "create", task, OutcomeProvisional)
	return task, out, err
}

// EditInput replaces a task's editable fields. Empty values clear them.
type EditInput = client.EditFields

func (c *Coordinator) EditTask(ctx context.Context, in EditInput) (Outcome, error) {
	if err := core.ValidateDescription(in.Description); err != nil {
		return OutcomeFailed, err
	}
	if err := core.ValidateDependencies(in.Depends, in.TaskUUID); err != nil {
		return OutcomeFailed, err
	}
	base, err := c.base(ctx, core.Task{UUID: in.TaskUUID, Status: core.StatusPending})
	if err != nil {
		return OutcomeFailed, err
	}

	c.emit("edit", in.TaskUUID, PhasePending, nil)
	if err := c.remote.PushEdit(ctx, c.creds, in); err != nil {
		c.emit("edit", in.TaskUUID, PhaseFailed, err)
		return OutcomeFailed, err
	}

	base.Description = in.Description
	base.Project = in.Project
	base.Entry = in.Entry
	base.Wait = in.Wait
	base.Start = in.Start
	base.End = in.End
	base.Due = in.Due
	base.Recur = in.Recur
	base.Tags = core.NormalizeTags(in.Tags)
	base.Depends = append([]string(nil), in.Depends...)
	base.Annotations = core.FilterAnnotations(in.Annotations)
	return c.commit(ctx, "edit", base, OutcomeApplied)
}

// ModifyInput changes status or metadata of one task. Nil fields keep the
// current local value.
type ModifyInput struct {
	TaskUUID    string
	Description *string
	Project     *string
	Priority    *core.Priority
	Status      *core.Status
	Due         *string
	Tags        []string
}

func (c *Coordinator) ChangeStatusOrField(ctx context.Context, in ModifyInput) (Outcome, error) {
	current, found, err := c.store.Get(ctx, in.TaskUUID)
	if err != nil {
		return OutcomeFailed, err
	}
	if !found {
		return OutcomeFailed, fmt.Errorf("%w: unknown task %s", core.ErrInvalidTask, in.TaskUUID)
	}
	return c.modify(ctx, current, in)
}

func (c *Coordinator) modify(ctx context.Context, current core.Task, in ModifyInput) (Outcome, error) {
	next := current.Clone()
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.Project != nil {
		next.Project = *in.Project
	}
	if in.Priority != nil {
		next.Priority = *in.Priority
	}
	if in.Status != nil {
		next.Status = *in.Status
	}
	if in.Due != nil {
		next.Due = *in.Due
	}
	if in.Tags != nil {
		next.Tags = core.NormalizeTags(in.Tags)
	}
	if next.Status == "" {
		next.Status = core.StatusPending
	}

	if !next.Status.Valid() {
		return OutcomeFailed, fmt.Errorf("%w: unknown status %q", core.ErrInvalidTask, next.Status)
	}
	from := current.Status
	if from == "" {
		from = core.StatusPending
	}
	if !from.CanTransition(next.Status) {
		return OutcomeFailed, fmt.Errorf("%w: %s -> %s", core.ErrTerminalStatus, from, next.Status)
	}
	if err := core.ValidatePriority(next.Priority); err != nil {
		return OutcomeFailed, err
	}
	if err := core.ValidateDescription(next.Description); err != nil {
		return OutcomeFailed, err
	}

	c.emit("modify", next.UUID, PhasePending, nil)
	err := c.remote.PushModify(ctx, c.creds, client.ModifyFields{
		TaskUUID:    next.UUID,
		Description: next.Description,
		Project:     next.Project,
		Priority:    next.Priority,
		Status:      next.Status,
		Due:         next.Due,
		Tags:        next.Tags,
	})
	if err != nil {
		c.emit("modify", next.UUID, PhaseFailed, err)
		return OutcomeFailed, err
	}

	if next.Status.Terminal() && !from.Terminal() && next.End == "" {
		next.End = c.timestamp()
	}
	next.Email = c.creds.Email
	return c.commit(ctx, "modify", next, OutcomeApplied)
}

// base returns the freshest known copy of task: the local record when there
// is one, task itself otherwise.
func (c *Coordinator) base(ctx context.Context, task core.Task) (core.Task, error) {
	local, found, err := c.store.Get(ctx, task.UUID)
	if err != nil {
		return core.Task{}, err
	}
	if found {
		return local, nil
	}
	task.Email = c.creds.Email
	return task.Clone(), nil
}

func (c *Coordinator) markStatus(ctx context.Context, task core.Task, status core.Status) (Outcome, error) {
	current, err := c.base(ctx, task)
	if err != nil {
		return OutcomeFailed, err
	}
	return c.modify(ctx, current, ModifyInput{TaskUUID: task.UUID, Status: &status})
}

func (c *Coordinator) MarkTaskAsCompleted(ctx context.Context, task core.Task) (Outcome, error) {
	return c.markStatus(ctx, task, core.StatusCompleted)
}

func (c *Coordinator) MarkTaskAsDeleted(ctx context.Context, task core.Task) (Outcome, error) {
	return c.markStatus(ctx, task, core.StatusDeleted)
}

// DeleteAllForOwner drops every local task of email, which must be the
// session owner (empty means the owner). The backend side of a bulk delete is
// the caller's job.
func (c *Coordinator) DeleteAllForOwner(ctx context.Context, email string) (int, error) {
	if email == "" {
		email = c.creds.Email
	}
	if !core.SameEmail(email, c.creds.Email) {
		return 0, fmt.Errorf("%w: %s", core.ErrOwnerMismatch, email)
	}
	n, err := c.store.Count(ctx, email)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, core.ErrNothingToDelete
	}
	return c.store.DeleteByOwner(ctx, email)
}

// RefreshFromRemote pulls the owner's tasks and replaces the local set with
// them. It never merges: whatever the backend returns is the new local state.
func (c *Coordinator) RefreshFromRemote(ctx context.Context) (int, error) {
	tasks, err := c.remote.PullAll(ctx, c.creds)
	if err != nil {
		return 0, err
	}
	if err := c.store.ReplaceOwner(ctx, c.creds.Email, tasks); err != nil {
		return 0, err
	}
	if err := c.store.SetLastSync(ctx, c.creds.Email, c.now()); err != nil {
		c.log.Warn("record last sync", "err", err)
	}
	c.log.Debug("refreshed", "tasks", len(tasks))
	return len(tasks), nil
}

// Tasks returns the owner's local tasks with the given status, or all of them
// when status is empty. Storage failures degrade to an empty list.
func (c *Coordinator) Tasks(ctx context.Context, status core.Status) []core.Task {
	tasks, err := c.store.QueryByOwnerAndStatus(ctx, c.creds.Email, status)
	if err != nil {
		c.log.Error("read tasks", "status", status, "err", err)
		return []core.Task{}
	}
	return tasks
}

func (c *Coordinator) TasksInProject(ctx context.Context, project string) []core.Task {
	tasks, err := c.store.QueryByOwnerAndProject(ctx, c.creds.Email, project)
	if err != nil {
		c.log.Error("read tasks", "project", project, "err", err)
		return []core.Task{}
	}
	return tasks
}

// Task looks up one local task of the owner. Storage failures read as not found.
func (c *Coordinator) Task(ctx context.Context, taskUUID string) (core.Task, bool) {
	task, found, err := c.store.Get(ctx, taskUUID)
	if err != nil {
		c.log.Error("read task", "task", taskUUID, "err", err)
		return core.Task{}, false
	}
	if !found || !core.SameEmail(task.Email, c.creds.Email) {
		return core.Task{}, false
	}
	return task, true
}

// TogglePin flips the pinned flag of a task and returns the new state.
func (c *Coordinator) TogglePin(ctx context.Context, taskUUID string) (bool, error) {
	pinned, err := c.store.Pinned(ctx, c.creds.Email)
	if err != nil {
		return false, err
	}
	next := true
	for _, id := range pinned {
		if id == taskUUID {
			next = false
			break
		}
	}
	if err := c.store.SetPinned(ctx, c.creds.Email, taskUUID, next); err != nil {
		return !next, err
	}
	return next, nil
}

func (c *Coordinator) PinnedSet(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	pinned, err := c.store.Pinned(ctx, c.creds.Email)
	if err != nil {
		c.log.Error("read pins", "err", err)
		return out
	}
	for _, id := range pinned {
		out[id] = true
	}
	return out
}

// LastSync is the zero time when the owner was never pulled or the store
// cannot be read.
func (c *Coordinator) LastSync(ctx context.Context) time.Time {
	at, err := c.store.LastSync(ctx, c.creds.Email)
	if err != nil {
		c.log.Error("read last sync", "err", err)
		return time.Time{}
	}
	return at
}
