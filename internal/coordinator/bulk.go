package coordinator

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/mistakeknot/tasksync/internal/core"
)

type TaskResult struct {
	TaskUUID string
	Outcome  Outcome
	Err      error
}

// BulkResult holds one entry per input task, in input order.
type BulkResult struct {
	Results   []TaskResult
	Succeeded int
	Failed    int
}

// OK reports whether every push in the batch was accepted.
func (r BulkResult) OK() bool { return r.Failed == 0 }

func (c *Coordinator) BulkMarkTasksAsCompleted(ctx context.Context, tasks []core.Task) (BulkResult, error) {
	return c.bulkStatus(ctx, tasks, core.StatusCompleted)
}

func (c *Coordinator) BulkMarkTasksAsDeleted(ctx context.Context, tasks []core.Task) (BulkResult, error) {
	return c.bulkStatus(ctx, tasks, core.StatusDeleted)
}

// bulkStatus issues one modify per task and waits for all of them. A failed
// push does not stop the others.
func (c *Coordinator) bulkStatus(ctx context.Context, tasks []core.Task, status core.Status) (BulkResult, error) {
	res := BulkResult{Results: make([]TaskResult, len(tasks))}

	var g errgroup.Group
	g.SetLimit(c.bulkLimit)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			out, err := c.markStatus(ctx, task, status)
			res.Results[i] = TaskResult{TaskUUID: task.UUID, Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	for _, r := range res.Results {
		if r.Outcome == OutcomeFailed {
			res.Failed++
		} else {
			res.Succeeded++
		}
		if r.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.TaskUUID, r.Err))
		}
	}
	if res.Failed > 0 {
		c.log.Warn("bulk status change incomplete", "status", status, "failed", res.Failed, "total", len(tasks))
		return res, fmt.Errorf("%w: %d of %d: %w", core.ErrBulkPartialFailure, res.Failed, len(tasks), errs)
	}
	return res, errs
}
