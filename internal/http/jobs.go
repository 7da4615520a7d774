package httpapi

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

// Job status values sent on the push channel.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in-progress"
	StatusSuccess    = "success"
	StatusFailure    = "failure"
)

// Job names as they appear on the push channel.
const (
	JobAddTask      = "Add Task"
	JobEditTask     = "Edit Task"
	JobModifyTask   = "Modify Task"
	JobCompleteTask = "Complete Task"
	JobDeleteTask   = "Delete Task"
)

const queueDepth = 100

var ErrQueueClosed = errors.New("job queue closed")

// JobStatus is the push channel payload.
type JobStatus struct {
	Job    string `json:"job"`
	Status string `json:"status"`
}

type Job struct {
	Name     string
	ClientID string
	Execute  func(ctx context.Context) error
}

// JobQueue runs jobs one at a time in submission order and reports each
// state change through notify.
type JobQueue struct {
	jobs   chan Job
	notify func(clientID string, st JobStatus)
	log    *log.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	done   chan struct{}
}

func NewJobQueue(notify func(string, JobStatus), l *log.Logger) *JobQueue {
	if l == nil {
		l = log.Default()
	}
	q := &JobQueue{
		jobs:   make(chan Job, queueDepth),
		notify: notify,
		log:    l,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Add enqueues job and reports it as queued.
func (q *JobQueue) Add(job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.wg.Add(1)
	q.mu.Unlock()

	q.report(job, StatusQueued)
	q.jobs <- job
	return nil
}

func (q *JobQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		q.log.Info("executing job", "job", job.Name)
		q.report(job, StatusInProgress)
		if err := job.Execute(context.Background()); err != nil {
			q.log.Error("job failed", "job", job.Name, "err", err)
			q.report(job, StatusFailure)
		} else {
			q.log.Info("job completed", "job", job.Name)
			q.report(job, StatusSuccess)
		}
		q.wg.Done()
	}
}

func (q *JobQueue) report(job Job, status string) {
	if q.notify != nil {
		q.notify(job.ClientID, JobStatus{Job: job.Name, Status: status})
	}
}

// Wait blocks until every job added so far has finished.
func (q *JobQueue) Wait() {
	q.wg.Wait()
}

// Close rejects new jobs, lets queued ones finish, and stops the worker.
func (q *JobQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	close(q.jobs)
	<-q.done
}
