// Package httpapi is a development backend that speaks the task sync wire
// contract. Mutations are accepted with 202 and applied by a job queue that
// reports progress on the owner's push channel.
package httpapi

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/mistakeknot/tasksync/internal/auth"
	"github.com/mistakeknot/tasksync/internal/storage"
)

type Service struct {
	store    storage.TaskStore
	bus      Broadcaster
	accounts *auth.Registry
	jobs     *JobQueue
	log      *log.Logger
	now      func() time.Time
}

// Broadcaster delivers an event to every push channel of clientID.
type Broadcaster interface {
	Broadcast(clientID string, event any)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, any) {}

// NewService starts the job queue. Close stops it.
func NewService(store storage.TaskStore) *Service {
	s := &Service{
		store:    store,
		bus:      nopBroadcaster{},
		accounts: auth.NewRegistry(true),
		log:      log.Default(),
		now:      time.Now,
	}
	s.jobs = NewJobQueue(s.broadcast, s.log)
	return s
}

func (s *Service) WithBroadcaster(b Broadcaster) *Service {
	if b != nil {
		s.bus = b
	}
	return s
}

func (s *Service) WithRegistry(reg *auth.Registry) *Service {
	if reg != nil {
		s.accounts = reg
	}
	return s
}

func (s *Service) WithLogger(l *log.Logger) *Service {
	if l != nil {
		s.log = l
		s.jobs.log = l
	}
	return s
}

// Registry is the account registry mutation bodies are checked against.
func (s *Service) Registry() *auth.Registry { return s.accounts }

// Jobs exposes the queue so callers can wait for accepted work.
func (s *Service) Jobs() *JobQueue { return s.jobs }

func (s *Service) Close() {
	s.jobs.Close()
}

func (s *Service) broadcast(clientID string, st JobStatus) {
	s.bus.Broadcast(clientID, st)
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(taskTimeLayout)
}

// taskTimeLayout is the compact ISO form used for task timestamps.
const taskTimeLayout = "20060102T150405Z"
