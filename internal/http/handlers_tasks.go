package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mistakeknot/tasksync/client"
	"github.com/mistakeknot/tasksync/internal/auth"
	"github.com/mistakeknot/tasksync/internal/core"
)

var errTaskNotFound = errors.New("task not found")

const descriptionRequired = "Description is required, and cannot be empty!"

func (s *Service) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	creds, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}
	tasks, err := s.store.QueryByOwnerAndStatus(r.Context(), creds.Email, "")
	if err != nil {
		s.log.Error("list tasks", "err", err)
		http.Error(w, "Failed to fetch tasks at backend", http.StatusInternalServerError)
		return
	}
	numberPending(tasks)
	if r.URL.Query().Get("sort") == "priority" {
		sort.SliceStable(tasks, func(i, j int) bool {
			return priorityRank(tasks[i].Priority) > priorityRank(tasks[j].Priority)
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tasks)
}

// numberPending gives pending tasks 1-based working-set ids in entry order.
func numberPending(tasks []core.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Entry < tasks[j].Entry })
	next := 1
	for i := range tasks {
		tasks[i].ID = 0
		if tasks[i].Status == core.StatusPending {
			tasks[i].ID = next
			next++
		}
	}
}

func priorityRank(p core.Priority) int {
	switch p {
	case core.PriorityHigh:
		return 3
	case core.PriorityMedium:
		return 2
	case core.PriorityLow:
		return 1
	default:
		return 0
	}
}

// decodeMutation reads a POST body into v and checks the identity it carries.
// It writes the error response and returns false on failure.
func (s *Service) decodeMutation(w http.ResponseWriter, r *http.Request, v interface{ Credentials() core.Credentials }) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading request body: %v", err), http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, fmt.Sprintf("error decoding request body: %v", err), http.StatusBadRequest)
		return false
	}
	if err := s.accounts.Verify(v.Credentials()); err != nil {
		auth.WriteError(w, err)
		return false
	}
	return true
}

func (s *Service) enqueue(w http.ResponseWriter, job Job) {
	if err := s.jobs.Add(job); err != nil {
		http.Error(w, "Service shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req client.CreatePayload
	if !s.decodeMutation(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		http.Error(w, descriptionRequired, http.StatusBadRequest)
		return
	}
	if err := core.ValidatePriority(core.Priority(req.Priority)); err != nil {
		http.Error(w, fmt.Sprintf("Invalid priority: %q", req.Priority), http.StatusBadRequest)
		return
	}
	creds := req.Credentials()
	s.enqueue(w, Job{
		Name:     JobAddTask,
		ClientID: creds.UUID,
		Execute: func(ctx context.Context) error {
			entry := req.Entry
			if entry == "" {
				entry = s.timestamp()
			}
			task := core.Task{
				UUID:        uuid.NewString(),
				Description: req.Description,
				Project:     req.Project,
				Priority:    core.Priority(req.Priority),
				Status:      core.StatusPending,
				Tags:        core.NormalizeTags(req.Tags),
				Entry:       entry,
				Modified:    s.timestamp(),
				Wait:        req.Wait,
				Due:         req.Due,
				Start:       req.Start,
				End:         req.End,
				Recur:       req.Recur,
				Depends:     req.Depends,
				Annotations: core.FilterAnnotations(req.Annotations),
				Email:       creds.Email,
			}
			return s.store.UpsertOne(ctx, task)
		},
	})
}

func (s *Service) handleEditTask(w http.ResponseWriter, r *http.Request) {
	var req client.EditPayload
	if !s.decodeMutation(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		http.Error(w, descriptionRequired, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TaskUUID) == "" {
		http.Error(w, "taskUUID is required", http.StatusBadRequest)
		return
	}
	if err := core.ValidateDependencies(req.Depends, req.TaskUUID); err != nil {
		http.Error(w, fmt.Sprintf("Invalid dependencies: %v", err), http.StatusBadRequest)
		return
	}
	creds := req.Credentials()
	s.enqueue(w, Job{
		Name:     JobEditTask,
		ClientID: creds.UUID,
		Execute: func(ctx context.Context) error {
			return s.updateTask(ctx, creds, req.TaskUUID, func(t *core.Task) error {
				t.Description = req.Description
				t.Project = req.Project
				t.Entry = req.Entry
				t.Wait = req.Wait
				t.Start = req.Start
				t.End = req.End
				t.Due = req.Due
				t.Recur = req.Recur
				t.Tags = core.NormalizeTags(req.Tags)
				t.Depends = req.Depends
				t.Annotations = core.FilterAnnotations(req.Annotations)
				return nil
			})
		},
	})
}

func (s *Service) handleModifyTask(w http.ResponseWriter, r *http.Request) {
	var req client.ModifyPayload
	if !s.decodeMutation(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		http.Error(w, descriptionRequired, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TaskUUID) == "" {
		http.Error(w, "taskUUID is required", http.StatusBadRequest)
		return
	}
	status := core.Status(req.Status)
	if req.Status != "" && !status.Valid() {
		http.Error(w, fmt.Sprintf("Invalid status: %q", req.Status), http.StatusBadRequest)
		return
	}
	if err := core.ValidatePriority(core.Priority(req.Priority)); err != nil {
		http.Error(w, fmt.Sprintf("Invalid priority: %q", req.Priority), http.StatusBadRequest)
		return
	}
	creds := req.Credentials()
	s.enqueue(w, Job{
		Name:     modifyJobName(status),
		ClientID: creds.UUID,
		Execute: func(ctx context.Context) error {
			return s.updateTask(ctx, creds, req.TaskUUID, func(t *core.Task) error {
				if status != "" {
					if !t.Status.CanTransition(status) {
						return fmt.Errorf("%w: %s -> %s", core.ErrTerminalStatus, t.Status, status)
					}
					if status.Terminal() && t.Status != status {
						t.End = s.timestamp()
					}
					t.Status = status
				}
				t.Description = req.Description
				t.Project = req.Project
				t.Priority = core.Priority(req.Priority)
				t.Due = req.Due
				t.Tags = core.NormalizeTags(req.Tags)
				return nil
			})
		},
	})
}

func modifyJobName(status core.Status) string {
	switch status {
	case core.StatusCompleted:
		return JobCompleteTask
	case core.StatusDeleted:
		return JobDeleteTask
	default:
		return JobModifyTask
	}
}

// updateTask applies fn to the owner's task and stores the result.
func (s *Service) updateTask(ctx context.Context, creds core.Credentials, taskUUID string, fn func(*core.Task) error) error {
	task, ok, err := s.store.Get(ctx, taskUUID)
	if err != nil {
		return err
	}
	if !ok || !strings.EqualFold(task.Email, creds.Email) {
		return fmt.Errorf("%w: %s", errTaskNotFound, taskUUID)
	}
	if err := fn(&task); err != nil {
		return err
	}
	task.Modified = s.timestamp()
	return s.store.UpsertOne(ctx, task)
}
