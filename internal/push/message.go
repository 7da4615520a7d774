package push

import (
	"encoding/json"
	"fmt"

	"github.com/mistakeknot/tasksync/internal/core"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in-progress"
	JobSuccess    JobStatus = "success"
	JobFailure    JobStatus = "failure"
)

// Job names the backend puts on the channel.
const (
	JobAddTask      = "Add Task"
	JobEditTask     = "Edit Task"
	JobCompleteTask = "Complete Task"
	JobDeleteTask   = "Delete Task"
)

// Message is one job status update from the push channel.
type Message struct {
	Status JobStatus `json:"status"`
	Job    string    `json:"job,omitempty"`
}

// ParseMessage decodes a raw channel payload. Anything that is not a JSON
// object with a known status is a *core.ChannelParseError.
func ParseMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, &core.ChannelParseError{Payload: raw, Err: err}
	}
	switch m.Status {
	case JobSuccess, JobFailure, JobQueued, JobInProgress:
		return m, nil
	case "":
		return Message{}, &core.ChannelParseError{Payload: raw, Err: fmt.Errorf("missing status")}
	default:
		return Message{}, &core.ChannelParseError{Payload: raw, Err: fmt.Errorf("unknown status %q", m.Status)}
	}
}

// ShouldRefresh reports whether m calls for a full pull. Edits are applied
// locally by the coordinator before their echo arrives, so they are skipped.
func ShouldRefresh(m Message) bool {
	return m.Status == JobSuccess && m.Job != JobEditTask
}

type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "success"
}

type Notification struct {
	Level Level
	Text  string
}

var successText = map[string]string{
	JobAddTask:      "Task added successfully!",
	JobEditTask:     "Task edited successfully!",
	JobCompleteTask: "Task marked as completed successfully!",
	JobDeleteTask:   "Task marked as deleted successfully!",
}

const (
	genericFailureText = "Task operation failed. Please try again."
	syncFailureText    = "Failed to sync tasks. Please try again."
)

// NotificationFor returns the user-facing notice for m, if any. Successful
// jobs with an unknown or missing name, and in-flight statuses, have none.
func NotificationFor(m Message) (Notification, bool) {
	switch m.Status {
	case JobSuccess:
		text, ok := successText[m.Job]
		if !ok {
			return Notification{}, false
		}
		return Notification{Level: LevelSuccess, Text: text}, true
	case JobFailure:
		if m.Job == "" {
			return Notification{Level: LevelError, Text: genericFailureText}, true
		}
		return Notification{Level: LevelError, Text: m.Job + " failed. Please try again."}, true
	}
	return Notification{}, false
}
