package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNothingToDelete is returned by bulk deletes when the owner has no local tasks.
	ErrNothingToDelete = errors.New("nothing to delete")
	// ErrTerminalStatus is returned when a mutation would move a completed or
	// deleted task to another status.
	ErrTerminalStatus = errors.New("task status is terminal")
	ErrInvalidTask    = errors.New("invalid task")
	// ErrNoIdentity is returned when an operation needs an established owner.
	ErrNoIdentity = errors.New("owner identity not established")
	// ErrOwnerMismatch is returned when an operation names an owner other than
	// the one the session is bound to.
	ErrOwnerMismatch = errors.New("email does not belong to the session owner")
	// ErrBulkPartialFailure marks a bulk operation in which at least one push failed.
	ErrBulkPartialFailure = errors.New("bulk operation partially failed")
)

const (
	DefaultFetchMessage  = "Failed to fetch tasks from backend"
	DefaultAddMessage    = "Failed to add task"
	DefaultEditMessage   = "Failed to edit task"
	DefaultModifyMessage = "Failed to modify task"
)

// FetchError reports a failed pull, either at the transport level or from a
// non-2xx response.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", DefaultFetchMessage, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d)", DefaultFetchMessage, e.StatusCode)
	}
	return DefaultFetchMessage
}

func (e *FetchError) Unwrap() error { return e.Err }

// MutationError reports a create, edit or modify rejected by the backend.
// Message is the backend-provided text, or the operation default when the
// backend returned an empty body.
type MutationError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *MutationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *MutationError) Unwrap() error { return e.Err }

// NewMutationError builds a MutationError, falling back to def when the
// backend body is blank.
func NewMutationError(op string, status int, body, def string) *MutationError {
	msg := strings.TrimSpace(body)
	if msg == "" {
		msg = def
	}
	return &MutationError{Op: op, StatusCode: status, Message: msg}
}

// StorageError reports a local persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ChannelParseError reports a push-channel payload that could not be decoded.
type ChannelParseError struct {
	Payload []byte
	Err     error
}

func (e *ChannelParseError) Error() string {
	return fmt.Sprintf("parse push payload %q: %v", truncate(e.Payload, 64), e.Err)
}

func (e *ChannelParseError) Unwrap() error { return e.Err }

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
