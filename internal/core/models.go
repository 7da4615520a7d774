package core

import (
	"strings"
)

// Status is the lifecycle state of a task. Transitions are one way:
// pending -> completed or pending -> deleted.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusDeleted   Status = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusDeleted:
		return true
	}
	return false
}

// Terminal reports whether no further status transition is exposed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeleted
}

// CanTransition reports whether a task in status s may be moved to next.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	return s == StatusPending && next.Terminal()
}

type Priority string

const (
	PriorityNone   Priority = ""
	PriorityLow    Priority = "L"
	PriorityMedium Priority = "M"
	PriorityHigh   Priority = "H"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Annotation struct {
	Entry       string `json:"entry"`
	Description string `json:"description"`
}

// Task mirrors the backend's Taskwarrior export shape plus the owning email.
type Task struct {
	ID          int          `json:"id,omitempty"`
	UUID        string       `json:"uuid"`
	Description string       `json:"description"`
	Project     string       `json:"project"`
	Priority    Priority     `json:"priority"`
	Status      Status       `json:"status"`
	Tags        []string     `json:"tags"`
	Urgency     float64      `json:"urgency,omitempty"`
	Entry       string       `json:"entry"`
	Start       string       `json:"start"`
	Wait        string       `json:"wait"`
	Due         string       `json:"due"`
	End         string       `json:"end"`
	Modified    string       `json:"modified,omitempty"`
	Recur       string       `json:"recur"`
	RType       string       `json:"rtype,omitempty"`
	Depends     []string     `json:"depends,omitempty"`
	Annotations []Annotation `json:"annotations"`
	Email       string       `json:"email"`
}

// Credentials identify the authenticated owner and the backend serving them.
type Credentials struct {
	Email            string
	EncryptionSecret string
	UUID             string
	BackendURL       string
}

// NormalizeEmail is the form in which owner emails are stored and compared.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail reports whether a and b name the same owner.
func SameEmail(a, b string) bool {
	return NormalizeEmail(a) == NormalizeEmail(b)
}

// HasIdentity reports whether the owner identity has been established.
func (c Credentials) HasIdentity() bool {
	return strings.TrimSpace(c.Email) != "" && strings.TrimSpace(c.UUID) != ""
}

// FilterAnnotations returns the annotations whose description is not blank.
// The result is never nil.
func FilterAnnotations(in []Annotation) []Annotation {
	out := make([]Annotation, 0, len(in))
	for _, a := range in {
		if strings.TrimSpace(a.Description) == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// NormalizeTags drops blank tags and duplicates. The result is never nil.
func NormalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Clone returns a deep copy of t so callers cannot alias slices held by a store.
func (t Task) Clone() Task {
	c := t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Depends != nil {
		c.Depends = append([]string(nil), t.Depends...)
	}
	if t.Annotations != nil {
		c.Annotations = append([]Annotation(nil), t.Annotations...)
	}
	return c
}
