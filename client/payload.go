package client

import (
	"github.com/mistakeknot/tasksync/internal/core"
)

// identity is embedded in every mutation body.
type identity struct {
	Email            string `json:"email"`
	EncryptionSecret string `json:"encryptionSecret"`
	UUID             string `json:"UUID"`
}

// Credentials returns the owner identity carried by a mutation body.
func (i identity) Credentials() core.Credentials {
	return core.Credentials{Email: i.Email, EncryptionSecret: i.EncryptionSecret, UUID: i.UUID}
}

func identityOf(creds core.Credentials) identity {
	return identity{Email: creds.Email, EncryptionSecret: creds.EncryptionSecret, UUID: creds.UUID}
}

// CreateFields is the input of PushCreate. Due, Start, End, Recur and Depends
// are optional and left off the wire when empty.
type CreateFields struct {
	Description string
	Project     string
	Priority    core.Priority
	Entry       string
	Wait        string
	Tags        []string
	Due         string
	Start       string
	End         string
	Recur       string
	Depends     []string
	Annotations []core.Annotation
}

// CreatePayload is the add-task body.
type CreatePayload struct {
	identity
	Description string            `json:"description"`
	Project     string            `json:"project"`
	Priority    string            `json:"priority"`
	Entry       string            `json:"entry"`
	Wait        string            `json:"wait"`
	Tags        []string          `json:"tags"`
	Due         string            `json:"due,omitempty"`
	Start       string            `json:"start,omitempty"`
	End         string            `json:"end,omitempty"`
	Recur       string            `json:"recur,omitempty"`
	Depends     []string          `json:"depends,omitempty"`
	Annotations []core.Annotation `json:"annotations"`
}

func BuildCreatePayload(creds core.Credentials, f CreateFields) CreatePayload {
	return CreatePayload{
		identity:    identityOf(creds),
		Description: f.Description,
		Project:     f.Project,
		Priority:    string(f.Priority),
		Entry:       f.Entry,
		Wait:        f.Wait,
		Tags:        core.NormalizeTags(f.Tags),
		Due:         f.Due,
		Start:       f.Start,
		End:         f.End,
		Recur:       f.Recur,
		Depends:     nonEmpty(f.Depends),
		Annotations: core.FilterAnnotations(f.Annotations),
	}
}

// EditFields is the input of PushEdit. Every field is sent, so an empty
// string clears the value on the backend.
type EditFields struct {
	TaskUUID    string
	Description string
	Project     string
	Entry       string
	Wait        string
	Start       string
	End         string
	Due         string
	Recur       string
	Tags        []string
	Depends     []string
	Annotations []core.Annotation
}

// EditPayload is the edit-task body. Depends is the one field that is still
// dropped when empty; the backend rejects an empty dependency list.
type EditPayload struct {
	identity
	TaskUUID    string            `json:"taskUUID"`
	Description string            `json:"description"`
	Project     string            `json:"project"`
	Entry       string            `json:"entry"`
	Wait        string            `json:"wait"`
	Start       string            `json:"start"`
	End         string            `json:"end"`
	Due         string            `json:"due"`
	Recur       string            `json:"recur"`
	Tags        []string          `json:"tags"`
	Depends     []string          `json:"depends,omitempty"`
	Annotations []core.Annotation `json:"annotations"`
}

func BuildEditPayload(creds core.Credentials, f EditFields) EditPayload {
	return EditPayload{
		identity:    identityOf(creds),
		TaskUUID:    f.TaskUUID,
		Description: f.Description,
		Project:     f.Project,
		Entry:       f.Entry,
		Wait:        f.Wait,
		Start:       f.Start,
		End:         f.End,
		Due:         f.Due,
		Recur:       f.Recur,
		Tags:        core.NormalizeTags(f.Tags),
		Depends:     nonEmpty(f.Depends),
		Annotations: core.FilterAnnotations(f.Annotations),
	}
}

// ModifyFields is the input of PushModify.
type ModifyFields struct {
	TaskUUID    string
	Description string
	Project     string
	Priority    core.Priority
	Status      core.Status
	Due         string
	Tags        []string
}

// ModifyPayload is the modify-task body. The backend expects the task id
// under the lowercase "taskuuid" key.
type ModifyPayload struct {
	identity
	TaskUUID    string   `json:"taskuuid"`
	Description string   `json:"description"`
	Project     string   `json:"project"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	Due         string   `json:"due"`
	Tags        []string `json:"tags"`
}

func BuildModifyPayload(creds core.Credentials, f ModifyFields) ModifyPayload {
	return ModifyPayload{
		identity:    identityOf(creds),
		TaskUUID:    f.TaskUUID,
		Description: f.Description,
		Project:     f.Project,
		Priority:    string(f.Priority),
		Status:      string(f.Status),
		Due:         f.Due,
		Tags:        core.NormalizeTags(f.Tags),
	}
}

func nonEmpty(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
