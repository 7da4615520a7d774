package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mistakeknot/tasksync/internal/core"
)

const maxErrorBody = 64 << 10

// Client talks to the task backend. It holds no session state; credentials
// are passed with every call and nothing is retried.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	log     *log.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTP = &http.Client{Timeout: d, Transport: c.HTTP.Transport}
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		log:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PullAll fetches the owner's full task list.
func (c *Client) PullAll(ctx context.Context, creds core.Credentials) ([]core.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/tasks", nil)
	if err != nil {
		return nil, &core.FetchError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Email", creds.Email)
	req.Header.Set("X-Encryption-Secret", creds.EncryptionSecret)
	req.Header.Set("X-User-UUID", creds.UUID)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &core.FetchError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, &core.FetchError{StatusCode: resp.StatusCode}
	}

	var tasks []core.Task
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return nil, &core.FetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode tasks: %w", err)}
	}
	if tasks == nil {
		tasks = []core.Task{}
	}
	c.log.Debug("pulled tasks", "count", len(tasks), "took", time.Since(start).Round(time.Millisecond))
	return tasks, nil
}

func (c *Client) PushCreate(ctx context.Context, creds core.Credentials, f CreateFields) error {
	return c.push(ctx, "add", "/add-task", BuildCreatePayload(creds, f), core.DefaultAddMessage)
}

func (c *Client) PushEdit(ctx context.Context, creds core.Credentials, f EditFields) error {
	return c.push(ctx, "edit", "/edit-task", BuildEditPayload(creds, f), core.DefaultEditMessage)
}

func (c *Client) PushModify(ctx context.Context, creds core.Credentials, f ModifyFields) error {
	return c.push(ctx, "modify", "/modify-task", BuildModifyPayload(creds, f), core.DefaultModifyMessage)
}

func (c *Client) push(ctx context.Context, op, path string, payload any, def string) error {
	resp, err := c.postJSON(ctx, path, payload)
	if err != nil {
		return &core.MutationError{Op: op, Message: def, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	c.log.Debug("push rejected", "op", op, "status", resp.StatusCode)
	return core.NewMutationError(op, resp.StatusCode, string(body), def)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.HTTP.Do(req)
}
