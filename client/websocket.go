package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
)

// PushChannel is the client end of the backend's notification socket.
type PushChannel struct {
	conn *websocket.Conn
	url  string
}

type pushConfig struct {
	httpClient *http.Client
	readLimit  int64
}

type PushOption func(*pushConfig)

func WithPushHTTPClient(h *http.Client) PushOption {
	return func(c *pushConfig) { c.httpClient = h }
}

// WithReadLimit caps the size of a single inbound message.
func WithReadLimit(n int64) PushOption {
	return func(c *pushConfig) { c.readLimit = n }
}

// PushURL maps an http(s) backend URL to its ws(s) channel endpoint.
func PushURL(baseURL, clientID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := url.Values{}
	q.Set("clientID", clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func DialPushChannel(ctx context.Context, baseURL, clientID string, opts ...PushOption) (*PushChannel, error) {
	if clientID == "" {
		return nil, fmt.Errorf("push channel: client id required")
	}
	cfg := pushConfig{readLimit: 1 << 16}
	for _, opt := range opts {
		opt(&cfg)
	}
	wsURL, err := PushURL(baseURL, clientID)
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: cfg.httpClient})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(cfg.readLimit)
	return &PushChannel{conn: conn, url: wsURL}, nil
}

// Read blocks for the next message.
func (p *PushChannel) Read(ctx context.Context) ([]byte, error) {
	_, data, err := p.conn.Read(ctx)
	return data, err
}

func (p *PushChannel) URL() string { return p.url }

func (p *PushChannel) Close() error {
	return p.conn.Close(websocket.StatusNormalClosure, "client closing")
}

// IsNormalClose reports whether err ends a channel that was shut down on purpose.
func IsNormalClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
