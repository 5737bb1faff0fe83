// Package client is a Go client for the todo list REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vyrodovalexey/todolist-api/internal/model"
)

// DefaultTimeout bounds each HTTP request made by the client.
const DefaultTimeout = 10 * time.Second

const todoItemsPath = "/api/todoitems"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// ErrInvalidBaseURL is returned by New for unusable server URLs.
var ErrInvalidBaseURL = errors.New("base URL must be an absolute http or https URL")

// APIError is a non-2xx response from the server. Message holds the
// response body as the server sent it, or the message field of a JSON
// error response.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return e.Message
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to a todo list API server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDialer replaces the default WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// New creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q: %w", baseURL, ErrInvalidBaseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the server URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// List returns the incomplete todo items.
func (c *Client) List(ctx context.Context) ([]model.TodoItem, error) {
	var items []model.TodoItem
	if err := c.do(ctx, http.MethodGet, todoItemsPath, nil, &items); err != nil {
		return nil, fmt.Errorf("listing todo items: %w", err)
	}
	if items == nil {
		items = []model.TodoItem{}
	}
	return items, nil
}

// Get returns a single todo item.
func (c *Client) Get(ctx context.Context, id uuid.UUID) (*model.TodoItem, error) {
	var item model.TodoItem
	if err := c.do(ctx, http.MethodGet, itemPath(id), nil, &item); err != nil {
		return nil, fmt.Errorf("getting todo item %s: %w", id, err)
	}
	return &item, nil
}

// Create adds a new incomplete item with the given description.
func (c *Client) Create(ctx context.Context, description string) (*model.TodoItem, error) {
	input := model.TodoItem{Description: description}

	var created model.TodoItem
	if err := c.do(ctx, http.MethodPost, todoItemsPath, &input, &created); err != nil {
		return nil, fmt.Errorf("creating todo item: %w", err)
	}
	return &created, nil
}

// Update replaces the stored item with item.
func (c *Client) Update(ctx context.Context, item model.TodoItem) error {
	if err := c.do(ctx, http.MethodPut, itemPath(item.ID), &item, nil); err != nil {
		return fmt.Errorf("updating todo item %s: %w", item.ID, err)
	}
	return nil
}

// Complete marks item as completed.
func (c *Client) Complete(ctx context.Context, item model.TodoItem) error {
	item.IsCompleted = true
	return c.Update(ctx, item)
}

// Delete removes the item with the given id.
func (c *Client) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.do(ctx, http.MethodDelete, itemPath(id), nil, nil); err != nil {
		return fmt.Errorf("deleting todo item %s: %w", id, err)
	}
	return nil
}

// Watch streams todo events from the server until ctx is cancelled or
// the connection fails. The returned channel is closed in both cases.
func (c *Client) Watch(ctx context.Context) (<-chan model.TodoEvent, error) {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/ws"

	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to event stream: %w", err)
	}

	out := make(chan model.TodoEvent)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	go func() {
		defer close(out)
		defer close(done)
		for {
			var evt model.TodoEvent
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// do sends a request with an optional JSON body and decodes a JSON
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readAPIError builds an APIError from a failed response.
func readAPIError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode}
	}

	message := strings.TrimSpace(string(data))
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp model.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Message != "" {
			message = errResp.Message
		}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

func itemPath(id uuid.UUID) string {
	return todoItemsPath + "/" + id.String()
}
