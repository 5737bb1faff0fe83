package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/todolist-api/internal/model"
)

// recordedRequest captures what the fake server received.
type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.contentType = r.Header.Get("Content-Type")
		rec.body = string(body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	return c, rec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"http", "http://localhost:8080", false},
		{"https with trailing slash", "https://todo.example.com/", false},
		{"missing scheme", "localhost:8080", true},
		{"websocket scheme", "ws://localhost:8080", true},
		{"no host", "http://", true},
		{"unparseable", "http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestNew_Options(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	dialer := &websocket.Dialer{HandshakeTimeout: time.Second}

	c, err := New("http://localhost:8080/", WithHTTPClient(hc), WithDialer(dialer))

	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Same(t, dialer, c.dialer)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}

func TestClient_List(t *testing.T) {
	items := []model.TodoItem{
		{ID: uuid.New(), Description: "Buy milk"},
		{ID: uuid.New(), Description: "Walk dog"},
	}
	c, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, items)
	})

	got, err := c.List(context.Background())

	require.NoError(t, err)
	assert.Equal(t, items, got)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/todoitems", rec.path)
}

func TestClient_List_Empty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []model.TodoItem{})
	})

	got, err := c.List(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestClient_Get(t *testing.T) {
	item := model.TodoItem{ID: uuid.New(), Description: "Buy milk"}
	c, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, item)
	})

	got, err := c.Get(context.Background(), item.ID)

	require.NoError(t, err)
	assert.Equal(t, item, *got)
	assert.Equal(t, "/api/todoitems/"+item.ID.String(), rec.path)
}

func TestClient_Get_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), uuid.New())

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "404 Not Found", apiErr.Error())
}

func TestClient_Create(t *testing.T) {
	created := model.TodoItem{ID: uuid.New(), Description: "Buy milk"}
	c, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "/api/todoitems/"+created.ID.String())
		writeJSON(w, http.StatusCreated, created)
	})

	got, err := c.Create(context.Background(), "Buy milk")

	require.NoError(t, err)
	assert.Equal(t, created, *got)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "application/json", rec.contentType)

	var sent model.TodoItem
	require.NoError(t, json.Unmarshal([]byte(rec.body), &sent))
	assert.Equal(t, "Buy milk", sent.Description)
	assert.False(t, sent.IsCompleted)
}

func TestClient_Create_ValidationError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, model.MsgDescriptionExists)
	})

	_, err := c.Create(context.Background(), "Buy milk")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, model.MsgDescriptionExists, apiErr.Message)
	assert.False(t, IsNotFound(err))
}

func TestClient_ServerErrorJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "internal server error",
		})
	})

	_, err := c.List(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "internal server error", apiErr.Message)
}

func TestClient_Update(t *testing.T) {
	item := model.TodoItem{ID: uuid.New(), Description: "Buy oat milk"}
	c, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Update(context.Background(), item)

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/api/todoitems/"+item.ID.String(), rec.path)

	var sent model.TodoItem
	require.NoError(t, json.Unmarshal([]byte(rec.body), &sent))
	assert.Equal(t, item, sent)
}

func TestClient_Complete(t *testing.T) {
	item := model.TodoItem{ID: uuid.New(), Description: "Buy milk"}
	c, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Complete(context.Background(), item)

	require.NoError(t, err)
	var sent model.TodoItem
	require.NoError(t, json.Unmarshal([]byte(rec.body), &sent))
	assert.True(t, sent.IsCompleted)
	assert.Equal(t, item.ID, sent.ID)
	assert.False(t, item.IsCompleted, "caller's item must not be modified")
}

func TestClient_Delete(t *testing.T) {
	id := uuid.New()
	c, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Delete(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, rec.method)
	assert.Equal(t, "/api/todoitems/"+id.String(), rec.path)
	assert.Empty(t, rec.body)
}

func TestClient_ContextCancelled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []model.TodoItem{})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.List(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Watch(t *testing.T) {
	evt := model.NewTodoEvent(model.EventTodoCreated, model.TodoItem{ID: uuid.New(), Description: "Buy milk"})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(evt)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	ch, err := c.Watch(context.Background())
	require.NoError(t, err)

	select {
	case got, ok := <-ch:
		require.True(t, ok)
		assert.Equal(t, evt.Type, got.Type)
		assert.Equal(t, evt.Item, got.Item)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close when the server closes the stream")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after server close")
	}
}

func TestClient_Watch_CancelClosesChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := c.Watch(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestClient_Watch_DialError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Watch(context.Background())

	assert.Error(t, err)
}
