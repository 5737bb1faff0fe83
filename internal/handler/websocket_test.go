package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/todolist-api/internal/events"
	"github.com/vyrodovalexey/todolist-api/internal/model"
)

func newTestWebSocketServer(t *testing.T) (*WebSocketHandler, *events.Hub, string) {
	t.Helper()

	hub := events.NewHub(zap.NewNop())
	handler := NewWebSocketHandler(hub, zap.NewNop())

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(func() {
		handler.CloseAllConnections()
		server.Close()
		hub.Close()
	})

	return handler, hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

// waitForSubscribers polls until the hub has n subscribers.
func waitForSubscribers(t *testing.T, hub *events.Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d subscribers, want %d", hub.Subscribers(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewWebSocketHandler(t *testing.T) {
	// Act
	handler := NewWebSocketHandler(events.NewHub(zap.NewNop()), zap.NewNop())

	// Assert
	if handler == nil {
		t.Fatal("NewWebSocketHandler() returned nil")
	}
	if handler.clients == nil {
		t.Error("clients map should be initialized")
	}
	if handler.source == nil {
		t.Error("source should not be nil")
	}
}

func TestWebSocketHandler_RegisterRoutes(t *testing.T) {
	// Arrange
	handler := NewWebSocketHandler(events.NewHub(zap.NewNop()), zap.NewNop())
	router := mux.NewRouter()

	// Act
	handler.RegisterRoutes(router)

	// Assert - Route is found (upgrade fails but not 404)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code == http.StatusNotFound {
		t.Error("Route /ws not found")
	}
}

func TestWebSocketHandler_HandleWebSocket_ConnectionEstablishment(t *testing.T) {
	// Arrange
	_, hub, wsURL := newTestWebSocketServer(t)

	// Act
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)

	// Assert
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusSwitchingProtocols)
	}
	waitForSubscribers(t, hub, 1)
}

func TestWebSocketHandler_StreamsPublishedEvents(t *testing.T) {
	// Arrange
	_, hub, wsURL := newTestWebSocketServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, hub, 1)

	item := model.TodoItem{ID: uuid.New(), Description: "Buy milk"}

	// Act
	if err := hub.Publish(context.Background(), model.NewTodoEvent(model.EventTodoCreated, item)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	// Assert
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt model.TodoEvent
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if evt.Type != model.EventTodoCreated {
		t.Errorf("Type = %s, want %s", evt.Type, model.EventTodoCreated)
	}
	if evt.Item != item {
		t.Errorf("Item = %+v, want %+v", evt.Item, item)
	}
	if evt.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}

func TestWebSocketHandler_MultipleClientsReceiveEvent(t *testing.T) {
	// Arrange
	_, hub, wsURL := newTestWebSocketServer(t)

	numClients := 3
	conns := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Failed to connect client %d: %v", i, err)
		}
		conns[i] = conn
		defer conns[i].Close()
	}
	waitForSubscribers(t, hub, numClients)

	// Act
	item := model.TodoItem{ID: uuid.New(), Description: "Walk dog", IsCompleted: true}
	_ = hub.Publish(context.Background(), model.NewTodoEvent(model.EventTodoUpdated, item))

	// Assert
	for i, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var evt model.TodoEvent
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("client %d: ReadJSON() error: %v", i, err)
		}
		if evt.Type != model.EventTodoUpdated {
			t.Errorf("client %d: Type = %s, want %s", i, evt.Type, model.EventTodoUpdated)
		}
	}
}

func TestWebSocketHandler_ClientDisconnectUnsubscribes(t *testing.T) {
	// Arrange
	handler, hub, wsURL := newTestWebSocketServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	waitForSubscribers(t, hub, 1)

	// Act
	conn.Close()

	// Assert
	waitForSubscribers(t, hub, 0)

	deadline := time.Now().Add(2 * time.Second)
	for handler.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d after disconnect, want 0", handler.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketHandler_CloseAllConnections(t *testing.T) {
	// Arrange
	handler, hub, wsURL := newTestWebSocketServer(t)

	numClients := 3
	conns := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Failed to connect client %d: %v", i, err)
		}
		conns[i] = conn
	}
	waitForSubscribers(t, hub, numClients)

	// Act
	handler.CloseAllConnections()

	// Assert
	for i, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, _, err := conn.ReadMessage(); err == nil {
			t.Errorf("Client %d: connection should be closed", i)
		}
	}
	if handler.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", handler.ClientCount())
	}
}

func TestWebSocketHandler_HubCloseEndsStream(t *testing.T) {
	// Arrange
	_, hub, wsURL := newTestWebSocketServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, hub, 1)

	// Act
	hub.Close()

	// Assert
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage() error = %v, want normal close", err)
	}
}

func TestWebSocketHandler_HandleWebSocket_InvalidUpgrade(t *testing.T) {
	// Arrange
	hub := events.NewHub(zap.NewNop())
	handler := NewWebSocketHandler(hub, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rr := httptest.NewRecorder()

	// Act
	handler.HandleWebSocket(rr, req)

	// Assert
	if rr.Code == http.StatusSwitchingProtocols {
		t.Error("Should not upgrade non-WebSocket request")
	}
	if hub.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0 after failed upgrade", hub.Subscribers())
	}
}

func TestWebSocketHandler_ClientSendsMessage(t *testing.T) {
	// Arrange
	handler, hub, wsURL := newTestWebSocketServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, hub, 1)

	// Act
	err = conn.WriteMessage(websocket.TextMessage, []byte("hello"))

	// Assert
	if err != nil {
		t.Errorf("Failed to send message: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if handler.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", handler.ClientCount())
	}
}

func TestWebSocketHandler_Upgrader(t *testing.T) {
	// Arrange
	handler := NewWebSocketHandler(events.NewHub(zap.NewNop()), zap.NewNop())

	// Assert
	if handler.upgrader.ReadBufferSize != 1024 {
		t.Errorf("ReadBufferSize = %d, want 1024", handler.upgrader.ReadBufferSize)
	}
	if handler.upgrader.WriteBufferSize != 1024 {
		t.Errorf("WriteBufferSize = %d, want 1024", handler.upgrader.WriteBufferSize)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://example.com")
	if !handler.upgrader.CheckOrigin(req) {
		t.Error("CheckOrigin should allow all origins")
	}
}

func TestWebSocketConstants(t *testing.T) {
	if writeWait != 10*time.Second {
		t.Errorf("writeWait = %v, want 10s", writeWait)
	}
	if pongWait != 60*time.Second {
		t.Errorf("pongWait = %v, want 60s", pongWait)
	}
	if pingPeriod != (pongWait*9)/10 {
		t.Errorf("pingPeriod = %v, want %v", pingPeriod, (pongWait*9)/10)
	}
	if maxMessageSize != 512 {
		t.Errorf("maxMessageSize = %d, want 512", maxMessageSize)
	}
}
