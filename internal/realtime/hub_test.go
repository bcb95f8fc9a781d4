// internal/realtime/hub_test.go
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
)

type testFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(NewRegistry(time.Minute, 10), config.RealtimeConfig{SendBuffer: 16})
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame testFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return frame
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	if err := conn.WriteJSON(map[string]interface{}{"event": event, "data": data}); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
}

func connect(t *testing.T, server *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	conn := dial(t, server)
	frame := readFrame(t, conn)
	if frame.Event != EventConnected {
		t.Fatalf("Expected %s, got %s", EventConnected, frame.Event)
	}
	var data struct {
		SessionID string `json:"sessionId"`
	}
	json.Unmarshal(frame.Data, &data)
	if data.SessionID == "" {
		t.Fatal("Expected a session id in the connected frame")
	}
	return conn, data.SessionID
}

func TestHubRejectsBeforeStart(t *testing.T) {
	hub, server := newTestHub(t)

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before start, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Expected a JSON error body, got content type %q", ct)
	}
	var body errdefs.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body.Error.Code != string(errdefs.KindChannelUninitialized) {
		t.Errorf("Expected code %s, got %q", errdefs.KindChannelUninitialized, body.Error.Code)
	}
	if body.Error.Message == "" {
		t.Error("Expected an error message")
	}

	n := NewNotification(TypePingResults, nil, nil)
	if err := hub.SendToUser("u1", n); !errors.Is(err, errdefs.ErrChannelUninitialized) {
		t.Errorf("Expected ErrChannelUninitialized from SendToUser, got %v", err)
	}
	if err := hub.Broadcast(n); !errors.Is(err, errdefs.ErrChannelUninitialized) {
		t.Errorf("Expected ErrChannelUninitialized from Broadcast, got %v", err)
	}
}

func TestHubRegisterAndSendToUser(t *testing.T) {
	hub, server := newTestHub(t)
	hub.Start(context.Background())

	conn, sessionID := connect(t, server)

	session, ok := hub.Registry().GetUserBySocketID(sessionID)
	if !ok || session.UserID != PendingUserID {
		t.Fatalf("Expected pending session, got %+v (found=%v)", session, ok)
	}

	send(t, conn, EventRegister, "u1")
	frame := readFrame(t, conn)
	if frame.Event != EventRegistered {
		t.Fatalf("Expected %s, got %s", EventRegistered, frame.Event)
	}
	if !strings.Contains(string(frame.Data), `"u1"`) {
		t.Errorf("Expected registered user in payload, got %s", frame.Data)
	}
	if !hub.Registry().IsUserActive("u1") {
		t.Fatal("Expected u1 to be active")
	}

	if err := hub.SendToUser("u1", NewNotification(TypeMaintenance, map[string]string{"requestId": "req-1"}, nil)); err != nil {
		t.Fatalf("SendToUser failed: %v", err)
	}
	frame = readFrame(t, conn)
	if frame.Event != EventMessage {
		t.Fatalf("Expected %s, got %s", EventMessage, frame.Event)
	}
	var notification Notification
	if err := json.Unmarshal(frame.Data, &notification); err != nil {
		t.Fatalf("Failed to decode notification: %v", err)
	}
	if notification.Type != TypeMaintenance {
		t.Errorf("Expected type %s, got %s", TypeMaintenance, notification.Type)
	}

	if err := hub.SendToUser("ghost", NewNotification(TypeMaintenance, nil, nil)); err != nil {
		t.Errorf("Expected sending to an absent user to be a no-op, got %v", err)
	}
}

func TestHubRegisterAcceptsObjectPayload(t *testing.T) {
	hub, server := newTestHub(t)
	hub.Start(context.Background())

	conn, _ := connect(t, server)
	send(t, conn, EventRegister, map[string]string{"userId": "u7"})
	if frame := readFrame(t, conn); frame.Event != EventRegistered {
		t.Fatalf("Expected %s, got %s", EventRegistered, frame.Event)
	}
	if !hub.Registry().IsUserActive("u7") {
		t.Error("Expected u7 to be active")
	}
}

func TestHubRegisterWithoutUserID(t *testing.T) {
	hub, server := newTestHub(t)
	hub.Start(context.Background())

	conn, _ := connect(t, server)
	send(t, conn, EventRegister, "")
	frame := readFrame(t, conn)
	if frame.Event != EventError {
		t.Fatalf("Expected %s, got %s", EventError, frame.Event)
	}
}

func TestHubPingPong(t *testing.T) {
	hub, server := newTestHub(t)
	hub.Start(context.Background())

	conn, _ := connect(t, server)
	send(t, conn, EventPing, nil)
	if frame := readFrame(t, conn); frame.Event != EventPong {
		t.Fatalf("Expected %s, got %s", EventPong, frame.Event)
	}
}

func TestHubBroadcastReachesEverySession(t *testing.T) {
	hub, server := newTestHub(t)
	hub.Start(context.Background())

	registered, _ := connect(t, server)
	send(t, registered, EventRegister, "u1")
	readFrame(t, registered)

	anonymous, _ := connect(t, server)
	third, _ := connect(t, server)

	if err := hub.Broadcast(NewNotification(TypePingResults, []string{}, map[string]interface{}{"total": 3})); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	for i, conn := range []*websocket.Conn{registered, anonymous, third} {
		frame := readFrame(t, conn)
		if frame.Event != EventBroadcast {
			t.Errorf("Client %d: expected %s, got %s", i, EventBroadcast, frame.Event)
		}
	}
}

func TestHubDisconnectRemovesSession(t *testing.T) {
	hub, server := newTestHub(t)
	hub.Start(context.Background())

	conn, sessionID := connect(t, server)
	send(t, conn, EventRegister, "u1")
	readFrame(t, conn)

	send(t, conn, EventDisconnect, nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := hub.Registry().GetUserBySocketID(sessionID); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := hub.Registry().GetUserBySocketID(sessionID); ok {
		t.Fatal("Expected session to be removed after disconnect")
	}
	if hub.Registry().IsUserActive("u1") {
		t.Error("Expected u1 to be inactive after disconnect")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://console.example.com"})

	allowed, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "https://console.example.com")
	if !check(allowed) {
		t.Error("Expected listed origin to be allowed")
	}

	denied, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	if check(denied) {
		t.Error("Expected unlisted origin to be denied")
	}

	if !originChecker(nil)(denied) {
		t.Error("Expected every origin to be allowed with an empty list")
	}
}
