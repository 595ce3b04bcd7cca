package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hopdash/hopdash/dashboard/internal/state"
	wsHub "github.com/hopdash/hopdash/dashboard/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
func startHub(t *testing.T, st *state.Store, interval time.Duration) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one message from conn with a short deadline and decodes
// the envelope.
func readMessage(t *testing.T, conn *websocket.Conn) (event string, data map[string]interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m struct {
		Event string                 `json:"event"`
		Data  map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	return m.Event, m.Data
}

// waitCount polls hub.Count until it equals want.
func waitCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Count: got %d, want %d", hub.Count(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateSnapshot(t *testing.T) {
	st := state.New(10)
	st.SetConnected("client-7")
	wsURL, _, _ := startHub(t, st, time.Hour)

	event, data := readMessage(t, dial(t, wsURL))
	if event != wsHub.EventSnapshot {
		t.Errorf("event: got %v, want snapshot", event)
	}
	conn, ok := data["connection"].(map[string]interface{})
	if !ok {
		t.Fatal("connection: missing or wrong type")
	}
	if conn["state"] != state.Connected || conn["self_id"] != "client-7" {
		t.Errorf("connection: got %v", conn)
	}
	if data["generated_at"] == nil || data["generated_at"] == "" {
		t.Error("generated_at: missing")
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := state.New(10)
	wsURL, _, _ := startHub(t, st, testInterval)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate snapshot

	st.NodeBound("queue", "q1")

	// A later tick carries the new node.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, data := readMessage(t, conn)
		nodes, _ := data["nodes"].(map[string]interface{})
		if q, ok := nodes["queue"].([]interface{}); ok && len(q) == 1 && q[0] == "q1" {
			return
		}
	}
	t.Fatal("no broadcast carried the bound node")
}

func TestHub_NotifyBroadcastsImmediately(t *testing.T) {
	st := state.New(10)
	wsURL, hub, _ := startHub(t, st, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	st.SetDisconnected(nil)
	hub.Notify()

	event, data := readMessage(t, conn)
	if event != wsHub.EventSnapshot {
		t.Fatalf("event: got %v", event)
	}
	if c := data["connection"].(map[string]interface{}); c["state"] != state.Disconnected {
		t.Errorf("connection.state: got %v, want disconnected", c["state"])
	}
}

func TestHub_PublishReachesAllClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, state.New(10), time.Hour)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	waitCount(t, hub, 3)

	hub.Publish(wsHub.EventFrame, state.LogEntry{Frame: json.RawMessage(`["post","x",1,""]`)})

	for i, conn := range conns {
		event, data := readMessage(t, conn)
		if event != wsHub.EventFrame {
			t.Errorf("client %d: event: got %v, want frame", i, event)
		}
		if f, ok := data["frame"].([]interface{}); !ok || f[0] != "post" {
			t.Errorf("client %d: frame: got %v", i, data["frame"])
		}
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, state.New(10), time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	conn.Close()
	waitCount(t, hub, 0)
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, state.New(10), time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	cancel()
	waitCount(t, hub, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed after cancel")
	}
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := wsHub.New(state.New(10), testInterval)
	hub.Publish(wsHub.EventFrame, map[string]int{"n": 1})
	hub.Notify()
	hub.Notify()
	if n := hub.Count(); n != 0 {
		t.Errorf("Count: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(state.New(10), testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers -> 400
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
