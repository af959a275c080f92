package interpreter

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/conversation"
)

func newTestServer(t *testing.T) (*httptest.Server, *conversation.Registry) {
	t.Helper()

	registry := conversation.NewRegistry(newFallbackDeps())
	router := chi.NewRouter()
	New(registry, NewDispatcher(nil)).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, payload string) map[string]any {
	t.Helper()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return frame
}

func TestRootServesBanner(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != RootBanner {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}
}

func TestConversationOverWebSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "/")

	notice := roundTrip(t, conn, `{"type":"utterance","role":"patient","text":"repeat that"}`)
	if notice["type"] != "utterance" || notice["role"] != "system" {
		t.Fatalf("expected system notice, got %v", notice)
	}

	doctor := roundTrip(t, conn, `{"type":"utterance","role":"doctor","text":"Hello"}`)
	if doctor["role"] != "doctor" || doctor["translated"] != "[Spanish] hola" {
		t.Fatalf("unexpected doctor frame %v", doctor)
	}
	if _, ok := doctor["isRepeat"]; ok {
		t.Fatalf("isRepeat must be omitted for normal utterances, got %v", doctor)
	}
	if _, err := time.Parse(time.RFC3339, doctor["timestamp"].(string)); err != nil {
		t.Fatalf("timestamp is not RFC 3339: %v", err)
	}

	repeat := roundTrip(t, conn, `{"type":"utterance","role":"patient","text":"Repite eso"}`)
	if repeat["role"] != "doctor" || repeat["text"] != "Hello" || repeat["isRepeat"] != true {
		t.Fatalf("unexpected repeat frame %v", repeat)
	}

	bad := roundTrip(t, conn, `garbage`)
	if bad["type"] != "error" || bad["error"] != MsgInvalidJSON {
		t.Fatalf("unexpected error frame %v", bad)
	}

	summary := roundTrip(t, conn, `{"type":"end_conversation"}`)
	if summary["type"] != "summary" {
		t.Fatalf("expected summary frame, got %v", summary)
	}
	if !strings.Contains(summary["summary"].(string), "2 exchanges") {
		t.Fatalf("summary should count two transcript entries, got %q", summary["summary"])
	}
	actions, ok := summary["actions"].([]any)
	if !ok || len(actions) != 0 {
		t.Fatalf("expected empty action list, got %v", summary["actions"])
	}
}

func TestSessionsAreIsolatedPerConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	first := dial(t, srv, "/ws")
	second := dial(t, srv, "/ws")

	roundTrip(t, first, `{"type":"utterance","role":"doctor","text":"Hello"}`)

	notice := roundTrip(t, second, `{"type":"utterance","role":"patient","text":"repeat that"}`)
	if notice["role"] != "system" {
		t.Fatalf("second connection must not see the first one's doctor utterance, got %v", notice)
	}
}

func TestDisconnectDisposesSession(t *testing.T) {
	srv, registry := newTestServer(t)
	conn := dial(t, srv, "/ws")

	roundTrip(t, conn, `{"type":"utterance","role":"doctor","text":"Hello"}`)
	if registry.Len() != 1 {
		t.Fatalf("expected one open session, got %d", registry.Len())
	}

	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for registry.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not disposed after disconnect, %d still open", registry.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
