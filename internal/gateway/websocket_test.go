package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// wsDial connects a test client to the gateway's duplex endpoint.
func wsDial(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + clientID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func wsRead(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func wsWrite(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWebsocketWelcomeAndDispatch(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	env.tools["ai_providers"].exec = func(_ context.Context, command string, params map[string]string) (map[string]any, error) {
		return map[string]any{"response": "pong", "provider": "claude"}, nil
	}

	conn := wsDial(t, srv, "client-7")

	welcome := wsRead(t, conn)
	if welcome["type"] != "connection_established" {
		t.Fatalf("first message type = %v", welcome["type"])
	}
	if welcome["client_id"] != "client-7" {
		t.Errorf("client_id = %v", welcome["client_id"])
	}
	if welcome["timestamp"] == nil {
		t.Error("welcome missing timestamp")
	}

	wsWrite(t, conn, map[string]any{
		"type":     "ai_request",
		"prompt":   "ping",
		"provider": "claude",
	})
	reply := wsRead(t, conn)
	if reply["type"] != "ai_response" {
		t.Fatalf("reply type = %v: %v", reply["type"], reply)
	}
	if reply["response"] != "pong" {
		t.Errorf("response = %v", reply["response"])
	}
}

func TestWebsocketMCPCommand(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	env.tools["search"].exec = func(_ context.Context, command string, params map[string]string) (map[string]any, error) {
		return map[string]any{"query": params["query"], "total_results": 0}, nil
	}

	conn := wsDial(t, srv, "client-8")
	_ = wsRead(t, conn) // welcome

	wsWrite(t, conn, map[string]any{
		"type":       "mcp_command",
		"tool":       "search",
		"command":    "web_search",
		"parameters": map[string]string{"query": "go generics"},
	})
	reply := wsRead(t, conn)
	if reply["type"] != "mcp_response" {
		t.Fatalf("reply type = %v: %v", reply["type"], reply)
	}
	result, ok := reply["result"].(map[string]any)
	if !ok {
		t.Fatalf("result = %T", reply["result"])
	}
	if result["query"] != "go generics" {
		t.Errorf("query = %v", result["query"])
	}
}

func TestWebsocketUnknownTypeKeepsSessionOpen(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	env.tools["ai_providers"].exec = func(_ context.Context, _ string, _ map[string]string) (map[string]any, error) {
		return map[string]any{"response": "still here"}, nil
	}

	conn := wsDial(t, srv, "client-9")
	_ = wsRead(t, conn) // welcome

	wsWrite(t, conn, map[string]any{"type": "teleport"})
	errMsg := wsRead(t, conn)
	if errMsg["type"] != "error" {
		t.Fatalf("reply type = %v", errMsg["type"])
	}
	if errMsg["kind"] != "invalid_input" {
		t.Errorf("kind = %v", errMsg["kind"])
	}

	// The session survives: a valid message still gets a reply.
	wsWrite(t, conn, map[string]any{"type": "ai_request", "prompt": "hello"})
	reply := wsRead(t, conn)
	if reply["type"] != "ai_response" {
		t.Fatalf("session did not survive unknown message: %v", reply)
	}
}

func TestWebsocketInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	conn := wsDial(t, srv, "client-10")
	_ = wsRead(t, conn) // welcome

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	errMsg := wsRead(t, conn)
	if errMsg["type"] != "error" {
		t.Fatalf("reply type = %v", errMsg["type"])
	}
	if errMsg["error"] != "invalid JSON payload" {
		t.Errorf("error = %v", errMsg["error"])
	}
}
