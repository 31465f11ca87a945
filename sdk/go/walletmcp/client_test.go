package walletmcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeGateway struct {
	t         *testing.T
	sessionID string
	token     string

	initialized bool
	deleted     bool
}

func (g *fakeGateway) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mcp" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if g.token != "" && r.Header.Get("Authorization") != "Bearer "+g.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodDelete {
			if r.Header.Get("Mcp-Session-Id") != g.sessionID {
				g.t.Errorf("delete without session header")
			}
			g.deleted = true
			w.WriteHeader(http.StatusNoContent)
			return
		}

		var req struct {
			ID     *int64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch req.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", g.sessionID)
			writeResult(w, req.ID, map[string]any{
				"protocolVersion": "2025-03-26",
				"serverInfo":      map[string]string{"name": "openmcp-wallet", "version": "test"},
			})
		case "notifications/initialized":
			if r.Header.Get("Mcp-Session-Id") != g.sessionID {
				g.t.Errorf("notification without session header")
			}
			g.initialized = true
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			writeResult(w, req.ID, map[string]any{
				"tools": []map[string]any{
					{"name": "wallet_balance", "inputSchema": map[string]any{"type": "object"}},
				},
			})
		case "tools/call":
			var params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			}
			if err := json.Unmarshal(req.Params, &params); err != nil {
				g.t.Errorf("decode call params: %v", err)
			}
			if params.Name == "wallet_get_transaction" {
				writeError(w, req.ID, -32000, "record not found", "TX_NOT_FOUND")
				return
			}
			writeResult(w, req.ID, map[string]any{
				"content": []map[string]any{
					{"type": "text", "text": `{"balance":"42.5"}`, "mimeType": "application/json"},
				},
			})
		case "ping":
			writeResult(w, req.ID, map[string]any{})
		default:
			writeError(w, req.ID, -32601, "method not found", "")
		}
	})
}

func writeResult(w http.ResponseWriter, id *int64, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func writeError(w http.ResponseWriter, id *int64, code int, message, dataCode string) {
	errObj := map[string]any{"code": code, "message": message}
	if dataCode != "" {
		errObj["data"] = map[string]any{"code": dataCode, "message": message}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": id, "error": errObj})
}

func TestInitializeStoresSession(t *testing.T) {
	gw := &fakeGateway{t: t, sessionID: "sess-1"}
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	client, err := NewClient(srv.URL, "", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	info, err := client.Initialize(context.Background(), ClientInfo{Name: "agent", Version: "1.0"})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if info.Name != "openmcp-wallet" {
		t.Fatalf("unexpected server name: %s", info.Name)
	}
	if got := client.SessionID(); got != "sess-1" {
		t.Fatalf("expected session sess-1, got %q", got)
	}
	if !gw.initialized {
		t.Fatal("initialized notification was not delivered")
	}
}

func TestCallToolDecodesTextContent(t *testing.T) {
	gw := &fakeGateway{t: t, sessionID: "sess-2", token: "secret"}
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	client, err := NewClient(srv.URL, "secret", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Initialize(context.Background(), ClientInfo{Name: "agent"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "wallet_balance" {
		t.Fatalf("unexpected tool list: %+v", tools)
	}

	raw, err := client.CallTool(context.Background(), "wallet_balance", nil)
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	var payload struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Balance != "42.5" {
		t.Fatalf("unexpected balance: %s", payload.Balance)
	}
}

func TestCallToolRPCError(t *testing.T) {
	gw := &fakeGateway{t: t, sessionID: "sess-3"}
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	client, err := NewClient(srv.URL, "", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Initialize(context.Background(), ClientInfo{Name: "agent"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err = client.CallTool(context.Background(), "wallet_get_transaction", map[string]any{"id": "missing"})
	if err == nil {
		t.Fatal("expected error")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T", err)
	}
	if rpcErr.DataCode != "TX_NOT_FOUND" {
		t.Fatalf("unexpected data code: %s", rpcErr.DataCode)
	}
}

func TestCloseClearsSession(t *testing.T) {
	gw := &fakeGateway{t: t, sessionID: "sess-4"}
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	client, err := NewClient(srv.URL, "", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Initialize(context.Background(), ClientInfo{Name: "agent"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := client.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !gw.deleted {
		t.Fatal("session was not deleted on the gateway")
	}
	if client.SessionID() != "" {
		t.Fatal("session id should be cleared after close")
	}
	// 重复关闭应当是无操作。
	if err := client.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
