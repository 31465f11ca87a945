package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"OpenMCP-Wallet/sdk/go/walletmcp"
)

// 演示客户端与网关的一次完整交互。真实部署时把 httptest 服务器换成
// 网关地址即可，例如 http://localhost:8080。
func main() {
	srv := httptest.NewServer(demoGateway())
	defer srv.Close()

	client, err := walletmcp.NewClient(srv.URL, "", srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := client.Initialize(ctx, walletmcp.ClientInfo{Name: "walletmcp-example", Version: "0.1.0"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("connected to %s %s (session=%s)\n", info.Name, info.Version, client.SessionID())

	tools, err := client.ListTools(ctx)
	if err != nil {
		panic(err)
	}
	for _, tool := range tools {
		fmt.Printf("tool: %s\n", tool.Name)
	}

	raw, err := client.CallTool(ctx, "wallet_balance", nil)
	if err != nil {
		panic(err)
	}
	fmt.Printf("wallet_balance -> %s\n", raw)

	if err := client.Close(ctx); err != nil {
		panic(err)
	}
	fmt.Println("session closed")
	os.Exit(0)
}

func demoGateway() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var req struct {
			ID     *int64 `json:"id"`
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		respond := func(result any) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
		}
		switch req.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "demo-session")
			respond(map[string]any{
				"protocolVersion": "2025-03-26",
				"serverInfo":      map[string]string{"name": "openmcp-wallet", "version": "demo"},
			})
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			respond(map[string]any{"tools": []map[string]any{
				{"name": "wallet_status", "inputSchema": map[string]any{"type": "object"}},
				{"name": "wallet_balance", "inputSchema": map[string]any{"type": "object"}},
			}})
		case "tools/call":
			respond(map[string]any{"content": []map[string]any{
				{"type": "text", "text": `{"balance":"12.75"}`, "mimeType": "application/json"},
			}})
		default:
			respond(map[string]any{})
		}
	})
}
