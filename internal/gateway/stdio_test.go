package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/protocol"
	"OpenMCP-Wallet/internal/session"
	"OpenMCP-Wallet/internal/tools"
)

func TestStdioServesLineDelimitedRequests(t *testing.T) {
	registry := tools.NewRegistry()
	err := registry.Register(tools.Definition{
		Name: "echo",
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	sessions := session.NewRegistry()
	dispatcher := NewDispatcher(registry, ServerInfo{Name: "test", Version: "0.0.1"})

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"cli","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`not json at all`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	server := NewStdioServer(dispatcher, sessions, strings.NewReader(input), &out)
	if err := server.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sessions.Count() != 0 {
		t.Fatalf("stdio session must be released on exit, got %d", sessions.Count())
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// initialize、ping、解析错误、tools/list 各一条；通知没有应答。
	if len(lines) != 4 {
		t.Fatalf("expected 4 responses, got %d: %q", len(lines), lines)
	}

	var initResp protocol.Response
	if err := json.Unmarshal([]byte(lines[0]), &initResp); err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	if initResp.Error != nil {
		t.Fatalf("initialize failed: %+v", initResp.Error)
	}

	var parseResp protocol.Response
	if err := json.Unmarshal([]byte(lines[2]), &parseResp); err != nil {
		t.Fatalf("decode parse error: %v", err)
	}
	if parseResp.Error == nil || parseResp.Error.Code != protocol.ErrCodeParse {
		t.Fatalf("expected parse error, got %+v", parseResp.Error)
	}

	var listResp protocol.Response
	if err := json.Unmarshal([]byte(lines[3]), &listResp); err != nil {
		t.Fatalf("decode tools/list: %v", err)
	}
	if listResp.Error != nil {
		t.Fatalf("tools/list failed: %+v", listResp.Error)
	}
}

func TestDispatcherMethodRouting(t *testing.T) {
	registry := tools.NewRegistry()
	dispatcher := NewDispatcher(registry, ServerInfo{Name: "test", Version: "0.0.1"})
	ctx := context.Background()

	id := json.RawMessage(`1`)
	resp := dispatcher.Handle(ctx, "stdio", &protocol.Request{
		JSONRPC: protocol.Version, ID: id, Method: protocol.MethodPing,
	})
	if resp == nil || resp.Error != nil {
		t.Fatalf("ping failed: %+v", resp)
	}

	resp = dispatcher.Handle(ctx, "stdio", &protocol.Request{
		JSONRPC: protocol.Version, ID: id, Method: "bogus/method",
	})
	if resp.Error == nil || resp.Error.Code != protocol.ErrCodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}

	// 通知没有应答，即使方法未知。
	resp = dispatcher.Handle(ctx, "stdio", &protocol.Request{
		JSONRPC: protocol.Version, Method: "bogus/notify",
	})
	if resp != nil {
		t.Fatalf("notification must not produce a response, got %+v", resp)
	}

	resp = dispatcher.Handle(ctx, "stdio", &protocol.Request{
		JSONRPC: "1.0", ID: id, Method: protocol.MethodPing,
	})
	if resp.Error == nil || resp.Error.Data.Code != string(xerrors.CodeInvalidParams) {
		t.Fatalf("expected version rejection, got %+v", resp.Error)
	}
}
