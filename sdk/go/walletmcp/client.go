// Package walletmcp 是钱包网关可流式 HTTP 传输的 Go 客户端。
package walletmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

const (
	headerSessionID = "Mcp-Session-Id"
	protocolVersion = "2025-03-26"
)

// Client wraps the JSON-RPC interactions with the wallet gateway's /mcp
// endpoint. A client owns at most one gateway session at a time.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	authToken  string

	mu        sync.RWMutex
	sessionID string
	nextID    atomic.Int64
}

// ClientInfo identifies the calling application during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo describes the gateway reached by Initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolInfo describes one tool exposed by the gateway.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// RPCError represents a JSON-RPC error returned by the gateway. DataCode
// carries the business error code when the gateway attached one.
type RPCError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	DataCode string `json:"-"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.DataCode != "" {
		return fmt.Sprintf("walletmcp rpc error (%d): %s - %s", e.Code, e.DataCode, e.Message)
	}
	return fmt.Sprintf("walletmcp rpc error (%d): %s", e.Code, e.Message)
}

// APIError represents a transport level failure (non JSON-RPC response body).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("walletmcp http error (%d): %s", e.StatusCode, e.Body)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"data,omitempty"`
	} `json:"error,omitempty"`
}

type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

// NewClient instantiates a client for the wallet gateway. authToken may be
// empty when the gateway runs without authentication. When httpClient is nil,
// a default client with a sensible timeout is used.
func NewClient(rawURL, authToken string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient, authToken: authToken}, nil
}

// Initialize opens a gateway session, stores the issued session identifier and
// completes the handshake with the initialized notification.
func (c *Client) Initialize(ctx context.Context, info ClientInfo) (ServerInfo, error) {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      info,
		"capabilities":    map[string]any{},
	}
	var result struct {
		ServerInfo ServerInfo `json:"serverInfo"`
	}
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return ServerInfo{}, err
	}
	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		return ServerInfo{}, err
	}
	return result.ServerInfo, nil
}

// ListTools returns the tool catalog of the current session.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var result struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool and returns the JSON payload of its first text
// content block.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	params := map[string]any{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}
	var result callToolResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return nil, err
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("walletmcp: tool %s returned no content", name)
	}
	text := result.Content[0].Text
	if result.IsError {
		return nil, fmt.Errorf("walletmcp: tool %s failed: %s", name, text)
	}
	return json.RawMessage(text), nil
}

// Ping checks that the session is still alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// SessionID returns the identifier issued by Initialize, or empty before a
// session exists.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Close terminates the gateway session. Closing a client without a session is
// a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(headerSessionID, sessionID)
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	id := c.nextID.Add(1)
	resp, err := c.post(ctx, rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// initialize 的应答携带会话标识，后续请求都要带上。
	if sid := resp.Header.Get(headerSessionID); sid != "" {
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var rpcResp rpcResponse
	if decodeErr := json.Unmarshal(data, &rpcResp); decodeErr != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
		}
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if rpcResp.Error != nil {
		rpcErr := &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
		if rpcResp.Error.Data != nil {
			rpcErr.DataCode = rpcResp.Error.Data.Code
		}
		return rpcErr
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *Client) notify(ctx context.Context, method string) error {
	resp, err := c.post(ctx, rpcRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload rpcRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	if sid := c.SessionID(); sid != "" {
		req.Header.Set(headerSessionID, sid)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	return resp, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *Client) endpoint() string {
	u := *c.baseURL
	u.Path = joinPath(u.Path, "/mcp")
	return u.String()
}

func joinPath(base, rel string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + rel
}
