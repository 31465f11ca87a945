package protocol

import (
	"encoding/json"
	"fmt"
)

// MCP 方法名。
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// ProtocolVersion 是服务端实现的 MCP 协议修订号。
const ProtocolVersion = "2025-03-26"

// Implementation 标识协议一端的名称与版本。
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams 是 initialize 请求的参数。
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// ServerCapabilities 声明服务端能力。本网关只提供工具调用。
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability 是工具能力声明。
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeResult 是 initialize 的应答。
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// Tool 描述一个可供调用的工具。
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ListToolsResult 是 tools/list 的应答。
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams 是 tools/call 的参数。
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content 是工具结果中的一段内容。
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// CallToolResult 是 tools/call 的应答。
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult 将业务结果编码为 JSON 文本内容。业务结构体中的金额与链上
// 索引字段均声明为字符串类型，数值精度在这里不会经过 float64。
func TextResult(v any) (*CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("编码工具结果失败: %w", err)
	}
	return &CallToolResult{
		Content: []Content{{Type: "text", Text: string(raw), MimeType: "application/json"}},
	}, nil
}
