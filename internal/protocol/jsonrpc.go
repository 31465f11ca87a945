package protocol

import (
	"encoding/json"

	xerrors "OpenMCP-Wallet/internal/errors"
)

// Version 是 JSON-RPC 协议版本号。
const Version = "2.0"

// JSON-RPC 2.0 标准错误码。
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// Request 表示一条入站 JSON-RPC 请求。
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification 判断请求是否为无需应答的通知。
func (r *Request) IsNotification() bool {
	return r == nil || len(r.ID) == 0 || string(r.ID) == "null"
}

// Response 表示一条出站 JSON-RPC 应答。
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject 是 JSON-RPC 错误对象。Data 中携带系统错误码，
// 调用方据此区分可重试与不可重试的失败。
type ErrorObject struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData 携带统一错误码与描述。
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResult 构造成功应答。
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewError 构造失败应答。
func NewError(id json.RawMessage, rpcCode int, code xerrors.Code, message string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error: &ErrorObject{
			Code:    rpcCode,
			Message: message,
			Data:    &ErrorData{Code: string(code), Message: message},
		},
	}
}
