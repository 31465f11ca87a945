package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/observability/metrics"
	"OpenMCP-Wallet/internal/protocol"
	"OpenMCP-Wallet/internal/session"
	"OpenMCP-Wallet/internal/tools"
	"OpenMCP-Wallet/pkg/logger"
)

// ServerInfo 标识服务端实现。
type ServerInfo struct {
	Name    string
	Version string
}

// Dispatcher 把 JSON-RPC 请求路由到协议方法与工具注册表。
// 所有传输共用同一个 Dispatcher，保证三种接入方式语义一致。
type Dispatcher struct {
	registry *tools.Registry
	info     ServerInfo
}

// NewDispatcher 构造分发器。
func NewDispatcher(registry *tools.Registry, info ServerInfo) *Dispatcher {
	if info.Name == "" {
		info.Name = "openmcp-wallet"
	}
	return &Dispatcher{registry: registry, info: info}
}

// Handle 处理一条请求并返回应答。通知类请求返回 nil。
// 内部错误不外泄细节，只返回统一错误码。
func (d *Dispatcher) Handle(ctx context.Context, transport string, req *protocol.Request) *protocol.Response {
	if req == nil {
		return protocol.NewError(nil, protocol.ErrCodeInvalidRequest, xerrors.CodeInvalidParams, "请求不能为空")
	}
	if req.JSONRPC != protocol.Version {
		resp := protocol.NewError(req.ID, protocol.ErrCodeInvalidRequest, xerrors.CodeInvalidParams, "不支持的 JSON-RPC 版本")
		metrics.ObserveRequest(transport, req.Method, string(xerrors.CodeInvalidParams))
		return resp
	}

	result, err := d.dispatch(ctx, req)
	if req.IsNotification() {
		if err != nil {
			logger.L().Warn("通知处理失败",
				slog.String("method", req.Method), slog.Any("error", err))
		}
		metrics.ObserveRequest(transport, req.Method, codeLabel(err))
		return nil
	}
	if err != nil {
		metrics.ObserveRequest(transport, req.Method, codeLabel(err))
		return errorResponse(req, err)
	}
	metrics.ObserveRequest(transport, req.Method, "OK")
	return protocol.NewResult(req.ID, result)
}

func (d *Dispatcher) dispatch(ctx context.Context, req *protocol.Request) (any, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return d.handleInitialize(req.Params)
	case protocol.MethodInitialized:
		return nil, nil
	case protocol.MethodPing:
		return map[string]any{}, nil
	case protocol.MethodToolsList:
		return &protocol.ListToolsResult{Tools: d.registry.List()}, nil
	case protocol.MethodToolsCall:
		return d.handleToolCall(ctx, req.Params)
	default:
		return nil, xerrors.New(xerrors.CodeNotFound, "未知方法: "+req.Method)
	}
}

func (d *Dispatcher) handleInitialize(raw json.RawMessage) (any, error) {
	var params protocol.InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidParams, err, "解析 initialize 参数失败")
		}
	}
	logger.L().Info("会话初始化",
		slog.String("client", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.String("client_protocol", params.ProtocolVersion),
	)
	return &protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities: protocol.ServerCapabilities{
			Tools: &protocol.ToolsCapability{},
		},
		ServerInfo: protocol.Implementation{Name: d.info.Name, Version: d.info.Version},
	}, nil
}

func (d *Dispatcher) handleToolCall(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.CallToolParams
	if len(raw) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "tools/call 缺少参数")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidParams, err, "解析 tools/call 参数失败")
	}
	if params.Name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "工具名称不能为空")
	}

	start := time.Now()
	result, err := d.registry.Dispatch(ctx, params.Name, params.Arguments)
	metrics.ObserveToolCall(params.Name, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// errorResponse 把系统错误翻译成 JSON-RPC 错误对象。未登记的内部错误
// 只返回 INTERNAL，细节进日志不进应答。
func errorResponse(req *protocol.Request, err error) *protocol.Response {
	code := xerrors.CodeOf(err)
	switch code {
	case xerrors.CodeInvalidParams:
		return protocol.NewError(req.ID, protocol.ErrCodeInvalidParams, code, err.Error())
	case tools.CodeUnknownTool:
		return protocol.NewError(req.ID, protocol.ErrCodeInvalidParams, code, err.Error())
	case xerrors.CodeNotFound:
		return protocol.NewError(req.ID, protocol.ErrCodeMethodNotFound, code, err.Error())
	case session.CodeSessionNotFound:
		return protocol.NewError(req.ID, protocol.ErrCodeInvalidRequest, code, err.Error())
	case xerrors.CodeUnknown, xerrors.CodeInternal:
		logger.L().Error("请求处理失败",
			slog.String("method", req.Method), slog.Any("error", err))
		return protocol.NewError(req.ID, protocol.ErrCodeInternal, xerrors.CodeInternal, "internal error")
	default:
		// 业务错误码原样透出，调用方按 data.code 区分。
		return protocol.NewError(req.ID, protocol.ErrCodeInternal, code, err.Error())
	}
}

func codeLabel(err error) string {
	if err == nil {
		return "OK"
	}
	return string(xerrors.CodeOf(err))
}
