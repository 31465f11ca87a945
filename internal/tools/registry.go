package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/protocol"
)

// 工具分发相关错误码。
const (
	CodeUnknownTool xerrors.Code = "UNKNOWN_TOOL"
)

func init() {
	xerrors.Register(CodeUnknownTool, xerrors.Attributes{
		Message:   "unknown tool",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Handler 执行一次工具调用。返回值会被编码为 JSON 文本内容。
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition 描述一个可注册的工具。
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]any
	// Required 中的字段缺失时直接拒绝，handler 不会被调用。
	Required []string
	Handler  Handler
}

// Registry 保存工具定义并负责分发。注册完成后只读，分发可并发。
type Registry struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]*Definition
}

// NewRegistry 创建空的工具注册表。
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register 注册一个工具。重名注册返回错误。
func (r *Registry) Register(def Definition) error {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidParams, "工具名称不能为空")
	}
	if def.Handler == nil {
		return xerrors.New(xerrors.CodeInvalidParams, fmt.Sprintf("工具 %s 缺少处理器", name))
	}
	if def.InputSchema == nil {
		def.InputSchema = objectSchema(nil, nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[name]; exists {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("工具 %s 已注册", name))
	}
	def.Name = name
	r.defs[name] = &def
	r.order = append(r.order, name)
	return nil
}

// List 按注册顺序返回工具描述。
func (r *Registry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Tool, 0, len(r.order))
	for _, name := range r.order {
		def := r.defs[name]
		out = append(out, protocol.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return out
}

// Dispatch 校验参数并执行指定工具。未知工具与缺参都在执行前拒绝，
// 不会产生部分副作用。
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (*protocol.CallToolResult, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, xerrors.New(CodeUnknownTool, fmt.Sprintf("未知工具: %s", name))
	}
	if args == nil {
		args = map[string]any{}
	}
	for _, field := range def.Required {
		value, present := args[field]
		if !present || value == nil {
			return nil, xerrors.New(xerrors.CodeInvalidParams,
				fmt.Sprintf("工具 %s 缺少必填参数 %s", name, field))
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			return nil, xerrors.New(xerrors.CodeInvalidParams,
				fmt.Sprintf("工具 %s 的参数 %s 不能为空", name, field))
		}
	}

	result, err := def.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	encoded, encodeErr := protocol.TextResult(result)
	if encodeErr != nil {
		return nil, xerrors.Wrap(xerrors.CodeInternal, encodeErr, "编码工具结果失败")
	}
	return encoded, nil
}

// stringArg 取出字符串参数并去除首尾空白。类型不符时报 INVALID_PARAMS。
func stringArg(args map[string]any, key string) (string, error) {
	value, ok := args[key]
	if !ok || value == nil {
		return "", nil
	}
	s, isString := value.(string)
	if !isString {
		return "", xerrors.New(xerrors.CodeInvalidParams, fmt.Sprintf("参数 %s 必须是字符串", key))
	}
	return strings.TrimSpace(s), nil
}

// boolArg 取出布尔参数。类型不符时报 INVALID_PARAMS。
func boolArg(args map[string]any, key string) (bool, error) {
	value, ok := args[key]
	if !ok || value == nil {
		return false, nil
	}
	b, isBool := value.(bool)
	if !isBool {
		return false, xerrors.New(xerrors.CodeInvalidParams, fmt.Sprintf("参数 %s 必须是布尔值", key))
	}
	return b, nil
}

// objectSchema 构造一个 object 类型的 JSON Schema。
func objectSchema(properties map[string]any, required []string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}
