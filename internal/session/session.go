package session

import (
	"io"
	"sync"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
)

// TransportKind 标识会话所属的传输通道。
type TransportKind string

const (
	// KindStream 是可协商会话的双向 HTTP 流传输。
	KindStream TransportKind = "stream"
	// KindSSE 是服务端推送加侧信道 POST 的组合传输。
	KindSSE TransportKind = "sse"
	// KindStdio 是进程管道传输，整个进程生命周期只有一条会话。
	KindStdio TransportKind = "stdio"
)

// IsValidKind 检查传输类型是否受支持。
func IsValidKind(kind TransportKind) bool {
	switch kind {
	case KindStream, KindSSE, KindStdio:
		return true
	default:
		return false
	}
}

// ErrNotFound 表示指定的会话不存在或其传输已经关闭。
var ErrNotFound = xerrors.New(CodeSessionNotFound, "session not found")

// CodeSessionNotFound 是会话缺失的统一错误码。
const CodeSessionNotFound xerrors.Code = "SESSION_NOT_FOUND"

func init() {
	xerrors.Register(CodeSessionNotFound, xerrors.Attributes{
		Message:   "session not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Session 表示客户端与网关之间的一条绑定会话。
// 会话独占其传输句柄，句柄只会在会话销毁时关闭一次。
type Session struct {
	ID        string
	Kind      TransportKind
	CreatedAt time.Time

	handle    io.Closer
	closeOnce sync.Once
	closeErr  error
}

// Handle 返回会话持有的传输句柄。
func (s *Session) Handle() io.Closer {
	if s == nil {
		return nil
	}
	return s.handle
}

// Close 释放传输句柄。重复调用只会关闭一次。
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.handle != nil {
			s.closeErr = s.handle.Close()
		}
	})
	return s.closeErr
}
