package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/protocol"
	"OpenMCP-Wallet/internal/session"
)

// Server 同时承载流式 HTTP 与 SSE 两种传输。stdio 传输独立于 HTTP
// 服务，见 StdioServer。
type Server struct {
	addr       string
	auth       *Authenticator
	sessions   *session.Registry
	dispatcher *Dispatcher
	limiter    *SessionLimiter

	maxBodyBytes int64
}

// ServerOption 定义可选配置。
type ServerOption func(*Server)

// WithSessionLimiter 启用按会话限流。
func WithSessionLimiter(limiter *SessionLimiter) ServerOption {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// WithMaxBodyBytes 限制请求体大小。
func WithMaxBodyBytes(limit int64) ServerOption {
	return func(s *Server) {
		if limit > 0 {
			s.maxBodyBytes = limit
		}
	}
}

// NewServer 构造网关 HTTP 服务。
func NewServer(addr string, auth *Authenticator, sessions *session.Registry, dispatcher *Dispatcher, opts ...ServerOption) *Server {
	s := &Server{
		addr:         addr,
		auth:         auth,
		sessions:     sessions,
		dispatcher:   dispatcher,
		maxBodyBytes: 4 << 20,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回网关的完整 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.auth.Middleware(http.HandlerFunc(s.handleMCP)))
	mux.Handle("/sse", s.auth.Middleware(http.HandlerFunc(s.handleSSE)))
	mux.Handle("/messages", s.auth.Middleware(http.HandlerFunc(s.handleMessage)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// writeJSON 输出 JSON 应答。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRPCError 以 JSON-RPC 错误对象回应传输层失败。
func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code xerrors.Code, message string) {
	rpcCode := protocol.ErrCodeInvalidRequest
	if status == http.StatusInternalServerError {
		rpcCode = protocol.ErrCodeInternal
	}
	writeJSON(w, status, protocol.NewError(id, rpcCode, code, message))
}
