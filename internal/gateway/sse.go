package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/observability/metrics"
	"OpenMCP-Wallet/internal/protocol"
	"OpenMCP-Wallet/internal/session"
	"OpenMCP-Wallet/pkg/logger"
)

// sseConn 封装一条 SSE 推送连接。写入串行化，Close 之后的 Send 报错。
type sseConn struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher

	done      chan struct{}
	closeOnce sync.Once
}

func newSSEConn(w http.ResponseWriter, flusher http.Flusher) *sseConn {
	return &sseConn{w: w, flusher: flusher, done: make(chan struct{})}
}

// Send 推送一个事件帧。关闭判定必须持锁复查：Close 返回后 handler 随
// 即退出，ResponseWriter 不能再被触碰。
func (c *sseConn) Send(event string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return xerrors.New(session.CodeSessionNotFound, "SSE 连接已关闭")
	}
	if _, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// comment 发送保活注释帧。
func (c *sseConn) comment(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return io.ErrClosedPipe
	}
	if _, err := fmt.Fprintf(c.w, ": %s\n\n", text); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *sseConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close 标记连接终止并等待在途写入完成。实际的 TCP 连接随 handler
// 返回而释放，所以 Close 返回后必须不再有写入开始。
func (c *sseConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
	})
	return nil
}

// Done 在连接关闭后解除阻塞。
func (c *sseConn) Done() <-chan struct{} {
	return c.done
}

// handleSSE 建立推送连接。首个事件下发 POST 旁路端点，此后连接只推
// 送应答与保活帧。
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "不支持流式响应", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	conn := newSSEConn(w, flusher)
	sess, err := s.sessions.Create(session.KindSSE, conn)
	if err != nil {
		return
	}
	metrics.SessionOpened(string(session.KindSSE))
	defer func() {
		s.sessions.Remove(sess.ID, session.KindSSE)
		s.limiter.Forget(sess.ID)
		metrics.SessionClosed(string(session.KindSSE))
	}()

	endpoint := fmt.Sprintf("/messages?session_id=%s", sess.ID)
	if err := conn.Send("endpoint", []byte(endpoint)); err != nil {
		return
	}
	logger.L().Info("SSE 会话已建立", slog.String("session_id", sess.ID))

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			_ = conn.Close()
			return
		case <-conn.Done():
			return
		case <-keepalive.C:
			if err := conn.comment("keepalive"); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// handleMessage 是 SSE 配对的 POST 旁路。请求在这里同步分发，
// 应答通过推送连接下发，HTTP 侧只确认收到。
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeRPCError(w, http.StatusBadRequest, nil, session.CodeSessionNotFound, "缺少 session_id 参数")
		return
	}
	sess, ok := s.sessions.Get(sessionID, session.KindSSE)
	if !ok {
		writeRPCError(w, http.StatusNotFound, nil, session.CodeSessionNotFound, "会话不存在或已关闭")
		return
	}
	conn, ok := sess.Handle().(*sseConn)
	if !ok {
		writeRPCError(w, http.StatusInternalServerError, nil, xerrors.CodeInternal, "internal error")
		return
	}
	if !s.limiter.Allow(sess.ID) {
		writeRPCError(w, http.StatusTooManyRequests, nil, xerrors.CodeRateLimited, "请求过于频繁")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes))
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, xerrors.CodeInvalidParams, "读取请求体失败")
		return
	}
	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			protocol.NewError(nil, protocol.ErrCodeParse, xerrors.CodeInvalidParams, "请求体不是合法的 JSON-RPC"))
		return
	}

	resp := s.dispatcher.Handle(r.Context(), string(session.KindSSE), &req)
	if resp != nil {
		payload, marshalErr := json.Marshal(resp)
		if marshalErr != nil {
			writeRPCError(w, http.StatusInternalServerError, req.ID, xerrors.CodeInternal, "internal error")
			return
		}
		if sendErr := conn.Send("message", payload); sendErr != nil {
			logger.L().Warn("推送应答失败",
				slog.String("session_id", sess.ID), slog.Any("error", sendErr))
		}
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))
}
