package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/observability/metrics"
	"OpenMCP-Wallet/internal/protocol"
	"OpenMCP-Wallet/internal/session"
	"OpenMCP-Wallet/pkg/logger"
)

// HeaderSessionID 是流式 HTTP 传输携带会话标识的头部。
const HeaderSessionID = "Mcp-Session-Id"

// nopCloser 是没有底层连接的会话句柄。
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleStreamPost(w, r)
	case http.MethodDelete:
		s.handleStreamDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "仅支持 POST/DELETE", http.StatusMethodNotAllowed)
	}
}

// handleStreamPost 处理流式传输上的一条请求。initialize 在这里创建
// 会话并通过应答头返回会话标识，其余请求必须带有效标识。
func (s *Server) handleStreamPost(w http.ResponseWriter, r *http.Request) {
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

	if req.Method == protocol.MethodInitialize {
		sess, createErr := s.sessions.Create(session.KindStream, nopCloser{})
		if createErr != nil {
			writeRPCError(w, http.StatusInternalServerError, req.ID, xerrors.CodeInternal, "internal error")
			return
		}
		metrics.SessionOpened(string(session.KindStream))
		w.Header().Set(HeaderSessionID, sess.ID)
		resp := s.dispatcher.Handle(r.Context(), string(session.KindStream), &req)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(HeaderSessionID))
	if sessionID == "" {
		writeRPCError(w, http.StatusBadRequest, req.ID, session.CodeSessionNotFound, "缺少 "+HeaderSessionID+" 头")
		return
	}
	sess, ok := s.sessions.Get(sessionID, session.KindStream)
	if !ok {
		writeRPCError(w, http.StatusNotFound, req.ID, session.CodeSessionNotFound, "会话不存在或已关闭")
		return
	}
	if !s.limiter.Allow(sess.ID) {
		writeRPCError(w, http.StatusTooManyRequests, req.ID, xerrors.CodeRateLimited, "请求过于频繁")
		return
	}

	resp := s.dispatcher.Handle(r.Context(), string(session.KindStream), &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStreamDelete 终止一个流式会话。重复删除是幂等的。
func (s *Server) handleStreamDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.Header.Get(HeaderSessionID))
	if sessionID == "" {
		writeRPCError(w, http.StatusBadRequest, nil, session.CodeSessionNotFound, "缺少 "+HeaderSessionID+" 头")
		return
	}
	if _, ok := s.sessions.Get(sessionID, session.KindStream); ok {
		s.sessions.Remove(sessionID, session.KindStream)
		s.limiter.Forget(sessionID)
		metrics.SessionClosed(string(session.KindStream))
		logger.L().Info("流式会话已关闭", slog.String("session_id", sessionID))
	}
	w.WriteHeader(http.StatusNoContent)
}
