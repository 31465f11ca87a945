package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/pkg/logger"
)

// Authenticator 校验 HTTP 传输上的共享密钥。stdio 传输运行在本地
// 进程管道上，不经过这里。
type Authenticator struct {
	secret string
}

// NewAuthenticator 构造鉴权器。secret 为空表示关闭鉴权。
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: strings.TrimSpace(secret)}
}

// Enabled 报告是否启用鉴权。
func (a *Authenticator) Enabled() bool {
	return a != nil && a.secret != ""
}

// Authorize 校验 Authorization 头中的 Bearer 凭证，比较使用常数时间。
func (a *Authenticator) Authorize(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.secret)) == 1
}

// Middleware 拒绝未授权请求并留下审计记录。
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authorize(r) {
			logger.Audit().Warn("请求未通过鉴权",
				slog.String("path", r.URL.Path),
				slog.String("method", r.Method),
				slog.String("remote", r.RemoteAddr),
			)
			writeRPCError(w, http.StatusUnauthorized, nil, xerrors.CodeUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
