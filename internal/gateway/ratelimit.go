package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// SessionLimiter 为每个会话维护一个令牌桶。超限请求收到协议错误，
// 会话状态不受影响。
type SessionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewSessionLimiter 构造限流器。rps<=0 表示不限流。
func NewSessionLimiter(rps float64, burst int) *SessionLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &SessionLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow 判断指定会话是否可以再处理一条请求。
func (l *SessionLimiter) Allow(sessionID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[sessionID]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[sessionID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Forget 释放会话对应的令牌桶，会话关闭时调用。
func (l *SessionLimiter) Forget(sessionID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.limiters, sessionID)
	l.mu.Unlock()
}
