package session

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/pkg/logger"
)

// Registry 按传输类型维护存活会话。所有生命周期操作都持锁完成，
// 并发初始化请求各自得到互不相同的会话。
type Registry struct {
	mu       sync.RWMutex
	sessions map[TransportKind]map[string]*Session
	log      *slog.Logger
}

// NewRegistry 创建空的会话注册表。
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[TransportKind]map[string]*Session),
		log:      logger.Named("session"),
	}
}

// Create 原子地分配一条新会话并登记。生成的 ID 永不复用。
func (r *Registry) Create(kind TransportKind, handle io.Closer) (*Session, error) {
	if !IsValidKind(kind) {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "不支持的传输类型")
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now(),
		handle:    handle,
	}

	r.mu.Lock()
	byID := r.sessions[kind]
	if byID == nil {
		byID = make(map[string]*Session)
		r.sessions[kind] = byID
	}
	byID[sess.ID] = sess
	r.mu.Unlock()

	r.log.Debug("会话已创建", slog.String("session_id", sess.ID), slog.String("transport", string(kind)))
	return sess, nil
}

// Get 返回指定传输类型下的会话。不存在时报告 absent。
func (r *Registry) Get(id string, kind TransportKind) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[kind][id]
	return sess, ok
}

// Remove 注销会话并释放其传输句柄。对不存在的 ID 调用是无害的空操作。
func (r *Registry) Remove(id string, kind TransportKind) {
	r.mu.Lock()
	sess, ok := r.sessions[kind][id]
	if ok {
		delete(r.sessions[kind], id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := sess.Close(); err != nil {
		r.log.Warn("关闭会话传输失败",
			slog.String("session_id", id),
			slog.String("transport", string(kind)),
			slog.Any("error", err),
		)
	}
	r.log.Debug("会话已销毁", slog.String("session_id", id), slog.String("transport", string(kind)))
}

// Count 返回全部存活会话数量。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, byID := range r.sessions {
		total += len(byID)
	}
	return total
}

// CloseAll 尽力关闭所有存活会话。单条会话关闭失败不会阻止其余会话的清理。
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0)
	for kind, byID := range r.sessions {
		for id, sess := range byID {
			all = append(all, sess)
			delete(byID, id)
		}
		delete(r.sessions, kind)
	}
	r.mu.Unlock()

	for _, sess := range all {
		if err := sess.Close(); err != nil {
			r.log.Warn("停机时关闭会话失败",
				slog.String("session_id", sess.ID),
				slog.String("transport", string(sess.Kind)),
				slog.Any("error", err),
			)
		}
	}
}
