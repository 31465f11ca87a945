package txtrack

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
)

// MemoryStore 以内存方式保存交易记录，主要用于测试与本地运行。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	byKey   map[string]string
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byKey:   make(map[string]string),
	}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidParams, "record 不能为空")
	}
	if record.ID == "" {
		return xerrors.New(xerrors.CodeInvalidParams, "记录 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; ok {
		return ErrRecordConflict
	}
	// 幂等键与 SQL 驱动的唯一索引同约束，重复键必须报冲突。
	if record.IdempotencyKey != "" {
		if _, ok := m.byKey[record.IdempotencyKey]; ok {
			return ErrRecordConflict
		}
	}
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	m.records[record.ID] = cloneRecord(record)
	if record.IdempotencyKey != "" {
		m.byKey[record.IdempotencyKey] = record.ID
	}
	return nil
}

// Get 返回记录副本。
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

// FindByIdempotencyKey 按幂等键查找。
func (m *MemoryStore) FindByIdempotencyKey(_ context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	record, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

// MarkSent 执行 INITIATED→SENT 迁移。
func (m *MemoryStore) MarkSent(_ context.Context, id, txIdentifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if record.State != StateInitiated {
		return ErrRecordConflict
	}
	record.State = StateSent
	record.TxIdentifier = txIdentifier
	record.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkCompleted 执行 SENT→COMPLETED 迁移。重复调用是无副作用的空操作。
func (m *MemoryStore) MarkCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	switch record.State {
	case StateCompleted:
		return nil
	case StateSent:
		record.State = StateCompleted
		record.ErrorMessage = ""
		record.UpdatedAt = time.Now().Unix()
		return nil
	default:
		return ErrRecordConflict
	}
}

// MarkFailed 把记录推进到 FAILED 终态。
func (m *MemoryStore) MarkFailed(_ context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	switch record.State {
	case StateInitiated, StateSent:
		record.State = StateFailed
		record.ErrorMessage = message
		record.UpdatedAt = time.Now().Unix()
		return nil
	case StateFailed:
		return nil
	default:
		return ErrRecordConflict
	}
}

// Claim 递增结算尝试计数。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if record.State.Terminal() {
		return cloneRecord(record), ErrRecordTerminal
	}
	record.Attempts++
	record.UpdatedAt = time.Now().Unix()
	return cloneRecord(record), nil
}

// List 按创建时间升序返回记录。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		if !opts.matches(record.State) {
			continue
		}
		results = append(results, cloneRecord(record))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt == results[j].CreatedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt < results[j].CreatedAt
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
