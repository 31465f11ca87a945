package txtrack

import "context"

// ListOptions 控制 List 的过滤条件。结果始终按创建时间升序排列，
// 服务端不保留游标，调用方可以随时重新列举。
type ListOptions struct {
	States []State
	Limit  int
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if len(opts.States) > 0 {
		valid := opts.States[:0]
		for _, state := range opts.States {
			if IsValidState(state) {
				valid = append(valid, state)
			}
		}
		opts.States = valid
	}
}

func (opts ListOptions) matches(state State) bool {
	if len(opts.States) == 0 {
		return true
	}
	for _, candidate := range opts.States {
		if candidate == state {
			return true
		}
	}
	return false
}

// Store 抽象交易记录的持久化。实现必须保证每条记录的状态迁移原子可见：
// 任何读取都不会观察到半应用的迁移，终态一经写入不再改变。
type Store interface {
	// Create 落盘一条新记录。重复 ID 返回 ErrRecordConflict。
	Create(ctx context.Context, record *Record) error
	// Get 返回指定记录。
	Get(ctx context.Context, id string) (*Record, error)
	// FindByIdempotencyKey 按幂等键查找已有记录。
	FindByIdempotencyKey(ctx context.Context, key string) (*Record, error)
	// MarkSent 执行 INITIATED→SENT 迁移并登记链上标识。
	MarkSent(ctx context.Context, id, txIdentifier string) error
	// MarkCompleted 执行 SENT→COMPLETED 迁移。对已 COMPLETED 的记录
	// 是无副作用的空操作，不更新 UpdatedAt。
	MarkCompleted(ctx context.Context, id string) error
	// MarkFailed 执行 INITIATED/SENT→FAILED 迁移并登记失败原因。
	MarkFailed(ctx context.Context, id, message string) error
	// Claim 为结算核对递增尝试计数并返回记录副本。
	// 终态记录返回 ErrRecordTerminal。
	Claim(ctx context.Context, id string) (*Record, error)
	// List 按创建时间升序返回记录。
	List(ctx context.Context, opts ListOptions) ([]*Record, error)
	// Close 释放底层资源。
	Close() error
}
