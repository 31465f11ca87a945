package txtrack

import (
	xerrors "OpenMCP-Wallet/internal/errors"
)

// State 表示交易记录在生命周期中的状态。状态只向前推进，
// 终态（COMPLETED / FAILED）之后不再发生任何迁移。
type State string

const (
	StateInitiated State = "INITIATED"
	StateSent      State = "SENT"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// IsValidState 检查给定状态是否为支持的枚举值。
func IsValidState(state State) bool {
	switch state {
	case StateInitiated, StateSent, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// Terminal 判断状态是否为终态。
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Record 是一笔本地登记的转账。记录归属追踪器独占，外部只能通过
// 追踪器的操作读写。金额始终保持提交时的十进制字符串，不做任何
// 浮点转换。
type Record struct {
	ID             string `json:"id"`
	State          State  `json:"state"`
	FromAddress    string `json:"from_address"`
	ToAddress      string `json:"to_address"`
	Amount         string `json:"amount"`
	TxIdentifier   string `json:"tx_identifier,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Attempts       int    `json:"attempts"`
	MaxAttempts    int    `json:"max_attempts"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

var (
	// ErrRecordNotFound 表示指定的交易记录不存在。
	ErrRecordNotFound = xerrors.New(CodeTxNotFound, "transaction record not found")
	// ErrRecordConflict 表示记录在当前状态下无法进行所请求的迁移。
	ErrRecordConflict = xerrors.New(CodeTxConflict, "invalid transaction state transition",
		xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrRecordTerminal 表示记录已经处于终态。
	ErrRecordTerminal = xerrors.New(CodeTxTerminal, "transaction record already terminal",
		xerrors.WithSeverity(xerrors.SeverityInfo))
)

const (
	CodeTxNotFound  xerrors.Code = "TX_NOT_FOUND"
	CodeTxConflict  xerrors.Code = "TX_CONFLICT"
	CodeTxTerminal  xerrors.Code = "TX_TERMINAL"
	CodeTxDuplicate xerrors.Code = "TX_DUPLICATE_KEY"
)

func init() {
	xerrors.Register(CodeTxNotFound, xerrors.Attributes{
		Message:   "transaction record not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTxConflict, xerrors.Attributes{
		Message:   "invalid transaction state transition",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTxTerminal, xerrors.Attributes{
		Message:   "transaction record already terminal",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTxDuplicate, xerrors.Attributes{
		Message:   "duplicate idempotency key",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

func cloneRecord(record *Record) *Record {
	if record == nil {
		return nil
	}
	clone := *record
	return &clone
}
