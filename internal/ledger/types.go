package ledger

import (
	"context"

	xerrors "OpenMCP-Wallet/internal/errors"
)

// SyncStatus 是后端客户端对本地账本视图追赶进度的报告。
// 索引一律以十进制字符串表示，避免大数落入 float64。
type SyncStatus struct {
	SyncedIndex         string `json:"synced_index"`
	HighestIndex        string `json:"highest_index"`
	FullySynced         bool   `json:"fully_synced"`
	Recovering          bool   `json:"recovering,omitempty"`
	RecoveryAttempts    int    `json:"recovery_attempts,omitempty"`
	MaxRecoveryAttempts int    `json:"max_recovery_attempts,omitempty"`
}

// Client 定义钱包后端必须提供的能力。实现内部可以自由选择链与签名方式，
// 上层只依赖这组操作。
//
// 约定：Send、SubmitVote、FundProposal、RequestPayout、RegisterListing
// 会改变钱包状态，必须经过单写者串行化（见 Serialized）；其余操作只读，
// 可以并发执行。
type Client interface {
	// Address 返回钱包地址。
	Address(ctx context.Context) (string, error)
	// Balance 返回余额的十进制字符串表示。
	Balance(ctx context.Context) (string, error)
	// SyncStatus 返回当前同步进度。
	SyncStatus(ctx context.Context) (SyncStatus, error)
	// Send 广播一笔转账，返回链上交易标识。
	Send(ctx context.Context, to, amount string) (string, error)
	// FindTransaction 按链上标识查询交易是否存在。
	FindTransaction(ctx context.Context, identifier string) (bool, error)
	// SubmitVote 提交治理投票。
	SubmitVote(ctx context.Context, proposalID string, approve bool) (string, error)
	// FundProposal 为提案注资。
	FundProposal(ctx context.Context, proposalID, amount string) (string, error)
	// RequestPayout 申请提案拨款。
	RequestPayout(ctx context.Context, proposalID string) (string, error)
	// RegisterListing 在交易市场登记一个服务条目。
	RegisterListing(ctx context.Context, name, endpoint string) (string, error)
	// Close 释放底层连接。
	Close()
}

// 钱包子系统的统一错误码。
const (
	CodeWalletNotReady         xerrors.Code = "WALLET_NOT_READY"
	CodeInsufficientFunds      xerrors.Code = "INSUFFICIENT_FUNDS"
	CodeSubmissionFailed       xerrors.Code = "TX_SUBMISSION_FAILED"
	CodeIdentifierVerification xerrors.Code = "IDENTIFIER_VERIFICATION_FAILED"
)

var (
	// ErrWalletNotReady 表示后端尚未就绪，退避后重试总是安全的。
	ErrWalletNotReady = xerrors.New(CodeWalletNotReady, "wallet not ready")
	// ErrInsufficientFunds 表示余额不足，不会自动重试。
	ErrInsufficientFunds = xerrors.New(CodeInsufficientFunds, "insufficient funds")
)

func init() {
	xerrors.Register(CodeWalletNotReady, xerrors.Attributes{
		Message:   "wallet not ready",
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
		Alert:     false,
	})
	xerrors.Register(CodeInsufficientFunds, xerrors.Attributes{
		Message:   "insufficient funds",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSubmissionFailed, xerrors.Attributes{
		Message:   "transaction submission failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeIdentifierVerification, xerrors.Attributes{
		Message:   "identifier verification failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}
