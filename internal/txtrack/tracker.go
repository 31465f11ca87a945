package txtrack

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/ledger"
	"OpenMCP-Wallet/internal/observability/metrics"
	"OpenMCP-Wallet/pkg/logger"
)

// Tracker 负责交易的发起、状态查询与链上核验。每笔转账先在本地落一条
// INITIATED 记录，广播成功后推进到 SENT 并投递到确认队列，由结算流程
// 负责最终的 COMPLETED/FAILED 判定。
type Tracker struct {
	store       Store
	producer    Producer
	client      ledger.Client
	maxAttempts int
}

// Verification 是按链上标识核验交易的结果，附带当时的同步进度，
// 帮助调用方判断“未找到”是否只是账本还没追上。
type Verification struct {
	Identifier string            `json:"identifier"`
	Exists     bool              `json:"exists"`
	Sync       ledger.SyncStatus `json:"sync_status"`
}

// NewTracker 构造交易追踪器。
func NewTracker(store Store, producer Producer, client ledger.Client, maxAttempts int) *Tracker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Tracker{store: store, producer: producer, client: client, maxAttempts: maxAttempts}
}

// SendFunds 发起一笔转账。幂等键非空时，重复调用返回首次创建的记录，
// 不会重复广播。
//
// 广播成功后推进 SENT 的写入会重试几次；若存储持续不可用，链上标识
// 会写进审计日志供人工对账，本地记录在该窗口内仍是 INITIATED。
func (t *Tracker) SendFunds(ctx context.Context, to, amount, idempotencyKey string) (*Record, error) {
	if t.store == nil || t.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "交易追踪器未初始化")
	}
	to = strings.TrimSpace(to)
	amount = strings.TrimSpace(amount)
	if to == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "收款地址不能为空")
	}
	if amount == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "转账金额不能为空")
	}

	if idempotencyKey != "" {
		existing, err := t.store.FindByIdempotencyKey(ctx, idempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
	}

	from, err := t.client.Address(ctx)
	if err != nil {
		return nil, err
	}

	record := &Record{
		ID:             uuid.NewString(),
		State:          StateInitiated,
		FromAddress:    from,
		ToAddress:      to,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		MaxAttempts:    t.maxAttempts,
	}
	if err := t.store.Create(ctx, record); err != nil {
		if stdErrors.Is(err, ErrRecordConflict) && idempotencyKey != "" {
			// 并发的相同幂等键请求赢了插入，复用它的记录。
			existing, getErr := t.store.FindByIdempotencyKey(ctx, idempotencyKey)
			if getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	metrics.TxTransition(string(StateInitiated))

	// 记录一旦建立，发起方会话关闭也不能中断广播和状态登记，
	// 链路超时由账本客户端自己的发送超时控制。
	sendCtx := context.WithoutCancel(ctx)

	identifier, sendErr := t.client.Send(sendCtx, to, amount)
	if sendErr != nil {
		if markErr := t.store.MarkFailed(sendCtx, record.ID, sendErr.Error()); markErr != nil {
			logger.L().Error("登记转账失败状态时出错",
				slog.Any("error", markErr), slog.String("record_id", record.ID))
		} else {
			metrics.TxTransition(string(StateFailed))
		}
		return nil, sendErr
	}

	if err := t.markSentWithRetry(sendCtx, record.ID, identifier); err != nil {
		// 交易已经在链上，丢状态比丢请求严重得多，把标识留痕后再报错。
		logger.Audit().Error("广播成功但状态推进失败",
			slog.Any("error", err),
			slog.String("record_id", record.ID),
			slog.String("tx_identifier", identifier),
		)
		return nil, err
	}
	metrics.TxTransition(string(StateSent))
	if t.producer != nil {
		if err := t.producer.Publish(sendCtx, record.ID); err != nil {
			// 广播已经成功，入队失败只影响自动确认，留给人工或重启补偿。
			logger.L().Error("投递确认队列失败",
				slog.Any("error", err), slog.String("record_id", record.ID))
		}
	}

	logger.Audit().Info("转账已广播",
		slog.String("record_id", record.ID),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("amount", amount),
		slog.String("tx_identifier", identifier),
	)
	return t.store.Get(sendCtx, record.ID)
}

// markSentWithRetry 把已广播的记录推进到 SENT，存储抖动时做有限重试。
func (t *Tracker) markSentWithRetry(ctx context.Context, recordID, identifier string) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
		if err = t.store.MarkSent(ctx, recordID, identifier); err == nil {
			return nil
		}
		logger.L().Warn("推进 SENT 状态失败，准备重试",
			slog.Any("error", err),
			slog.String("record_id", recordID),
			slog.Int("attempt", attempt+1),
		)
	}
	return err
}

// Get 返回指定记录的当前状态。
func (t *Tracker) Get(ctx context.Context, id string) (*Record, error) {
	if t.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "交易存储未初始化")
	}
	return t.store.Get(ctx, strings.TrimSpace(id))
}

// List 返回符合过滤条件的记录列表。
func (t *Tracker) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	if t.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "交易存储未初始化")
	}
	return t.store.List(ctx, opts)
}

// VerifyByIdentifier 按链上标识核验交易是否已经落账。
// 核验失败以 IDENTIFIER_VERIFICATION_FAILED 上报，不吞掉底层原因。
func (t *Tracker) VerifyByIdentifier(ctx context.Context, identifier string) (*Verification, error) {
	if t.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "账本客户端未初始化")
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "交易标识不能为空")
	}

	exists, err := t.client.FindTransaction(ctx, identifier)
	if err != nil {
		return nil, xerrors.Wrap(ledger.CodeIdentifierVerification, err, "核验交易标识失败")
	}
	sync, syncErr := t.client.SyncStatus(ctx)
	if syncErr != nil {
		logger.L().Warn("获取同步进度失败", slog.Any("error", syncErr))
	}
	return &Verification{Identifier: identifier, Exists: exists, Sync: sync}, nil
}

// Close 释放存储与队列资源。
func (t *Tracker) Close() error {
	if t.store != nil {
		if err := t.store.Close(); err != nil {
			return err
		}
	}
	if t.producer != nil {
		return t.producer.Close()
	}
	return nil
}
