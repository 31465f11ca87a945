package txtrack

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/ledger"
	"OpenMCP-Wallet/internal/observability/alerting"
	"OpenMCP-Wallet/internal/observability/metrics"
	"OpenMCP-Wallet/pkg/logger"
)

// CodeSettlement 表示结算核对过程本身出错。
const CodeSettlement xerrors.Code = "TX_SETTLEMENT_FAILED"

func init() {
	xerrors.Register(CodeSettlement, xerrors.Attributes{
		Message:   "transaction settlement check failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// Watcher 消费确认队列，把 SENT 状态的记录与链上账本核对：
// 标识已落账则推进到 COMPLETED；账本未追上则延迟重投；
// 尝试耗尽后推进到 FAILED 并触发告警。
type Watcher struct {
	store        Store
	consumer     Consumer
	producer     Producer
	client       ledger.Client
	workerCount  int
	requeueDelay time.Duration
	logger       *slog.Logger
	alerter      alerting.Dispatcher
}

// WatcherOption 定义可选配置。
type WatcherOption func(*Watcher)

// WithWatcherLogger 指定调试日志输出。
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) WatcherOption {
	return func(w *Watcher) {
		if workers > 0 {
			w.workerCount = workers
		}
	}
}

// WithRequeueDelay 设置账本未追上时的重投间隔。
func WithRequeueDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		if delay > 0 {
			w.requeueDelay = delay
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) WatcherOption {
	return func(w *Watcher) {
		w.alerter = dispatcher
	}
}

// NewWatcher 构造结算核对器。
func NewWatcher(store Store, consumer Consumer, producer Producer, client ledger.Client, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		store:        store,
		consumer:     consumer,
		producer:     producer,
		client:       client,
		workerCount:  1,
		requeueDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	return w
}

// Start 启动结算核对循环，阻塞到 ctx 取消。
func (w *Watcher) Start(ctx context.Context) error {
	if w.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置确认队列消费者")
	}
	return w.consumer.Consume(ctx, w.workerCount, w.handle)
}

func (w *Watcher) handle(ctx context.Context, recordID string) error {
	if w.store == nil || w.client == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "结算核对器未初始化")
	}
	record, err := w.store.Claim(ctx, recordID)
	if err != nil {
		if stdErrors.Is(err, ErrRecordNotFound) || stdErrors.Is(err, ErrRecordTerminal) {
			w.logDebug("跳过记录", slog.String("record_id", recordID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取待确认记录失败", slog.Any("error", err), slog.String("record_id", recordID))
		return err
	}
	if record.State != StateSent || record.TxIdentifier == "" {
		// 还没广播成功的记录不该出现在确认队列里。
		w.logDebug("记录尚未广播，忽略", slog.String("record_id", recordID), slog.String("state", string(record.State)))
		return nil
	}

	exists, findErr := w.client.FindTransaction(ctx, record.TxIdentifier)
	if findErr != nil {
		return w.handleUnconfirmed(ctx, record, xerrors.Wrap(CodeSettlement, findErr, "核对链上标识失败"))
	}
	if exists {
		if err := w.store.MarkCompleted(ctx, record.ID); err != nil {
			logger.L().Error("标记交易完成失败", slog.Any("error", err), slog.String("record_id", record.ID))
			return err
		}
		metrics.TxTransition(string(StateCompleted))
		logger.Audit().Info("交易已确认落账",
			slog.String("record_id", record.ID),
			slog.String("tx_identifier", record.TxIdentifier),
			slog.Int("attempts", record.Attempts),
		)
		return nil
	}

	// 账本可能还没追上；带上同步进度便于排查。
	sync, syncErr := w.client.SyncStatus(ctx)
	if syncErr != nil {
		w.logDebug("获取同步进度失败", slog.String("record_id", record.ID), slog.String("error", syncErr.Error()))
	}
	cause := xerrors.New(CodeSettlement,
		fmt.Sprintf("链上未找到标识 %s (synced=%s highest=%s)", record.TxIdentifier, sync.SyncedIndex, sync.HighestIndex))
	return w.handleUnconfirmed(ctx, record, cause)
}

func (w *Watcher) handleUnconfirmed(ctx context.Context, record *Record, cause error) error {
	if record.Attempts >= record.MaxAttempts {
		if err := w.store.MarkFailed(ctx, record.ID, cause.Error()); err != nil {
			logger.L().Error("标记交易失败状态出错", slog.Any("error", err), slog.String("record_id", record.ID))
			return err
		}
		metrics.TxTransition(string(StateFailed))
		logger.Audit().Warn("交易确认尝试耗尽",
			slog.String("record_id", record.ID),
			slog.String("tx_identifier", record.TxIdentifier),
			slog.Int("attempts", record.Attempts),
			slog.Int("max_attempts", record.MaxAttempts),
			slog.String("error", cause.Error()),
		)
		w.emitAlert(ctx, record, cause)
		return nil
	}

	if w.requeueDelay > 0 {
		timer := time.NewTimer(w.requeueDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if w.producer == nil {
		return cause
	}
	if pubErr := w.producer.Publish(ctx, record.ID); pubErr != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, pubErr,
			fmt.Sprintf("记录 %s 重投确认队列失败", record.ID))
	}
	w.logDebug("记录已重新排队等待确认",
		slog.String("record_id", record.ID), slog.Int("attempts", record.Attempts))
	return nil
}

func (w *Watcher) logDebug(msg string, attrs ...slog.Attr) {
	if w.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		w.logger.Debug(msg, args...)
	}
}

func (w *Watcher) emitAlert(ctx context.Context, record *Record, cause error) {
	if w == nil || w.alerter == nil || record == nil {
		return
	}
	attrs := xerrors.AttributesOf(CodeSettlement)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	event := alerting.Event{
		Code:         CodeSettlement,
		Message:      message,
		Severity:     attrs.Severity,
		RecordID:     record.ID,
		TxIdentifier: record.TxIdentifier,
		Attempts:     record.Attempts,
		MaxAttempts:  record.MaxAttempts,
		OccurredAt:   time.Now(),
	}
	if err := w.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("record_id", record.ID),
		)
	}
}
