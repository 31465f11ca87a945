package txtrack

import (
	"context"
	"sync"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
)

// 缓冲满时重试入队的间隔。
const publishRetryInterval = 5 * time.Millisecond

// MemoryQueue 以带缓冲 channel 承载确认投递，适合单进程部署与测试。
// 所有向 channel 的发送都在锁内完成，Publish 与 Close 并发时不会
// 出现向已关闭 channel 发送的情况。
type MemoryQueue struct {
	mu     sync.Mutex
	ch     chan string
	closed bool
}

// NewMemoryQueue 创建一个内存确认队列，size 是缓冲的投递数上限。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// tryPublish 在锁内尝试一次非阻塞投递。
func (q *MemoryQueue) tryPublish(recordID string) (ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, xerrors.New(xerrors.CodeQueueFailure, "确认队列已关闭")
	}
	select {
	case q.ch <- recordID:
		return true, nil
	default:
		return false, nil
	}
}

// Publish 将记录 ID 投递到队列。缓冲满时按固定间隔重试，直到入队
// 成功、队列关闭或 ctx 取消。
func (q *MemoryQueue) Publish(ctx context.Context, recordID string) error {
	ok, err := q.tryPublish(recordID)
	if err != nil || ok {
		return err
	}

	ticker := time.NewTicker(publishRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ok, err := q.tryPublish(recordID)
			if err != nil || ok {
				return err
			}
		}
	}
}

// Depth 返回当前缓冲中的投递数。
func (q *MemoryQueue) Depth() int {
	return len(q.ch)
}

// Consume 启动 workerCount 个工作协程消费队列，阻塞到 ctx 取消。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler ConfirmHandler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case recordID, ok := <-q.ch:
					if !ok {
						return
					}
					// 处理失败由结算流程自行重投，这里不回队。
					_ = handler(ctx, recordID)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭内存队列，之后的 Publish 返回 QUEUE_FAILURE。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
