package ledger

import (
	"context"
	"sync"
)

// Serialized 为共享的钱包客户端施加单写者约束：同一时刻至多一个
// 变更钱包状态的调用在途，只读调用不排队。每个运行中的代理进程
// 只持有一个钱包实例，所有会话都经由它访问后端。
type Serialized struct {
	inner   Client
	writeMu sync.Mutex
}

// NewSerialized 包装底层客户端。
func NewSerialized(inner Client) *Serialized {
	return &Serialized{inner: inner}
}

// Address 只读，直接透传。
func (s *Serialized) Address(ctx context.Context) (string, error) {
	return s.inner.Address(ctx)
}

// Balance 只读，直接透传。
func (s *Serialized) Balance(ctx context.Context) (string, error) {
	return s.inner.Balance(ctx)
}

// SyncStatus 只读，直接透传。
func (s *Serialized) SyncStatus(ctx context.Context) (SyncStatus, error) {
	return s.inner.SyncStatus(ctx)
}

// FindTransaction 只读，直接透传。
func (s *Serialized) FindTransaction(ctx context.Context, identifier string) (bool, error) {
	return s.inner.FindTransaction(ctx, identifier)
}

// Send 串行化后转发。
func (s *Serialized) Send(ctx context.Context, to, amount string) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.inner.Send(ctx, to, amount)
}

// SubmitVote 串行化后转发。
func (s *Serialized) SubmitVote(ctx context.Context, proposalID string, approve bool) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.inner.SubmitVote(ctx, proposalID, approve)
}

// FundProposal 串行化后转发。
func (s *Serialized) FundProposal(ctx context.Context, proposalID, amount string) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.inner.FundProposal(ctx, proposalID, amount)
}

// RequestPayout 串行化后转发。
func (s *Serialized) RequestPayout(ctx context.Context, proposalID string) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.inner.RequestPayout(ctx, proposalID)
}

// RegisterListing 串行化后转发。
func (s *Serialized) RegisterListing(ctx context.Context, name, endpoint string) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.inner.RegisterListing(ctx, name, endpoint)
}

// Close 关闭底层客户端。
func (s *Serialized) Close() {
	s.inner.Close()
}

var _ Client = (*Serialized)(nil)
