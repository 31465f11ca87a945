package tools

import (
	"context"
	"encoding/json"
	"testing"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/ledger"
	"OpenMCP-Wallet/internal/txtrack"
)

// stubClient 是测试用的最小账本客户端。
type stubClient struct {
	sends int
	votes int
}

func (s *stubClient) Address(context.Context) (string, error) { return "0xwallet", nil }
func (s *stubClient) Balance(context.Context) (string, error) { return "42.5", nil }
func (s *stubClient) SyncStatus(context.Context) (ledger.SyncStatus, error) {
	return ledger.SyncStatus{SyncedIndex: "10", HighestIndex: "10", FullySynced: true}, nil
}
func (s *stubClient) Send(context.Context, string, string) (string, error) {
	s.sends++
	return "tx-send", nil
}
func (s *stubClient) FindTransaction(context.Context, string) (bool, error) { return true, nil }
func (s *stubClient) SubmitVote(context.Context, string, bool) (string, error) {
	s.votes++
	return "tx-vote", nil
}
func (s *stubClient) FundProposal(context.Context, string, string) (string, error) {
	return "tx-fund", nil
}
func (s *stubClient) RequestPayout(context.Context, string) (string, error) {
	return "tx-payout", nil
}
func (s *stubClient) RegisterListing(context.Context, string, string) (string, error) {
	return "tx-listing", nil
}
func (s *stubClient) Close() {}

var _ ledger.Client = (*stubClient)(nil)

func newTestRegistry(t *testing.T) (*Registry, *stubClient, txtrack.Store) {
	t.Helper()
	client := &stubClient{}
	store := txtrack.NewMemoryStore()
	tracker := txtrack.NewTracker(store, txtrack.NewMemoryQueue(8), client, 3)

	registry := NewRegistry()
	if err := RegisterWalletTools(registry, client, tracker, 18); err != nil {
		t.Fatalf("register wallet tools: %v", err)
	}
	if err := RegisterGovernanceTools(registry, client, 18); err != nil {
		t.Fatalf("register governance tools: %v", err)
	}
	if err := RegisterMarketTools(registry, client); err != nil {
		t.Fatalf("register market tools: %v", err)
	}
	return registry, client, store
}

func TestDispatchUnknownTool(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	_, err := registry.Dispatch(context.Background(), "no_such_tool", nil)
	if xerrors.CodeOf(err) != CodeUnknownTool {
		t.Fatalf("expected UNKNOWN_TOOL, got %v", err)
	}
}

func TestDispatchMissingRequiredField(t *testing.T) {
	registry, client, store := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Dispatch(ctx, "wallet_send", map[string]any{"to": "0xdef"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS for missing amount, got %v", err)
	}
	if client.sends != 0 {
		t.Fatal("rejected call must not reach the ledger")
	}
	records, listErr := store.List(ctx, txtrack.ListOptions{})
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(records) != 0 {
		t.Fatalf("rejected call must not create records, got %d", len(records))
	}
}

func TestDispatchRejectsMalformedAmount(t *testing.T) {
	registry, client, _ := newTestRegistry(t)

	args := map[string]any{"to": "0xdef", "amount": "1.2.3"}
	_, err := registry.Dispatch(context.Background(), "wallet_send", args)
	if xerrors.CodeOf(err) != xerrors.CodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS for malformed amount, got %v", err)
	}
	if client.sends != 0 {
		t.Fatal("malformed amount must not be broadcast")
	}
}

func TestDispatchWalletSend(t *testing.T) {
	registry, client, _ := newTestRegistry(t)

	result, err := registry.Dispatch(context.Background(), "wallet_send",
		map[string]any{"to": "0xdef", "amount": "100.5"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if client.sends != 1 {
		t.Fatalf("expected one broadcast, got %d", client.sends)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("unexpected content shape: %+v", result.Content)
	}

	var record txtrack.Record
	if err := json.Unmarshal([]byte(result.Content[0].Text), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Amount != "100.5" || record.State != txtrack.StateSent {
		t.Fatalf("unexpected record payload: %+v", record)
	}
}

func TestDispatchBalanceKeepsDecimalString(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	result, err := registry.Dispatch(context.Background(), "wallet_balance", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	var payload BalanceResult
	if err := json.Unmarshal([]byte(result.Content[0].Text), &payload); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if payload.Balance != "42.5" {
		t.Fatalf("balance must stay a decimal string, got %q", payload.Balance)
	}
}

func TestDispatchVoteTypeValidation(t *testing.T) {
	registry, client, _ := newTestRegistry(t)

	_, err := registry.Dispatch(context.Background(), "dao_vote",
		map[string]any{"proposal_id": "p1", "approve": "yes"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS for non-bool approve, got %v", err)
	}
	if client.votes != 0 {
		t.Fatal("invalid vote must not reach the ledger")
	}

	result, err := registry.Dispatch(context.Background(), "dao_vote",
		map[string]any{"proposal_id": "p1", "approve": true})
	if err != nil {
		t.Fatalf("dispatch valid vote: %v", err)
	}
	var payload SubmissionResult
	if err := json.Unmarshal([]byte(result.Content[0].Text), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.TxIdentifier != "tx-vote" {
		t.Fatalf("unexpected identifier: %s", payload.TxIdentifier)
	}
}

func TestDispatchListStateFilterValidation(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	_, err := registry.Dispatch(context.Background(), "wallet_list_transactions",
		map[string]any{"state": "BOGUS"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidParams {
		t.Fatalf("expected INVALID_PARAMS for bogus state, got %v", err)
	}
}

func TestRegistryListStableOrder(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	listed := registry.List()
	if len(listed) != 11 {
		t.Fatalf("expected 11 tools, got %d", len(listed))
	}
	if listed[0].Name != "wallet_status" {
		t.Fatalf("expected registration order preserved, got %s first", listed[0].Name)
	}
	for _, tool := range listed {
		if tool.InputSchema == nil {
			t.Fatalf("tool %s missing input schema", tool.Name)
		}
	}
}
