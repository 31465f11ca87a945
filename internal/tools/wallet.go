package tools

import (
	"context"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/ledger"
	"OpenMCP-Wallet/internal/txtrack"
)

// WalletStatus 是 wallet_status 的应答。
type WalletStatus struct {
	Address string            `json:"address"`
	Sync    ledger.SyncStatus `json:"sync_status"`
}

// AddressResult 是 wallet_address 的应答。
type AddressResult struct {
	Address string `json:"address"`
}

// BalanceResult 是 wallet_balance 的应答。余额为十进制字符串。
type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// ListTransactionsResult 是 wallet_list_transactions 的应答。
type ListTransactionsResult struct {
	Transactions []*txtrack.Record `json:"transactions"`
}

// RegisterWalletTools 注册钱包工具。decimals 用于校验金额字符串的
// 小数位数，超出后端精度的金额在分发层即被拒绝。
func RegisterWalletTools(reg *Registry, client ledger.Client, tracker *txtrack.Tracker, decimals int) error {
	if decimals <= 0 {
		decimals = 18
	}

	defs := []Definition{
		{
			Name:        "wallet_status",
			Description: "返回钱包地址与账本同步进度。",
			InputSchema: objectSchema(nil, nil),
			Handler: func(ctx context.Context, _ map[string]any) (any, error) {
				address, err := client.Address(ctx)
				if err != nil {
					return nil, err
				}
				sync, err := client.SyncStatus(ctx)
				if err != nil {
					return nil, err
				}
				return &WalletStatus{Address: address, Sync: sync}, nil
			},
		},
		{
			Name:        "wallet_address",
			Description: "返回钱包地址。",
			InputSchema: objectSchema(nil, nil),
			Handler: func(ctx context.Context, _ map[string]any) (any, error) {
				address, err := client.Address(ctx)
				if err != nil {
					return nil, err
				}
				return &AddressResult{Address: address}, nil
			},
		},
		{
			Name:        "wallet_balance",
			Description: "返回钱包余额，金额为十进制字符串。",
			InputSchema: objectSchema(nil, nil),
			Handler: func(ctx context.Context, _ map[string]any) (any, error) {
				address, err := client.Address(ctx)
				if err != nil {
					return nil, err
				}
				balance, err := client.Balance(ctx)
				if err != nil {
					return nil, err
				}
				return &BalanceResult{Address: address, Balance: balance}, nil
			},
		},
		{
			Name:        "wallet_send",
			Description: "发起一笔转账并登记本地交易记录。可携带幂等键避免重复广播。",
			InputSchema: objectSchema(map[string]any{
				"to":              stringProp("收款地址"),
				"amount":          stringProp("转账金额，十进制字符串"),
				"idempotency_key": stringProp("可选的幂等键，重复请求返回首次的记录"),
			}, []string{"to", "amount"}),
			Required: []string{"to", "amount"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				to, err := stringArg(args, "to")
				if err != nil {
					return nil, err
				}
				amount, err := stringArg(args, "amount")
				if err != nil {
					return nil, err
				}
				if _, err := ledger.ParseAmount(amount, decimals); err != nil {
					return nil, err
				}
				idemKey, err := stringArg(args, "idempotency_key")
				if err != nil {
					return nil, err
				}
				return tracker.SendFunds(ctx, to, amount, idemKey)
			},
		},
		{
			Name:        "wallet_verify_receipt",
			Description: "按链上标识核验交易是否落账，附带同步进度。",
			InputSchema: objectSchema(map[string]any{
				"identifier": stringProp("链上交易标识"),
			}, []string{"identifier"}),
			Required: []string{"identifier"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				identifier, err := stringArg(args, "identifier")
				if err != nil {
					return nil, err
				}
				return tracker.VerifyByIdentifier(ctx, identifier)
			},
		},
		{
			Name:        "wallet_get_transaction",
			Description: "按本地记录 ID 查询交易状态。",
			InputSchema: objectSchema(map[string]any{
				"id": stringProp("本地交易记录 ID"),
			}, []string{"id"}),
			Required: []string{"id"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				id, err := stringArg(args, "id")
				if err != nil {
					return nil, err
				}
				return tracker.Get(ctx, id)
			},
		},
		{
			Name:        "wallet_list_transactions",
			Description: "按创建时间升序列出本地交易记录，可按状态过滤。",
			InputSchema: objectSchema(map[string]any{
				"state": stringProp("可选的状态过滤: INITIATED/SENT/COMPLETED/FAILED"),
			}, nil),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				state, err := stringArg(args, "state")
				if err != nil {
					return nil, err
				}
				var opts txtrack.ListOptions
				if state != "" {
					if !txtrack.IsValidState(txtrack.State(state)) {
						return nil, xerrors.New(xerrors.CodeInvalidParams, "无效的状态过滤值: "+state)
					}
					opts.States = []txtrack.State{txtrack.State(state)}
				}
				records, err := tracker.List(ctx, opts)
				if err != nil {
					return nil, err
				}
				return &ListTransactionsResult{Transactions: records}, nil
			},
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}
