package tools

import (
	"context"

	"OpenMCP-Wallet/internal/ledger"
)

// RegisterMarketTools 注册交易市场工具。
func RegisterMarketTools(reg *Registry, client ledger.Client) error {
	return reg.Register(Definition{
		Name:        "market_register_listing",
		Description: "在交易市场登记一个服务条目。",
		InputSchema: objectSchema(map[string]any{
			"name":     stringProp("服务名称"),
			"endpoint": stringProp("服务访问端点"),
		}, []string{"name", "endpoint"}),
		Required: []string{"name", "endpoint"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			name, err := stringArg(args, "name")
			if err != nil {
				return nil, err
			}
			endpoint, err := stringArg(args, "endpoint")
			if err != nil {
				return nil, err
			}
			identifier, err := client.RegisterListing(ctx, name, endpoint)
			if err != nil {
				return nil, err
			}
			return &SubmissionResult{TxIdentifier: identifier}, nil
		},
	})
}
