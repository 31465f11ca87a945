package tools

import (
	"context"

	"OpenMCP-Wallet/internal/ledger"
)

// SubmissionResult 是链上写操作的统一应答。
type SubmissionResult struct {
	TxIdentifier string `json:"tx_identifier"`
}

// RegisterGovernanceTools 注册治理相关工具。
func RegisterGovernanceTools(reg *Registry, client ledger.Client, decimals int) error {
	if decimals <= 0 {
		decimals = 18
	}

	defs := []Definition{
		{
			Name:        "dao_vote",
			Description: "对治理提案投票。",
			InputSchema: objectSchema(map[string]any{
				"proposal_id": stringProp("提案 ID"),
				"approve":     boolProp("是否赞成"),
			}, []string{"proposal_id", "approve"}),
			Required: []string{"proposal_id", "approve"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				proposalID, err := stringArg(args, "proposal_id")
				if err != nil {
					return nil, err
				}
				approve, err := boolArg(args, "approve")
				if err != nil {
					return nil, err
				}
				identifier, err := client.SubmitVote(ctx, proposalID, approve)
				if err != nil {
					return nil, err
				}
				return &SubmissionResult{TxIdentifier: identifier}, nil
			},
		},
		{
			Name:        "dao_fund_proposal",
			Description: "为治理提案注资，金额为十进制字符串。",
			InputSchema: objectSchema(map[string]any{
				"proposal_id": stringProp("提案 ID"),
				"amount":      stringProp("注资金额，十进制字符串"),
			}, []string{"proposal_id", "amount"}),
			Required: []string{"proposal_id", "amount"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				proposalID, err := stringArg(args, "proposal_id")
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
				identifier, err := client.FundProposal(ctx, proposalID, amount)
				if err != nil {
					return nil, err
				}
				return &SubmissionResult{TxIdentifier: identifier}, nil
			},
		},
		{
			Name:        "dao_request_payout",
			Description: "申请提案拨款。",
			InputSchema: objectSchema(map[string]any{
				"proposal_id": stringProp("提案 ID"),
			}, []string{"proposal_id"}),
			Required: []string{"proposal_id"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				proposalID, err := stringArg(args, "proposal_id")
				if err != nil {
					return nil, err
				}
				identifier, err := client.RequestPayout(ctx, proposalID)
				if err != nil {
					return nil, err
				}
				return &SubmissionResult{TxIdentifier: identifier}, nil
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
