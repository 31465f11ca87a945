package ethereum

import (
	"context"
	"crypto/ecdsa"
	stdErrors "errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/ledger"
)

// 治理与市场合约的调用入口。网关只负责把参数编码进交易，
// 合约的执行语义不在本组件范围内。
const (
	governanceABI = `[
		{"name":"vote","type":"function","inputs":[{"name":"proposalId","type":"string"},{"name":"approve","type":"bool"}]},
		{"name":"fund","type":"function","inputs":[{"name":"proposalId","type":"string"},{"name":"amount","type":"uint256"}]},
		{"name":"payout","type":"function","inputs":[{"name":"proposalId","type":"string"}]}
	]`
	marketplaceABI = `[
		{"name":"register","type":"function","inputs":[{"name":"name","type":"string"},{"name":"endpoint","type":"string"}]}
	]`
)

// Config describes how to construct an EVM compatible wallet client.
type Config struct {
	RPCURL              string
	WSURL               string
	ChainID             int64
	PrivateKeyHex       string
	Decimals            int
	SendTimeout         time.Duration
	MaxRecoveryAttempts int
	GovernanceContract  string
	MarketplaceContract string
}

// Client 基于 go-ethereum 实现 ledger.Client。
// 写入操作依赖外层的 ledger.Serialized 做单写者串行化，本类型内部
// 只用互斥锁保护恢复计数等本地状态。
type Client struct {
	rpcClient *gethrpc.Client
	eth       *ethclient.Client

	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	decimals int

	sendTimeout time.Duration
	govAddr     common.Address
	marketAddr  common.Address
	govABI      abi.ABI
	marketABI   abi.ABI

	mu               sync.Mutex
	recoveryAttempts int
	maxRecovery      int
}

// NewClient dials the configured RPC endpoint and prepares the signer.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "未配置账本节点 RPC 地址")
	}
	keyHex := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKeyHex), "0x")
	if keyHex == "" {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "未配置钱包私钥")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidParams, err, "解析钱包私钥失败")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接账本节点失败")
	}
	eth := ethclient.NewClient(rpcClient)

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "获取链 ID 失败")
		}
	}

	govABI, err := abi.JSON(strings.NewReader(governanceABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("解析治理 ABI 失败: %w", err)
	}
	marketABI, err := abi.JSON(strings.NewReader(marketplaceABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("解析市场 ABI 失败: %w", err)
	}

	decimals := cfg.Decimals
	if decimals <= 0 {
		decimals = 18
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	maxRecovery := cfg.MaxRecoveryAttempts
	if maxRecovery <= 0 {
		maxRecovery = 5
	}

	return &Client{
		rpcClient:   rpcClient,
		eth:         eth,
		key:         key,
		address:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:     chainID,
		decimals:    decimals,
		sendTimeout: sendTimeout,
		govAddr:     common.HexToAddress(cfg.GovernanceContract),
		marketAddr:  common.HexToAddress(cfg.MarketplaceContract),
		govABI:      govABI,
		marketABI:   marketABI,
		maxRecovery: maxRecovery,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.eth != nil {
		c.eth.Close()
	}
}

// Address 返回钱包地址。
func (c *Client) Address(_ context.Context) (string, error) {
	return c.address.Hex(), nil
}

// Balance 返回余额的十进制字符串，全程 big.Int。
func (c *Client) Balance(ctx context.Context) (string, error) {
	balance, err := c.eth.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "查询余额失败")
	}
	return ledger.FormatAmount(balance, c.decimals), nil
}

// SyncStatus 返回节点同步进度。连续失败会进入 recovering 状态并累加
// 尝试计数，成功一次后清零。
func (c *Client) SyncStatus(ctx context.Context) (ledger.SyncStatus, error) {
	progress, err := c.eth.SyncProgress(ctx)
	if err != nil {
		c.mu.Lock()
		c.recoveryAttempts++
		attempts := c.recoveryAttempts
		c.mu.Unlock()
		if attempts > c.maxRecovery {
			return ledger.SyncStatus{}, xerrors.Wrap(xerrors.CodeUnknown, err, "查询同步进度失败")
		}
		return ledger.SyncStatus{
			Recovering:          true,
			RecoveryAttempts:    attempts,
			MaxRecoveryAttempts: c.maxRecovery,
		}, nil
	}
	c.mu.Lock()
	c.recoveryAttempts = 0
	c.mu.Unlock()

	if progress == nil {
		head, err := c.eth.BlockNumber(ctx)
		if err != nil {
			return ledger.SyncStatus{}, xerrors.Wrap(xerrors.CodeUnknown, err, "查询最新区块失败")
		}
		index := new(big.Int).SetUint64(head).String()
		return ledger.SyncStatus{
			SyncedIndex:  index,
			HighestIndex: index,
			FullySynced:  true,
		}, nil
	}
	return ledger.SyncStatus{
		SyncedIndex:  new(big.Int).SetUint64(progress.CurrentBlock).String(),
		HighestIndex: new(big.Int).SetUint64(progress.HighestBlock).String(),
		FullySynced:  false,
	}, nil
}

// Send 广播一笔转账。广播前先以 big.Int 比较余额，余额不足直接拒绝。
func (c *Client) Send(ctx context.Context, to, amount string) (string, error) {
	value, err := ledger.ParseAmount(amount, c.decimals)
	if err != nil {
		return "", err
	}
	toAddr := common.HexToAddress(to)
	return c.submit(ctx, &toAddr, value, nil)
}

// FindTransaction 按交易哈希查询账本。节点明确报告不存在时返回
// (false, nil)，查询本身失败时返回校验错误。
func (c *Client) FindTransaction(ctx context.Context, identifier string) (bool, error) {
	_, _, err := c.eth.TransactionByHash(ctx, common.HexToHash(identifier))
	if err == nil {
		return true, nil
	}
	if stdErrors.Is(err, gethcore.NotFound) {
		return false, nil
	}
	return false, xerrors.Wrap(ledger.CodeIdentifierVerification, err, "查询交易失败")
}

// SubmitVote 提交治理投票。
func (c *Client) SubmitVote(ctx context.Context, proposalID string, approve bool) (string, error) {
	data, err := c.govABI.Pack("vote", proposalID, approve)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidParams, err, "编码投票参数失败")
	}
	return c.submit(ctx, &c.govAddr, new(big.Int), data)
}

// FundProposal 为提案注资。
func (c *Client) FundProposal(ctx context.Context, proposalID, amount string) (string, error) {
	value, err := ledger.ParseAmount(amount, c.decimals)
	if err != nil {
		return "", err
	}
	data, err := c.govABI.Pack("fund", proposalID, value)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidParams, err, "编码注资参数失败")
	}
	return c.submit(ctx, &c.govAddr, value, data)
}

// RequestPayout 申请提案拨款。
func (c *Client) RequestPayout(ctx context.Context, proposalID string) (string, error) {
	data, err := c.govABI.Pack("payout", proposalID)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidParams, err, "编码拨款参数失败")
	}
	return c.submit(ctx, &c.govAddr, new(big.Int), data)
}

// RegisterListing 在市场合约登记服务条目。
func (c *Client) RegisterListing(ctx context.Context, name, endpoint string) (string, error) {
	data, err := c.marketABI.Pack("register", name, endpoint)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidParams, err, "编码登记参数失败")
	}
	return c.submit(ctx, &c.marketAddr, new(big.Int), data)
}

// submit 组装、签名并广播一笔交易。调用在 sendTimeout 内有界完成，
// 超时会以 TIMEOUT 错误码上抛，由调用方把本地记录置为 FAILED。
func (c *Client) submit(ctx context.Context, to *common.Address, value *big.Int, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	if err := c.ensureReady(ctx); err != nil {
		return "", err
	}

	balance, err := c.eth.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return "", c.submitError(ctx, err, "查询余额失败")
	}
	if balance.Cmp(value) < 0 {
		return "", ledger.ErrInsufficientFunds
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", c.submitError(ctx, err, "查询 nonce 失败")
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", c.submitError(ctx, err, "查询 gas 价格失败")
	}
	gasLimit, err := c.eth.EstimateGas(ctx, gethcore.CallMsg{
		From:  c.address,
		To:    to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", c.submitError(ctx, err, "估算 gas 失败")
	}

	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", xerrors.Wrap(ledger.CodeSubmissionFailed, err, "签名交易失败")
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", c.submitError(ctx, err, "广播交易失败")
	}
	return signed.Hash().Hex(), nil
}

// ensureReady 在变更操作前确认节点已经完全同步。
func (c *Client) ensureReady(ctx context.Context) error {
	status, err := c.SyncStatus(ctx)
	if err != nil {
		return xerrors.Wrap(ledger.CodeWalletNotReady, err, "无法确认后端状态")
	}
	if !status.FullySynced || status.Recovering {
		return ledger.ErrWalletNotReady
	}
	return nil
}

func (c *Client) submitError(ctx context.Context, err error, message string) error {
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, message)
	}
	return xerrors.Wrap(ledger.CodeSubmissionFailed, err, message)
}

var _ ledger.Client = (*Client)(nil)
