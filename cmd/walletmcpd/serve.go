package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"OpenMCP-Wallet/internal/config"
	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/gateway"
	"OpenMCP-Wallet/internal/ledger"
	"OpenMCP-Wallet/internal/ledger/ethereum"
	"OpenMCP-Wallet/internal/observability/alerting"
	"OpenMCP-Wallet/internal/observability/metrics"
	"OpenMCP-Wallet/internal/session"
	"OpenMCP-Wallet/internal/tools"
	"OpenMCP-Wallet/internal/txtrack"
	"OpenMCP-Wallet/pkg/logger"
)

var stdioMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动钱包网关",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&stdioMode, "stdio", false, "只启用 stdio 传输，供本地进程直连")
}

func runServe(ctx context.Context) error {
	path := configPath
	if path == "" {
		path = os.Getenv("OPENMCP_WALLET_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	queue, err := buildQueue(cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	ethClient, err := ethereum.NewClient(ctx, ethereum.Config{
		RPCURL:              cfg.Ledger.RPCURL,
		WSURL:               cfg.Ledger.WSURL,
		ChainID:             cfg.Ledger.ChainID,
		PrivateKeyHex:       cfg.Ledger.PrivateKeyHex,
		Decimals:            cfg.Ledger.Decimals,
		SendTimeout:         cfg.Ledger.SendTimeout,
		MaxRecoveryAttempts: cfg.Ledger.MaxRecoveryAttempts,
		GovernanceContract:  cfg.Ledger.GovernanceContract,
		MarketplaceContract: cfg.Ledger.MarketplaceContract,
	})
	if err != nil {
		_ = store.Close()
		_ = queue.Close()
		return err
	}
	// 所有状态变更操作经过单写者串行化。
	client := ledger.NewSerialized(ethClient)
	defer client.Close()

	tracker := txtrack.NewTracker(store, queue, client, cfg.ConfirmQueue.MaxAttempts)
	defer func() { _ = tracker.Close() }()

	watcherOpts := []txtrack.WatcherOption{
		txtrack.WithWorkerCount(cfg.ConfirmQueue.Workers),
		txtrack.WithRequeueDelay(cfg.ConfirmQueue.RequeueDelay),
	}
	if alerter := buildAlerter(cfg.Alerting); alerter != nil {
		watcherOpts = append(watcherOpts, txtrack.WithAlertDispatcher(alerter))
	}
	watcher := txtrack.NewWatcher(store, queue, queue, client, watcherOpts...)
	go func() {
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			logger.L().Error("结算核对循环退出", slog.Any("error", err))
		}
	}()

	registry := tools.NewRegistry()
	if err := tools.RegisterWalletTools(registry, client, tracker, cfg.Ledger.Decimals); err != nil {
		return err
	}
	if err := tools.RegisterGovernanceTools(registry, client, cfg.Ledger.Decimals); err != nil {
		return err
	}
	if err := tools.RegisterMarketTools(registry, client); err != nil {
		return err
	}

	sessions := session.NewRegistry()
	defer sessions.CloseAll()

	dispatcher := gateway.NewDispatcher(registry, gateway.ServerInfo{
		Name:    "openmcp-wallet",
		Version: version,
	})

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && ctx.Err() == nil {
				logger.L().Error("指标服务退出", slog.Any("error", err))
			}
		}()
	}

	if stdioMode || cfg.Server.EnableStdio {
		stdio := gateway.NewStdioServer(dispatcher, sessions, os.Stdin, os.Stdout)
		if stdioMode {
			logger.L().Info("以 stdio 模式启动")
			if err := stdio.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		}
		go func() {
			if err := stdio.Run(ctx); err != nil && ctx.Err() == nil {
				logger.L().Error("stdio 传输退出", slog.Any("error", err))
			}
		}()
	}

	auth := gateway.NewAuthenticator(cfg.Server.AuthSecret)
	limiter := gateway.NewSessionLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	server := gateway.NewServer(cfg.Server.Address, auth, sessions, dispatcher,
		gateway.WithSessionLimiter(limiter),
	)

	logger.L().Info("钱包网关启动",
		slog.String("address", cfg.Server.Address),
		slog.Bool("auth_enabled", auth.Enabled()),
		slog.String("tx_store", cfg.TxStore.Driver),
		slog.String("confirm_queue", cfg.ConfirmQueue.Driver),
	)
	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func buildStore(cfg *config.Config) (txtrack.Store, error) {
	switch cfg.TxStore.Driver {
	case "", "memory":
		return txtrack.NewMemoryStore(), nil
	case "sqlite":
		return txtrack.NewSQLiteStore(cfg.TxStore.DSN)
	case "mysql":
		return txtrack.NewMySQLStore(cfg.TxStore.DSN)
	default:
		return nil, xerrors.New(xerrors.CodeInitializationFailure,
			"不支持的交易存储驱动: "+cfg.TxStore.Driver)
	}
}

func buildQueue(cfg *config.Config) (txtrack.Queue, error) {
	switch cfg.ConfirmQueue.Driver {
	case "", "memory":
		return txtrack.NewMemoryQueue(1024), nil
	case "redis":
		return txtrack.NewRedisQueue(txtrack.RedisQueueConfig{
			Address:  cfg.ConfirmQueue.Redis.Address,
			Password: cfg.ConfirmQueue.Redis.Password,
			DB:       cfg.ConfirmQueue.Redis.DB,
			Queue:    cfg.ConfirmQueue.Redis.Queue,
		})
	case "rabbitmq":
		return txtrack.NewRabbitMQQueue(txtrack.RabbitMQConfig{
			URL:      cfg.ConfirmQueue.RabbitMQ.URL,
			Queue:    cfg.ConfirmQueue.RabbitMQ.Queue,
			Prefetch: cfg.ConfirmQueue.RabbitMQ.Prefetch,
			Durable:  cfg.ConfirmQueue.RabbitMQ.Durable,
		})
	default:
		return nil, xerrors.New(xerrors.CodeInitializationFailure,
			"不支持的确认队列驱动: "+cfg.ConfirmQueue.Driver)
	}
}

func buildAlerter(cfg config.AlertingConfig) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.DingTalkWebhook != "" {
		notifiers = append(notifiers, &alerting.DingTalkNotifier{
			Sender: alerting.NewDingTalkWebhook(cfg.DingTalkWebhook),
		})
	}
	if cfg.SlackWebhook != "" && cfg.SlackChannel != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    alerting.NewSlackWebhook(cfg.SlackWebhook),
			ChannelID: cfg.SlackChannel,
		})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}
