package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	xerrors "OpenMCP-Wallet/internal/errors"
)

// Config 描述钱包网关在启动阶段需要加载的全部配置。
// 字段可以来自 YAML 文件，也可以被 OPENMCP_WALLET_ 前缀的环境变量覆盖。
type Config struct {
	Server       ServerConfig   `mapstructure:"server"`
	Ledger       LedgerConfig   `mapstructure:"ledger"`
	TxStore      TxStoreConfig  `mapstructure:"tx_store"`
	ConfirmQueue QueueConfig    `mapstructure:"confirm_queue"`
	Metrics      MetricsConfig  `mapstructure:"metrics"`
	Alerting     AlertingConfig `mapstructure:"alerting"`
	Log          LogConfig      `mapstructure:"log"`
}

// ServerConfig 控制网关服务的监听参数与鉴权。
type ServerConfig struct {
	Address        string  `mapstructure:"address"`
	AuthSecret     string  `mapstructure:"auth_secret"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	EnableStdio    bool    `mapstructure:"enable_stdio"`
}

// LedgerConfig 包含访问链上节点与签名所需的信息。
type LedgerConfig struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	WSURL               string        `mapstructure:"ws_url"`
	ChainID             int64         `mapstructure:"chain_id"`
	PrivateKeyHex       string        `mapstructure:"private_key_hex"`
	Decimals            int           `mapstructure:"decimals"`
	SendTimeout         time.Duration `mapstructure:"send_timeout"`
	MaxRecoveryAttempts int           `mapstructure:"max_recovery_attempts"`
	GovernanceContract  string        `mapstructure:"governance_contract"`
	MarketplaceContract string        `mapstructure:"marketplace_contract"`
}

// TxStoreConfig 选择交易记录的持久化后端。
type TxStoreConfig struct {
	// Driver 可选 memory、sqlite、mysql。
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// QueueConfig 选择结算确认队列的实现。
type QueueConfig struct {
	// Driver 可选 memory、redis、rabbitmq。
	Driver       string         `mapstructure:"driver"`
	Workers      int            `mapstructure:"workers"`
	MaxAttempts  int            `mapstructure:"max_attempts"`
	RequeueDelay time.Duration  `mapstructure:"requeue_delay"`
	Redis        RedisConfig    `mapstructure:"redis"`
	RabbitMQ     RabbitMQConfig `mapstructure:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Queue    string `mapstructure:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Queue    string `mapstructure:"queue"`
	Prefetch int    `mapstructure:"prefetch"`
	Durable  bool   `mapstructure:"durable"`
}

// MetricsConfig 控制独立的指标服务。
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// AlertingConfig 配置结算失败告警的外发渠道，留空即关闭对应渠道。
type AlertingConfig struct {
	DingTalkWebhook string `mapstructure:"dingtalk_webhook"`
	SlackWebhook    string `mapstructure:"slack_webhook"`
	SlackChannel    string `mapstructure:"slack_channel"`
}

// LogConfig 控制日志与审计输出。
type LogConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	OutputPaths []string    `mapstructure:"output_paths"`
	Audit       AuditConfig `mapstructure:"audit"`
}

// AuditConfig 控制审计日志落盘。
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load 解析配置。path 为空时只读取环境变量与默认值。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPENMCP_WALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取配置文件失败")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析配置失败")
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Ledger.Decimals <= 0 {
		c.Ledger.Decimals = 18
	}
	if c.Ledger.SendTimeout <= 0 {
		c.Ledger.SendTimeout = 30 * time.Second
	}
	if c.Ledger.MaxRecoveryAttempts <= 0 {
		c.Ledger.MaxRecoveryAttempts = 5
	}
	if c.TxStore.Driver == "" {
		c.TxStore.Driver = "sqlite"
	}
	if c.TxStore.Driver == "sqlite" && c.TxStore.DSN == "" {
		c.TxStore.DSN = "walletmcp.db"
	}
	if c.ConfirmQueue.Driver == "" {
		c.ConfirmQueue.Driver = "memory"
	}
	if c.ConfirmQueue.Workers <= 0 {
		c.ConfirmQueue.Workers = 2
	}
	if c.ConfirmQueue.MaxAttempts <= 0 {
		c.ConfirmQueue.MaxAttempts = 5
	}
	if c.ConfirmQueue.RequeueDelay <= 0 {
		c.ConfirmQueue.RequeueDelay = 2 * time.Second
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
