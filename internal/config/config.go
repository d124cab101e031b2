package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了服务启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Events   EventsConfig   `json:"events"`
	Relay    RelayConfig    `json:"relay"`
	LLM      LLMConfig      `json:"llm"`
	Chain    ChainConfig    `json:"chain"`
	Planner  PlannerConfig  `json:"planner"`
	Alerting AlertingConfig `json:"alerting"`
	Log      LogConfig      `json:"log"`
}

// ServerConfig 控制 API 服务的监听地址与等待超时。
type ServerConfig struct {
	Address            string `json:"address"`
	WaitTimeoutSeconds int    `json:"wait_timeout_seconds"`
}

// StorageConfig 描述消息/档案/钱包存储的后端。
type StorageConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	DataDir                string `json:"data_dir"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// EventsConfig 选择消息处理登记表的实现。
type EventsConfig struct {
	Registry string      `json:"registry"`
	Redis    RedisConfig `json:"redis"`
}

// RedisConfig 描述 Redis 登记表的连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// RelayConfig 控制事件中继。
type RelayConfig struct {
	Driver   string         `json:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述事件中继的 RabbitMQ 参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	Durable  bool   `json:"durable"`
}

// LLMConfig 用于配置补全服务的调用方式。
type LLMConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ChainConfig 指定 Sui 网络定义文件与目标网络。
type ChainConfig struct {
	Definitions    string `json:"definitions"`
	Network        string `json:"network"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// PlannerConfig 控制规划器的上下文与关键词规则。
type PlannerConfig struct {
	HistoryRounds int    `json:"history_rounds"`
	KeywordRules  string `json:"keyword_rules"`
}

// AlertingConfig 控制告警渠道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// LogConfig 控制日志行为。
type LogConfig struct {
	Level   string         `json:"level"`
	Format  string         `json:"format"`
	Outputs []string       `json:"outputs"`
	Audit   AuditLogConfig `json:"audit"`
}

// AuditLogConfig 控制审计日志输出。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.WaitTimeoutSeconds <= 0 {
		c.Server.WaitTimeoutSeconds = 60
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Storage.DataDir) {
		c.Storage.DataDir = filepath.Join(baseDir, c.Storage.DataDir)
	}

	if c.Events.Registry == "" {
		c.Events.Registry = "memory"
	}
	if c.Relay.Driver == "" {
		c.Relay.Driver = "none"
	}

	if c.Chain.Definitions == "" {
		c.Chain.Definitions = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Chain.Definitions) {
		c.Chain.Definitions = filepath.Join(baseDir, c.Chain.Definitions)
	}
	if c.Chain.Network == "" {
		c.Chain.Network = "testnet"
	}

	if c.Planner.HistoryRounds <= 0 {
		c.Planner.HistoryRounds = 3
	}
	if c.Planner.KeywordRules != "" && !filepath.IsAbs(c.Planner.KeywordRules) {
		c.Planner.KeywordRules = filepath.Join(baseDir, c.Planner.KeywordRules)
	}
}
