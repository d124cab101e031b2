package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"SuiChat-Agent/internal/api"
	"SuiChat-Agent/internal/chain"
	"SuiChat-Agent/internal/chain/sui"
	"SuiChat-Agent/internal/command"
	"SuiChat-Agent/internal/config"
	"SuiChat-Agent/internal/events"
	"SuiChat-Agent/internal/executor"
	"SuiChat-Agent/internal/llm"
	"SuiChat-Agent/internal/llm/openai"
	"SuiChat-Agent/internal/observability/alerting"
	"SuiChat-Agent/internal/orchestrator"
	"SuiChat-Agent/internal/planner"
	"SuiChat-Agent/internal/relay"
	"SuiChat-Agent/internal/storage"
	"SuiChat-Agent/internal/synthesizer"
	"SuiChat-Agent/pkg/logger"
)

// main 是 SuiChat 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("suichatd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SUICHAT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "suichat.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	// 消息处理登记表：进程内或 Redis 共享。
	var busOpts []events.Option
	switch cfg.Events.Registry {
	case "", "memory":
	case "redis":
		registry, err := events.NewRedisRegistry(events.RedisRegistryConfig{
			Address:   cfg.Events.Redis.Address,
			Password:  cfg.Events.Redis.Password,
			DB:        cfg.Events.Redis.DB,
			KeyPrefix: cfg.Events.Redis.KeyPrefix,
		})
		if err != nil {
			return err
		}
		defer registry.Close()
		busOpts = append(busOpts, events.WithRegistry(registry))
	default:
		return fmt.Errorf("未知的登记表驱动: %s", cfg.Events.Registry)
	}
	bus := events.NewBus(busOpts...)

	// 事件中继。
	switch cfg.Relay.Driver {
	case "", "none":
	case "rabbitmq":
		eventRelay, err := relay.NewAMQPRelay(bus, relay.AMQPConfig{
			URL:      cfg.Relay.RabbitMQ.URL,
			Exchange: cfg.Relay.RabbitMQ.Exchange,
			Durable:  cfg.Relay.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		defer eventRelay.Close()
	default:
		return fmt.Errorf("未知的事件中继驱动: %s", cfg.Relay.Driver)
	}

	// 持久化存储。
	var store storage.Store
	switch cfg.Storage.Driver {
	case "", "memory":
		memStore, err := storage.NewMemoryStore(cfg.Storage.DataDir)
		if err != nil {
			return err
		}
		store = memStore
	case "mysql":
		mysqlStore, err := storage.NewMySQLStore(ctx, storage.MySQLConfig{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
	defer store.Close()

	// Sui 链客户端。
	chainClient, err := createChainClient(cfg)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	// 补全服务客户端（可选，缺省时规划与合成走降级路径）。
	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	dispatcher := command.NewStandardDispatcher(store, chainClient)

	taskPlanner, err := createPlanner(cfg, llmClient)
	if err != nil {
		return err
	}
	exec := executor.New(bus, func(ctx context.Context, cmd command.Command, userID string) (string, error) {
		return dispatcher.Execute(ctx, cmd, userID), nil
	})
	var completions llm.Client
	if llmClient != nil {
		completions = llmClient
	}
	synth := synthesizer.New(completions)

	alerts := createAlerts(cfg)

	service := orchestrator.New(bus, store, taskPlanner, exec, synth,
		orchestrator.WithAlerts(alerts),
		orchestrator.WithHistoryRounds(cfg.Planner.HistoryRounds),
	)

	server := api.NewServer(cfg.Server.Address, bus, service, store,
		time.Duration(cfg.Server.WaitTimeoutSeconds)*time.Second)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// createChainClient 按网络定义解析出 Sui 客户端。
func createChainClient(cfg *config.Config) (chain.Client, error) {
	defs, err := chain.LoadNetworkDefinitions(cfg.Chain.Definitions)
	if err != nil {
		return nil, err
	}
	def, err := defs.Resolve(cfg.Chain.Network)
	if err != nil {
		return nil, err
	}
	return sui.NewClient(sui.Config{
		RPCURL:  def.RPCURL,
		Timeout: time.Duration(cfg.Chain.TimeoutSeconds) * time.Second,
	})
}

// createLLMClient 创建补全服务客户端。未配置 API Key 时返回 nil，
// 此时规划退回关键词分类器，合成退回原始查询结果。
func createLLMClient(cfg *config.Config) (*openai.Client, error) {
	apiKey := strings.TrimSpace(cfg.LLM.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("SUICHAT_LLM_API_KEY"))
	}
	if apiKey == "" {
		return nil, nil
	}
	return openai.NewClient(openai.Config{
		APIKey:  apiKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
}

// createPlanner 组装规划器与分类器链。
func createPlanner(cfg *config.Config, llmClient *openai.Client) (*planner.Planner, error) {
	var opts []planner.Option
	if cfg.Planner.KeywordRules != "" {
		fallback, err := planner.LoadKeywordClassifier(cfg.Planner.KeywordRules)
		if err != nil {
			return nil, err
		}
		opts = append(opts, planner.WithFallback(fallback))
	}
	var primary planner.Classifier
	if llmClient != nil {
		primary = planner.NewLLMClassifier(llmClient)
	}
	return planner.New(primary, opts...), nil
}

// createAlerts 组装告警渠道：日志兜底，可选 webhook。
func createAlerts(cfg *config.Config) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}
	return alerting.NewFanout(notifiers...)
}
