package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"SuiChat-Agent/pkg/logger"
)

// RedisRegistryConfig 描述共享登记表的连接参数。
type RedisRegistryConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisRegistry 把处理登记放到 Redis 上，使多个服务实例共享同一份
// 准入状态。活跃登记通过 SET NX 抢占，完成通过 pub/sub 唤醒等待方，
// 保留窗口由 key 的 TTL 实现。
type RedisRegistry struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

// NewRedisRegistry 创建共享登记表实例。
func NewRedisRegistry(cfg RedisRegistryConfig) (*RedisRegistry, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "suichat:processing"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisRegistry{
		client: client,
		prefix: prefix,
		log:    logger.Named("redis-registry"),
	}, nil
}

func (r *RedisRegistry) activeKey(key Key) string {
	return fmt.Sprintf("%s:%s:%s:active", r.prefix, key.UserID, key.MessageID)
}

func (r *RedisRegistry) doneKey(key Key) string {
	return fmt.Sprintf("%s:%s:%s:done", r.prefix, key.UserID, key.MessageID)
}

func (r *RedisRegistry) channel(key Key) string {
	return fmt.Sprintf("%s:%s:%s:signal", r.prefix, key.UserID, key.MessageID)
}

// Start 实现 Registry。SET NX 保证同一 key 的并发抢占只有一个成功。
func (r *RedisRegistry) Start(ctx context.Context, key Key, processor string) (bool, error) {
	admitted, err := r.client.SetNX(ctx, r.activeKey(key), processor, RetentionWindow).Result()
	if err != nil {
		return false, fmt.Errorf("Redis 准入登记失败: %w", err)
	}
	if admitted {
		// 新一轮处理开始后，上一轮的完成标记不再有意义。
		_ = r.client.Del(ctx, r.doneKey(key)).Err()
	}
	return admitted, nil
}

// Complete 实现 Registry。
func (r *RedisRegistry) Complete(ctx context.Context, key Key, processor string) (bool, error) {
	owner, err := r.client.Get(ctx, r.activeKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("读取处理登记失败: %w", err)
	}
	if owner != processor {
		return false, nil
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.activeKey(key))
	pipe.Set(ctx, r.doneKey(key), processor, RetentionWindow)
	pipe.Publish(ctx, r.channel(key), processor)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("标记处理完成失败: %w", err)
	}
	return true, nil
}

// Lookup 实现 Registry。
func (r *RedisRegistry) Lookup(ctx context.Context, key Key) (Status, bool) {
	if owner, err := r.client.Get(ctx, r.activeKey(key)).Result(); err == nil {
		return Status{Processor: owner}, true
	}
	if owner, err := r.client.Get(ctx, r.doneKey(key)).Result(); err == nil {
		return Status{Processor: owner, Completed: true}, true
	}
	return Status{}, false
}

// Sweep 实现 Registry。保留窗口由 TTL 承担，无需显式回收。
func (r *RedisRegistry) Sweep(context.Context, time.Time) {}

// WaitCompleted 实现 CompletionWaiter，通过 pub/sub 等待完成信号。
func (r *RedisRegistry) WaitCompleted(ctx context.Context, key Key, timeout time.Duration) bool {
	status, ok := r.Lookup(ctx, key)
	if !ok {
		return false
	}
	if status.Completed {
		return true
	}

	sub := r.client.Subscribe(ctx, r.channel(key))
	defer sub.Close()

	// 订阅建立前信号可能已经发出，补查一次状态。
	if status, ok := r.Lookup(ctx, key); ok && status.Completed {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-sub.Channel():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close 关闭 Redis 连接。
func (r *RedisRegistry) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

var (
	_ Registry         = (*RedisRegistry)(nil)
	_ CompletionWaiter = (*RedisRegistry)(nil)
)
