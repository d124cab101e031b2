package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"SuiChat-Agent/pkg/logger"
)

// Bus 是进程内的同步事件总线。发布操作在调用方线程上按订阅顺序
// 依次执行处理器，任何处理器的失败都不会传播给发布方。
//
// 总线同时承载消息处理的准入登记：同一条 (userID, messageID) 消息
// 在完成之前只允许一个编排流程持有。
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Type][]subscription
	registry Registry
	log      *slog.Logger
}

type subscription struct {
	id uint64
	fn Handler
}

// Subscription 是订阅凭据，用于退订。
type Subscription struct {
	eventType Type
	id        uint64
}

// Option 定义总线的可选配置。
type Option func(*Bus)

// WithRegistry 指定消息处理登记表的实现。
func WithRegistry(registry Registry) Option {
	return func(b *Bus) {
		if registry != nil {
			b.registry = registry
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBus 创建事件总线。默认使用进程内登记表。
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[Type][]subscription),
		registry: NewMemoryRegistry(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.log == nil {
		b.log = logger.Named("events")
	}
	return b
}

// Subscribe 注册处理器并返回订阅凭据。
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	if handler == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: b.nextID, fn: handler})
	return &Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe 移除订阅。凭据不存在时为空操作。
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[sub.eventType]
	for i, entry := range entries {
		if entry.id == sub.id {
			b.handlers[sub.eventType] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Publish 同步派发事件。处理器列表在锁内拷贝、锁外执行，
// 因此处理器内部再次 Publish 不会死锁。
func (b *Bus) Publish(eventType Type, data any) {
	evt := Event{Type: eventType, Data: data, OccurredAt: time.Now()}

	b.mu.Lock()
	entries := make([]subscription, len(b.handlers[eventType]))
	copy(entries, b.handlers[eventType])
	b.mu.Unlock()

	for _, entry := range entries {
		b.invoke(entry, evt)
	}
}

func (b *Bus) invoke(entry subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("事件处理器异常",
				slog.String("event", string(evt.Type)),
				slog.Uint64("subscription", entry.id),
				slog.Any("panic", r),
			)
		}
	}()
	entry.fn(evt)
}

// StartMessageProcessing 尝试获得消息的处理权。已有活跃处理者时
// 返回 false 且不改动任何状态。
func (b *Bus) StartMessageProcessing(ctx context.Context, messageID, userID, processor string) bool {
	admitted, err := b.registry.Start(ctx, Key{MessageID: messageID, UserID: userID}, processor)
	if err != nil {
		b.log.Error("消息准入登记失败",
			slog.Any("error", err),
			slog.String("message_id", messageID),
			slog.String("user_id", userID),
		)
		return false
	}
	if !admitted {
		return false
	}
	b.Publish(MessageProcessingStarted, ProcessingPayload{
		MessageID: messageID,
		UserID:    userID,
		Processor: processor,
	})
	return true
}

// CompleteMessageProcessing 标记消息处理完成。只有登记时的处理者
// 才能完成记录；陈旧或他人的调用仅记录日志。完成后顺带回收
// 超过保留窗口的旧记录。
func (b *Bus) CompleteMessageProcessing(ctx context.Context, messageID, userID, processor string) {
	key := Key{MessageID: messageID, UserID: userID}
	completed, err := b.registry.Complete(ctx, key, processor)
	if err != nil {
		b.log.Error("标记消息处理完成失败",
			slog.Any("error", err),
			slog.String("message_id", messageID),
			slog.String("user_id", userID),
		)
		return
	}
	if !completed {
		b.log.Warn("忽略非持有者的完成请求",
			slog.String("message_id", messageID),
			slog.String("user_id", userID),
			slog.String("processor", processor),
		)
		return
	}
	b.Publish(MessageProcessingCompleted, ProcessingPayload{
		MessageID: messageID,
		UserID:    userID,
		Processor: processor,
	})
	b.registry.Sweep(ctx, time.Now().Add(-RetentionWindow))
}

// WaitForProcessingCompleted 阻塞等待消息处理完成。
//
// 没有对应登记时立即返回 false；已完成时立即返回 true；否则挂起
// 直到匹配的完成事件或超时，二者恰好触发一次清理，订阅不会泄漏。
func (b *Bus) WaitForProcessingCompleted(ctx context.Context, messageID, userID string, timeout time.Duration) bool {
	key := Key{MessageID: messageID, UserID: userID}

	// 共享登记表（如 Redis）自带跨实例的等待原语。
	if waiter, ok := b.registry.(CompletionWaiter); ok {
		return waiter.WaitCompleted(ctx, key, timeout)
	}

	status, ok := b.registry.Lookup(ctx, key)
	if !ok {
		return false
	}
	if status.Completed {
		return true
	}

	done := make(chan struct{})
	var once sync.Once
	sub := b.Subscribe(MessageProcessingCompleted, func(evt Event) {
		payload, ok := evt.Data.(ProcessingPayload)
		if !ok || payload.MessageID != messageID || payload.UserID != userID {
			return
		}
		once.Do(func() { close(done) })
	})
	defer b.Unsubscribe(sub)

	// 订阅建立前完成事件可能已经发出，补查一次状态。
	if status, ok := b.registry.Lookup(ctx, key); ok && status.Completed {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
