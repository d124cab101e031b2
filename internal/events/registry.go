package events

import (
	"context"
	"sync"
	"time"
)

// RetentionWindow 是处理记录的保留窗口，超过后无论是否完成都可回收。
const RetentionWindow = 30 * time.Minute

// Key 唯一标识一条待处理的入站消息。
type Key struct {
	MessageID string
	UserID    string
}

// Status 是一条消息的处理登记。
type Status struct {
	Processor     string
	StartTime     time.Time
	Completed     bool
	CompletedTime time.Time
}

// Registry 抽象消息处理登记表。进程内实现见 MemoryRegistry，
// 多实例部署使用 RedisRegistry。
type Registry interface {
	// Start 尝试为 key 创建活跃登记。已存在未完成的登记时返回 false。
	Start(ctx context.Context, key Key, processor string) (bool, error)
	// Complete 将登记标记为完成。仅当记录的处理者与 processor 一致时
	// 生效，返回是否实际完成了记录。
	Complete(ctx context.Context, key Key, processor string) (bool, error)
	// Lookup 返回 key 的登记快照。
	Lookup(ctx context.Context, key Key) (Status, bool)
	// Sweep 回收在 cutoff 之前开始的登记。
	Sweep(ctx context.Context, cutoff time.Time)
}

// CompletionWaiter 由自带跨实例等待能力的登记表实现。
type CompletionWaiter interface {
	WaitCompleted(ctx context.Context, key Key, timeout time.Duration) bool
}

// MemoryRegistry 以进程内 map 保存处理登记，适用于单实例部署与测试。
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[Key]*Status
}

// NewMemoryRegistry 创建进程内登记表。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[Key]*Status)}
}

// Start 实现 Registry。同一 key 的并发调用只有一个会成功。
func (m *MemoryRegistry) Start(_ context.Context, key Key, processor string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[key]; ok && !existing.Completed {
		return false, nil
	}
	m.entries[key] = &Status{
		Processor: processor,
		StartTime: time.Now(),
	}
	return true, nil
}

// Complete 实现 Registry。
func (m *MemoryRegistry) Complete(_ context.Context, key Key, processor string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || entry.Completed || entry.Processor != processor {
		return false, nil
	}
	entry.Completed = true
	entry.CompletedTime = time.Now()
	return true, nil
}

// Lookup 实现 Registry。
func (m *MemoryRegistry) Lookup(_ context.Context, key Key) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return Status{}, false
	}
	return *entry, true
}

// Sweep 实现 Registry。
func (m *MemoryRegistry) Sweep(_ context.Context, cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.entries {
		if entry.StartTime.Before(cutoff) {
			delete(m.entries, key)
		}
	}
}

var _ Registry = (*MemoryRegistry)(nil)
