package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MemoryStore 把消息以 JSONL 追加写到本地文件，档案与钱包驻留内存，
// 面向开发与测试场景。
type MemoryStore struct {
	mu       sync.RWMutex
	dataFile string
	messages []Message
	profiles map[string]Profile
	wallets  map[string]Wallet
}

const memoryMessageCap = 2048

// NewMemoryStore 创建内存存储。dataDir 为空时仅驻留内存不落盘。
func NewMemoryStore(dataDir string) (*MemoryStore, error) {
	store := &MemoryStore{
		profiles: make(map[string]Profile),
		wallets:  make(map[string]Wallet),
	}
	if dataDir == "" {
		return store, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	store.dataFile = filepath.Join(dataDir, "messages.log")
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// SaveMessage 以追加写的方式记录消息。
func (m *MemoryStore) SaveMessage(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().Unix()
	}
	if m.dataFile != "" {
		file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("打开消息日志失败: %w", err)
		}
		defer file.Close()

		encoded, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("序列化消息失败: %w", err)
		}
		if _, err := file.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("写入消息日志失败: %w", err)
		}
	}

	m.messages = append(m.messages, msg)
	if len(m.messages) > memoryMessageCap {
		m.messages = m.messages[len(m.messages)-memoryMessageCap:]
	}
	return nil
}

// GetConversationHistory 返回用户最近 limit 条消息，按时间正序。
func (m *MemoryStore) GetConversationHistory(_ context.Context, userID string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Message
	for _, msg := range m.messages {
		if msg.UserID == userID {
			matched = append(matched, msg)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// GetMessagesByRounds 返回最近 rounds 轮对话。
func (m *MemoryStore) GetMessagesByRounds(ctx context.Context, userID string, rounds int) ([]Message, error) {
	if rounds <= 0 {
		return nil, nil
	}
	return m.GetConversationHistory(ctx, userID, rounds*2)
}

// GetProfile 返回用户档案。
func (m *MemoryStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := profile
	return &clone, nil
}

// GetWallet 返回用户钱包。
func (m *MemoryStore) GetWallet(_ context.Context, userID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wallet, ok := m.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := wallet
	return &clone, nil
}

// SaveProfile 写入用户档案。
func (m *MemoryStore) SaveProfile(_ context.Context, profile Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if profile.CreatedAt == 0 {
		profile.CreatedAt = time.Now().Unix()
	}
	m.profiles[profile.UserID] = profile
	return nil
}

// SaveWallet 写入用户钱包。
func (m *MemoryStore) SaveWallet(_ context.Context, wallet Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wallet.CreatedAt == 0 {
		wallet.CreatedAt = time.Now().Unix()
	}
	m.wallets[wallet.UserID] = wallet
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取消息日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []Message
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		restored = append(restored, msg)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析消息日志失败: %w", err)
	}
	if len(restored) > memoryMessageCap {
		restored = restored[len(restored)-memoryMessageCap:]
	}
	m.messages = restored
	return nil
}

var _ Store = (*MemoryStore)(nil)
