package storage

import (
	"context"

	xerrors "SuiChat-Agent/internal/errors"
)

// Message 是会话中的一条消息。Role 取 "user" 或 "assistant"。
type Message struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// Profile 是用户的档案记录，RoleID 指向其链上角色对象。
type Profile struct {
	UserID    string `json:"user_id"`
	Nickname  string `json:"nickname"`
	RoleID    string `json:"role_id"`
	CreatedAt int64  `json:"created_at"`
}

// Wallet 是用户绑定的链上钱包。
type Wallet struct {
	UserID    string `json:"user_id"`
	Address   string `json:"address"`
	CreatedAt int64  `json:"created_at"`
}

// ErrNotFound 表示请求的记录不存在。
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "记录不存在")

// Store 抽象编排核心消费的持久化能力：会话历史、档案与钱包。
// 编排核心只读档案与钱包，消息由调用方写入。
type Store interface {
	SaveMessage(ctx context.Context, msg Message) error
	// GetConversationHistory 返回最近 limit 条消息，按时间正序。
	GetConversationHistory(ctx context.Context, userID string, limit int) ([]Message, error)
	// GetMessagesByRounds 返回最近 rounds 轮对话（一轮为一问一答），
	// 按时间正序。
	GetMessagesByRounds(ctx context.Context, userID string, rounds int) ([]Message, error)
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	GetWallet(ctx context.Context, userID string) (*Wallet, error)
	SaveProfile(ctx context.Context, profile Profile) error
	SaveWallet(ctx context.Context, wallet Wallet) error
	Close() error
}
