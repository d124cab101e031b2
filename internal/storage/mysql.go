package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "SuiChat-Agent/internal/errors"
)

// MySQLConfig 描述 MySQL 连接参数。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLStore 把消息、档案与钱包存入 MySQL。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建连接池并初始化数据表。
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			role VARCHAR(16) NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_user_created (user_id, created_at)
		) CHARACTER SET utf8mb4`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id VARCHAR(128) PRIMARY KEY,
			nickname VARCHAR(255) DEFAULT '',
			role_id VARCHAR(128) DEFAULT '',
			created_at BIGINT NOT NULL
		) CHARACTER SET utf8mb4`,
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id VARCHAR(128) PRIMARY KEY,
			address VARCHAR(128) NOT NULL,
			created_at BIGINT NOT NULL
		) CHARACTER SET utf8mb4`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("初始化数据表失败: %w", err)
		}
	}
	return nil
}

// SaveMessage 实现 Store 接口。
func (s *MySQLStore) SaveMessage(ctx context.Context, msg Message) error {
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入消息失败")
	}
	return nil
}

// GetConversationHistory 实现 Store 接口。
func (s *MySQLStore) GetConversationHistory(ctx context.Context, userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at FROM messages
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询会话历史失败")
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取消息记录失败")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历消息记录失败")
	}
	// 倒序查询，返回前翻回正序。
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetMessagesByRounds 实现 Store 接口。
func (s *MySQLStore) GetMessagesByRounds(ctx context.Context, userID string, rounds int) ([]Message, error) {
	if rounds <= 0 {
		return nil, nil
	}
	return s.GetConversationHistory(ctx, userID, rounds*2)
}

// GetProfile 实现 Store 接口。
func (s *MySQLStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, nickname, role_id, created_at FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(&profile.UserID, &profile.Nickname, &profile.RoleID, &profile.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询用户档案失败")
	}
	return &profile, nil
}

// GetWallet 实现 Store 接口。
func (s *MySQLStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	var wallet Wallet
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, address, created_at FROM wallets WHERE user_id = ?`,
		userID,
	).Scan(&wallet.UserID, &wallet.Address, &wallet.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询用户钱包失败")
	}
	return &wallet, nil
}

// SaveProfile 实现 Store 接口。
func (s *MySQLStore) SaveProfile(ctx context.Context, profile Profile) error {
	if profile.CreatedAt == 0 {
		profile.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, nickname, role_id, created_at) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE nickname = VALUES(nickname), role_id = VALUES(role_id)`,
		profile.UserID, profile.Nickname, profile.RoleID, profile.CreatedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入用户档案失败")
	}
	return nil
}

// SaveWallet 实现 Store 接口。
func (s *MySQLStore) SaveWallet(ctx context.Context, wallet Wallet) error {
	if wallet.CreatedAt == 0 {
		wallet.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id, address, created_at) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE address = VALUES(address)`,
		wallet.UserID, wallet.Address, wallet.CreatedAt,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入用户钱包失败")
	}
	return nil
}

// Close 释放连接池。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)
