package chain

import (
	"context"
	"math/big"
)

// RoleData 是链上角色对象的读取结果。余额与生命值在链上是
// 任意精度整数，全程以 big.Int 传递，序列化时渲染为十进制字符串。
type RoleData struct {
	RoleID   string
	Name     string
	Balance  *big.Int
	Health   *big.Int
	IsActive bool
	IsLocked bool
	Skills   []string
}

// SkillDetail 是链上技能对象的读取结果。
type SkillDetail struct {
	SkillID     string
	Name        string
	Description string
	Fee         *big.Int
	IsEnabled   bool
}

// CoinBalance 描述某一币种在钱包地址下的余额汇总。
type CoinBalance struct {
	CoinType        string
	CoinObjectCount int64
	TotalBalance    *big.Int
}

// Client 定义了编排核心需要的链上只读能力。
type Client interface {
	GetRoleData(ctx context.Context, roleID string) (*RoleData, error)
	GetSkillDetails(ctx context.Context, skillID string) (*SkillDetail, error)
	GetBalance(ctx context.Context, owner, coinType string) (*big.Int, error)
	GetAllBalances(ctx context.Context, owner string) ([]CoinBalance, error)
	Close()
}
