package command

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"SuiChat-Agent/internal/chain"
	xerrors "SuiChat-Agent/internal/errors"
	"SuiChat-Agent/internal/storage"
)

// NewStandardDispatcher 创建注册了全部标准指令的派发器。
// 每条指令对应一次外部只读能力：档案、钱包、链上角色、链上技能、
// 代币余额。链上返回的大整数一律渲染为十进制字符串。
func NewStandardDispatcher(store storage.Store, chainClient chain.Client) *Dispatcher {
	d := NewDispatcher()
	d.Register(GetProfile, profileHandler(store))
	d.Register(GetWallet, walletHandler(store))
	d.Register(QueryRoleData, roleDataHandler(store, chainClient))
	d.Register(QuerySkillDetails, skillDetailsHandler(store, chainClient))
	d.Register(GetTokens, tokensHandler(store, chainClient))
	d.Register(GetTokensSummary, tokensSummaryHandler(store, chainClient))
	return d
}

func profileHandler(store storage.Store) Handler {
	return func(ctx context.Context, userID string) (string, error) {
		profile, err := store.GetProfile(ctx, userID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("用户档案: 昵称 %s，角色对象 %s", profile.Nickname, profile.RoleID), nil
	}
}

func walletHandler(store storage.Store) Handler {
	return func(ctx context.Context, userID string) (string, error) {
		wallet, err := store.GetWallet(ctx, userID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("钱包地址: %s", wallet.Address), nil
	}
}

func roleDataHandler(store storage.Store, chainClient chain.Client) Handler {
	return func(ctx context.Context, userID string) (string, error) {
		role, err := loadRole(ctx, store, chainClient, userID)
		if err != nil {
			return "", err
		}
		state := "正常"
		if !role.IsActive {
			state = "未激活"
		}
		if role.IsLocked {
			state = "已锁定"
		}
		return fmt.Sprintf("角色 %s: 角色余额 %s，生命值 %s，状态 %s，技能 %d 个",
			role.Name, decimal(role.Balance), decimal(role.Health), state, len(role.Skills)), nil
	}
}

func skillDetailsHandler(store storage.Store, chainClient chain.Client) Handler {
	return func(ctx context.Context, userID string) (string, error) {
		role, err := loadRole(ctx, store, chainClient, userID)
		if err != nil {
			return "", err
		}
		if len(role.Skills) == 0 {
			return "角色尚未装配任何技能", nil
		}
		lines := make([]string, 0, len(role.Skills))
		for _, skillID := range role.Skills {
			detail, err := chainClient.GetSkillDetails(ctx, skillID)
			if err != nil {
				lines = append(lines, fmt.Sprintf("- 技能 %s 读取失败: %v", skillID, err))
				continue
			}
			enabled := "启用"
			if !detail.IsEnabled {
				enabled = "停用"
			}
			lines = append(lines, fmt.Sprintf("- %s（%s）: %s，费用 %s",
				detail.Name, enabled, detail.Description, decimal(detail.Fee)))
		}
		return "技能明细:\n" + strings.Join(lines, "\n"), nil
	}
}

func tokensHandler(store storage.Store, chainClient chain.Client) Handler {
	return func(ctx context.Context, userID string) (string, error) {
		wallet, err := store.GetWallet(ctx, userID)
		if err != nil {
			return "", err
		}
		balances, err := chainClient.GetAllBalances(ctx, wallet.Address)
		if err != nil {
			return "", err
		}
		if len(balances) == 0 {
			return fmt.Sprintf("钱包 %s 下没有任何代币", wallet.Address), nil
		}
		lines := make([]string, 0, len(balances))
		for _, balance := range balances {
			lines = append(lines, fmt.Sprintf("- %s: 钱包余额 %s（%d 个对象）",
				balance.CoinType, decimal(balance.TotalBalance), balance.CoinObjectCount))
		}
		return "代币余额:\n" + strings.Join(lines, "\n"), nil
	}
}

func tokensSummaryHandler(store storage.Store, chainClient chain.Client) Handler {
	return func(ctx context.Context, userID string) (string, error) {
		wallet, err := store.GetWallet(ctx, userID)
		if err != nil {
			return "", err
		}
		balances, err := chainClient.GetAllBalances(ctx, wallet.Address)
		if err != nil {
			return "", err
		}
		sui := "0"
		for _, balance := range balances {
			if strings.HasSuffix(balance.CoinType, "::sui::SUI") {
				sui = decimal(balance.TotalBalance)
				break
			}
		}
		return fmt.Sprintf("钱包 %s 共持有 %d 种代币，SUI 钱包余额 %s",
			wallet.Address, len(balances), sui), nil
	}
}

func loadRole(ctx context.Context, store storage.Store, chainClient chain.Client, userID string) (*chain.RoleData, error) {
	profile, err := store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(profile.RoleID) == "" {
		return nil, xerrors.New(xerrors.CodeNotFound, "用户尚未绑定链上角色")
	}
	return chainClient.GetRoleData(ctx, profile.RoleID)
}

// decimal 把链上整数渲染为十进制字符串，空值按 0 处理。
func decimal(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
