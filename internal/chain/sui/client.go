package sui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"SuiChat-Agent/internal/chain"
	xerrors "SuiChat-Agent/internal/errors"
)

const (
	defaultTimeout = 15 * time.Second
	// SuiCoinType 是原生 SUI 代币的完整类型名。
	SuiCoinType = "0x2::sui::SUI"
)

// Config 描述访问 Sui 全节点所需的信息。
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// Client 通过 JSON-RPC 访问 Sui 全节点，只做读取。
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// NewClient 创建 Sui 客户端。
func NewClient(cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 Sui RPC 地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// call 发送一次 JSON-RPC 请求并返回 result 部分。
func (c *Client) call(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	payload := `{"jsonrpc":"2.0","id":1}`
	payload, err := sjson.Set(payload, "method", method)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("构建 RPC 请求失败: %w", err)
	}
	payload, err = sjson.Set(payload, "params", params)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("构建 RPC 参数失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader([]byte(payload)))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("构建 Sui 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return gjson.Result{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "请求 Sui 节点失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "读取 Sui 响应失败")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return gjson.Result{}, xerrors.New(xerrors.CodeChainFailure,
			fmt.Sprintf("Sui 节点返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	if rpcErr := gjson.GetBytes(body, "error"); rpcErr.Exists() {
		return gjson.Result{}, xerrors.New(xerrors.CodeChainFailure,
			fmt.Sprintf("Sui RPC 错误 %s: %s", rpcErr.Get("code").String(), rpcErr.Get("message").String()))
	}
	return gjson.GetBytes(body, "result"), nil
}

// GetRoleData 读取角色对象并展开其字段。
func (c *Client) GetRoleData(ctx context.Context, roleID string) (*chain.RoleData, error) {
	if strings.TrimSpace(roleID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "角色对象 ID 不能为空")
	}
	result, err := c.call(ctx, "sui_getObject", roleID, map[string]any{"showContent": true})
	if err != nil {
		return nil, err
	}
	fields := result.Get("data.content.fields")
	if !fields.Exists() {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("角色对象 %s 不存在或无内容", roleID))
	}

	role := &chain.RoleData{
		RoleID:   roleID,
		Name:     fields.Get("name").String(),
		Balance:  parseBig(fields.Get("balance").String()),
		Health:   parseBig(fields.Get("health").String()),
		IsActive: fields.Get("is_active").Bool(),
		IsLocked: fields.Get("is_locked").Bool(),
	}
	fields.Get("skills").ForEach(func(_, value gjson.Result) bool {
		skillID := value.String()
		// 技能既可能是裸 ID，也可能是嵌套对象。
		if value.IsObject() {
			skillID = value.Get("fields.id.id").String()
			if skillID == "" {
				skillID = value.Get("id").String()
			}
		}
		if skillID != "" {
			role.Skills = append(role.Skills, skillID)
		}
		return true
	})
	return role, nil
}

// GetSkillDetails 读取单个技能对象。
func (c *Client) GetSkillDetails(ctx context.Context, skillID string) (*chain.SkillDetail, error) {
	if strings.TrimSpace(skillID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "技能对象 ID 不能为空")
	}
	result, err := c.call(ctx, "sui_getObject", skillID, map[string]any{"showContent": true})
	if err != nil {
		return nil, err
	}
	fields := result.Get("data.content.fields")
	if !fields.Exists() {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("技能对象 %s 不存在或无内容", skillID))
	}
	return &chain.SkillDetail{
		SkillID:     skillID,
		Name:        fields.Get("name").String(),
		Description: fields.Get("description").String(),
		Fee:         parseBig(fields.Get("fee").String()),
		IsEnabled:   fields.Get("is_enabled").Bool(),
	}, nil
}

// GetBalance 查询地址下某一币种的余额汇总。
func (c *Client) GetBalance(ctx context.Context, owner, coinType string) (*big.Int, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "钱包地址不能为空")
	}
	if strings.TrimSpace(coinType) == "" {
		coinType = SuiCoinType
	}
	result, err := c.call(ctx, "suix_getBalance", owner, coinType)
	if err != nil {
		return nil, err
	}
	return parseBig(result.Get("totalBalance").String()), nil
}

// GetAllBalances 查询地址下所有币种的余额汇总。
func (c *Client) GetAllBalances(ctx context.Context, owner string) ([]chain.CoinBalance, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "钱包地址不能为空")
	}
	result, err := c.call(ctx, "suix_getAllBalances", owner)
	if err != nil {
		return nil, err
	}
	var balances []chain.CoinBalance
	result.ForEach(func(_, entry gjson.Result) bool {
		balances = append(balances, chain.CoinBalance{
			CoinType:        entry.Get("coinType").String(),
			CoinObjectCount: entry.Get("coinObjectCount").Int(),
			TotalBalance:    parseBig(entry.Get("totalBalance").String()),
		})
		return true
	})
	return balances, nil
}

// Close 实现 chain.Client。HTTP 客户端无需显式释放。
func (c *Client) Close() {}

// parseBig 把链上返回的十进制字符串解析为 big.Int，解析失败时取零，
// 保证余额字段永远可序列化。
func parseBig(value string) *big.Int {
	parsed, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return new(big.Int)
	}
	return parsed
}

var _ chain.Client = (*Client)(nil)
