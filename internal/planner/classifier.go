package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"SuiChat-Agent/internal/command"
	xerrors "SuiChat-Agent/internal/errors"
	"SuiChat-Agent/internal/llm"
)

// Classifier 根据用户消息决定需要执行哪些指令。
type Classifier interface {
	Classify(ctx context.Context, message string, history []llm.Round) ([]command.Command, error)
}

const classifierPrompt = `你是链上数据助手的指令分类器。根据用户消息，从下列指令中选出需要执行的：
queryRoleData（链上角色的余额、生命值、状态）、querySkillDetails（角色技能明细）、
getProfile（用户档案）、getWallet（钱包地址）、getTokens（钱包全部代币余额）、
getTokensSummary（钱包代币汇总）、none（无需读取数据）。
只输出一个 JSON 对象：{"commands": ["token", ...]}，不要附加其他文字。`

// LLMClassifier 通过补全服务做结构化指令分类。
type LLMClassifier struct {
	client llm.Client
}

// NewLLMClassifier 创建基于补全服务的分类器。
func NewLLMClassifier(client llm.Client) *LLMClassifier {
	return &LLMClassifier{client: client}
}

// Classify 实现 Classifier。优先解析结构化 JSON 输出，
// 解析不到时退回 $execute: 标记扫描的兼容路径。
func (c *LLMClassifier) Classify(ctx context.Context, message string, history []llm.Round) ([]command.Command, error) {
	if c.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置补全客户端")
	}
	output, err := c.client.Complete(ctx, llm.Request{
		System:  classifierPrompt,
		History: history,
		Message: message,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeClassifierFailure, err, "指令分类调用失败")
	}
	if strings.TrimSpace(output) == "" {
		return nil, xerrors.New(xerrors.CodeClassifierFailure, "指令分类输出为空")
	}

	var commands []command.Command
	list := gjson.Get(output, "commands")
	if !list.Exists() {
		// 模型偶尔会把 JSON 包进代码块或前后缀文字。
		if raw := gjson.Get(extractJSON(output), "commands"); raw.Exists() {
			list = raw
		}
	}
	list.ForEach(func(_, token gjson.Result) bool {
		if cmd, ok := command.Parse(token.String()); ok {
			commands = append(commands, cmd)
		}
		return true
	})

	if len(commands) == 0 {
		commands = command.Extract(output)
	}
	if len(commands) == 0 {
		return nil, xerrors.New(xerrors.CodeClassifierFailure,
			fmt.Sprintf("分类输出不可用: %s", truncate(output, 120)))
	}
	return commands, nil
}

// extractJSON 取出文本中第一个花括号片段。
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func truncate(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}

// KeywordRule 是关键词到指令集合的映射条目。
type KeywordRule struct {
	Keywords []string          `json:"keywords"`
	Commands []command.Command `json:"commands"`
}

// KeywordClassifier 用确定性的关键词匹配做分类，充当补全服务
// 不可用时的降级路径。
type KeywordClassifier struct {
	rules []KeywordRule
}

// NewKeywordClassifier 创建关键词分类器。rules 为空时使用内置规则。
func NewKeywordClassifier(rules []KeywordRule) *KeywordClassifier {
	if len(rules) == 0 {
		rules = defaultKeywordRules()
	}
	return &KeywordClassifier{rules: rules}
}

// LoadKeywordClassifier 从 JSON 文件加载关键词规则。
func LoadKeywordClassifier(path string) (*KeywordClassifier, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取关键词规则失败: %w", err)
	}
	var rules []KeywordRule
	if err := json.Unmarshal(content, &rules); err != nil {
		return nil, fmt.Errorf("解析关键词规则失败: %w", err)
	}
	return NewKeywordClassifier(rules), nil
}

// Classify 实现 Classifier。没有任何命中时返回 {none}。
func (c *KeywordClassifier) Classify(_ context.Context, message string, _ []llm.Round) ([]command.Command, error) {
	lowered := strings.ToLower(message)
	var commands []command.Command
	seen := make(map[command.Command]bool)
	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if keyword == "" || !strings.Contains(lowered, strings.ToLower(keyword)) {
				continue
			}
			for _, cmd := range rule.Commands {
				if !seen[cmd] {
					seen[cmd] = true
					commands = append(commands, cmd)
				}
			}
			break
		}
	}
	if len(commands) == 0 {
		return []command.Command{command.None}, nil
	}
	return commands, nil
}

func defaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{
			Keywords: []string{"余额", "balance", "代币", "token", "sui", "币"},
			Commands: []command.Command{command.QueryRoleData, command.GetTokensSummary},
		},
		{
			Keywords: []string{"技能", "skill"},
			Commands: []command.Command{command.QuerySkillDetails},
		},
		{
			Keywords: []string{"档案", "profile", "昵称", "角色"},
			Commands: []command.Command{command.GetProfile},
		},
		{
			Keywords: []string{"钱包", "wallet", "地址", "address"},
			Commands: []command.Command{command.GetWallet},
		},
	}
}
