package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"SuiChat-Agent/internal/command"
	"SuiChat-Agent/internal/llm"
	"SuiChat-Agent/internal/plan"
	"SuiChat-Agent/pkg/logger"
)

// Planner 把一条入站消息物化为任务计划。分类失败时逐级降级：
// 主分类器 -> 关键词分类器 -> {none}，规划本身永不失败。
type Planner struct {
	classifier Classifier
	fallback   Classifier
	log        *slog.Logger
}

// Option 定义 Planner 的可选配置。
type Option func(*Planner)

// WithFallback 指定降级分类器，默认为内置关键词分类器。
func WithFallback(fallback Classifier) Option {
	return func(p *Planner) {
		if fallback != nil {
			p.fallback = fallback
		}
	}
}

// New 创建 Planner。classifier 可以为空，此时直接使用降级路径。
func New(classifier Classifier, opts ...Option) *Planner {
	p := &Planner{
		classifier: classifier,
		fallback:   NewKeywordClassifier(nil),
		log:        logger.Named("planner"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// CreatePlan 生成任务计划。固定结构：意图理解、逐条指令、结果整合、
// 最终回复；指令集合来自分类器并受余额配对规则约束。
func (p *Planner) CreatePlan(ctx context.Context, userID, message string, history []llm.Round) *plan.Plan {
	commands := p.selectCommands(ctx, message, history)
	commands = enforceBalancePairing(message, commands)

	taskPlan := plan.New(userID, message)
	taskPlan.Append("理解用户意图", "")
	for _, cmd := range commands {
		if cmd == command.None {
			taskPlan.Append("无需读取链上数据", command.None)
			continue
		}
		taskPlan.Append(fmt.Sprintf("执行指令 %s", cmd), cmd)
	}
	taskPlan.Append("整合执行结果", "")
	taskPlan.Append("生成最终回复", "")
	return taskPlan
}

func (p *Planner) selectCommands(ctx context.Context, message string, history []llm.Round) []command.Command {
	if p.classifier != nil {
		commands, err := p.classifier.Classify(ctx, message, history)
		if err == nil && len(commands) > 0 {
			return commands
		}
		if err != nil {
			p.log.Warn("主分类器失败，使用降级路径", slog.Any("error", err))
		}
	}
	commands, err := p.fallback.Classify(ctx, message, history)
	if err != nil || len(commands) == 0 {
		if err != nil {
			p.log.Warn("降级分类器失败", slog.Any("error", err))
		}
		return []command.Command{command.None}
	}
	return commands
}

// balanceKeywords 判定消息是否属于余额/代币话题。
var balanceKeywords = []string{"余额", "balance", "代币", "token", "sui"}

func isBalanceRelated(message string) bool {
	lowered := strings.ToLower(message)
	for _, keyword := range balanceKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// enforceBalancePairing 实施领域规则：余额类消息必须同时带上
// 角色数据查询和至少一种钱包代币查询，分类器漏掉的一半由此补齐。
// 补齐后若仍残留 none 且已有实际指令，则剔除 none。
func enforceBalancePairing(message string, commands []command.Command) []command.Command {
	if !isBalanceRelated(message) {
		return commands
	}

	hasRole := false
	hasWalletTokens := false
	for _, cmd := range commands {
		switch cmd {
		case command.QueryRoleData:
			hasRole = true
		case command.GetTokens, command.GetTokensSummary:
			hasWalletTokens = true
		}
	}
	if !hasRole {
		commands = append(commands, command.QueryRoleData)
	}
	if !hasWalletTokens {
		commands = append(commands, command.GetTokensSummary)
	}

	filtered := commands[:0]
	for _, cmd := range commands {
		if cmd == command.None {
			continue
		}
		filtered = append(filtered, cmd)
	}
	return filtered
}
