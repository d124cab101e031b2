package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"SuiChat-Agent/internal/command"
	"SuiChat-Agent/internal/llm"
	"SuiChat-Agent/pkg/logger"
)

const (
	// UnverifiedPrefix 标记重试耗尽后返回的降级原文。
	UnverifiedPrefix = "【警告：以下内容未经链上数据验证】\n"
	// DegradedReply 是完全降级时的兜底回复。
	DegradedReply = "抱歉，我暂时无法确认链上数据，请稍后再试。"
	// FallbackNotice 附在直接转述查询结果的降级回复末尾。
	FallbackNotice = "（补全服务暂不可用，以上为原始查询结果。）"

	defaultMaxAttempts = 3
)

const synthesisPrompt = `你是链上数据助手。依据“查询结果”回答用户的问题，
注意区分“角色余额”（链上角色对象的余额）与“钱包余额”（钱包地址下的代币余额），
不要编造任何查询结果之外的数字。用中文简洁作答。`

const freeTextPrompt = `你是链上数据助手。当需要读取数据时，在回复中用
$execute:指令 标记需要执行的指令（可多个），可选指令：queryRoleData、
querySkillDetails、getProfile、getWallet、getTokens、getTokensSummary、none。
不要在没有标记指令的情况下陈述任何余额或生命值数字。`

// Synthesizer 把派发结果与原始消息合成最终回复，并实现两条策略：
// 自由文本路径的有界重试，以及数字虚构防护。
type Synthesizer struct {
	client      llm.Client
	maxAttempts int
	log         *slog.Logger
}

// Option 定义可选配置。
type Option func(*Synthesizer)

// WithMaxAttempts 设置自由文本路径的重试上限。
func WithMaxAttempts(attempts int) Option {
	return func(s *Synthesizer) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// New 创建合成器。client 可以为空，此时所有路径直接降级。
func New(client llm.Client, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		client:      client,
		maxAttempts: defaultMaxAttempts,
		log:         logger.Named("synthesizer"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Synthesize 基于派发结果生成最终回复（结构化路径）。
// 补全失败或输出为空时退回原始查询结果，永不返回错误。
func (s *Synthesizer) Synthesize(ctx context.Context, userMessage, results string, history []llm.Round) string {
	if s.client == nil {
		return s.fallbackReply(results)
	}
	message := fmt.Sprintf("用户消息: %s\n\n查询结果:\n%s", userMessage, results)
	output, err := s.client.Complete(ctx, llm.Request{
		System:  synthesisPrompt,
		History: history,
		Message: message,
	})
	if err != nil {
		s.log.Warn("合成回复失败，使用降级输出", slog.Any("error", err))
		return s.fallbackReply(results)
	}
	if strings.TrimSpace(output) == "" {
		return s.fallbackReply(results)
	}
	return output
}

// SelectFreeText 是早期自由文本变体：反复请求补全服务，直到输出
// 含有至少一个指令标记或重试耗尽。返回提取出的指令集合与可给
// 用户看的文本。重试耗尽时返回 {none} 与带警告前缀的原始输出；
// 虚构了数字的输出被强制折叠到 none 路径。
func (s *Synthesizer) SelectFreeText(ctx context.Context, userMessage string, history []llm.Round) ([]command.Command, string) {
	if s.client == nil {
		return []command.Command{command.None}, DegradedReply
	}

	var last string
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		output, err := s.client.Complete(ctx, llm.Request{
			System:  freeTextPrompt,
			History: history,
			Message: userMessage,
		})
		if err != nil {
			s.log.Warn("自由文本补全失败",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			continue
		}
		if strings.TrimSpace(output) == "" {
			continue
		}
		last = output
		if commands := command.Extract(output); len(commands) > 0 {
			return commands, output
		}
		s.log.Debug("输出缺少指令标记，重试", slog.Int("attempt", attempt))
	}

	if strings.TrimSpace(last) == "" {
		return []command.Command{command.None}, DegradedReply
	}
	if Fabricated(last) {
		// 模型在未取数的情况下报出了数字，宁可降级也不转述。
		s.log.Warn("输出疑似虚构链上数据，折叠到 none 路径")
		return []command.Command{command.None}, DegradedReply
	}
	return []command.Command{command.None}, UnverifiedPrefix + last
}

func (s *Synthesizer) fallbackReply(results string) string {
	if strings.TrimSpace(results) == "" {
		return DegradedReply
	}
	return results + "\n\n" + FallbackNotice
}

// guardPatterns 识别余额/生命值类的数字断言。这是近似启发式，
// 精确率与召回率按策略调参，不构成硬性契约。
var guardPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(余额|balance)\D{0,8}\d`),
	regexp.MustCompile(`(?i)(生命值|health)\D{0,8}\d`),
	regexp.MustCompile(`(?i)\d+(\.\d+)?\s*sui`),
}

// Fabricated 判断文本是否在没有任何指令标记的情况下陈述了数字断言。
func Fabricated(text string) bool {
	if command.HasMarker(text) {
		return false
	}
	for _, pattern := range guardPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
