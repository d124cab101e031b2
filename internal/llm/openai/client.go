package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	xerrors "SuiChat-Agent/internal/errors"
	"SuiChat-Agent/internal/llm"
)

const (
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI 兼容补全服务所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 基于官方 SDK 调用 Chat Completions 接口。
type Client struct {
	api   openai.Client
	model string
}

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供补全服务的 API Key")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts = append(opts, option.WithRequestTimeout(timeout))

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	return &Client{
		api:   openai.NewClient(opts...),
		model: model,
	}, nil
}

// Complete 调用补全服务并返回首个候选文本。
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, round := range req.History {
		content := strings.TrimSpace(round.Content)
		if content == "" {
			continue
		}
		if round.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(content))
		} else {
			messages = append(messages, openai.UserMessage(content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Message))

	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeCompletionFailure, err, "请求补全服务失败")
	}
	if len(completion.Choices) == 0 {
		return "", xerrors.New(xerrors.CodeCompletionFailure, "补全响应中没有有效的 choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

var _ llm.Client = (*Client)(nil)
