package llm

import "context"

// Round 是一条历史消息。Role 取 "user" 或 "assistant"。
type Round struct {
	Role    string
	Content string
}

// Request 描述一次补全调用的上下文。
type Request struct {
	System  string
	History []Round
	Message string
}

// Client 定义了调用补全服务的统一接口。调用方必须把它当作
// 不可靠依赖：返回空文本或错误时每个调用点都要有兜底。
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
