package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"SuiChat-Agent/pkg/logger"
)

// NoCommandResult 是 none 指令与无指令任务的固定结果。
const NoCommandResult = "无需执行任何链上指令"

// Handler 执行一条指令并返回可拼接进对话纪要的文本。
type Handler func(ctx context.Context, userID string) (string, error)

// Dispatcher 把指令令牌映射到具体的读取能力。处理器在启动阶段注册，
// Execute 永不抛错：内部失败一律折叠为“执行失败”文本。
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Command]Handler
	log      *slog.Logger
}

// NewDispatcher 创建空的派发器。
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Command]Handler),
		log:      logger.Named("dispatcher"),
	}
}

// Register 注册指令处理器。重复注册时后者覆盖前者。
func (d *Dispatcher) Register(cmd Command, handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[cmd] = handler
}

// Execute 执行一条指令，总是返回字符串。
func (d *Dispatcher) Execute(ctx context.Context, cmd Command, userID string) (result string) {
	if cmd == "" || cmd == None {
		return NoCommandResult
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("指令处理器异常",
				slog.String("command", string(cmd)),
				slog.String("user_id", userID),
				slog.Any("panic", r),
			)
			result = fmt.Sprintf("执行失败: 指令 %s 内部异常", cmd)
		}
	}()

	d.mu.RLock()
	handler, ok := d.handlers[cmd]
	d.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("执行失败: 未注册的指令 %s", cmd)
	}

	text, err := handler(ctx, userID)
	if err != nil {
		d.log.Warn("指令执行失败",
			slog.String("command", string(cmd)),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return fmt.Sprintf("执行失败: %v", err)
	}
	return text
}
