package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "SuiChat-Agent/internal/errors"
	"SuiChat-Agent/internal/events"
	"SuiChat-Agent/internal/executor"
	"SuiChat-Agent/internal/llm"
	"SuiChat-Agent/internal/observability/alerting"
	"SuiChat-Agent/internal/plan"
	"SuiChat-Agent/internal/planner"
	"SuiChat-Agent/internal/storage"
	"SuiChat-Agent/internal/synthesizer"
	"SuiChat-Agent/pkg/logger"
)

const defaultHistoryRounds = 3

// Service 是消息编排核心：对一条入站消息完成准入、规划、执行、
// 合成与落库的完整闭环。计划一旦获得准入就运行到底，中途不取消。
type Service struct {
	bus           *events.Bus
	store         storage.Store
	planner       *planner.Planner
	executor      *executor.Executor
	synthesizer   *synthesizer.Synthesizer
	alerts        alerting.Dispatcher
	processor     string
	historyRounds int
	log           *slog.Logger
}

// Option 定义编排服务的可选配置。
type Option func(*Service)

// WithAlerts 指定告警分发器。
func WithAlerts(alerts alerting.Dispatcher) Option {
	return func(s *Service) {
		if alerts != nil {
			s.alerts = alerts
		}
	}
}

// WithHistoryRounds 指定规划与合成时携带的历史轮数。
func WithHistoryRounds(rounds int) Option {
	return func(s *Service) {
		if rounds > 0 {
			s.historyRounds = rounds
		}
	}
}

// WithProcessorName 指定本实例在处理登记表中的标识。
func WithProcessorName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.processor = name
		}
	}
}

// New 创建编排服务。
func New(bus *events.Bus, store storage.Store, taskPlanner *planner.Planner,
	exec *executor.Executor, synth *synthesizer.Synthesizer, opts ...Option) *Service {
	s := &Service{
		bus:           bus,
		store:         store,
		planner:       taskPlanner,
		executor:      exec,
		synthesizer:   synth,
		processor:     "orchestrator-" + uuid.NewString()[:8],
		historyRounds: defaultHistoryRounds,
		log:           logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// HandleMessage 编排一条入站消息并返回最终回复。
//
// 同一条 (messageID, userID) 消息已有活跃处理者时返回冲突错误，
// 调用方应改为等待既有流程的完成事件。其余故障一律降级为可给
// 用户看的文本，完成标记在任何路径上都会落下。
func (s *Service) HandleMessage(ctx context.Context, messageID, userID, message string) (string, error) {
	if !s.bus.StartMessageProcessing(ctx, messageID, userID, s.processor) {
		return "", xerrors.New(xerrors.CodeConflict, "该消息已有处理流程在运行")
	}
	defer s.bus.CompleteMessageProcessing(ctx, messageID, userID, s.processor)

	s.bus.Publish(events.MessageReceived, events.MessagePayload{
		UserID:    userID,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})

	history := s.loadHistory(ctx, userID)

	taskPlan := s.planner.CreatePlan(ctx, userID, message, history)
	s.bus.Publish(events.TaskPlanStarted, events.PlanPayload{
		PlanID:   taskPlan.PlanID,
		UserID:   userID,
		Markdown: taskPlan.Markdown(),
	})
	logger.Audit().Info("任务计划已创建",
		slog.String("plan_id", taskPlan.PlanID),
		slog.String("user_id", userID),
		slog.Int("tasks", len(taskPlan.Tasks)),
	)

	results := s.executor.ExecutePlan(ctx, taskPlan)
	s.alertFailures(ctx, taskPlan)

	reply := s.synthesizer.Synthesize(ctx, message, results, history)
	s.alertDegradedReply(ctx, taskPlan, reply)

	s.persistRound(ctx, userID, message, reply)

	s.bus.Publish(events.TaskPlanCompleted, events.PlanPayload{
		PlanID:  taskPlan.PlanID,
		UserID:  userID,
		Results: results,
	})
	return reply, nil
}

// loadHistory 读取最近若干轮历史。读取失败不阻断编排，按无历史处理。
func (s *Service) loadHistory(ctx context.Context, userID string) []llm.Round {
	messages, err := s.store.GetMessagesByRounds(ctx, userID, s.historyRounds)
	if err != nil {
		s.log.Warn("读取会话历史失败", slog.String("user_id", userID), slog.Any("error", err))
		return nil
	}
	rounds := make([]llm.Round, 0, len(messages))
	for _, msg := range messages {
		rounds = append(rounds, llm.Round{Role: msg.Role, Content: msg.Content})
	}
	return rounds
}

// persistRound 落库本轮的用户消息与助手回复。
func (s *Service) persistRound(ctx context.Context, userID, message, reply string) {
	now := time.Now().Unix()
	userMsg := storage.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      "user",
		Content:   message,
		CreatedAt: now,
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		s.log.Warn("保存用户消息失败", slog.String("user_id", userID), slog.Any("error", err))
	}
	assistantMsg := storage.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      "assistant",
		Content:   reply,
		CreatedAt: now,
	}
	if err := s.store.SaveMessage(ctx, assistantMsg); err != nil {
		s.log.Warn("保存助手回复失败", slog.String("user_id", userID), slog.Any("error", err))
	}
}

// alertDegradedReply 在回复走了降级路径时发出低严重度告警。
func (s *Service) alertDegradedReply(ctx context.Context, taskPlan *plan.Plan, reply string) {
	if s.alerts == nil {
		return
	}
	degraded := reply == synthesizer.DegradedReply ||
		strings.HasPrefix(reply, synthesizer.UnverifiedPrefix) ||
		strings.Contains(reply, synthesizer.FallbackNotice)
	if !degraded {
		return
	}
	event := alerting.Event{
		Code:       xerrors.CodeCompletionFailure,
		Message:    "回复走了降级路径",
		Severity:   xerrors.SeverityInfo,
		UserID:     taskPlan.UserID,
		PlanID:     taskPlan.PlanID,
		OccurredAt: time.Now(),
	}
	if err := s.alerts.Notify(ctx, event); err != nil {
		s.log.Warn("降级回复告警发送失败", slog.String("plan_id", taskPlan.PlanID), slog.Any("error", err))
	}
}

// alertFailures 对终态失败的任务发出告警。告警失败只记录日志。
func (s *Service) alertFailures(ctx context.Context, taskPlan *plan.Plan) {
	if s.alerts == nil {
		return
	}
	for _, task := range taskPlan.Tasks {
		if task.Status != plan.StatusFailed {
			continue
		}
		event := alerting.Event{
			Code:       xerrors.CodeDispatchFailure,
			Message:    task.Result,
			Severity:   xerrors.SeverityWarning,
			UserID:     taskPlan.UserID,
			PlanID:     taskPlan.PlanID,
			TaskID:     task.ID,
			OccurredAt: time.Now(),
		}
		if err := s.alerts.Notify(ctx, event); err != nil {
			s.log.Warn("任务失败告警发送失败",
				slog.String("task_id", task.ID),
				slog.Any("error", err),
			)
		}
	}
}
