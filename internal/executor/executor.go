package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"SuiChat-Agent/internal/command"
	"SuiChat-Agent/internal/events"
	"SuiChat-Agent/internal/plan"
	"SuiChat-Agent/pkg/logger"
)

// Runner 执行一条指令。生产实现是指令派发器（永不返回错误），
// 错误分支用于隔离其他实现或测试桩的失败。
type Runner func(ctx context.Context, cmd command.Command, userID string) (string, error)

// Executor 按插入顺序串行排空任务计划。同一计划内的任务绝不并发，
// 单个任务的失败只记录在该任务上，循环始终推进到所有任务终态。
type Executor struct {
	bus    *events.Bus
	runner Runner
	log    *slog.Logger
}

// New 创建执行器。
func New(bus *events.Bus, runner Runner) *Executor {
	return &Executor{
		bus:    bus,
		runner: runner,
		log:    logger.Named("executor"),
	}
}

// ExecutePlan 排空计划并返回各任务结果的拼接文本（双换行分隔）。
// 计划级完成事件由调用方负责，这里只发布任务级事件与计划快照。
func (e *Executor) ExecutePlan(ctx context.Context, taskPlan *plan.Plan) string {
	var results []string
	for task := taskPlan.NextPending(); task != nil; task = taskPlan.NextPending() {
		results = append(results, e.runTask(ctx, taskPlan, task))
		e.bus.Publish(events.TaskPlanUpdated, events.PlanPayload{
			PlanID:   taskPlan.PlanID,
			UserID:   taskPlan.UserID,
			Markdown: taskPlan.Markdown(),
		})
	}
	return strings.Join(results, "\n\n")
}

func (e *Executor) runTask(ctx context.Context, taskPlan *plan.Plan, task *plan.Task) string {
	if err := task.Start(); err != nil {
		// 状态机拒绝启动说明任务已被动过，跳过即可。
		e.log.Warn("任务无法启动", slog.String("task_id", task.ID), slog.Any("error", err))
		return task.Result
	}
	e.bus.Publish(events.TaskStarted, events.TaskPayload{
		TaskID:      task.ID,
		PlanID:      taskPlan.PlanID,
		Description: task.Description,
	})

	result := command.NoCommandResult
	var runErr error
	if task.HasCommand() || task.Command == command.None {
		result, runErr = e.invoke(ctx, task.Command, taskPlan.UserID)
	}

	if runErr != nil {
		failure := runErr.Error()
		_ = task.Fail(failure)
		e.bus.Publish(events.TaskFailed, events.TaskPayload{
			TaskID:      task.ID,
			PlanID:      taskPlan.PlanID,
			Description: task.Description,
			Error:       failure,
		})
		e.log.Warn("任务执行失败",
			slog.String("task_id", task.ID),
			slog.String("plan_id", taskPlan.PlanID),
			slog.String("error", failure),
		)
		return failure
	}

	_ = task.Complete(result)
	e.bus.Publish(events.TaskCompleted, events.TaskPayload{
		TaskID:      task.ID,
		PlanID:      taskPlan.PlanID,
		Description: task.Description,
		Result:      result,
	})
	return result
}

// invoke 把 runner 的 panic 也折叠为任务失败，保证计划继续推进。
func (e *Executor) invoke(ctx context.Context, cmd command.Command, userID string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return e.runner(ctx, cmd, userID)
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("指令执行异常: %v", p.value)
}
