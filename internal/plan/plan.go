package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"SuiChat-Agent/internal/command"
	xerrors "SuiChat-Agent/internal/errors"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal 判断状态是否为终态。
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 是计划内的一个原子工作单元，可选地绑定一条指令。
// 状态迁移单向：pending -> running -> completed/failed，终态不可再变。
type Task struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Status      Status          `json:"status"`
	Command     command.Command `json:"command,omitempty"`
	Result      string          `json:"result,omitempty"`
	StartedAt   int64           `json:"started_at,omitempty"`
	EndedAt     int64           `json:"ended_at,omitempty"`
}

// Start 将任务置为运行中。
func (t *Task) Start() error {
	if t.Status != StatusPending {
		return xerrors.New(xerrors.CodeConflict,
			fmt.Sprintf("任务 %s 当前状态 %s，无法开始执行", t.ID, t.Status))
	}
	t.Status = StatusRunning
	t.StartedAt = time.Now().Unix()
	return nil
}

// Complete 以成功结果结束任务。
func (t *Task) Complete(result string) error {
	if t.Status != StatusRunning {
		return xerrors.New(xerrors.CodeConflict,
			fmt.Sprintf("任务 %s 当前状态 %s，无法标记成功", t.ID, t.Status))
	}
	t.Status = StatusCompleted
	t.Result = result
	t.EndedAt = time.Now().Unix()
	return nil
}

// Fail 以失败结果结束任务。
func (t *Task) Fail(cause string) error {
	if t.Status != StatusRunning {
		return xerrors.New(xerrors.CodeConflict,
			fmt.Sprintf("任务 %s 当前状态 %s，无法标记失败", t.ID, t.Status))
	}
	t.Status = StatusFailed
	t.Result = cause
	t.EndedAt = time.Now().Unix()
	return nil
}

// HasCommand 判断任务是否绑定了需要派发的指令。
func (t *Task) HasCommand() bool {
	return t.Command != "" && t.Command != command.None
}

// Plan 是为一条入站消息生成的有序任务列表。任务只在规划阶段追加，
// 执行阶段仅修改既有任务的状态与结果，不增删、不重排。
type Plan struct {
	PlanID      string  `json:"plan_id"`
	UserID      string  `json:"user_id"`
	UserMessage string  `json:"user_message"`
	CreatedAt   int64   `json:"created_at"`
	Tasks       []*Task `json:"tasks"`
}

// New 创建一个空计划。
func New(userID, userMessage string) *Plan {
	return &Plan{
		PlanID:      uuid.NewString(),
		UserID:      userID,
		UserMessage: userMessage,
		CreatedAt:   time.Now().Unix(),
	}
}

// Append 追加一个任务并返回它。
func (p *Plan) Append(description string, cmd command.Command) *Task {
	task := &Task{
		ID:          uuid.NewString(),
		Description: description,
		Status:      StatusPending,
		Command:     cmd,
	}
	p.Tasks = append(p.Tasks, task)
	return task
}

// NextPending 返回插入顺序中的第一个待执行任务。
func (p *Plan) NextPending() *Task {
	for _, task := range p.Tasks {
		if task.Status == StatusPending {
			return task
		}
	}
	return nil
}

// IsCompleted 判断计划是否整体结束：所有任务均处于终态。
func (p *Plan) IsCompleted() bool {
	for _, task := range p.Tasks {
		if !task.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Markdown 渲染计划的文字快照，用于计划事件的载荷与落库。
func (p *Plan) Markdown() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("## 任务计划 %s\n", p.PlanID))
	builder.WriteString(fmt.Sprintf("用户: %s\n\n", p.UserID))
	for idx, task := range p.Tasks {
		marker := " "
		switch task.Status {
		case StatusRunning:
			marker = "~"
		case StatusCompleted:
			marker = "x"
		case StatusFailed:
			marker = "!"
		}
		builder.WriteString(fmt.Sprintf("- [%s] %d. %s", marker, idx+1, task.Description))
		if task.HasCommand() {
			builder.WriteString(fmt.Sprintf(" (`%s`)", task.Command))
		}
		builder.WriteString("\n")
	}
	return builder.String()
}
