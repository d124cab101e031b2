package events

import "time"

// Type 标识总线上的事件类别。
type Type string

const (
	MessageReceived            Type = "MESSAGE_RECEIVED"
	TaskStarted                Type = "TASK_STARTED"
	TaskCompleted              Type = "TASK_COMPLETED"
	TaskFailed                 Type = "TASK_FAILED"
	TaskPlanStarted            Type = "TASK_PLAN_STARTED"
	TaskPlanUpdated            Type = "TASK_PLAN_UPDATED"
	TaskPlanCompleted          Type = "TASK_PLAN_COMPLETED"
	MessageProcessingStarted   Type = "MESSAGE_PROCESSING_STARTED"
	MessageProcessingCompleted Type = "MESSAGE_PROCESSING_COMPLETED"
)

// Event 是一次发布的事件实例。
type Event struct {
	Type       Type
	Data       any
	OccurredAt time.Time
}

// Handler 处理一个事件。处理器内部的 panic 由总线捕获并记录，
// 不会影响其他处理器。
type Handler func(evt Event)

// MessagePayload 对应 MESSAGE_RECEIVED。
type MessagePayload struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// TaskPayload 对应 TASK_STARTED / TASK_COMPLETED / TASK_FAILED。
type TaskPayload struct {
	TaskID      string `json:"task_id"`
	PlanID      string `json:"plan_id"`
	Description string `json:"description"`
	Result      string `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PlanPayload 对应 TASK_PLAN_STARTED / UPDATED / COMPLETED。
type PlanPayload struct {
	PlanID   string `json:"plan_id"`
	UserID   string `json:"user_id"`
	Markdown string `json:"markdown,omitempty"`
	Results  string `json:"results,omitempty"`
}

// ProcessingPayload 对应 MESSAGE_PROCESSING_STARTED / COMPLETED。
type ProcessingPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Processor string `json:"processor"`
}
