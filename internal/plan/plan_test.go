package plan

import (
	"strings"
	"testing"

	"SuiChat-Agent/internal/command"
)

func TestPlanIsCompleted(t *testing.T) {
	taskPlan := New("u1", "查询余额")
	first := taskPlan.Append("第一步", command.QueryRoleData)
	second := taskPlan.Append("第二步", command.GetTokensSummary)

	if taskPlan.IsCompleted() {
		t.Fatalf("plan with pending tasks must not be completed")
	}

	if err := first.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taskPlan.IsCompleted() {
		t.Fatalf("plan with a running task must not be completed")
	}
	if err := first.Complete("ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := second.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := second.Fail("网络错误"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// completed 与 failed 都是终态，计划整体视为结束。
	if !taskPlan.IsCompleted() {
		t.Fatalf("plan with all tasks terminal must be completed")
	}
}

func TestTaskTransitionsAreMonotonic(t *testing.T) {
	taskPlan := New("u1", "hi")
	task := taskPlan.Append("任务", command.None)

	if err := task.Complete("early"); err == nil {
		t.Fatalf("completing a pending task must fail")
	}
	if err := task.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := task.Start(); err == nil {
		t.Fatalf("starting a running task must fail")
	}
	if err := task.Complete("done"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := task.Fail("late"); err == nil {
		t.Fatalf("terminal task must reject further transitions")
	}
	if task.Status != StatusCompleted || task.Result != "done" {
		t.Fatalf("terminal state mutated: %+v", task)
	}
}

func TestNextPendingFollowsInsertionOrder(t *testing.T) {
	taskPlan := New("u1", "hi")
	first := taskPlan.Append("a", "")
	second := taskPlan.Append("b", "")

	if got := taskPlan.NextPending(); got != first {
		t.Fatalf("expected first task, got %+v", got)
	}
	_ = first.Start()
	_ = first.Complete("ok")
	if got := taskPlan.NextPending(); got != second {
		t.Fatalf("expected second task, got %+v", got)
	}
	_ = second.Start()
	_ = second.Fail("err")
	if got := taskPlan.NextPending(); got != nil {
		t.Fatalf("expected no pending task, got %+v", got)
	}
}

func TestMarkdownSnapshot(t *testing.T) {
	taskPlan := New("u1", "hi")
	done := taskPlan.Append("已完成", command.QueryRoleData)
	_ = done.Start()
	_ = done.Complete("ok")
	taskPlan.Append("待执行", "")

	snapshot := taskPlan.Markdown()
	if !strings.Contains(snapshot, "[x] 1. 已完成 (`queryRoleData`)") {
		t.Fatalf("completed task missing from snapshot:\n%s", snapshot)
	}
	if !strings.Contains(snapshot, "[ ] 2. 待执行") {
		t.Fatalf("pending task missing from snapshot:\n%s", snapshot)
	}
}
