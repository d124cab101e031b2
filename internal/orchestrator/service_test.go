package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"SuiChat-Agent/internal/command"
	xerrors "SuiChat-Agent/internal/errors"
	"SuiChat-Agent/internal/events"
	"SuiChat-Agent/internal/executor"
	"SuiChat-Agent/internal/llm"
	"SuiChat-Agent/internal/observability/alerting"
	"SuiChat-Agent/internal/planner"
	"SuiChat-Agent/internal/storage"
	"SuiChat-Agent/internal/synthesizer"
)

type stubClassifier struct {
	commands []command.Command
}

func (s *stubClassifier) Classify(context.Context, string, []llm.Round) ([]command.Command, error) {
	return s.commands, nil
}

type stubLLM struct {
	reply string
}

func (s *stubLLM) Complete(context.Context, llm.Request) (string, error) {
	return s.reply, nil
}

type recordingAlerts struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingAlerts) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func newTestService(t *testing.T, runner executor.Runner, replyLLM llm.Client,
	opts ...Option) (*Service, *events.Bus, storage.Store) {
	t.Helper()
	bus := events.NewBus()
	store, err := storage.NewMemoryStore("")
	if err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	taskPlanner := planner.New(&stubClassifier{commands: []command.Command{command.GetProfile}})
	exec := executor.New(bus, runner)
	synth := synthesizer.New(replyLLM)
	return New(bus, store, taskPlanner, exec, synth, opts...), bus, store
}

func okRunner(_ context.Context, cmd command.Command, _ string) (string, error) {
	if cmd == command.None {
		return command.NoCommandResult, nil
	}
	return "结果:" + string(cmd), nil
}

func TestHandleMessageEndToEnd(t *testing.T) {
	service, bus, store := newTestService(t, okRunner, &stubLLM{reply: "您的档案已查到。"})
	ctx := context.Background()

	var published []events.Type
	for _, eventType := range []events.Type{
		events.MessageReceived, events.TaskPlanStarted, events.TaskPlanCompleted,
		events.MessageProcessingStarted, events.MessageProcessingCompleted,
	} {
		eventType := eventType
		bus.Subscribe(eventType, func(events.Event) { published = append(published, eventType) })
	}

	reply, err := service.HandleMessage(ctx, "m1", "u1", "我的档案")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "您的档案已查到。" {
		t.Fatalf("unexpected reply: %s", reply)
	}

	counts := make(map[events.Type]int)
	for _, eventType := range published {
		counts[eventType]++
	}
	for _, eventType := range []events.Type{
		events.MessageReceived, events.TaskPlanStarted, events.TaskPlanCompleted,
		events.MessageProcessingStarted, events.MessageProcessingCompleted,
	} {
		if counts[eventType] != 1 {
			t.Fatalf("event %s published %d times, want 1", eventType, counts[eventType])
		}
	}

	// 本轮的一问一答都已落库。
	history, err := store.GetConversationHistory(ctx, "u1", 10)
	if err != nil || len(history) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d err=%v", len(history), err)
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %+v", history)
	}

	// 处理已完成，等待原语立即放行。
	if !bus.WaitForProcessingCompleted(ctx, "m1", "u1", time.Second) {
		t.Fatalf("processing record should be completed")
	}
}

func TestHandleMessageRejectsDuplicate(t *testing.T) {
	release := make(chan struct{})
	blockingRunner := func(context.Context, command.Command, string) (string, error) {
		<-release
		return "ok", nil
	}
	service, _, _ := newTestService(t, blockingRunner, &stubLLM{reply: "done"})
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := service.HandleMessage(ctx, "m1", "u1", "查询")
		errCh <- err
	}()

	// 等第一个编排流程拿到准入。
	time.Sleep(30 * time.Millisecond)
	_, err := service.HandleMessage(ctx, "m1", "u1", "查询")
	if xerrors.CodeOf(err) != xerrors.CodeConflict {
		t.Fatalf("duplicate must be rejected with conflict, got %v", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestHandleMessageAlertsOnTaskFailure(t *testing.T) {
	failingRunner := func(_ context.Context, cmd command.Command, _ string) (string, error) {
		if cmd == command.GetProfile {
			return "", xerrors.New(xerrors.CodeChainFailure, "链上读取失败")
		}
		return command.NoCommandResult, nil
	}
	alerts := &recordingAlerts{}
	service, _, _ := newTestService(t, failingRunner, &stubLLM{reply: "done"}, WithAlerts(alerts))

	if _, err := service.HandleMessage(context.Background(), "m1", "u1", "我的档案"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	if len(alerts.events) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts.events))
	}
	if !strings.Contains(alerts.events[0].Message, "链上读取失败") {
		t.Fatalf("alert missing failure cause: %+v", alerts.events[0])
	}
}

func TestHandleMessageCompletesEvenWhenSynthesisDegrades(t *testing.T) {
	// 没有补全客户端时合成走降级路径，完成标记仍必须落下。
	service, bus, _ := newTestService(t, okRunner, nil)
	ctx := context.Background()

	reply, err := service.HandleMessage(ctx, "m1", "u1", "我的档案")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "结果:getProfile") {
		t.Fatalf("degraded reply should carry raw results: %s", reply)
	}
	if !bus.WaitForProcessingCompleted(ctx, "m1", "u1", time.Second) {
		t.Fatalf("completion must be recorded on the degraded path")
	}
}

func TestHandleMessageAlertsOnDegradedReply(t *testing.T) {
	alerts := &recordingAlerts{}
	// 无补全客户端，合成必然降级。
	service, _, _ := newTestService(t, okRunner, nil, WithAlerts(alerts))

	if _, err := service.HandleMessage(context.Background(), "m1", "u1", "我的档案"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	if len(alerts.events) != 1 {
		t.Fatalf("expected 1 degradation alert, got %d", len(alerts.events))
	}
	if alerts.events[0].Code != xerrors.CodeCompletionFailure {
		t.Fatalf("unexpected alert code: %s", alerts.events[0].Code)
	}
}

func TestHandleMessageUsesConversationHistory(t *testing.T) {
	var captured []llm.Round
	recording := &historyRecordingLLM{reply: "好的", captured: &captured}
	service, _, store := newTestService(t, okRunner, recording)
	ctx := context.Background()

	_ = store.SaveMessage(ctx, storage.Message{ID: "h1", UserID: "u1", Role: "user", Content: "上一轮问题"})
	_ = store.SaveMessage(ctx, storage.Message{ID: "h2", UserID: "u1", Role: "assistant", Content: "上一轮回答"})

	if _, err := service.HandleMessage(ctx, "m1", "u1", "这轮的问题"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, round := range captured {
		if round.Content == "上一轮回答" {
			found = true
		}
	}
	if !found {
		t.Fatalf("history rounds not passed to synthesis: %+v", captured)
	}
}

type historyRecordingLLM struct {
	reply    string
	captured *[]llm.Round
}

func (h *historyRecordingLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	*h.captured = append(*h.captured, req.History...)
	return h.reply, nil
}
