package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SuiChat-Agent/internal/command"
	"SuiChat-Agent/internal/events"
	"SuiChat-Agent/internal/executor"
	"SuiChat-Agent/internal/llm"
	"SuiChat-Agent/internal/orchestrator"
	"SuiChat-Agent/internal/planner"
	"SuiChat-Agent/internal/storage"
	"SuiChat-Agent/internal/synthesizer"
)

type stubClassifier struct{}

func (stubClassifier) Classify(context.Context, string, []llm.Round) ([]command.Command, error) {
	return []command.Command{command.GetProfile}, nil
}

type stubLLM struct{ reply string }

func (s *stubLLM) Complete(context.Context, llm.Request) (string, error) {
	return s.reply, nil
}

func newTestServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()
	bus := events.NewBus()
	store, err := storage.NewMemoryStore("")
	if err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	runner := func(_ context.Context, cmd command.Command, _ string) (string, error) {
		return "结果:" + string(cmd), nil
	}
	service := orchestrator.New(
		bus,
		store,
		planner.New(stubClassifier{}),
		executor.New(bus, runner),
		synthesizer.New(&stubLLM{reply: "这是最终回复"}),
	)
	return NewServer(":0", bus, service, store, time.Second), store
}

func TestHandleChat(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/chat", "application/json",
		strings.NewReader(`{"user_id":"u1","message":"我的档案"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Reply != "这是最终回复" {
		t.Fatalf("unexpected reply: %s", body.Reply)
	}
	if body.MessageID == "" {
		t.Fatalf("message_id must be assigned")
	}
}

func TestHandleChatValidation(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/chat", "application/json",
		strings.NewReader(`{"user_id":"","message":""}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	getResp, err := http.Get(ts.URL + "/api/v1/chat")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", getResp.StatusCode)
	}
}

func TestHandleHistory(t *testing.T) {
	server, store := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx := context.Background()
	_ = store.SaveMessage(ctx, storage.Message{ID: "m1", UserID: "u1", Role: "user", Content: "问"})
	_ = store.SaveMessage(ctx, storage.Message{ID: "m2", UserID: "u1", Role: "assistant", Content: "答"})

	resp, err := http.Get(ts.URL + "/api/v1/history?user_id=u1&limit=10")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var messages []storage.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "问" || messages[1].Content != "答" {
		t.Fatalf("unexpected history: %+v", messages)
	}
}

func TestHandleHistoryRequiresUserID(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/history")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
