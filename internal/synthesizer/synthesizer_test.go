package synthesizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"SuiChat-Agent/internal/command"
	"SuiChat-Agent/internal/llm"
)

type scriptedLLM struct {
	outputs []string
	errs    []error
	calls   int
}

func (s *scriptedLLM) Complete(context.Context, llm.Request) (string, error) {
	idx := s.calls
	s.calls++
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	var output string
	if idx < len(s.outputs) {
		output = s.outputs[idx]
	}
	return output, err
}

func TestSynthesizeReturnsModelOutput(t *testing.T) {
	s := New(&scriptedLLM{outputs: []string{"您的角色余额为 100 SUI。"}})
	reply := s.Synthesize(context.Background(), "余额多少", "角色余额 100", nil)
	if reply != "您的角色余额为 100 SUI。" {
		t.Fatalf("unexpected reply: %s", reply)
	}
}

func TestSynthesizeFallsBackOnFailure(t *testing.T) {
	s := New(&scriptedLLM{errs: []error{errors.New("llm down")}})
	reply := s.Synthesize(context.Background(), "余额多少", "角色余额 100", nil)
	if !strings.Contains(reply, "角色余额 100") {
		t.Fatalf("fallback must carry raw results, got: %s", reply)
	}
}

func TestSynthesizeWithoutClient(t *testing.T) {
	s := New(nil)
	if reply := s.Synthesize(context.Background(), "hi", "", nil); reply != DegradedReply {
		t.Fatalf("expected degraded reply, got: %s", reply)
	}
}

func TestSelectFreeTextRetriesUntilMarker(t *testing.T) {
	client := &scriptedLLM{outputs: []string{
		"让我想想",
		"我来查一下 $execute:queryRoleData",
	}}
	s := New(client)

	commands, text := s.SelectFreeText(context.Background(), "余额", nil)
	if client.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", client.calls)
	}
	if len(commands) != 1 || commands[0] != command.QueryRoleData {
		t.Fatalf("unexpected commands: %v", commands)
	}
	if !strings.Contains(text, "$execute:queryRoleData") {
		t.Fatalf("unexpected text: %s", text)
	}
}

func TestSelectFreeTextExhaustionAddsWarningPrefix(t *testing.T) {
	client := &scriptedLLM{outputs: []string{
		"没有标记的回答一",
		"没有标记的回答二",
		"没有标记的回答三",
	}}
	s := New(client)

	commands, text := s.SelectFreeText(context.Background(), "你好", nil)
	if client.calls != defaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultMaxAttempts, client.calls)
	}
	if len(commands) != 1 || commands[0] != command.None {
		t.Fatalf("exhaustion must collapse to none, got %v", commands)
	}
	if !strings.HasPrefix(text, UnverifiedPrefix) {
		t.Fatalf("expected warning prefix, got: %s", text)
	}
	if !strings.Contains(text, "没有标记的回答三") {
		t.Fatalf("expected last output after prefix, got: %s", text)
	}
}

func TestSelectFreeTextFabricationGuard(t *testing.T) {
	// 没有任何标记却报出了余额数字，必须折叠到降级回复。
	client := &scriptedLLM{outputs: []string{
		"您的余额是 9999 SUI",
		"您的余额是 9999 SUI",
		"您的余额是 9999 SUI",
	}}
	s := New(client)

	commands, text := s.SelectFreeText(context.Background(), "余额", nil)
	if len(commands) != 1 || commands[0] != command.None {
		t.Fatalf("expected none path, got %v", commands)
	}
	if text != DegradedReply {
		t.Fatalf("fabricated numbers must degrade, got: %s", text)
	}
}

func TestSelectFreeTextAllAttemptsFail(t *testing.T) {
	client := &scriptedLLM{errs: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"),
	}}
	s := New(client)

	commands, text := s.SelectFreeText(context.Background(), "你好", nil)
	if len(commands) != 1 || commands[0] != command.None || text != DegradedReply {
		t.Fatalf("expected full degradation, got %v / %s", commands, text)
	}
}

func TestWithMaxAttempts(t *testing.T) {
	client := &scriptedLLM{outputs: []string{"a", "b", "c", "d", "e"}}
	s := New(client, WithMaxAttempts(5))

	s.SelectFreeText(context.Background(), "你好", nil)
	if client.calls != 5 {
		t.Fatalf("expected 5 attempts, got %d", client.calls)
	}
}

func TestFabricated(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"您的余额是 123", true},
		{"balance: 42", true},
		{"生命值还剩 80", true},
		{"您持有 3.5 SUI", true},
		{"查询中，请稍候", false},
		{"$execute:queryRoleData 您的余额是 123", false},
	}
	for _, tc := range cases {
		if got := Fabricated(tc.text); got != tc.want {
			t.Fatalf("Fabricated(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
