package command

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		token string
		want  Command
		ok    bool
	}{
		{"queryRoleData", QueryRoleData, true},
		{"getTokensSummary", GetTokensSummary, true},
		{"none", None, true},
		{"NONE", None, true},
		{" None ", None, true},
		// none 之外的令牌区分大小写。
		{"QUERYROLEDATA", "", false},
		{"transfer", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.token)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Parse(%q) = %q,%v; want %q,%v", tc.token, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExtractMultipleMarkers(t *testing.T) {
	text := "我先看看角色 $execute:queryRoleData 然后统计代币 $execute: getTokensSummary 就这样。"
	got := Extract(text)
	want := []Command{QueryRoleData, GetTokensSummary}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract = %v, want %v", got, want)
	}
}

func TestExtractIgnoresUnknownTokens(t *testing.T) {
	text := "$execute:transfer $execute:getWallet"
	got := Extract(text)
	want := []Command{GetWallet}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract = %v, want %v", got, want)
	}
}

func TestExtractNoMarkers(t *testing.T) {
	if got := Extract("没有任何标记的普通回复"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestHasMarker(t *testing.T) {
	if !HasMarker("前缀 $execute:anything 后缀") {
		t.Fatalf("expected marker to be detected")
	}
	if HasMarker("execute:getWallet 缺少美元符号") {
		t.Fatalf("marker without $ prefix must not match")
	}
}
