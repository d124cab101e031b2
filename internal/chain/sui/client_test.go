package sui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newRPCServer 返回按 method 路由的假 Sui 节点。
func newRPCServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req struct {
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		body, ok := responses[req.Method]
		if !ok {
			body = `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestGetRoleData(t *testing.T) {
	server := newRPCServer(t, map[string]string{
		"sui_getObject": `{"jsonrpc":"2.0","id":1,"result":{"data":{"content":{"fields":{
			"name":"勇者",
			"balance":"115792089237316195423570985008687907853269984665640564039457584007913129639935",
			"health":"100",
			"is_active":true,
			"is_locked":false,
			"skills":["0xskill1","0xskill2"]
		}}}}}`,
	})
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	role, err := client.GetRoleData(context.Background(), "0xrole")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role.Name != "勇者" || !role.IsActive || role.IsLocked {
		t.Fatalf("unexpected role: %+v", role)
	}
	if role.Balance.String() != "115792089237316195423570985008687907853269984665640564039457584007913129639935" {
		t.Fatalf("256-bit balance lost precision: %s", role.Balance)
	}
	if len(role.Skills) != 2 || role.Skills[0] != "0xskill1" {
		t.Fatalf("unexpected skills: %v", role.Skills)
	}
}

func TestGetRoleDataMissingObject(t *testing.T) {
	server := newRPCServer(t, map[string]string{
		"sui_getObject": `{"jsonrpc":"2.0","id":1,"result":{"error":{"code":"notExists"}}}`,
	})
	defer server.Close()

	client, _ := NewClient(Config{RPCURL: server.URL})
	if _, err := client.GetRoleData(context.Background(), "0xmissing"); err == nil {
		t.Fatalf("expected error for missing object")
	}
}

func TestGetBalance(t *testing.T) {
	server := newRPCServer(t, map[string]string{
		"suix_getBalance": `{"jsonrpc":"2.0","id":1,"result":{"coinType":"0x2::sui::SUI","totalBalance":"987654321"}}`,
	})
	defer server.Close()

	client, _ := NewClient(Config{RPCURL: server.URL})
	balance, err := client.GetBalance(context.Background(), "0xowner", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.String() != "987654321" {
		t.Fatalf("unexpected balance: %s", balance)
	}
}

func TestGetAllBalances(t *testing.T) {
	server := newRPCServer(t, map[string]string{
		"suix_getAllBalances": `{"jsonrpc":"2.0","id":1,"result":[
			{"coinType":"0x2::sui::SUI","coinObjectCount":2,"totalBalance":"1000"},
			{"coinType":"0xdead::usdc::USDC","coinObjectCount":1,"totalBalance":"42"}
		]}`,
	})
	defer server.Close()

	client, _ := NewClient(Config{RPCURL: server.URL})
	balances, err := client.GetAllBalances(context.Background(), "0xowner")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(balances))
	}
	if balances[0].CoinType != "0x2::sui::SUI" || balances[0].TotalBalance.String() != "1000" {
		t.Fatalf("unexpected balance: %+v", balances[0])
	}
}

func TestCallSurfacesRPCErrors(t *testing.T) {
	server := newRPCServer(t, nil)
	defer server.Close()

	client, _ := NewClient(Config{RPCURL: server.URL})
	if _, err := client.GetAllBalances(context.Background(), "0xowner"); err == nil {
		t.Fatalf("expected RPC error to surface")
	}
}

func TestParseBig(t *testing.T) {
	if parseBig("123").String() != "123" {
		t.Fatalf("plain decimal failed")
	}
	if parseBig("not-a-number").String() != "0" {
		t.Fatalf("invalid input must fold to zero")
	}
	if parseBig("").String() != "0" {
		t.Fatalf("empty input must fold to zero")
	}
}

func TestGetRoleDataNestedSkillObjects(t *testing.T) {
	server := newRPCServer(t, map[string]string{
		"sui_getObject": `{"jsonrpc":"2.0","id":1,"result":{"data":{"content":{"fields":{
			"name":"法师","balance":"1","health":"1","is_active":true,
			"skills":[{"fields":{"id":{"id":"0xnested"}}}]
		}}}}}`,
	})
	defer server.Close()

	client, _ := NewClient(Config{RPCURL: server.URL})
	role, err := client.GetRoleData(context.Background(), "0xrole")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(role.Skills) != 1 || role.Skills[0] != "0xnested" {
		t.Fatalf("nested skill id not extracted: %v", role.Skills)
	}
}
