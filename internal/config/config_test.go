package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "suichat.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Address != ":8080" || cfg.Server.WaitTimeoutSeconds != 60 {
		t.Fatalf("server defaults not applied: %+v", cfg.Server)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("storage driver default not applied: %s", cfg.Storage.Driver)
	}
	if cfg.Events.Registry != "memory" || cfg.Relay.Driver != "none" {
		t.Fatalf("driver defaults not applied: %+v %+v", cfg.Events, cfg.Relay)
	}
	if cfg.Chain.Network != "testnet" {
		t.Fatalf("chain network default not applied: %s", cfg.Chain.Network)
	}
	if cfg.Planner.HistoryRounds != 3 {
		t.Fatalf("planner default not applied: %d", cfg.Planner.HistoryRounds)
	}
	// 相对路径基于配置文件所在目录解析。
	if cfg.Chain.Definitions != filepath.Join(filepath.Dir(path), "chains.yaml") {
		t.Fatalf("definitions path not resolved: %s", cfg.Chain.Definitions)
	}
	if cfg.Storage.DataDir != filepath.Join(filepath.Dir(path), "data") {
		t.Fatalf("data dir not resolved: %s", cfg.Storage.DataDir)
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"address": ":9090", "wait_timeout_seconds": 10},
		"storage": {"driver": "mysql", "dsn": "user:pass@tcp(db:3306)/suichat"},
		"events": {"registry": "redis", "redis": {"address": "redis:6379"}},
		"chain": {"network": "mainnet"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Address != ":9090" || cfg.Server.WaitTimeoutSeconds != 10 {
		t.Fatalf("explicit server values overwritten: %+v", cfg.Server)
	}
	if cfg.Storage.Driver != "mysql" || cfg.Storage.DSN == "" {
		t.Fatalf("explicit storage values overwritten: %+v", cfg.Storage)
	}
	if cfg.Events.Registry != "redis" || cfg.Events.Redis.Address != "redis:6379" {
		t.Fatalf("explicit registry values overwritten: %+v", cfg.Events)
	}
	if cfg.Chain.Network != "mainnet" {
		t.Fatalf("explicit network overwritten: %s", cfg.Chain.Network)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{не json`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
