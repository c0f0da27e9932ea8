package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ccnxgo/ccnsync/ccnsync"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ccnsyncd.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
DataDir = "/tmp/custom"
ListenAddr = ":9999"
Peers = ["ws://peer1:7940", "ws://peer2:7940"]

[Engine]
HeartbeatInterval = "2s"
NodeSplitTrigger = 1234
`)

	cfg := defaultCcnsyncdConfig()
	if err := loadConfig(path, &cfg); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.DataDir != "/tmp/custom" {
		t.Fatalf("DataDir = %q, want /tmp/custom", cfg.DataDir)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("ListenAddr = %q, want :9999", cfg.ListenAddr)
	}
	if len(cfg.Peers) != 2 {
		t.Fatalf("Peers = %v, want 2 entries", cfg.Peers)
	}

	engineCfg := cfg.Engine.toEngineConfig()
	if engineCfg.HeartbeatInterval != 2*time.Second {
		t.Fatalf("HeartbeatInterval = %v, want 2s", engineCfg.HeartbeatInterval)
	}
	if engineCfg.NodeSplitTrigger != 1234 {
		t.Fatalf("NodeSplitTrigger = %d, want 1234", engineCfg.NodeSplitTrigger)
	}
	// Untouched fields must still come from DefaultConfig.
	if engineCfg.MaxFetchBusy != ccnsync.DefaultConfig().MaxFetchBusy {
		t.Fatalf("MaxFetchBusy = %d, want the default", engineCfg.MaxFetchBusy)
	}
}

func TestDurOrFallsBackOnEmptyOrInvalid(t *testing.T) {
	if got := durOr("", 5*time.Second); got != 5*time.Second {
		t.Fatalf("durOr(\"\", 5s) = %v, want 5s", got)
	}
	if got := durOr("not-a-duration", 5*time.Second); got != 5*time.Second {
		t.Fatalf("durOr(invalid, 5s) = %v, want 5s", got)
	}
	if got := durOr("10ms", 5*time.Second); got != 10*time.Millisecond {
		t.Fatalf("durOr(\"10ms\", ...) = %v, want 10ms", got)
	}
}

func TestToEngineConfigLeavesUnsetFieldsAtDefault(t *testing.T) {
	var empty engineTomlConfig
	got := empty.toEngineConfig()
	if got.NodeSplitTrigger != ccnsync.DefaultConfig().NodeSplitTrigger {
		t.Fatalf("unset NodeSplitTrigger should keep the default")
	}
}
