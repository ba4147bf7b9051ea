package main

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Timeout != defaultTimeout {
		t.Fatalf("expected default timeout %s, got %s", defaultTimeout, cfg.Timeout)
	}
	if cfg.ShellPoolSize != defaultShellPoolSize {
		t.Fatalf("expected default shell pool size %d, got %d", defaultShellPoolSize, cfg.ShellPoolSize)
	}
	if cfg.MaxShells != defaultMaxShells {
		t.Fatalf("expected default max shells %d, got %d", defaultMaxShells, cfg.MaxShells)
	}
	if cfg.DisableShellPools || cfg.Synchronous {
		t.Fatal("expected pooling enabled and synchronous mode off by default")
	}
	if len(cfg.DisabledTools) != 0 {
		t.Fatalf("expected no disabled tools by default, got %v", cfg.DisabledTools)
	}
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{"--timeout", "42", "--shell-pool-size", "7", "--max-shells", "9", "--disable-shell-pools", "--synchronous"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Timeout != 42*time.Second {
		t.Fatalf("expected timeout 42s, got %s", cfg.Timeout)
	}
	if cfg.ShellPoolSize != 7 {
		t.Fatalf("expected shell pool size 7, got %d", cfg.ShellPoolSize)
	}
	if cfg.MaxShells != 9 {
		t.Fatalf("expected max shells 9, got %d", cfg.MaxShells)
	}
	if !cfg.DisableShellPools {
		t.Fatal("expected shell pools disabled")
	}
	if !cfg.Synchronous {
		t.Fatal("expected synchronous mode on")
	}
}

func TestLoadDisableToolRepeatableFlag(t *testing.T) {
	cfg, err := Load([]string{"--disable-tool", "clean", "--disable-tool", "audit"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.DisabledTools["clean"] || !cfg.DisabledTools["audit"] {
		t.Fatalf("expected clean and audit disabled, got %v", cfg.DisabledTools)
	}
	if cfg.DisabledTools["build"] {
		t.Fatal("did not expect build to be disabled")
	}
}

func TestLoadEnvVarFallback(t *testing.T) {
	t.Setenv("CARGO_MCP_TIMEOUT_SECS", "55")
	t.Setenv("CARGO_MCP_SHELL_POOL_SIZE", "3")
	t.Setenv("CARGO_MCP_SYNCHRONOUS", "true")
	t.Setenv("CARGO_MCP_DISABLED_TOOLS", "fmt, doc")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Timeout != 55*time.Second {
		t.Fatalf("expected timeout 55s from env, got %s", cfg.Timeout)
	}
	if cfg.ShellPoolSize != 3 {
		t.Fatalf("expected shell pool size 3 from env, got %d", cfg.ShellPoolSize)
	}
	if !cfg.Synchronous {
		t.Fatal("expected synchronous mode on from env")
	}
	if !cfg.DisabledTools["fmt"] || !cfg.DisabledTools["doc"] {
		t.Fatalf("expected fmt and doc disabled from env, got %v", cfg.DisabledTools)
	}
}

func TestLoadFlagsWinOverEnvVars(t *testing.T) {
	t.Setenv("CARGO_MCP_TIMEOUT_SECS", "55")

	cfg, err := Load([]string{"--timeout", "10"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Timeout != 10*time.Second {
		t.Fatalf("expected the explicit flag (10s) to win over the env var (55s), got %s", cfg.Timeout)
	}
}
