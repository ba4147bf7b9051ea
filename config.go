// config.go reads the engine's configuration once at startup: CLI flags
// via pflag, merged with CARGO_MCP_* environment variables (flags win).
// Generalizes the teacher's per-value getDefaultModel() env-fallback into
// one Load pass covering the whole flag surface.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Config is the engine's process-wide configuration, read once at startup
// and passed explicitly to the Pool Manager, Monitor, and Dispatcher —
// never reached through an ambient global.
type Config struct {
	Timeout           time.Duration
	ShellPoolSize     int
	MaxShells         int
	DisableShellPools bool
	Synchronous       bool
	DisabledTools     map[string]bool
}

const (
	defaultTimeout       = 300 * time.Second
	defaultShellPoolSize = 2
	defaultMaxShells     = 20
)

// Load parses args (typically os.Args[1:]) with pflag, merges in
// CARGO_MCP_* environment variables for anything the flags left at their
// zero value, and returns the resolved Config. Unknown flags are a fatal
// error, matching spec §6's CLI contract.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("async-cargo-mcp", pflag.ContinueOnError)

	timeoutSecs := fs.Int("timeout", 0, "default operation timeout in seconds")
	shellPoolSize := fs.Int("shell-pool-size", 0, "maximum shells (idle and busy) per working directory")
	maxShells := fs.Int("max-shells", 0, "maximum concurrently live shells")
	disablePools := fs.Bool("disable-shell-pools", false, "disable shell pooling; spawn one-shot shells per command")
	synchronous := fs.Bool("synchronous", false, "force every tool call to run synchronously, ignoring enable_async_notification")
	disabledTools := fs.StringArray("disable-tool", nil, "disable a tool by name (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	cfg := &Config{
		Timeout:           envDuration("CARGO_MCP_TIMEOUT_SECS", defaultTimeout),
		ShellPoolSize:     envInt("CARGO_MCP_SHELL_POOL_SIZE", defaultShellPoolSize),
		MaxShells:         envInt("CARGO_MCP_MAX_SHELLS", defaultMaxShells),
		DisableShellPools: envBool("CARGO_MCP_DISABLE_SHELL_POOLS", false),
		Synchronous:       envBool("CARGO_MCP_SYNCHRONOUS", false),
		DisabledTools:     envToolSet("CARGO_MCP_DISABLED_TOOLS"),
	}

	if *timeoutSecs > 0 {
		cfg.Timeout = time.Duration(*timeoutSecs) * time.Second
	}
	if *shellPoolSize > 0 {
		cfg.ShellPoolSize = *shellPoolSize
	}
	if *maxShells > 0 {
		cfg.MaxShells = *maxShells
	}
	if *disablePools {
		cfg.DisableShellPools = true
	}
	if *synchronous {
		cfg.Synchronous = true
	}
	for _, name := range *disabledTools {
		cfg.DisabledTools[name] = true
	}

	return cfg, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envToolSet(key string) map[string]bool {
	set := make(map[string]bool)
	v := os.Getenv(key)
	if v == "" {
		return set
	}
	for _, name := range strings.Split(v, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = true
		}
	}
	return set
}
