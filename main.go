// main.go is the entrypoint for the cargo MCP server.
//
// This server is designed to be spawned by an MCP client as a subprocess.
// It communicates over stdin/stdout using the MCP protocol (JSON-RPC) and
// mediates long-running `cargo` build/test/lint invocations through a
// pool of pre-warmed shells, so a client can dispatch work without
// blocking on it.
//
// The server exposes the cargo subcommand tools (build/check/test/
// nextest/clippy/fmt/doc/run/clean/audit/add/remove/update/upgrade/
// version/tree/metadata), a generic run tool for diagnostics, and the
// status/wait/cancel control tools for managing in-flight operations.
//
// Configuration via CLI flags (see config.go) or CARGO_MCP_* environment
// variables: --timeout, --shell-pool-size, --max-shells,
// --disable-shell-pools, --synchronous, --disable-tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/paulirotta/async-cargo-mcp/operation"
	"github.com/paulirotta/async-cargo-mcp/shell"
)

const serverInstructions = `This server mediates cargo build/test/lint commands through a pooled-shell execution engine.

Every cargo tool and the run tool take working_directory (absolute path, required). Long-running tools accept enable_async_notification: set it true to get an operation id back immediately and the result later as a progress notification, or leave it false (default) to block inline for the result.

Mutating tools (add, remove, update, upgrade) and quick inline-read tools (version, tree, metadata) always run synchronously regardless of enable_async_notification.

Use status to poll tracked operations, wait to block for one or more operation ids to finish, and cancel to abort a pending or running operation. Prefer wait over repeated status polling for a single operation you're actively waiting on.`

func main() {
	log := newLogger(slog.LevelInfo)

	cfg, err := Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	poolCfg := shell.DefaultConfig()
	poolCfg.Enabled = !cfg.DisableShellPools
	poolCfg.ShellsPerDirectory = cfg.ShellPoolSize
	poolCfg.MaxTotalShells = cfg.MaxShells
	pool := shell.NewManager(poolCfg, log)

	monitor := operation.NewMonitor(operation.Config{DefaultTimeout: cfg.Timeout})

	dispatcher := NewDispatcher(pool, monitor, cfg, log)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "async-cargo-mcp",
		Version: "0.1.0",
	}, &mcp.ServerOptions{
		Instructions: serverInstructions,
	})

	registerCargoTools(s, dispatcher)
	registerRunTool(s, dispatcher)
	registerStatusTool(s, dispatcher)
	registerWaitTool(s, dispatcher)
	registerCancelTool(s, dispatcher)

	serverErr := s.Run(context.Background(), &mcp.StdioTransport{})

	// Graceful shutdown: cancel in-flight operations, tear down every
	// pooled shell, and stop the Monitor's retention sweep so we don't
	// leave orphaned bash children behind.
	monitor.Shutdown()
	pool.Shutdown()

	if serverErr != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", serverErr)
		os.Exit(1)
	}
}
