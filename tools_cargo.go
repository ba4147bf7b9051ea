// tools_cargo.go registers the cargo-facing tools. Each is a thin
// translator from typed MCP arguments into a generic Request — the
// Dispatcher never sees cargo subcommand names, only a pre-built argv and
// an AlwaysSync flag (spec §1: "the shape of a tool invocation, not the
// semantics of cargo build vs cargo clippy").
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CargoArgs is the common input shape every cargo-subcommand tool shares.
type CargoArgs struct {
	WorkingDirectory        string   `json:"working_directory" jsonschema:"Absolute path to the cargo project directory"`
	Args                    []string `json:"args,omitempty" jsonschema:"Extra arguments appended to the cargo invocation, e.g. [\"--release\"]"`
	EnableAsyncNotification bool     `json:"enable_async_notification,omitempty" jsonschema:"Return an operation id immediately and push the result as a progress notification instead of blocking"`
	TimeoutSecs             int      `json:"timeout_secs,omitempty" jsonschema:"Override the default operation timeout, in seconds"`
}

// CargoOutput is the common output shape for a completed (or immediately
// acknowledged) cargo-subcommand tool call.
type CargoOutput struct {
	OperationID string `json:"operation_id"`
	Started     bool   `json:"started,omitempty"` // true for an async acknowledgement; false once truly terminal
	ExitCode    int    `json:"exit_code,omitempty"`
	Stdout      string `json:"stdout,omitempty"`
	Stderr      string `json:"stderr,omitempty"`
	Hint        string `json:"hint,omitempty"`
	Error       string `json:"error,omitempty"`
}

// cargoTool describes one cargo subcommand's registration: its argv
// prefix and whether it belongs on the always-synchronous list.
type cargoTool struct {
	name        string
	description string
	subcommand  []string
	alwaysSync  bool
}

var cargoTools = []cargoTool{
	{"build", "Compile the current package and its dependencies with `cargo build`. Blocks for the result inline by default; set enable_async_notification=true to get an operation id back immediately on large projects.", []string{"cargo", "build"}, false},
	{"check", "Type-check the current package without producing binaries, via `cargo check`. Much faster than build; good for quick feedback loops.", []string{"cargo", "check"}, false},
	{"test", "Run the project's test suite with `cargo test`. Can take a long time on large suites — prefer enable_async_notification=true.", []string{"cargo", "test"}, false},
	{"nextest", "Run the project's test suite with `cargo nextest run`, if the nextest subcommand is installed. Typically faster and more parallel than `cargo test`.", []string{"cargo", "nextest", "run"}, false},
	{"clippy", "Lint the project with `cargo clippy`.", []string{"cargo", "clippy"}, false},
	{"fmt", "Format the project's source with `cargo fmt`.", []string{"cargo", "fmt"}, false},
	{"doc", "Build the project's documentation with `cargo doc`.", []string{"cargo", "doc"}, false},
	{"cargo_run", "Build and run the project's default binary with `cargo run`.", []string{"cargo", "run"}, false},
	{"clean", "Remove build artifacts with `cargo clean`.", []string{"cargo", "clean"}, false},
	{"audit", "Audit dependencies for known security advisories with `cargo audit`, if installed.", []string{"cargo", "audit"}, false},
	// always-synchronous: mutating dependency tools.
	{"add", "Add a dependency to Cargo.toml with `cargo add`. Always runs synchronously — the caller needs the resulting manifest state before proceeding.", []string{"cargo", "add"}, true},
	{"remove", "Remove a dependency from Cargo.toml with `cargo remove`. Always runs synchronously.", []string{"cargo", "remove"}, true},
	{"update", "Update Cargo.lock with `cargo update`. Always runs synchronously.", []string{"cargo", "update"}, true},
	{"upgrade", "Upgrade dependency version requirements with `cargo upgrade`, if installed. Always runs synchronously.", []string{"cargo", "upgrade"}, true},
	// always-synchronous: inline-read tools.
	{"version", "Print the installed cargo version with `cargo version`. Always runs synchronously — trivially fast.", []string{"cargo", "version"}, true},
	{"tree", "Print the dependency tree with `cargo tree`. Always runs synchronously.", []string{"cargo", "tree"}, true},
	{"metadata", "Print package metadata as JSON with `cargo metadata --format-version 1`. Always runs synchronously.", []string{"cargo", "metadata", "--format-version", "1"}, true},
}

// registerCargoTools adds every cargo subcommand tool to s, each bound to
// d for dispatch.
func registerCargoTools(s *mcp.Server, d *Dispatcher) {
	for _, ct := range cargoTools {
		ct := ct
		mcp.AddTool(s, &mcp.Tool{
			Name:        ct.name,
			Description: ct.description,
		}, func(ctx context.Context, req *mcp.CallToolRequest, in CargoArgs) (*mcp.CallToolResult, CargoOutput, error) {
			return dispatchCargoTool(ctx, req, d, ct, in)
		})
	}
}

func dispatchCargoTool(ctx context.Context, req *mcp.CallToolRequest, d *Dispatcher, ct cargoTool, in CargoArgs) (*mcp.CallToolResult, CargoOutput, error) {
	argv := append(append([]string(nil), ct.subcommand...), in.Args...)

	var timeout time.Duration
	if in.TimeoutSecs > 0 {
		timeout = time.Duration(in.TimeoutSecs) * time.Second
	}

	dreq := Request{
		ToolName:         ct.name,
		Description:      ct.description,
		WorkingDirectory: in.WorkingDirectory,
		Argv:             argv,
		AlwaysSync:       ct.alwaysSync,
		EnableAsync:      in.EnableAsyncNotification,
		Timeout:          timeout,
	}

	sink := sinkFromRequest(req)
	sync, async, err := d.Dispatch(ctx, dreq, sink)
	if err != nil {
		out := CargoOutput{Error: err.Error()}
		return textResult(fmt.Sprintf("%s failed: %s", ct.name, err.Error())), out, nil
	}
	if async != nil {
		out := CargoOutput{OperationID: async.OperationID, Started: true, Hint: async.Hint}
		return textResult(async.Hint), out, nil
	}

	out := CargoOutput{
		OperationID: sync.OperationID,
		ExitCode:    sync.ExitCode,
		Stdout:      sync.Stdout,
		Stderr:      sync.Stderr,
	}
	text := fmt.Sprintf("exit_code=%d\nstdout:\n%s\nstderr:\n%s", sync.ExitCode, sync.Stdout, sync.Stderr)
	if sync.ErrKind != "" {
		out.Error = sync.ErrMsg
		text = fmt.Sprintf("%s: %s", sync.ErrKind, sync.ErrMsg)
	}
	return textResult(text), out, nil
}

// textResult wraps s as the single-item content array every tool response
// carries, per spec §4.5.
func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: s}},
	}
}

// sinkFromRequest builds a ProgressSink bound to the calling session, or a
// no-op sink if the request carries no session (e.g. a direct unit test).
func sinkFromRequest(req *mcp.CallToolRequest) ProgressSink {
	if req == nil || req.Session == nil {
		return noopSink{}
	}
	return NewSessionSink(req.Session)
}
