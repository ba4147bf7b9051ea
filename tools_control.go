// tools_control.go registers the status/wait/cancel control tools and a
// generic run tool. Control tools bypass the shell pool and talk directly
// to the Monitor (spec §4.4: "Status and Wait tools are handled directly
// by the Dispatcher against the Monitor, bypassing the shell pool").
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/paulirotta/async-cargo-mcp/operation"
)

// RunArgs is the input for the generic run tool: an arbitrary argv
// against the same engine the cargo tools use, for diagnostics and for
// exercising the Dispatcher independently of any cargo subcommand.
type RunArgs struct {
	WorkingDirectory        string   `json:"working_directory" jsonschema:"Absolute path to run the command in"`
	Argv                    []string `json:"argv" jsonschema:"The full argv to execute, e.g. [\"echo\",\"hello\"]"`
	EnableAsyncNotification bool     `json:"enable_async_notification,omitempty"`
	TimeoutSecs             int      `json:"timeout_secs,omitempty"`
}

// RunOutput mirrors CargoOutput for the generic run tool.
type RunOutput struct {
	OperationID string `json:"operation_id"`
	Started     bool   `json:"started,omitempty"`
	ExitCode    int    `json:"exit_code,omitempty"`
	Stdout      string `json:"stdout,omitempty"`
	Stderr      string `json:"stderr,omitempty"`
	Hint        string `json:"hint,omitempty"`
	Error       string `json:"error,omitempty"`
}

func registerRunTool(s *mcp.Server, d *Dispatcher) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "run",
		Description: "Run an arbitrary command (argv) against the same concurrent execution engine the cargo tools use. Intended for diagnostics and exercising the engine directly, not for general shell access.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in RunArgs) (*mcp.CallToolResult, RunOutput, error) {
		var timeout time.Duration
		if in.TimeoutSecs > 0 {
			timeout = time.Duration(in.TimeoutSecs) * time.Second
		}
		dreq := Request{
			ToolName:         "run",
			Description:      "generic command execution",
			WorkingDirectory: in.WorkingDirectory,
			Argv:             in.Argv,
			EnableAsync:      in.EnableAsyncNotification,
			Timeout:          timeout,
		}
		sync, async, err := d.Dispatch(ctx, dreq, sinkFromRequest(req))
		if err != nil {
			return textResult(err.Error()), RunOutput{Error: err.Error()}, nil
		}
		if async != nil {
			return textResult(async.Hint), RunOutput{OperationID: async.OperationID, Started: true, Hint: async.Hint}, nil
		}
		out := RunOutput{OperationID: sync.OperationID, ExitCode: sync.ExitCode, Stdout: sync.Stdout, Stderr: sync.Stderr}
		text := fmt.Sprintf("exit_code=%d\nstdout:\n%s\nstderr:\n%s", sync.ExitCode, sync.Stdout, sync.Stderr)
		if sync.ErrKind != "" {
			out.Error = sync.ErrMsg
			text = fmt.Sprintf("%s: %s", sync.ErrKind, sync.ErrMsg)
		}
		return textResult(text), out, nil
	})
}

// StatusArgs filters the status listing.
type StatusArgs struct {
	OperationIDs     []string `json:"operation_ids,omitempty" jsonschema:"Restrict the listing to these operation ids"`
	WorkingDirectory string   `json:"working_directory,omitempty" jsonschema:"Restrict the listing to operations in this directory"`
	State            string   `json:"state,omitempty" jsonschema:"Restrict to one state: pending, running, completed, failed, cancelled, timed_out"`
}

// StatusOutput reports aggregate counts plus per-operation views.
type StatusOutput struct {
	Total       int                 `json:"total"`
	Pending     int                 `json:"pending"`
	Running     int                 `json:"running"`
	Completed   int                 `json:"completed"`
	Failed      int                 `json:"failed"`
	Cancelled   int                 `json:"cancelled"`
	TimedOut    int                 `json:"timed_out"`
	SuccessRate float64             `json:"success_rate"`
	FailureRate float64             `json:"failure_rate"`
	Operations  []OperationSnapshot `json:"operations"`
	Hint        string              `json:"hint,omitempty"`
}

// OperationSnapshot is the JSON view of one Operation returned by status
// and wait.
type OperationSnapshot struct {
	ID               string `json:"id"`
	ToolName         string `json:"tool_name"`
	WorkingDirectory string `json:"working_directory"`
	State            string `json:"state"`
	ElapsedSeconds   int    `json:"elapsed_seconds"`
	ExitCode         int    `json:"exit_code,omitempty"`
	Stdout           string `json:"stdout,omitempty"`
	Stderr           string `json:"stderr,omitempty"`
	Error            string `json:"error,omitempty"`
}

func snapshotFromView(v operation.View) OperationSnapshot {
	s := OperationSnapshot{
		ID:               v.ID,
		ToolName:         v.ToolName,
		WorkingDirectory: v.WorkingDirectory,
		State:            string(v.State),
		ElapsedSeconds:   v.ElapsedSeconds,
	}
	if v.Result != nil {
		s.ExitCode = v.Result.ExitCode
		s.Stdout = v.Result.Stdout
		s.Stderr = v.Result.Stderr
		if v.Result.ErrKind != "" {
			s.Error = fmt.Sprintf("%s: %s", v.Result.ErrKind, v.Result.ErrMsg)
		}
	}
	return s
}

func registerStatusTool(s *mcp.Server, d *Dispatcher) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "status",
		Description: "List tracked operations with a summary of counts by state. Filter by operation_ids, working_directory, or state. Polling this repeatedly for a still-running operation is less efficient than using the wait tool.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in StatusArgs) (*mcp.CallToolResult, StatusOutput, error) {
		filter := operation.ListFilter{WorkingDirectory: in.WorkingDirectory}
		if in.State != "" {
			filter.States = []operation.State{operation.State(in.State)}
		}

		var out StatusOutput
		if len(in.OperationIDs) > 0 {
			for _, id := range in.OperationIDs {
				v, ok := d.monitor.Get(id)
				if !ok {
					continue
				}
				out.Total++
				out.Operations = append(out.Operations, snapshotFromView(v))
			}
		} else {
			summary, views := d.monitor.Summarize(filter)
			out.Total, out.Pending, out.Running = summary.Total, summary.Pending, summary.Running
			out.Completed, out.Failed = summary.Completed, summary.Failed
			out.Cancelled, out.TimedOut = summary.Cancelled, summary.TimedOut
			out.SuccessRate, out.FailureRate = summary.SuccessRate(), summary.FailureRate()
			for _, v := range views {
				out.Operations = append(out.Operations, snapshotFromView(v))
			}
		}

		if len(in.OperationIDs) == 1 {
			count, since := d.hints.recordPoll(in.OperationIDs[0])
			running := len(out.Operations) == 1 && out.Operations[0].State == string(operation.Running)
			out.Hint = pollingHint(count, since, running)
		}

		return textResult(fmt.Sprintf("%d operation(s)", out.Total)), out, nil
	})
}

// WaitArgs blocks for one or more operations to reach a terminal state.
type WaitArgs struct {
	OperationIDs []string `json:"operation_ids" jsonschema:"Operation ids to wait for"`
	TimeoutSecs  int      `json:"timeout_secs,omitempty" jsonschema:"How long to wait before returning partial results (default 30s)"`
}

// WaitOutput reports the terminal (or still-pending) view for every
// requested operation id.
type WaitOutput struct {
	Results map[string]WaitEntry `json:"results"`
	Hint    string               `json:"hint,omitempty"`
}

// WaitEntry pairs an operation's snapshot with why Wait stopped watching
// it.
type WaitEntry struct {
	Outcome   string            `json:"outcome"` // terminal, deadline_exceeded, not_found
	Operation OperationSnapshot `json:"operation,omitempty"`
}

func registerWaitTool(s *mcp.Server, d *Dispatcher) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "wait",
		Description: "Block until every listed operation reaches a terminal state or timeout_secs elapses, whichever first. Returns partial results for anything still running at the deadline.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in WaitArgs) (*mcp.CallToolResult, WaitOutput, error) {
		timeout := 30 * time.Second
		if in.TimeoutSecs > 0 {
			timeout = time.Duration(in.TimeoutSecs) * time.Second
		}

		raw := d.monitor.WaitAll(in.OperationIDs, timeout)
		out := WaitOutput{Results: make(map[string]WaitEntry, len(raw))}

		var hints []string
		for id, r := range raw {
			entry := WaitEntry{}
			switch r.Outcome {
			case operation.WaitTerminal:
				entry.Outcome = "terminal"
				entry.Operation = snapshotFromView(r.View)
			case operation.WaitDeadlineExceeded:
				entry.Outcome = "deadline_exceeded"
				entry.Operation = snapshotFromView(r.View)
			case operation.WaitNotFound:
				entry.Outcome = "not_found"
			}
			out.Results[id] = entry

			count, since := d.hints.recordPoll(id)
			if h := pollingHint(count, since, r.Outcome == operation.WaitDeadlineExceeded); h != "" {
				hints = append(hints, h)
			}
		}
		out.Hint = strings.Join(hints, " ")

		return textResult(fmt.Sprintf("%d operation(s) resolved", len(out.Results))), out, nil
	})
}

// CancelArgs requests cancellation of one or more in-flight operations.
type CancelArgs struct {
	OperationIDs     []string `json:"operation_ids,omitempty" jsonschema:"Specific operation ids to cancel"`
	WorkingDirectory string   `json:"working_directory,omitempty" jsonschema:"Cancel every pending/running operation in this directory instead of naming ids"`
	Reason           string   `json:"reason,omitempty"`
}

// CancelOutput reports how many operations the cancel request actually
// affected.
type CancelOutput struct {
	Cancelled int `json:"cancelled"`
}

func registerCancelTool(s *mcp.Server, d *Dispatcher) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "cancel",
		Description: "Cancel pending or running operations by id, or every pending/running operation in a working directory. The underlying shell is discarded rather than reused, since its I/O stream can no longer be trusted.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in CancelArgs) (*mcp.CallToolResult, CancelOutput, error) {
		reason := in.Reason
		if reason == "" {
			reason = "cancelled by request"
		}

		ids := in.OperationIDs
		if len(ids) == 0 && in.WorkingDirectory != "" {
			for _, v := range d.monitor.List(operation.ListFilter{WorkingDirectory: in.WorkingDirectory}) {
				if !v.State.IsTerminal() {
					ids = append(ids, v.ID)
				}
			}
		}

		var n int
		for _, id := range ids {
			if d.monitor.Cancel(id, reason) {
				n++
			}
		}
		return textResult(fmt.Sprintf("cancelled %d operation(s)", n)), CancelOutput{Cancelled: n}, nil
	})
}
