// dispatcher.go is the Execution Dispatcher (spec §4.4): for every tool
// request it decides sync-vs-async, acquires a shell, runs the command,
// reports progress, and finalizes the operation against the Monitor.
//
// The Dispatcher is deliberately ignorant of cargo: it takes a pre-built
// argv and a per-tool AlwaysSync flag, never a subcommand name. Tool files
// translate typed arguments into a Request; this file only knows how to
// run one.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/paulirotta/async-cargo-mcp/operation"
	"github.com/paulirotta/async-cargo-mcp/shell"
)

// Request is the generic shape every tool call reduces to before it
// reaches the Dispatcher.
type Request struct {
	ToolName         string
	Description      string
	WorkingDirectory string
	Argv             []string
	// AlwaysSync marks a tool that must run synchronously regardless of
	// the caller's EnableAsync flag (spec §4.4's always-synchronous list:
	// mutating dependency tools, anything that reads back inline like
	// tree/version, and the wait/status control tools themselves).
	AlwaysSync bool
	// EnableAsync is the request-level enable_async_notification flag.
	EnableAsync bool
	// Timeout overrides the Monitor's default when positive.
	Timeout time.Duration
}

// SyncResult is returned inline for a synchronous dispatch.
type SyncResult struct {
	OperationID string
	ExitCode    int
	Stdout      string
	Stderr      string
	Duration    time.Duration
	ErrKind     string
	ErrMsg      string
}

// AsyncAck is returned immediately for an asynchronous dispatch; the
// terminal result follows later as a progress notification and/or a wait
// call against OperationID.
type AsyncAck struct {
	OperationID string
	Hint        string
}

// Dispatcher wires the Shell Pool Manager and Operation Monitor together
// behind the sync/async mode-selection and retry-then-fallback policy.
type Dispatcher struct {
	pool    *shell.Manager
	monitor *operation.Monitor
	log     *slog.Logger
	cfg     *Config
	hints   *hintTracker
}

// NewDispatcher builds a Dispatcher over an already-running pool and
// monitor.
func NewDispatcher(pool *shell.Manager, monitor *operation.Monitor, cfg *Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{pool: pool, monitor: monitor, log: log, cfg: cfg, hints: newHintTracker()}
}

// Dispatch validates req, registers an Operation, and runs it either
// inline (returning *SyncResult) or in the background (returning
// *AsyncAck immediately). Exactly one of the two return values is
// non-nil on success; err is non-nil only for a validation failure that
// never produced an Operation at all.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, sink ProgressSink) (*SyncResult, *AsyncAck, error) {
	if sink == nil {
		sink = noopSink{}
	}
	if req.WorkingDirectory == "" {
		return nil, nil, newErr(ErrInvalidRequest, "working_directory is required", nil)
	}
	info, err := os.Stat(req.WorkingDirectory)
	if err != nil || !info.IsDir() {
		return nil, nil, newErr(ErrWorkingDirMissing, req.WorkingDirectory, err)
	}
	if d.cfg != nil && d.cfg.DisabledTools[req.ToolName] {
		return nil, nil, newErr(ErrToolDisabled, req.ToolName, nil)
	}

	timeout := req.Timeout
	if timeout <= 0 && d.cfg != nil {
		timeout = d.cfg.Timeout
	}

	opID := d.monitor.Register(req.ToolName, req.Description, req.WorkingDirectory, req.Argv, timeout)

	if d.shouldRunSynchronously(req) {
		res := d.run(ctx, opID, req, timeout, sink)
		return res, nil, nil
	}

	d.hints.recordDispatch(opID)
	hint := buildAsyncHint(opID, req.ToolName)
	go d.runAsync(opID, req, timeout, sink)
	return nil, &AsyncAck{OperationID: opID, Hint: hint}, nil
}

// shouldRunSynchronously is spec §4.4's single mode-selection predicate.
func (d *Dispatcher) shouldRunSynchronously(req Request) bool {
	if d.cfg != nil && d.cfg.Synchronous {
		return true
	}
	if !req.EnableAsync {
		return true
	}
	if req.AlwaysSync {
		return true
	}
	return false
}

// run executes req inline: mark_running, run the command, complete/fail,
// and return the full result. No progress notifications are emitted on
// the synchronous path.
func (d *Dispatcher) run(ctx context.Context, opID string, req Request, timeout time.Duration, sink ProgressSink) *SyncResult {
	res, errKind, errMsg := d.execute(ctx, opID, req, timeout)
	if errKind != "" {
		d.monitor.Fail(opID, errKind, errMsg)
		return &SyncResult{OperationID: opID, ErrKind: errKind, ErrMsg: errMsg}
	}
	d.monitor.Complete(opID, res.ExitCode, res.Stdout, res.Stderr, time.Duration(res.DurationMs)*time.Millisecond)
	return &SyncResult{
		OperationID: opID,
		ExitCode:    res.ExitCode,
		Stdout:      res.Stdout,
		Stderr:      res.Stderr,
		Duration:    time.Duration(res.DurationMs) * time.Millisecond,
	}
}

// runAsync is the background task for the asynchronous path: mark_running,
// emit a starting notification, execute, then push the terminal
// notification — spec §4.4's "Asynchronous path".
func (d *Dispatcher) runAsync(opID string, req Request, timeout time.Duration, sink ProgressSink) {
	ctx := context.Background()

	_ = sink.Notify(ctx, opID, ProgressValue{Kind: ProgressBegin, Message: "started " + req.ToolName})

	res, errKind, errMsg := d.execute(ctx, opID, req, timeout)
	if errKind != "" {
		d.monitor.Fail(opID, errKind, errMsg)
		_ = sink.Notify(ctx, opID, ProgressValue{
			Kind:    ProgressEnd,
			Message: errMsg,
			Result:  &ProgressResult{ErrorKind: errKind},
		})
		d.hints.forget(opID)
		return
	}

	d.monitor.Complete(opID, res.ExitCode, res.Stdout, res.Stderr, time.Duration(res.DurationMs)*time.Millisecond)
	_ = sink.Notify(ctx, opID, ProgressValue{
		Kind: ProgressEnd,
		Result: &ProgressResult{
			ExitCode:   res.ExitCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
			DurationMs: res.DurationMs,
		},
	})
	d.hints.forget(opID)
}

// execute is shared by the sync and async paths: mark the operation
// Running, race the command against the operation's cancel/timeout
// signal, and apply the retry-then-one-shot-fallback policy on a
// ShellCommunicationError. It never itself transitions the Operation to
// a terminal state — callers do that with the returned (errKind, errMsg)
// or success result. When the race is lost to a cancellation or timeout
// the Monitor already finalized, it returns the error kind the Monitor
// recorded, and the caller's Fail call is a no-op.
func (d *Dispatcher) execute(ctx context.Context, opID string, req Request, timeout time.Duration) (shell.Result, string, string) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	finalized := func() (shell.Result, string, string) {
		if v, ok := d.monitor.Get(opID); ok && v.Result != nil && v.Result.ErrKind != "" {
			return shell.Result{}, v.Result.ErrKind, v.Result.ErrMsg
		}
		return shell.Result{}, string(ErrCancelled), "operation ended before its command finished"
	}
	if !d.monitor.MarkRunning(opID, cancel) {
		// lost the race to an already-terminal operation (e.g. cancelled
		// before it ever started running).
		return finalized()
	}

	res, err := d.runWithRetry(opCtx, opID, req.WorkingDirectory, req.Argv, timeout)
	if err == nil {
		return res, "", ""
	}

	if opCtx.Err() != nil {
		// the Monitor already moved this operation to Cancelled or
		// TimedOut and fired the cancel signal; report the kind it
		// recorded.
		return finalized()
	}

	switch err.(type) {
	case *shell.TimeoutError:
		return shell.Result{}, string(ErrCommandTimeout), err.Error()
	case *shell.CommunicationError:
		return shell.Result{}, string(ErrShellCommunicationErr), err.Error()
	case *shell.PoolExhaustedError:
		return shell.Result{}, string(ErrPoolExhausted), err.Error()
	case *shell.SpawnError:
		return shell.Result{}, string(ErrShellSpawnFailed), err.Error()
	default:
		if kind, ok := KindOf(err); ok {
			return shell.Result{}, string(kind), err.Error()
		}
		return shell.Result{}, string(ErrExecutionFailed), err.Error()
	}
}

// runWithRetry implements spec §4.4/§4.1's reliability sequence: ask the
// pool to acquire-execute-release; on ShellCommunicationError, retry once
// more through the pool; if that also fails to communicate, fall back to
// a one-shot spawn outside the pool entirely. A PoolExhaustedError from
// the first attempt is not retried — the pool never handed back a shell
// to fail with, so there is nothing to retry on.
func (d *Dispatcher) runWithRetry(ctx context.Context, opID, dir string, argv []string, timeout time.Duration) (shell.Result, error) {
	res, err := d.pool.ExecuteIn(ctx, opID, dir, argv, timeout)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return shell.Result{}, err
	}
	if _, isCommErr := err.(*shell.CommunicationError); !isCommErr {
		return shell.Result{}, err
	}

	res2, err2 := d.pool.ExecuteIn(ctx, opID, dir, argv, timeout)
	if err2 == nil {
		return res2, nil
	}
	if _, isCommErr2 := err2.(*shell.CommunicationError); !isCommErr2 {
		return shell.Result{}, err2
	}

	return d.pool.ExecuteOneShot(ctx, opID, dir, argv, timeout)
}
