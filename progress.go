// progress.go builds the tool-hint text returned alongside async
// acknowledgements and status/wait responses, and adapts the Dispatcher's
// notion of a progress push onto a live MCP session.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProgressKind mirrors spec §4.5's $/progress value.kind enumeration.
type ProgressKind string

const (
	ProgressBegin  ProgressKind = "begin"
	ProgressReport ProgressKind = "report"
	ProgressEnd    ProgressKind = "end"
)

// ProgressResult is the terminal payload carried by a "end" notification,
// matching an Operation's stdout/stderr/exit_code/duration.
type ProgressResult struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	ErrorKind  string `json:"error_kind,omitempty"`
}

// ProgressValue is the envelope this server wraps around the raw MCP
// progress notification's message field — the real go-sdk notification
// only carries progress/total/message, not a structured kind+result, so
// the richer shape spec.md requires (kind, message, result) travels as
// JSON inside Message.
type ProgressValue struct {
	Kind    ProgressKind    `json:"kind"`
	Message string          `json:"message,omitempty"`
	Result  *ProgressResult `json:"result,omitempty"`
}

// ProgressSink abstracts pushing a notification for one operation id
// (the MCP progress token), so the Dispatcher never depends on a live
// *mcp.ServerSession directly — tests substitute a recording fake.
type ProgressSink interface {
	Notify(ctx context.Context, token string, value ProgressValue) error
}

// sessionSink adapts a live MCP server session.
type sessionSink struct {
	session *mcp.ServerSession
}

// NewSessionSink wraps session as a ProgressSink for one tool call.
func NewSessionSink(session *mcp.ServerSession) ProgressSink {
	return &sessionSink{session: session}
}

func (s *sessionSink) Notify(ctx context.Context, token string, value ProgressValue) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
		ProgressToken: token,
		Message:       string(payload),
	})
}

// noopSink discards every notification — used when Dispatch is given no
// sink or a tool call carries no MCP session, so the Dispatcher can still
// call Notify unconditionally.
type noopSink struct{}

func (noopSink) Notify(context.Context, string, ProgressValue) error { return nil }

// buildAsyncHint is the text an async acknowledgement carries, per spec
// §4.5: it must name the operation id, state the work is in progress,
// tell the caller to continue with unrelated work, and say how the result
// arrives.
func buildAsyncHint(opID, toolName string) string {
	return fmt.Sprintf(
		"Operation %s (%s) has started and is running in the background. "+
			"Continue with other work — you do not need to wait here. "+
			"The final result will arrive as a progress notification with token %q, "+
			"or you can call the wait tool with this operation id to block for it.",
		opID, toolName, opID,
	)
}

// hintTracker records, per operation, when it was dispatched and how many
// times status/wait has been polled for it — purely presentational
// bookkeeping behind the concurrency-hint / status-polling-hint text. It
// never influences engine state or correctness.
type hintTracker struct {
	mu         sync.Mutex
	dispatched map[string]time.Time
	pollCount  map[string]int
}

func newHintTracker() *hintTracker {
	return &hintTracker{
		dispatched: make(map[string]time.Time),
		pollCount:  make(map[string]int),
	}
}

func (h *hintTracker) recordDispatch(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatched[id] = time.Now()
}

// recordPoll increments and returns the poll count for id, and reports how
// soon after dispatch this poll landed (zero if id was never dispatched
// through this tracker, e.g. a synchronous operation).
func (h *hintTracker) recordPoll(id string) (count int, sinceDispatch time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pollCount[id]++
	count = h.pollCount[id]
	if t, ok := h.dispatched[id]; ok {
		sinceDispatch = time.Since(t)
	}
	return count, sinceDispatch
}

func (h *hintTracker) forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.dispatched, id)
	delete(h.pollCount, id)
}

// pollingHint returns supplemental guidance text when a wait/status call
// looks like it is busy-polling: either it landed within a second of
// dispatch, or it is the third-or-later poll for a still-running
// operation. Returns "" when no hint applies.
func pollingHint(count int, sinceDispatch time.Duration, stillRunning bool) string {
	if !stillRunning {
		return ""
	}
	if sinceDispatch > 0 && sinceDispatch < time.Second {
		return "This operation was just dispatched; polling again immediately rarely finds new state — consider doing other work before checking back."
	}
	if count >= 3 {
		return "This operation has been polled several times while still running; consider waiting longer between checks or using the wait tool's timeout instead of repeated status calls."
	}
	return ""
}
