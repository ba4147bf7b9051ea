// logging.go constructs the process-wide structured logger. Every
// component that needs to log takes a *slog.Logger as an explicit
// dependency rather than reaching for a package-global — this keeps the
// engine testable and keeps stdout, the MCP JSON-RPC channel, untouched.
package main

import (
	"log/slog"
	"os"
)

// newLogger builds a structured logger writing to stderr at level. MCP
// clients speak JSON-RPC over stdout; nothing may write there except
// protocol frames, so every log line goes to stderr.
func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
