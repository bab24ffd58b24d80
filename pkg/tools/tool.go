// Package tools provides the tool capability registry consumed by the
// workflow tool executor. Concrete tools live elsewhere (MCP adapter, host
// application); the registry only maps names to capabilities.
package tools

import "context"

// ErrorKind classifies a tool-level failure.
type ErrorKind string

// Tool error kinds. The workflow layer translates these into its own
// error taxonomy.
const (
	ErrorKindInvalidArguments ErrorKind = "invalid_arguments"
	ErrorKindExecutionFailed  ErrorKind = "execution_failed"
	ErrorKindUnavailable      ErrorKind = "unavailable"
)

// Error describes a failed tool execution.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Result is the outcome of one Execute call. Exactly one of Output or
// Error is populated.
type Result struct {
	Success bool
	Output  any
	Error   *Error
}

// Tool is one registered external capability. Implementations must be safe
// for concurrent Execute calls, and one call must not affect another.
type Tool interface {
	Name() string
	Description() string
	// Execute runs the tool. Long-running work must honor ctx cancellation;
	// the caller applies the per-call deadline.
	Execute(ctx context.Context, args map[string]any) *Result
}

// Succeed builds a successful Result.
func Succeed(output any) *Result {
	return &Result{Success: true, Output: output}
}

// Fail builds a failed Result.
func Fail(kind ErrorKind, message string) *Result {
	return &Result{Success: false, Error: &Error{Kind: kind, Message: message}}
}
