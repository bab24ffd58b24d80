package tools

import "context"

// FuncTool wraps a function as a Tool. Intended for tests and simple
// host-provided tools.
type FuncTool struct {
	ToolName string
	Desc     string
	Fn       func(ctx context.Context, args map[string]any) *Result
}

// Name implements Tool.
func (t *FuncTool) Name() string { return t.ToolName }

// Description implements Tool.
func (t *FuncTool) Description() string { return t.Desc }

// Execute implements Tool.
func (t *FuncTool) Execute(ctx context.Context, args map[string]any) *Result {
	return t.Fn(ctx, args)
}

// NewEchoTool returns a tool that succeeds with its own arguments as output.
func NewEchoTool(name string) *FuncTool {
	return &FuncTool{
		ToolName: name,
		Desc:     "Echoes its arguments back as output",
		Fn: func(_ context.Context, args map[string]any) *Result {
			return Succeed(args)
		},
	}
}

// NewFailingTool returns a tool that always fails with the given kind.
func NewFailingTool(name string, kind ErrorKind, message string) *FuncTool {
	return &FuncTool{
		ToolName: name,
		Desc:     "Always fails",
		Fn: func(_ context.Context, _ map[string]any) *Result {
			return Fail(kind, message)
		},
	}
}
