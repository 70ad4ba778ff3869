// Package sandbox executes a tool invocation under a wall-clock timeout and
// captures its result (spec §6). Two adapters are provided: inprocess for
// Go-native factory tools and subprocess for directory-discovered tool
// binaries.
package sandbox

import "context"

type (
	// Invocation describes one tool call to execute.
	Invocation struct {
		Tool    string
		Params  map[string]any
		Timeout int64 // nanoseconds; 0 means caller already bounded ctx
	}

	// Result is the structured outcome of running a tool.
	Result struct {
		Output   any
		Stdout   string
		Stderr   string
		Success  bool
		ErrorMsg string
	}

	// Runtime abstracts tool execution so the orchestrator and improvement
	// engine do not need to know whether a tool runs in-process or as a
	// subprocess.
	Runtime interface {
		Run(ctx context.Context, inv Invocation) (Result, error)
	}
)
