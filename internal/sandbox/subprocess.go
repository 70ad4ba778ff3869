package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Subprocess runs each tool invocation as a fresh process, one file per
// tool in toolDir, passing params as JSON on stdin and expecting a JSON
// Result envelope on stdout. This is the "external subprocess runner"
// alternative to in-process loading: directory-discovered tools here are
// executable files rather than Go source.
type Subprocess struct {
	toolDir string
}

// NewSubprocess builds a Subprocess runtime rooted at toolDir.
func NewSubprocess(toolDir string) *Subprocess {
	return &Subprocess{toolDir: toolDir}
}

// Run executes the tool binary toolDir/<tool>, enforcing ctx's deadline via
// exec.CommandContext, and decodes its stdout as a JSON-encoded Result.
func (r *Subprocess) Run(ctx context.Context, inv Invocation) (Result, error) {
	payload, err := json.Marshal(inv.Params)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: marshal params: %w", err)
	}

	path := r.toolDir + "/" + inv.Tool
	cmd := exec.CommandContext(ctx, path)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return Result{Success: false, Stderr: stderr.String(), ErrorMsg: "timeout"}, ctx.Err()
	}
	if runErr != nil {
		return Result{Success: false, Stdout: stdout.String(), Stderr: stderr.String(), ErrorMsg: runErr.Error()}, runErr
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return Result{Success: false, Stdout: stdout.String(), Stderr: stderr.String(), ErrorMsg: "malformed tool output"},
			fmt.Errorf("sandbox: decode result: %w", err)
	}
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	return result, nil
}
