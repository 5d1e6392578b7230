package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
)

// DefaultCommandTimeout is the per-tool timeout applied when a command
// does not specify one (matching the engine's 300s tool timeout default).
const DefaultCommandTimeout = 300 * time.Second

// CommandTool exposes a session's SessionContext as the execute_command
// tool. Unlike the exec package's host-based ExecTool, commands here run
// inside the persistent per-session container.
type CommandTool struct {
	ctx *SessionContext
}

// NewCommandTool creates an execute_command tool bound to a session context.
func NewCommandTool(sc *SessionContext) *CommandTool {
	return &CommandTool{ctx: sc}
}

func (t *CommandTool) Name() string { return "execute_command" }

func (t *CommandTool) Description() string {
	return "Execute a shell command inside the sandboxed session workspace."
}

func (t *CommandTool) RequiresSandbox() bool { return true }

func (t *CommandTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute, chained with pipes/redirection as needed.",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (default 300).",
				"minimum":     0,
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *CommandTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.ctx == nil {
		return toolError("execution context unavailable"), nil
	}

	var input struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			// Parsing is tolerant by design: fall through with whatever
			// fields decoded, rather than failing the dispatch outright.
			_ = err
		}
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return toolError("command is required"), nil
	}

	timeout := DefaultCommandTimeout
	if input.TimeoutSeconds > 0 {
		timeout = time.Duration(input.TimeoutSeconds) * time.Second
	}

	outcome, err := t.ctx.Execute(ctx, command, timeout)
	if err != nil {
		return toolError(err.Error()), nil
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("Exit code: %d", outcome.ExitCode))
	if outcome.Stdout != "" {
		parts = append(parts, fmt.Sprintf("Output:\n%s", outcome.Stdout))
	}
	if outcome.Stderr != "" {
		parts = append(parts, fmt.Sprintf("Errors:\n%s", outcome.Stderr))
	}
	if outcome.Stdout == "" && outcome.Stderr == "" && outcome.ExitCode == 0 {
		parts = append(parts, "Command completed successfully (no output)")
	}
	content := strings.Join(parts, "\n")

	if outcome.ExitCode != 0 {
		return &agent.ToolResult{Content: "Error: " + content, IsError: true}, nil
	}
	return &agent.ToolResult{Content: content}, nil
}

func toolError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: "Error: " + message, IsError: true}
}
