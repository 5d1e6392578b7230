package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/haasonsaas/nexus/internal/agent"
)

// ProtectionChecker reports whether a workspace-relative path has been
// registered as protected by the conversation context, and whether a
// caller-supplied force flag overrides that protection.
type ProtectionChecker interface {
	IsProtected(path string) bool
}

// WriteTool implements file writes within the workspace. Writing to a
// protected path is rejected unless the caller passes force=true.
type WriteTool struct {
	resolver   Resolver
	protection ProtectionChecker
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

// WithProtection attaches a protection checker so writes to files the
// conversation context has registered as protected are rejected unless
// force is set.
func (t *WriteTool) WithProtection(p ProtectionChecker) *WriteTool {
	t.protection = p
	return t
}

// Name returns the tool name.
func (t *WriteTool) Name() string {
	return "write_file"
}

// Description returns the tool description.
func (t *WriteTool) Description() string {
	return "Write content to a file in the workspace (overwrites by default)."
}

// WriteParams is the write_file tool's parameter struct. Its JSON Schema is
// derived by reflection instead of hand-written, since its shape is a plain
// flat struct.
type WriteParams struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to write (relative to workspace)."`
	Content  string `json:"content" jsonschema:"required,description=File contents to write."`
	Append   bool   `json:"append,omitempty" jsonschema:"description=Append instead of overwrite (default: false)."`
	Force    bool   `json:"force,omitempty" jsonschema:"description=Overwrite a protected file (default: false)."`
}

var (
	writeSchemaOnce sync.Once
	writeSchemaJSON json.RawMessage
)

// Schema returns the JSON schema for the tool parameters.
func (t *WriteTool) Schema() json.RawMessage {
	writeSchemaOnce.Do(func() {
		r := &jsonschema.Reflector{ExpandedStruct: true}
		reflected := r.Reflect(&WriteParams{})
		payload, err := json.Marshal(reflected)
		if err != nil {
			writeSchemaJSON = json.RawMessage(`{"type":"object"}`)
			return
		}
		writeSchemaJSON = payload
	})
	return writeSchemaJSON
}

// Execute writes file contents.
func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input WriteParams
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return toolError("file_path is required"), nil
	}

	if t.protection != nil && !input.Force && t.protection.IsProtected(input.FilePath) {
		return toolError(fmt.Sprintf("%s is protected; pass force=true to overwrite", input.FilePath)), nil
	}

	resolved, err := t.resolver.Resolve(input.FilePath)
	if err != nil {
		return toolError(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create directory: %v", err)), nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if input.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return toolError(fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	n, err := file.WriteString(input.Content)
	if err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	result := map[string]interface{}{
		"status":        "success",
		"file_path":     input.FilePath,
		"bytes_written": n,
		"append":        input.Append,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolResult{Content: string(payload)}, nil
}
