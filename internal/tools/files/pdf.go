package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/haasonsaas/nexus/internal/agent"
)

// CreatePDFTool renders plain text content into a simple PDF document
// written to the workspace.
type CreatePDFTool struct {
	resolver Resolver
}

// NewCreatePDFTool creates a create_pdf tool scoped to the workspace.
func NewCreatePDFTool(cfg Config) *CreatePDFTool {
	return &CreatePDFTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *CreatePDFTool) Name() string { return "create_pdf" }

func (t *CreatePDFTool) Description() string {
	return "Render text content into a PDF file written to the workspace."
}

func (t *CreatePDFTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Output PDF path (relative to workspace).",
			},
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Document title.",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Body text; paragraphs are separated by blank lines.",
			},
		},
		"required": []string{"file_path", "content"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *CreatePDFTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		FilePath string `json:"file_path"`
		Title    string `json:"title"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return toolError("file_path is required"), nil
	}
	if !strings.HasSuffix(strings.ToLower(input.FilePath), ".pdf") {
		input.FilePath += ".pdf"
	}

	resolved, err := t.resolver.Resolve(input.FilePath)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create directory: %v", err)), nil
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	if input.Title != "" {
		pdf.SetFont("Helvetica", "B", 16)
		pdf.MultiCell(0, 10, input.Title, "", "L", false)
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "", 11)
	for _, para := range strings.Split(input.Content, "\n\n") {
		pdf.MultiCell(0, 6, para, "", "L", false)
		pdf.Ln(3)
	}

	if err := pdf.OutputFileAndClose(resolved); err != nil {
		return toolError(fmt.Sprintf("write pdf: %v", err)), nil
	}

	result := map[string]interface{}{
		"status":    "success",
		"file_path": input.FilePath,
	}
	payload, _ := json.MarshalIndent(result, "", "  ")
	return &agent.ToolResult{Content: string(payload)}, nil
}
