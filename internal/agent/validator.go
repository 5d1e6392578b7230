package agent

import (
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"regexp"
	"strings"
)

// ValidationStatus is the outcome of validating one executed action.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
	ValidationWarning ValidationStatus = "warning"
	ValidationSkipped ValidationStatus = "skipped"
)

// ValidationResult is the outcome of validating one action's observation.
type ValidationResult struct {
	Status      ValidationStatus
	Message     string
	Details     map[string]interface{}
	Suggestions []string
}

// OutputValidator inspects an action's observation text against
// action-specific heuristics. There is no sandbox access here: all checks
// run against the text the tool already returned.
type OutputValidator struct{}

// NewOutputValidator creates an OutputValidator.
func NewOutputValidator() *OutputValidator { return &OutputValidator{} }

// Validate checks the observation produced by executing action with params.
func (v *OutputValidator) Validate(action, observation string, params map[string]interface{}) ValidationResult {
	switch action {
	case "write_file":
		return v.validateWriteFile(observation, params)
	case "execute_command":
		return v.validateCommand(observation, params)
	case "read_file":
		return v.validateReadFile(observation, params)
	case "create_pdf":
		return v.validatePDF(observation, params)
	case "web_search":
		return v.validateSearch(observation, params)
	default:
		return ValidationResult{Status: ValidationSkipped, Message: fmt.Sprintf("No validator for action: %s", action)}
	}
}

func (v *OutputValidator) validateWriteFile(observation string, params map[string]interface{}) ValidationResult {
	lower := strings.ToLower(observation)
	path, _ := params["file_path"].(string)
	content, _ := params["content"].(string)

	if !strings.Contains(lower, "success") && !strings.Contains(lower, "error") {
		return ValidationResult{Status: ValidationWarning, Message: "Unclear if file was written successfully"}
	}
	if strings.Contains(lower, "error") {
		return ValidationResult{Status: ValidationInvalid, Message: "File write failed",
			Details: map[string]interface{}{"error": observation}}
	}

	switch ext := strings.ToLower(extOf(path)); ext {
	case ".go":
		return v.validateGoSyntax(content, path)
	case ".json":
		return v.validateJSONSyntax(content, path)
	case ".md", ".txt":
		return v.validateTextFile(content, path)
	}

	return ValidationResult{Status: ValidationValid, Message: "File written successfully",
		Details: map[string]interface{}{"path": path, "size": len(content)}}
}

func (v *OutputValidator) validateGoSyntax(content, path string) ValidationResult {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, path, content, parser.AllErrors); err != nil {
		return ValidationResult{
			Status:  ValidationInvalid,
			Message: fmt.Sprintf("Go syntax error: %v", err),
			Suggestions: []string{
				"Check the reported line for syntax issues",
				"Ensure braces and parens are balanced",
				"Check for missing semicolons or unclosed strings",
			},
		}
	}
	return ValidationResult{Status: ValidationValid, Message: "Go syntax is valid", Details: map[string]interface{}{"path": path}}
}

func (v *OutputValidator) validateJSONSyntax(content, path string) ValidationResult {
	var js interface{}
	if err := json.Unmarshal([]byte(content), &js); err != nil {
		return ValidationResult{
			Status:  ValidationInvalid,
			Message: fmt.Sprintf("JSON syntax error: %v", err),
			Suggestions: []string{
				"Check for trailing commas",
				"Ensure all strings are double-quoted",
				"Verify bracket matching",
			},
		}
	}
	return ValidationResult{Status: ValidationValid, Message: "JSON syntax is valid", Details: map[string]interface{}{"path": path}}
}

func (v *OutputValidator) validateTextFile(content, path string) ValidationResult {
	if strings.TrimSpace(content) == "" {
		return ValidationResult{Status: ValidationWarning, Message: "File is empty or contains only whitespace",
			Details: map[string]interface{}{"path": path}, Suggestions: []string{"Consider adding content to the file"}}
	}
	return ValidationResult{Status: ValidationValid, Message: "Text file is valid",
		Details: map[string]interface{}{"path": path, "lines": strings.Count(content, "\n") + 1}}
}

var commandErrorPatterns = []struct {
	pattern *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`(?i)command not found`), "Command not found - may need to install"},
	{regexp.MustCompile(`(?i)no such file or directory`), "File or directory does not exist"},
	{regexp.MustCompile(`(?i)permission denied`), "Permission denied - may need different permissions"},
	{regexp.MustCompile(`(?i)modulenotfounderror`), "Module not installed"},
	{regexp.MustCompile(`(?i)error:`), "Generic error occurred"},
	{regexp.MustCompile(`(?i)traceback`), "Unhandled exception occurred"},
	{regexp.MustCompile(`(?i)exit code: [1-9]`), "Command exited with non-zero status"},
}

var commandSuccessPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)exit code: 0`),
	regexp.MustCompile(`(?i)successfully`),
	regexp.MustCompile(`(?i)\bdone\b`),
	regexp.MustCompile(`(?i)completed`),
}

func (v *OutputValidator) validateCommand(observation string, params map[string]interface{}) ValidationResult {
	command, _ := params["command"].(string)

	for _, p := range commandErrorPatterns {
		if p.pattern.MatchString(observation) {
			return ValidationResult{Status: ValidationInvalid, Message: p.message,
				Details: map[string]interface{}{"command": command, "output": truncate(observation, 500)}}
		}
	}
	for _, p := range commandSuccessPatterns {
		if p.MatchString(observation) {
			return ValidationResult{Status: ValidationValid, Message: "Command executed successfully",
				Details: map[string]interface{}{"command": command}}
		}
	}
	return ValidationResult{Status: ValidationWarning, Message: "Command outcome unclear",
		Details: map[string]interface{}{"command": command, "output": truncate(observation, 200)}}
}

func (v *OutputValidator) validateReadFile(observation string, params map[string]interface{}) ValidationResult {
	path, _ := params["file_path"].(string)
	lower := strings.ToLower(observation)

	if strings.Contains(lower, "error") || strings.Contains(lower, "not found") {
		return ValidationResult{Status: ValidationInvalid, Message: "Failed to read file",
			Details: map[string]interface{}{"path": path, "error": observation}}
	}
	if strings.TrimSpace(observation) == "" {
		return ValidationResult{Status: ValidationWarning, Message: "File is empty", Details: map[string]interface{}{"path": path}}
	}
	return ValidationResult{Status: ValidationValid, Message: "File read successfully",
		Details: map[string]interface{}{"path": path, "size": len(observation)}}
}

func (v *OutputValidator) validatePDF(observation string, params map[string]interface{}) ValidationResult {
	path, _ := params["file_path"].(string)
	lower := strings.ToLower(observation)

	if strings.Contains(lower, "error") {
		return ValidationResult{Status: ValidationInvalid, Message: "PDF creation failed",
			Details: map[string]interface{}{"path": path, "error": observation}}
	}
	if strings.Contains(lower, "success") || strings.Contains(lower, "created") {
		return ValidationResult{Status: ValidationValid, Message: "PDF created successfully",
			Details: map[string]interface{}{"path": path}}
	}
	return ValidationResult{Status: ValidationWarning, Message: "PDF creation status unclear",
		Details: map[string]interface{}{"path": path, "result": truncate(observation, 200)}}
}

var searchResultLinePattern = regexp.MustCompile(`(?m)^\d+\.`)

func (v *OutputValidator) validateSearch(observation string, params map[string]interface{}) ValidationResult {
	query, _ := params["query"].(string)
	lower := strings.ToLower(observation)

	if strings.Contains(lower, "no results") {
		return ValidationResult{Status: ValidationWarning, Message: "No search results found",
			Details: map[string]interface{}{"query": query},
			Suggestions: []string{"Try different keywords", "Use broader search terms", "Check spelling"}}
	}

	count := len(searchResultLinePattern.FindAllString(observation, -1))
	if count == 0 {
		return ValidationResult{Status: ValidationWarning, Message: "Search may have failed", Details: map[string]interface{}{"query": query}}
	}
	return ValidationResult{Status: ValidationValid, Message: fmt.Sprintf("Found %d results", count),
		Details: map[string]interface{}{"query": query, "count": count}}
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ActionRecord pairs an executed action with its validation outcome, kept
// by TaskValidator to assess overall task completion.
type ActionRecord struct {
	Action      string
	Params      map[string]interface{}
	ResultPreview string
	Validation  ValidationResult
}

// TaskValidator aggregates per-action validations across a task run to
// judge whether the task as a whole succeeded.
type TaskValidator struct {
	history []ActionRecord
}

// NewTaskValidator creates an empty TaskValidator.
func NewTaskValidator() *TaskValidator { return &TaskValidator{} }

// RecordAction appends one validated action to the history.
func (t *TaskValidator) RecordAction(action string, params map[string]interface{}, result string, validation ValidationResult) {
	t.history = append(t.history, ActionRecord{
		Action: action, Params: params, ResultPreview: truncate(result, 200), Validation: validation,
	})
}

// AssessTaskCompletion judges overall task success from the recorded
// action history plus the task description and its final answer.
func (t *TaskValidator) AssessTaskCompletion(task, finalAnswer string) ValidationResult {
	var successful, failed, warnings int
	for _, a := range t.history {
		switch a.Validation.Status {
		case ValidationValid:
			successful++
		case ValidationInvalid:
			failed++
		case ValidationWarning:
			warnings++
		}
	}
	total := len(t.history)

	taskLower := strings.ToLower(task)
	answerLower := strings.ToLower(finalAnswer)

	var indicators []string
	if containsAny(taskLower, "create", "write", "generate", "make") {
		for _, a := range t.history {
			if a.Action == "write_file" || a.Action == "create_pdf" {
				indicators = append(indicators, "file_created")
				break
			}
		}
	}
	if strings.Contains(answerLower, "download") || strings.Contains(answerLower, "file") || strings.Contains(answerLower, "created") {
		indicators = append(indicators, "output_mentioned")
	}

	if failed > successful {
		return ValidationResult{
			Status:  ValidationInvalid,
			Message: "Task likely incomplete due to multiple failures",
			Details: map[string]interface{}{
				"total_actions": total, "successful": successful, "failed": failed, "warnings": warnings,
			},
			Suggestions: []string{"Review failed actions", "Try alternative approaches"},
		}
	}
	if failed > 0 {
		return ValidationResult{
			Status:  ValidationWarning,
			Message: "Task completed with some failures",
			Details: map[string]interface{}{
				"total_actions": total, "successful": successful, "failed": failed, "completion_indicators": indicators,
			},
		}
	}
	return ValidationResult{
		Status:  ValidationValid,
		Message: "Task appears to be completed successfully",
		Details: map[string]interface{}{
			"total_actions": total, "successful": successful, "completion_indicators": indicators,
		},
	}
}

// Reset clears the recorded action history, for starting a new task.
func (t *TaskValidator) Reset() {
	t.history = nil
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
