package agent

import "testing"

func TestOutputValidator_ValidateWriteFile_GoSyntaxError(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{
		"file_path": "main.go",
		"content":   "package main\n\nfunc main() {\n",
	}
	result := v.Validate("write_file", `{"status": "success", "path": "main.go"}`, params)
	if result.Status != ValidationInvalid {
		t.Errorf("Status = %q, want invalid for malformed Go source", result.Status)
	}
}

func TestOutputValidator_ValidateWriteFile_ValidGoSyntax(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{
		"file_path": "main.go",
		"content":   "package main\n\nfunc main() {}\n",
	}
	result := v.Validate("write_file", `{"status": "success", "path": "main.go"}`, params)
	if result.Status != ValidationValid {
		t.Errorf("Status = %q, want valid, message: %s", result.Status, result.Message)
	}
}

func TestOutputValidator_ValidateWriteFile_InvalidJSON(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{
		"file_path": "config.json",
		"content":   `{"a": 1,}`,
	}
	result := v.Validate("write_file", `{"status": "success", "path": "config.json"}`, params)
	if result.Status != ValidationInvalid {
		t.Errorf("Status = %q, want invalid for trailing comma JSON", result.Status)
	}
}

func TestOutputValidator_ValidateWriteFile_ErrorObservation(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{"file_path": "a.txt", "content": "hi"}
	result := v.Validate("write_file", "Error: permission denied", params)
	if result.Status != ValidationInvalid {
		t.Errorf("Status = %q, want invalid", result.Status)
	}
}

func TestOutputValidator_ValidateCommand_ExitCodeZero(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{"command": "ls"}
	result := v.Validate("execute_command", "Exit code: 0\nCommand completed successfully (no output)", params)
	if result.Status != ValidationValid {
		t.Errorf("Status = %q, want valid", result.Status)
	}
}

func TestOutputValidator_ValidateCommand_NonZeroExit(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{"command": "false"}
	result := v.Validate("execute_command", "Exit code: 1\nErrors:\nsomething broke", params)
	if result.Status != ValidationInvalid {
		t.Errorf("Status = %q, want invalid", result.Status)
	}
}

func TestOutputValidator_ValidateCommand_CommandNotFound(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{"command": "nope"}
	result := v.Validate("execute_command", "bash: nope: command not found", params)
	if result.Status != ValidationInvalid {
		t.Errorf("Status = %q, want invalid", result.Status)
	}
}

func TestOutputValidator_ValidateReadFile(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{"file_path": "missing.txt"}
	result := v.Validate("read_file", "Error: file not found", params)
	if result.Status != ValidationInvalid {
		t.Errorf("Status = %q, want invalid", result.Status)
	}

	result = v.Validate("read_file", "the file contents", params)
	if result.Status != ValidationValid {
		t.Errorf("Status = %q, want valid", result.Status)
	}
}

func TestOutputValidator_ValidateSearch_NoResults(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{"query": "something obscure"}
	result := v.Validate("web_search", "No results found for that query.", params)
	if result.Status != ValidationWarning {
		t.Errorf("Status = %q, want warning", result.Status)
	}
}

func TestOutputValidator_ValidateSearch_CountsNumberedResults(t *testing.T) {
	v := NewOutputValidator()
	params := map[string]interface{}{"query": "golang"}
	result := v.Validate("web_search", "1. Go homepage\n2. Go docs\n3. Go playground", params)
	if result.Status != ValidationValid {
		t.Errorf("Status = %q, want valid", result.Status)
	}
	if result.Details["count"] != 3 {
		t.Errorf("count = %v, want 3", result.Details["count"])
	}
}

func TestOutputValidator_UnknownAction(t *testing.T) {
	v := NewOutputValidator()
	result := v.Validate("unknown_action", "whatever", nil)
	if result.Status != ValidationSkipped {
		t.Errorf("Status = %q, want skipped", result.Status)
	}
}

func TestTaskValidator_AssessTaskCompletion_AllSuccessful(t *testing.T) {
	tv := NewTaskValidator()
	tv.RecordAction("write_file", map[string]interface{}{"file_path": "out.txt"}, "ok",
		ValidationResult{Status: ValidationValid})
	result := tv.AssessTaskCompletion("create a file", "Created out.txt successfully")
	if result.Status != ValidationValid {
		t.Errorf("Status = %q, want valid", result.Status)
	}
}

func TestTaskValidator_AssessTaskCompletion_MoreFailuresThanSuccesses(t *testing.T) {
	tv := NewTaskValidator()
	tv.RecordAction("execute_command", nil, "fail1", ValidationResult{Status: ValidationInvalid})
	tv.RecordAction("execute_command", nil, "fail2", ValidationResult{Status: ValidationInvalid})
	tv.RecordAction("execute_command", nil, "ok", ValidationResult{Status: ValidationValid})
	result := tv.AssessTaskCompletion("run a script", "it did not work")
	if result.Status != ValidationInvalid {
		t.Errorf("Status = %q, want invalid", result.Status)
	}
}

func TestTaskValidator_AssessTaskCompletion_SomeFailuresIsWarning(t *testing.T) {
	tv := NewTaskValidator()
	tv.RecordAction("execute_command", nil, "fail1", ValidationResult{Status: ValidationInvalid})
	tv.RecordAction("execute_command", nil, "ok1", ValidationResult{Status: ValidationValid})
	tv.RecordAction("execute_command", nil, "ok2", ValidationResult{Status: ValidationValid})
	result := tv.AssessTaskCompletion("run a script", "mostly worked")
	if result.Status != ValidationWarning {
		t.Errorf("Status = %q, want warning", result.Status)
	}
}

func TestTaskValidator_Reset(t *testing.T) {
	tv := NewTaskValidator()
	tv.RecordAction("write_file", nil, "ok", ValidationResult{Status: ValidationValid})
	tv.Reset()
	result := tv.AssessTaskCompletion("anything", "anything")
	if result.Details["total_actions"] != 0 {
		t.Errorf("expected empty history after Reset, got %v", result.Details["total_actions"])
	}
}
