package agent

import "testing"

func TestClassifyError(t *testing.T) {
	cases := []struct {
		message  string
		category ErrorCategory
	}{
		{"ModuleNotFoundError: No module named 'cv2'", ErrorCategoryModuleNotFound},
		{"bash: ffmpeg: command not found", ErrorCategoryCommandNotFound},
		{"FileNotFoundError: [Errno 2] No such file or directory: 'out.txt'", ErrorCategoryFileNotFound},
		{"PermissionError: [Errno 13] Permission denied: '/etc/shadow'", ErrorCategoryPermissionDenied},
		{"SyntaxError: invalid syntax", ErrorCategorySyntaxError},
		{"ConnectionError: network is unreachable", ErrorCategoryNetworkError},
		{"operation timed out after 30s", ErrorCategoryTimeout},
		{"something completely unrelated happened", ErrorCategoryUnknown},
	}
	for _, tc := range cases {
		got, _ := classifyError(tc.message)
		if got != tc.category {
			t.Errorf("classifyError(%q) = %q, want %q", tc.message, got, tc.category)
		}
	}
}

func TestRecoveryManager_Analyze_ModuleNotFoundUsesPipNameMap(t *testing.T) {
	rm := NewRecoveryManager(3)
	action, _ := rm.Analyze("ModuleNotFoundError: No module named 'cv2'", "execute_command", nil)
	if action == nil {
		t.Fatal("expected a recovery action")
	}
	if action.Params["command"] != "pip install opencv-python" {
		t.Errorf("command = %v, want pip install opencv-python", action.Params["command"])
	}
}

func TestRecoveryManager_Analyze_RetryBudgetAdvancesCandidate(t *testing.T) {
	rm := NewRecoveryManager(3)
	message := "ModuleNotFoundError: No module named 'cv2'"

	first, hash1 := rm.Analyze(message, "execute_command", nil)
	second, hash2 := rm.Analyze(message, "execute_command", nil)
	if hash1 != hash2 {
		t.Fatalf("expected identical hash for identical error: %q vs %q", hash1, hash2)
	}
	if first.Description == second.Description {
		t.Errorf("expected a different candidate on retry, got %q twice", first.Description)
	}
}

func TestRecoveryManager_Analyze_ExhaustsRetryBudget(t *testing.T) {
	rm := NewRecoveryManager(1)
	message := "ModuleNotFoundError: No module named 'cv2'"

	action, hash := rm.Analyze(message, "execute_command", nil)
	if action == nil {
		t.Fatal("expected first attempt to produce an action")
	}
	action, _ = rm.Analyze(message, "execute_command", nil)
	if action != nil {
		t.Errorf("expected retry budget exhausted, got %+v", action)
	}
	_ = hash
}

func TestRecoveryManager_RecordSuccessResetsBudget(t *testing.T) {
	rm := NewRecoveryManager(1)
	message := "ModuleNotFoundError: No module named 'cv2'"

	_, hash := rm.Analyze(message, "execute_command", nil)
	rm.RecordSuccess(hash)

	action, _ := rm.Analyze(message, "execute_command", nil)
	if action == nil {
		t.Error("expected a fresh attempt to be allowed after RecordSuccess")
	}
}

func TestRecoveryManager_Analyze_UnknownCategoryReturnsNil(t *testing.T) {
	rm := NewRecoveryManager(3)
	action, _ := rm.Analyze("something completely unrelated happened", "execute_command", nil)
	if action != nil {
		t.Errorf("expected nil action for unclassifiable error, got %+v", action)
	}
}

func TestRecoveryManager_Summary(t *testing.T) {
	rm := NewRecoveryManager(3)
	_, hash := rm.Analyze("ModuleNotFoundError: No module named 'cv2'", "execute_command", nil)
	rm.RecordSuccess(hash)

	total, successful, byCategory := rm.Summary()
	if total != 1 || successful != 1 {
		t.Errorf("total=%d successful=%d, want 1,1", total, successful)
	}
	if byCategory[ErrorCategoryModuleNotFound] != 1 {
		t.Errorf("byCategory[module_not_found] = %d, want 1", byCategory[ErrorCategoryModuleNotFound])
	}
}

func TestNormalizeErrorMessage(t *testing.T) {
	// Numbers are normalized before addresses, matching upstream: a leading
	// "0" in a 0x-address is consumed by the number pass first, so the
	// address pass no longer finds a "0x" prefix to replace.
	got := normalizeErrorMessage("failed at line 42 with pointer 0xdeadbeef")
	want := "failed at line N with pointer Nxdeadbeef"
	if got != want {
		t.Errorf("normalizeErrorMessage = %q, want %q", got, want)
	}
}

func TestHashError_StableAcrossVolatileLineNumbers(t *testing.T) {
	a := hashError("execute_command", "failed at line 42")
	b := hashError("execute_command", "failed at line 99")
	if a != b {
		t.Errorf("expected normalized hashes to match: %q vs %q", a, b)
	}
}
