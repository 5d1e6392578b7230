package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
)

var dockerCheck struct {
	once sync.Once
	err  error
}

const testImage = "python:3.11-alpine"

func requireDocker(t *testing.T) {
	t.Helper()
	force := os.Getenv("NEXUS_DOCKER_TESTS") == "1"
	allowPull := os.Getenv("NEXUS_DOCKER_PULL") == "1"
	if testing.Short() && !force {
		t.Skip("Skipping integration test in short mode")
	}

	dockerCheck.once.Do(func() {
		if _, err := exec.LookPath("docker"); err != nil {
			dockerCheck.err = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
			dockerCheck.err = err
			return
		}

		if err := exec.CommandContext(ctx, "docker", "image", "inspect", testImage).Run(); err != nil {
			if !allowPull {
				dockerCheck.err = err
				return
			}
			pullCtx, pullCancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer pullCancel()
			if pullErr := exec.CommandContext(pullCtx, "docker", "pull", testImage).Run(); pullErr != nil {
				dockerCheck.err = pullErr
				return
			}
		}
	})

	if dockerCheck.err != nil {
		if errors.Is(dockerCheck.err, exec.ErrNotFound) {
			if force {
				t.Fatalf("Docker required but not installed")
			}
			t.Skip("Docker not installed")
		}
		if force {
			t.Fatalf("Docker required but unavailable: %v", dockerCheck.err)
		}
		t.Skipf("Docker not available for tests: %v", dockerCheck.err)
	}
}

func newTestSessionContext(t *testing.T) *SessionContext {
	t.Helper()
	dir := t.TempDir()
	sc := NewSessionContext(SessionContextConfig{
		SessionID:    "test-" + strings.ReplaceAll(t.Name(), "/", "-"),
		WorkspaceDir: dir,
		Image:        testImage,
		AutoCleanup:  true,
	})
	t.Cleanup(func() {
		_ = sc.Cleanup(context.Background())
	})
	return sc
}

func TestSessionContext_StartIsIdempotent(t *testing.T) {
	requireDocker(t)
	sc := newTestSessionContext(t)
	ctx := context.Background()

	if err := sc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sc.Started() {
		t.Fatal("expected Started() to be true after Start")
	}
	if err := sc.Start(ctx); err != nil {
		t.Fatalf("second Start should be a no-op, got: %v", err)
	}
}

func TestSessionContext_ExecuteRunsCommand(t *testing.T) {
	requireDocker(t)
	sc := newTestSessionContext(t)
	ctx := context.Background()

	if err := sc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	outcome, err := sc.Execute(ctx, "echo hello", 10*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%s)", outcome.ExitCode, outcome.Stderr)
	}
	if strings.TrimSpace(outcome.Stdout) != "hello" {
		t.Fatalf("expected stdout %q, got %q", "hello", outcome.Stdout)
	}
}

func TestSessionContext_ExecuteNonZeroExit(t *testing.T) {
	requireDocker(t)
	sc := newTestSessionContext(t)
	ctx := context.Background()

	if err := sc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	outcome, err := sc.Execute(ctx, "exit 7", 10*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %d", outcome.ExitCode)
	}
}

func TestSessionContext_ExecuteTimeout(t *testing.T) {
	requireDocker(t)
	sc := newTestSessionContext(t)
	ctx := context.Background()

	if err := sc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	outcome, err := sc.Execute(ctx, "sleep 30", 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.ExitCode != -1 {
		t.Fatalf("expected timeout exit code -1, got %d", outcome.ExitCode)
	}
	if !strings.Contains(outcome.Stderr, "timed out") {
		t.Fatalf("expected timeout message in stderr, got %q", outcome.Stderr)
	}
}

func TestSessionContext_ExecuteBeforeStart(t *testing.T) {
	dir := t.TempDir()
	sc := NewSessionContext(SessionContextConfig{SessionID: "not-started", WorkspaceDir: dir})

	_, err := sc.Execute(context.Background(), "echo hi", time.Second)
	if !errors.Is(err, ErrSandboxUnavailable) {
		t.Fatalf("expected ErrSandboxUnavailable, got %v", err)
	}
}

func TestSessionContext_ContainerPath(t *testing.T) {
	dir := t.TempDir()
	sc := NewSessionContext(SessionContextConfig{SessionID: "paths", WorkspaceDir: dir, MountPath: "/workspace"})

	if got := sc.ContainerPath("foo/bar.txt"); got != "/workspace/foo/bar.txt" {
		t.Fatalf("ContainerPath: got %q", got)
	}
}

func TestSessionContext_ResolvePathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	sc := NewSessionContext(SessionContextConfig{SessionID: "traversal", WorkspaceDir: dir})

	if _, err := sc.ResolvePath("../../etc/passwd"); err == nil {
		t.Fatal("expected traversal outside workspace to be rejected")
	}
}

func TestSessionContext_StopAndCleanupAreIdempotent(t *testing.T) {
	sc := NewSessionContext(SessionContextConfig{SessionID: "idle", WorkspaceDir: t.TempDir()})
	ctx := context.Background()

	if err := sc.Stop(ctx); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	if err := sc.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup before Start: %v", err)
	}
}

func TestCommandTool_SchemaRequiresCommand(t *testing.T) {
	tool := NewCommandTool(nil)
	var decoded struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(tool.Schema(), &decoded); err != nil {
		t.Fatalf("Schema did not produce valid JSON: %v", err)
	}
	found := false
	for _, r := range decoded.Required {
		if r == "command" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected \"command\" in required fields")
	}
}

func TestCommandTool_ExecuteMissingCommand(t *testing.T) {
	sc := newTestSessionContext(t)
	tool := NewCommandTool(sc)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"command":""}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for empty command")
	}
}

func TestCommandTool_ExecuteNilContext(t *testing.T) {
	tool := NewCommandTool(nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"echo hi"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError when execution context is unavailable")
	}
}

func TestCommandTool_ExecuteRunsInSandbox(t *testing.T) {
	requireDocker(t)
	sc := newTestSessionContext(t)
	if err := sc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tool := NewCommandTool(sc)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"echo hi"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hi") {
		t.Fatalf("expected output to contain %q, got %q", "hi", result.Content)
	}
}
