package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/tools/files"
)

// ErrSandboxUnavailable is returned when the container runtime cannot be
// reached (docker daemon not running, image pull failure, etc).
var ErrSandboxUnavailable = errors.New("sandbox unavailable")

// SessionContext is a persistent per-session execution context: a single
// long-running container, kept alive for the life of the session, with the
// workspace directory bind-mounted read/write at a fixed in-container path.
// Unlike Executor (which spins up one ephemeral container per call),
// SessionContext starts exactly one container per session and runs every
// command against it via repeated `docker exec`.
type SessionContext struct {
	mu sync.Mutex

	sessionID     string
	workspaceDir  string
	mountPath     string
	image         string
	containerName string
	started       bool
	autoCleanup   bool

	resolver files.Resolver
}

// SessionContextConfig configures a new SessionContext.
type SessionContextConfig struct {
	SessionID    string
	WorkspaceDir string // host path
	MountPath    string // in-container path, default /workspace
	Image        string // default python:3.11-slim
	AutoCleanup  bool
}

// NewSessionContext creates a SessionContext for the given session. Start
// must be called before Execute.
func NewSessionContext(cfg SessionContextConfig) *SessionContext {
	mountPath := cfg.MountPath
	if mountPath == "" {
		mountPath = "/workspace"
	}
	image := cfg.Image
	if image == "" {
		image = "python:3.11-slim"
	}
	return &SessionContext{
		sessionID:     cfg.SessionID,
		workspaceDir:  cfg.WorkspaceDir,
		mountPath:     mountPath,
		image:         image,
		containerName: "agent-workspace-" + cfg.SessionID,
		autoCleanup:   cfg.AutoCleanup,
		resolver:      files.Resolver{Root: cfg.WorkspaceDir},
	}
}

// Start is idempotent. It ensures the workspace directory exists, pulls the
// image if absent, removes any stale container with the same name, and
// launches a long-running container with the workspace bind-mounted.
func (s *SessionContext) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if err := os.MkdirAll(s.workspaceDir, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}

	if err := s.ensureImage(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
	}

	// Remove any stale container left over from a previous run with the
	// same session id before starting a fresh one.
	_ = exec.CommandContext(ctx, "docker", "rm", "-f", s.containerName).Run()

	absWorkspace, err := filepath.Abs(s.workspaceDir)
	if err != nil {
		return err
	}

	args := []string{
		"run", "-d",
		"--name", s.containerName,
		"-v", fmt.Sprintf("%s:%s:rw", absWorkspace, s.mountPath),
		"-w", s.mountPath,
		s.image,
		"tail", "-f", "/dev/null",
	}
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: docker run: %v: %s", ErrSandboxUnavailable, err, strings.TrimSpace(stderr.String()))
	}

	s.started = true
	return nil
}

func (s *SessionContext) ensureImage(ctx context.Context) error {
	if err := exec.CommandContext(ctx, "docker", "image", "inspect", s.image).Run(); err == nil {
		return nil
	}
	pull := exec.CommandContext(ctx, "docker", "pull", s.image)
	var stderr bytes.Buffer
	pull.Stderr = &stderr
	if err := pull.Run(); err != nil {
		return fmt.Errorf("pull %s: %w: %s", s.image, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ExecuteOutcome is the result of running one command in the sandbox.
type ExecuteOutcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Execute runs command inside the sandbox via `docker exec`, with the
// workspace as CWD. Commands are invoked through a shell so callers can use
// pipes and redirection; the sandbox does not interpret the command itself.
// On timeout the process is killed and ExitCode is non-zero.
func (s *SessionContext) Execute(ctx context.Context, command string, timeout time.Duration) (ExecuteOutcome, error) {
	s.mu.Lock()
	started := s.started
	name := s.containerName
	mountPath := s.mountPath
	s.mu.Unlock()

	if !started {
		return ExecuteOutcome{}, fmt.Errorf("%w: session context not started", ErrSandboxUnavailable)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := []string{"exec", "-w", mountPath, name, "sh", "-c", command}
	cmd := exec.CommandContext(runCtx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	outcome := ExecuteOutcome{Stdout: stdout.String(), Stderr: stderr.String()}

	if runCtx.Err() == context.DeadlineExceeded {
		outcome.ExitCode = -1
		outcome.Stderr += "\ncommand timed out"
		return outcome, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, nil
		}
		return outcome, fmt.Errorf("%w: docker exec: %v", ErrSandboxUnavailable, runErr)
	}

	return outcome, nil
}

// ResolvePath normalizes p to an absolute host path inside the workspace
// directory, rejecting any traversal outside it.
func (s *SessionContext) ResolvePath(p string) (string, error) {
	return s.resolver.Resolve(p)
}

// ContainerPath maps a workspace-relative path to its in-container path.
func (s *SessionContext) ContainerPath(relative string) string {
	return filepath.Join(s.mountPath, relative)
}

// Started reports whether the sandbox container is running.
func (s *SessionContext) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// WorkspaceDir returns the host workspace directory.
func (s *SessionContext) WorkspaceDir() string { return s.workspaceDir }

// MountPath returns the in-container mount path.
func (s *SessionContext) MountPath() string { return s.mountPath }

// Stop stops (but does not remove) the container. Safe to call from any
// state, including before Start or after Cleanup.
func (s *SessionContext) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	_ = exec.CommandContext(ctx, "docker", "stop", s.containerName).Run()
	s.started = false
	return nil
}

// Cleanup stops and removes the container, additionally removing the
// workspace directory if auto-cleanup is configured.
func (s *SessionContext) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	name := s.containerName
	workspace := s.workspaceDir
	autoCleanup := s.autoCleanup
	s.started = false
	s.mu.Unlock()

	_ = exec.CommandContext(ctx, "docker", "rm", "-f", name).Run()

	if autoCleanup {
		if err := os.RemoveAll(workspace); err != nil {
			return fmt.Errorf("remove workspace: %w", err)
		}
	}
	return nil
}
