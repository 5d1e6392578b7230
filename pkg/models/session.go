package models

// Session binds a conversation context to an execution context under a
// single opaque identifier. A session is created once (create_new or
// resume) and closed exactly once; Close is idempotent.
type Session struct {
	SessionID           string `json:"session_id"`
	ConversationContext *ConversationContext `json:"-"`
	ExecutionContext    *ExecutionContext    `json:"-"`
}

// ExecutionContext describes a per-session sandbox: a host workspace
// directory bind-mounted into a long-running container at a fixed mount
// path inside the sandbox.
//
// Invariants: resolve_path(p) must land inside WorkspaceDir; Started is
// true iff SandboxHandle is non-empty; Stop is safe to call from any state.
type ExecutionContext struct {
	SessionID     string `json:"session_id"`
	WorkspaceDir  string `json:"workspace_dir"`
	MountPath     string `json:"mount_path"`
	SandboxHandle string `json:"sandbox_handle,omitempty"`
	Started       bool   `json:"started"`
}
