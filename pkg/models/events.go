package models

import "time"

// AgentEventType enumerates the internal event stream emitted by a ReAct
// run before translation into wire frames by the streaming transport.
type AgentEventType string

const (
	AgentEventRunStarted     AgentEventType = "run.started"
	AgentEventRunFinished    AgentEventType = "run.finished"
	AgentEventRunError       AgentEventType = "run.error"
	AgentEventRunCancelled   AgentEventType = "run.cancelled"
	AgentEventRunTimedOut    AgentEventType = "run.timed_out"
	AgentEventIterStarted    AgentEventType = "iter.started"
	AgentEventIterFinished   AgentEventType = "iter.finished"
	AgentEventModelDelta     AgentEventType = "model.delta"
	AgentEventModelCompleted AgentEventType = "model.completed"
	AgentEventToolStarted    AgentEventType = "tool.started"
	AgentEventToolStdout     AgentEventType = "tool.stdout"
	AgentEventToolStderr     AgentEventType = "tool.stderr"
	AgentEventToolFinished   AgentEventType = "tool.finished"
	AgentEventToolTimedOut   AgentEventType = "tool.timed_out"
	AgentEventContextPacked  AgentEventType = "context.packed"

	// Events specific to the ReAct/orchestrator semantics layered on top of
	// the generic run/iter/model/tool lifecycle above.
	AgentEventThought         AgentEventType = "thought"
	AgentEventActivity        AgentEventType = "activity"
	AgentEventFinalAnswer     AgentEventType = "final_answer"
	AgentEventRecovery        AgentEventType = "recovery"
	AgentEventInterrupting    AgentEventType = "interrupting"
	AgentEventInterrupted     AgentEventType = "interrupted"
	AgentEventStatus          AgentEventType = "status"
	AgentEventPlanProposal    AgentEventType = "plan_proposal"
	AgentEventPlanStarted     AgentEventType = "plan_started"
	AgentEventPlanUpdated     AgentEventType = "plan_updated"
	AgentEventProjectPaused   AgentEventType = "project_paused"
	AgentEventProjectResumed  AgentEventType = "project_resumed"
)

// RuntimeEvent is an alias for AgentEvent used where a response-chunk
// consumer only needs the generic engine-event shape rather than the full
// ReAct-specific payload.
type RuntimeEvent = AgentEvent

// AgentEvent is the internal streamed representation of a single engine
// step. It carries a monotonic per-run sequence number so ordering can be
// verified independently of the transport that eventually delivers it.
type AgentEvent struct {
	Version   int            `json:"version"`
	Type      AgentEventType `json:"type"`
	Time      time.Time      `json:"time"`
	Sequence  uint64         `json:"sequence"`
	RunID     string         `json:"run_id"`
	TurnIndex int            `json:"turn_index"`
	IterIndex int            `json:"iter_index"`

	Stream  *StreamEventPayload  `json:"stream,omitempty"`
	Tool    *ToolEventPayload    `json:"tool,omitempty"`
	Error   *ErrorEventPayload   `json:"error,omitempty"`
	Context *ContextEventPayload `json:"context,omitempty"`
	Stats   *StatsEventPayload   `json:"stats,omitempty"`
	React   *ReactEventPayload   `json:"react,omitempty"`
}

// StreamEventPayload carries model streaming/completion details.
type StreamEventPayload struct {
	Delta        string `json:"delta,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// ToolEventPayload carries tool dispatch/result details.
type ToolEventPayload struct {
	CallID     string        `json:"call_id"`
	Name       string        `json:"name"`
	ArgsJSON   []byte        `json:"args_json,omitempty"`
	Chunk      string        `json:"chunk,omitempty"`
	Success    bool          `json:"success,omitempty"`
	ResultJSON []byte        `json:"result_json,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

// ErrorEventPayload carries error details for run.error/run.cancelled/
// run.timed_out/tool.timed_out events.
type ErrorEventPayload struct {
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
	Err       error  `json:"-"`
}

// ContextEventPayload carries context-packing diagnostics: how many prior
// messages were dropped or truncated when assembling the prompt.
type ContextEventPayload struct {
	Included int `json:"included"`
	Dropped  int `json:"dropped"`
	Truncated int `json:"truncated"`
}

// StatsEventPayload wraps a RunStats snapshot for the run.finished event.
type StatsEventPayload struct {
	Run *RunStats `json:"run,omitempty"`
}

// ReactEventPayload carries the ReAct-specific fields used by the status,
// activity, thought, final_answer, plan_*, and project_* events.
type ReactEventPayload struct {
	Status      string                 `json:"status,omitempty"` // thinking|working|planning
	ActivityType string                `json:"activity_type,omitempty"`
	Tool        string                 `json:"tool,omitempty"`
	Params      map[string]interface{} `json:"params,omitempty"`
	Result      string                 `json:"result,omitempty"`
	ActivityErr string                 `json:"error,omitempty"`
	ActivityStatus string              `json:"activity_status,omitempty"` // running|completed|failed
	FileCreated *FileCreated           `json:"file_created,omitempty"`
	Content     string                 `json:"content,omitempty"`
	Plan        *Plan                  `json:"plan,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Task        string                 `json:"task,omitempty"`
}

// RunStats accumulates per-run counters, exposed for metrics and as the
// diagnostic payload attached to the complete frame.
type RunStats struct {
	RunID        string        `json:"run_id"`
	Iters        int           `json:"iters"`
	ToolCalls    int           `json:"tool_calls"`
	ToolWallTime time.Duration `json:"tool_wall_time"`
	ModelWallTime time.Duration `json:"model_wall_time"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Errors       int           `json:"errors"`
	ToolTimeouts int           `json:"tool_timeouts"`
	ContextPacks int           `json:"context_packs"`
	DroppedItems int           `json:"dropped_items"`
	Cancelled    bool          `json:"cancelled"`
	TimedOut     bool          `json:"timed_out"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	WallTime     time.Duration `json:"wall_time"`
}
