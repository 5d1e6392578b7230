package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/pkg/models"
)

// EngineConfig tunes one Engine's loop behavior.
type EngineConfig struct {
	MaxIterations      int
	LLMCallTimeout     time.Duration
	ToolCallTimeout    time.Duration
	LoopWarnThreshold  int // count at which a repeated action gets a warning observation
	LoopAbortThreshold int // count at which a repeated action aborts the task
	RecoveryMaxRetries int
}

// DefaultEngineConfig returns the documented default tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxIterations:      100,
		LLMCallTimeout:     120 * time.Second,
		ToolCallTimeout:    300 * time.Second,
		LoopWarnThreshold:  2,
		LoopAbortThreshold: 3,
		RecoveryMaxRetries: 3,
	}
}

// Engine drives one task through the Reason-Act-Observe loop: it builds
// the prompt, calls the LLM provider, parses the strict Thought/Action
// response format, dispatches tool calls against the registry, detects
// repeated actions, and runs one round of self-healing recovery on
// classifiable tool failures.
type Engine struct {
	registry *ToolRegistry
	provider LLMProvider
	model    string
	cfg      EngineConfig
	recovery *RecoveryManager
	emitter  *EventEmitter
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewEngine creates a ReAct engine over registry, calling provider/model
// for completions and emitting lifecycle events through emitter (which may
// be a NopSink-backed emitter if no streaming consumer is attached). Tracing
// defaults to the global OpenTelemetry tracer provider (a no-op until
// SetTracer or the process's observability.NewTracer installs a real one);
// metrics default to nil, under which every Metrics call is a no-op.
func NewEngine(registry *ToolRegistry, provider LLMProvider, model string, cfg EngineConfig, emitter *EventEmitter) *Engine {
	if emitter == nil {
		emitter = NewEventEmitter("", NopSink{})
	}
	return &Engine{
		registry: registry,
		provider: provider,
		model:    model,
		cfg:      cfg,
		recovery: NewRecoveryManager(cfg.RecoveryMaxRetries),
		emitter:  emitter,
		tracer:   otel.Tracer("agentrunner/engine"),
	}
}

// SetMetrics attaches a Metrics sink; passing nil disables metric recording.
func (e *Engine) SetMetrics(metrics *observability.Metrics) {
	e.metrics = metrics
}

// RunResult is the outcome of one Engine.Run call.
type RunResult struct {
	FinalAnswer string
	Steps       []models.ReactStep
	Iterations  int
	Interrupted bool
	TimedOut    bool
}

// contextFrame is an optional prefix injected into the executor prompt
// ahead of the user task message (used by the orchestrator for step-scoped
// framing in planned/interactive mode).
type contextFrame struct {
	systemExtra  string
	maxIterations int // 0 means use the engine's configured default
}

// Run executes task to completion, to the iteration cap, to cancellation,
// or to an LLM failure. recentHistory supplies the last-5/200-char
// "previous conversation context" slice per the prompt assembly rule;
// pass nil for a fresh task with no prior turns.
func (e *Engine) Run(ctx context.Context, task string, recentHistory []models.Message) (*RunResult, error) {
	return e.run(ctx, task, recentHistory, contextFrame{})
}

// RunStep is Run with an additional system-level context frame injected
// between the system prompt and the task message, used by the orchestrator
// to scope execution to a single plan step.
func (e *Engine) RunStep(ctx context.Context, task string, stepContext string) (*RunResult, error) {
	return e.run(ctx, task, nil, contextFrame{systemExtra: stepContext})
}

// RunStepWithLimit is RunStep with a caller-supplied iteration cap,
// overriding the engine's configured default. The orchestrator uses this
// to bound step execution to a small multiple of the plan's estimate
// rather than the full-task iteration budget.
func (e *Engine) RunStepWithLimit(ctx context.Context, task string, stepContext string, maxIterations int) (*RunResult, error) {
	return e.run(ctx, task, nil, contextFrame{systemExtra: stepContext, maxIterations: maxIterations})
}

func (e *Engine) run(ctx context.Context, task string, recentHistory []models.Message, frame contextFrame) (result *RunResult, err error) {
	defer func() {
		if result == nil {
			return
		}
		outcome := "completed"
		switch {
		case result.Interrupted:
			outcome = "interrupted"
		case result.TimedOut:
			outcome = "timed_out"
		case err != nil:
			outcome = "error"
		}
		e.metrics.RecordRunOutcome(outcome, result.Iterations)
	}()

	state := models.NewAgentState(task)
	var steps []models.ReactStep
	detector := &loopDetector{}

	messages := []CompletionMessage{
		{Role: "system", Content: e.buildSystemPrompt()},
	}
	if frame.systemExtra != "" {
		messages = append(messages, CompletionMessage{Role: "system", Content: frame.systemExtra})
	}
	if len(recentHistory) > 0 {
		messages = append(messages, CompletionMessage{Role: "system", Content: buildRecentContextMessage(recentHistory)})
	}
	messages = append(messages, CompletionMessage{Role: "user", Content: fmt.Sprintf("Task: %s", task)})

	maxIter := e.cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}
	if frame.maxIterations > 0 {
		maxIter = frame.maxIterations
	}

	for state.Iteration < maxIter && !state.IsComplete {
		if ctx.Err() != nil {
			state.Complete("Task interrupted by user.")
			return &RunResult{FinalAnswer: state.FinalAnswer, Steps: steps, Iterations: state.Iteration, Interrupted: true}, nil
		}

		state.Iteration++
		e.emitter.SetIter(state.Iteration)
		e.emitter.Status(ctx, "thinking")
		e.metrics.RecordIteration()

		iterCtx, iterSpan := e.tracer.Start(ctx, "engine.iteration")
		response, err := e.callLLM(iterCtx, messages)
		iterSpan.End()
		if err != nil {
			if ctx.Err() != nil {
				state.Complete("Task interrupted by user.")
				return &RunResult{FinalAnswer: state.FinalAnswer, Steps: steps, Iterations: state.Iteration, Interrupted: true}, nil
			}
			final := fmt.Sprintf("LLM call failed: %v", err)
			state.Complete(final)
			e.emitter.RunError(ctx, err, false)
			return &RunResult{FinalAnswer: final, Steps: steps, Iterations: state.Iteration, TimedOut: isTimeout(err)}, nil
		}

		thought, actionText := parseResponse(response)
		if thought != "" {
			messages = append(messages, CompletionMessage{Role: "assistant", Content: "Thought: " + thought})
			steps = append(steps, models.NewThoughtStep(thought))
			e.emitter.Thought(ctx, thought)
		}

		if actionText == "" {
			messages = append(messages, CompletionMessage{Role: "user", Content: "Observation: No Action found. Respond with exactly one Action line."})
			continue
		}

		if finalAnswer, ok := extractFinalAnswer(actionText); ok {
			state.Complete(finalAnswer)
			steps = append(steps, models.NewFinalAnswerStep(finalAnswer))
			e.emitter.FinalAnswer(ctx, finalAnswer)
			break
		}

		toolName, params, ok := parseToolCall(actionText)
		if !ok {
			messages = append(messages, CompletionMessage{Role: "user", Content: "Observation: Could not parse Action. Use the exact format tool_name({\"param\": \"value\"})."})
			continue
		}

		if !e.registry.Has(toolName) {
			messages = append(messages, CompletionMessage{Role: "user", Content: fmt.Sprintf("Observation: Error: tool %q is not registered.", toolName)})
			continue
		}

		canonical := toolName + ":" + canonicalParams(params)
		count := detector.count(canonical)

		warnThreshold := e.cfg.LoopWarnThreshold
		abortThreshold := e.cfg.LoopAbortThreshold
		if warnThreshold <= 0 {
			warnThreshold = 2
		}
		if abortThreshold <= 0 {
			abortThreshold = 3
		}

		if count >= abortThreshold {
			final := "Task stopped due to repeated actions without progress."
			state.Complete(final)
			steps = append(steps, models.NewFinalAnswerStep(final))
			e.emitter.FinalAnswer(ctx, final)
			e.metrics.RecordLoopAbort()
			break
		}
		if count >= warnThreshold {
			detector.record(canonical)
			messages = append(messages, CompletionMessage{Role: "user", Content: "Observation: You have repeated this exact action. Try a different approach or produce a Final Answer."})
			continue
		}
		detector.record(canonical)

		observation, fileCreated, toolErr := e.dispatch(ctx, toolName, params)
		if ctx.Err() != nil {
			state.Complete("Task interrupted by user.")
			e.emitter.emit(ctx, e.emitter.base(models.AgentEventInterrupted))
			return &RunResult{FinalAnswer: state.FinalAnswer, Steps: steps, Iterations: state.Iteration, Interrupted: true}, nil
		}

		steps = append(steps, models.NewActionStep(toolName, params))
		steps = append(steps, models.NewObservationStep(observation, fileCreated))
		state.Observations = append(state.Observations, observation)
		messages = append(messages,
			CompletionMessage{Role: "assistant", Content: fmt.Sprintf("Action: %s(%s)", toolName, canonicalParams(params))},
			CompletionMessage{Role: "user", Content: "Observation: " + observation},
		)

		if toolErr {
			if recovered, recoveryObservation, recoverySteps := e.attemptRecovery(ctx, toolName, params, observation); recovered {
				steps = append(steps, recoverySteps...)
				messages = append(messages, CompletionMessage{Role: "user", Content: "Observation: " + recoveryObservation})
				state.Observations = append(state.Observations, recoveryObservation)
			}
		}
	}

	if !state.IsComplete {
		final := "Maximum iterations reached. Unable to complete the task."
		state.Complete(final)
		steps = append(steps, models.NewFinalAnswerStep(final))
		e.emitter.FinalAnswer(ctx, final)
	}

	return &RunResult{FinalAnswer: state.FinalAnswer, Steps: steps, Iterations: state.Iteration}, nil
}

func isTimeout(err error) bool {
	return err == context.DeadlineExceeded || strings.Contains(strings.ToLower(err.Error()), "timeout") || strings.Contains(strings.ToLower(err.Error()), "deadline")
}

// callLLM drains provider.Complete into a single response string, bounded
// by the engine's per-call timeout. No model-token streaming is surfaced
// to the caller; the engine streams its own parsed decisions instead.
func (e *Engine) callLLM(ctx context.Context, messages []CompletionMessage) (string, error) {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("llm.%s", e.provider.Name()), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	text, inTokens, outTokens, err := e.callLLMOnce(ctx, messages)
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	e.metrics.RecordLLMRequest(e.provider.Name(), e.model, status, time.Since(start).Seconds(), inTokens, outTokens)
	return text, err
}

func (e *Engine) callLLMOnce(ctx context.Context, messages []CompletionMessage) (text string, inTokens, outTokens int, err error) {
	timeout := e.cfg.LLMCallTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &CompletionRequest{Model: e.model, Messages: messages, MaxTokens: 4096}
	chunks, err := e.provider.Complete(callCtx, req)
	if err != nil {
		return "", 0, 0, err
	}

	var sb strings.Builder
	for {
		select {
		case <-callCtx.Done():
			return "", 0, 0, callCtx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				e.emitter.ModelCompleted(ctx, e.provider.Name(), e.model, inTokens, outTokens)
				return sb.String(), inTokens, outTokens, nil
			}
			if chunk.Error != nil {
				return "", 0, 0, chunk.Error
			}
			sb.WriteString(chunk.Text)
			if chunk.Done {
				inTokens, outTokens = chunk.InputTokens, chunk.OutputTokens
			}
		}
	}
}

// dispatch executes a tool call under the per-tool timeout, checking for
// cancellation before and after the call, and reports whether it
// implements write_file with a success marker (to surface file_created).
func (e *Engine) dispatch(ctx context.Context, toolName string, params map[string]interface{}) (observation string, fileCreated *models.FileCreated, isError bool) {
	e.emitter.Activity(ctx, "tool_call", toolName, params, "", "", "running")

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("tool.%s", toolName), trace.WithSpanKind(trace.SpanKindInternal))
	start := time.Now()
	defer func() {
		status := "success"
		if isError {
			status = "error"
		}
		e.metrics.RecordToolExecution(toolName, status, time.Since(start).Seconds())
		span.End()
	}()

	if ctx.Err() != nil {
		return "Error: cancelled", nil, true
	}

	tool, err := e.registry.Get(toolName)
	if err != nil {
		return "Error: " + err.Error(), nil, true
	}

	timeout := e.cfg.ToolCallTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	paramsJSON, _ := json.Marshal(params)
	result, execErr := tool.Execute(callCtx, paramsJSON)

	if ctx.Err() != nil {
		return "Error: cancelled", nil, true
	}

	if execErr != nil {
		observation = "Error: " + execErr.Error()
		isError = true
	} else if result != nil {
		observation = result.Content
		isError = result.IsError || strings.HasPrefix(strings.TrimSpace(observation), "Error")
	} else {
		observation = ""
	}

	if toolName == "write_file" && strings.Contains(observation, `"status": "success"`) {
		path, _ := params["file_path"].(string)
		content, _ := params["content"].(string)
		fileCreated = &models.FileCreated{Path: path, Content: content}
	}

	if isError {
		e.emitter.Activity(ctx, "tool_call", toolName, params, "", observation, "failed")
	} else {
		e.emitter.Activity(ctx, "tool_call", toolName, params, truncate(observation, 500), "", "completed")
	}
	return observation, fileCreated, isError
}

// attemptRecovery runs one round of self-healing on a failed tool call: it
// classifies the error, runs the proposed recovery action (executing a
// shell command via execute_command when applicable), and retries the
// original tool once with its original parameters.
func (e *Engine) attemptRecovery(ctx context.Context, toolName string, params map[string]interface{}, observation string) (bool, string, []models.ReactStep) {
	action, hash := e.recovery.Analyze(observation, toolName, params)
	if action == nil {
		return false, "", nil
	}

	var steps []models.ReactStep
	steps = append(steps, models.NewRecoveryStep(action.Description))
	e.emitter.Recovery(ctx, action.Description)

	var recoveryObservation string
	switch action.ActionType {
	case RecoveryExecuteCommand:
		cmd, _ := action.Params["command"].(string)
		if execTool, err := e.registry.Get("execute_command"); err == nil {
			execParams, _ := json.Marshal(map[string]interface{}{"command": cmd})
			callCtx, cancel := context.WithTimeout(ctx, e.toolTimeoutOrDefault())
			result, err := execTool.Execute(callCtx, execParams)
			cancel()
			if err != nil {
				recoveryObservation = "Error: " + err.Error()
			} else {
				recoveryObservation = result.Content
			}
		} else {
			recoveryObservation = "Error: no execute_command tool registered for recovery"
		}
	case RecoveryNotifyUser:
		recoveryObservation, _ = action.Params["message"].(string)
	case RecoveryRetryWithDelay:
		delay := 2
		if d, ok := action.Params["delay_seconds"].(int); ok {
			delay = d
		}
		select {
		case <-time.After(time.Duration(delay) * time.Second):
		case <-ctx.Done():
			return true, "Error: cancelled during recovery delay", steps
		}
		recoveryObservation = "Retried after delay."
	case RecoveryRetryWithTimeout:
		recoveryObservation = "Retrying with extended timeout."
	}

	steps = append(steps, models.NewObservationStep(recoveryObservation, nil))

	// Retry the original tool once with its original parameters.
	retryObservation, _, retryErr := e.dispatch(ctx, toolName, params)
	steps = append(steps, models.NewActionStep(toolName, params), models.NewObservationStep(retryObservation, nil))

	if !retryErr {
		e.recovery.RecordSuccess(hash)
		e.metrics.RecordRecoveryAttempt("recovered")
	} else {
		e.metrics.RecordRecoveryAttempt("failed")
	}

	return true, recoveryObservation + "\n" + retryObservation, steps
}

func (e *Engine) toolTimeoutOrDefault() time.Duration {
	if e.cfg.ToolCallTimeout > 0 {
		return e.cfg.ToolCallTimeout
	}
	return 300 * time.Second
}

// buildSystemPrompt enumerates every registered tool and prescribes the
// strict Thought/Action response format.
func (e *Engine) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an autonomous agent that solves tasks by reasoning step by step and invoking tools.\n\n")
	b.WriteString("TOOLS:\n")
	for _, schema := range e.registry.Schema() {
		fmt.Fprintf(&b, "- %s: %s\n  Params: %s\n", schema.Name, schema.Description, string(schema.Parameters))
	}
	b.WriteString("\nFORMAT:\nThought: <reasoning>\nAction: tool_name({\"param\": \"value\"})\n\n")
	b.WriteString("When the task is complete:\nAction: Final Answer: <result>\n\n")
	b.WriteString("RULES:\n- Exactly one Thought and one Action per response.\n- Never call a tool that is not listed above.\n- Prefer Final Answer once the task's goal is met.\n")
	return b.String()
}

// buildRecentContextMessage renders the last-5/200-char slice of prior
// conversation as a single "previous conversation context" system message.
func buildRecentContextMessage(history []models.Message) string {
	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	var b strings.Builder
	b.WriteString("Previous conversation context:\n")
	for _, m := range recent {
		content := m.Content
		if len(content) > 200 {
			content = content[:200]
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, content)
	}
	return b.String()
}

var thoughtPattern = regexp.MustCompile(`(?is)Thought:\s*(.+?)(?:Action:|$)`)
var actionPattern = regexp.MustCompile(`(?i)Action:\s*(.+)`)
var toolCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// parseResponse extracts the Thought block (up to the next Action:,
// case-insensitive, across lines) and the first Action: line from a raw
// LLM response.
func parseResponse(response string) (thought, actionText string) {
	if m := thoughtPattern.FindStringSubmatch(response); m != nil {
		thought = strings.TrimSpace(m[1])
	}
	if m := actionPattern.FindStringSubmatch(response); m != nil {
		actionText = strings.TrimSpace(m[1])
	}
	return thought, actionText
}

// extractFinalAnswer reports whether actionText is a "Final Answer:" line
// and, if so, the trimmed answer text.
func extractFinalAnswer(actionText string) (string, bool) {
	lower := strings.ToLower(actionText)
	idx := strings.Index(lower, "final answer:")
	if idx < 0 {
		return "", false
	}
	rest := actionText[idx:]
	if colon := strings.Index(rest, ":"); colon >= 0 {
		return strings.TrimSpace(rest[colon+1:]), true
	}
	return strings.TrimSpace(rest), true
}

// parseToolCall parses "tool_name({...})" tolerantly: malformed or missing
// JSON defaults to an empty parameter object rather than failing, since
// tools validate their own arguments.
func parseToolCall(actionText string) (name string, params map[string]interface{}, ok bool) {
	m := toolCallPattern.FindStringSubmatch(actionText)
	if m == nil {
		return "", nil, false
	}
	name = m[1]
	raw := strings.TrimSpace(m[2])
	params = map[string]interface{}{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &params)
	}
	return name, params, true
}

// canonicalParams renders params as a deterministic string for loop
// detection (Go's json.Marshal of a map already sorts keys).
func canonicalParams(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload, err := json.Marshal(params)
	if err != nil {
		var b strings.Builder
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "%s=%v", k, params[k])
		}
		return b.String()
	}
	return string(payload)
}

// loopDetector tracks the bounded FIFO history of dispatched
// "tool_name:canonical_params" strings used for repeated-action detection.
type loopDetector struct {
	history []string
}

const loopDetectorCap = 10

func (d *loopDetector) count(key string) int {
	n := 0
	for _, k := range d.history {
		if k == key {
			n++
		}
	}
	return n
}

func (d *loopDetector) record(key string) {
	d.history = append(d.history, key)
	if len(d.history) > loopDetectorCap {
		d.history = d.history[len(d.history)-loopDetectorCap:]
	}
}
