package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ExecutionMode selects how the orchestrator drives a task: straight
// through the engine's own ReAct loop, through a synthesized plan, or
// through a plan that first waits for external approval.
type ExecutionMode string

const (
	ExecutionDirect      ExecutionMode = "direct"
	ExecutionPlanned     ExecutionMode = "planned"
	ExecutionInteractive ExecutionMode = "interactive"
)

const directModeMaxIterations = 20

// stepRecoveryAttempts bounds how many times a single plan step is
// re-run with a [RECOVERY] hint appended before it is given up on.
const stepRecoveryAttempts = 2

// StepResult is the outcome of executing one PlanStep.
type StepResult struct {
	StepID           int
	Success          bool
	Observation      string
	IterationsUsed   int
	ValidationStatus ValidationStatus
}

// ExecutionResult is the complete outcome of one Orchestrator.Execute call.
type ExecutionResult struct {
	Task            string
	Mode            ExecutionMode
	Plan            *models.Plan
	StepResults     []StepResult
	FinalAnswer     string
	TotalIterations int
	Success         bool

	// AwaitingApproval is set when mode is ExecutionInteractive and the
	// plan has been proposed but not yet run: the caller must review the
	// Plan and invoke ExecutePlan once it is approved (optionally after
	// amending steps or adding suggestions).
	AwaitingApproval bool
}

// OrchestratorHooks are optional human-in-the-loop callbacks, invoked
// synchronously from Execute/ExecutePlan alongside the equivalent
// EventEmitter notifications.
type OrchestratorHooks struct {
	OnPlanCreated   func(*models.Plan)
	OnStepStarted   func(models.PlanStep)
	OnStepCompleted func(StepResult)
}

// Orchestrator coordinates planning, stepwise execution, validation, and
// recovery for a single task. It delegates the actual Thought/Action/
// Observation mechanics to an Engine, reserving its own recovery handling
// for step-boundary hints rather than the Engine's in-loop tool retries.
type Orchestrator struct {
	engine    *Engine
	planner   *Planner
	validator *OutputValidator
	task      *TaskValidator
	recovery  *RecoveryManager
	emitter   *EventEmitter
	mode      ExecutionMode
	hooks     OrchestratorHooks
	tracer    trace.Tracer

	mu                 sync.Mutex
	pendingSuggestions []string
}

// NewOrchestrator builds an Orchestrator over engine (for the per-task/
// per-step ReAct mechanics) and planner (for plan synthesis), running in
// mode and emitting lifecycle events through emitter.
func NewOrchestrator(engine *Engine, planner *Planner, mode ExecutionMode, emitter *EventEmitter) *Orchestrator {
	if emitter == nil {
		emitter = NewEventEmitter("", NopSink{})
	}
	return &Orchestrator{
		engine:    engine,
		planner:   planner,
		validator: NewOutputValidator(),
		task:      NewTaskValidator(),
		recovery:  NewRecoveryManager(3),
		emitter:   emitter,
		mode:      mode,
		tracer:    otel.Tracer("agentrunner/orchestrator"),
	}
}

// SetHooks attaches human-in-the-loop callbacks. Not safe for concurrent
// use with Execute/ExecutePlan.
func (o *Orchestrator) SetHooks(hooks OrchestratorHooks) {
	o.hooks = hooks
}

// AddSuggestion queues a mid-flight user suggestion; it is injected into
// the next step's execution context and then cleared.
func (o *Orchestrator) AddSuggestion(suggestion string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingSuggestions = append(o.pendingSuggestions, suggestion)
}

func (o *Orchestrator) drainSuggestions() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pendingSuggestions) == 0 {
		return nil
	}
	out := o.pendingSuggestions
	o.pendingSuggestions = nil
	return out
}

// Execute runs task to completion under the orchestrator's configured
// mode. Simple tasks in non-interactive modes skip planning entirely and
// run directly through the engine. Everything else is planned first; in
// ExecutionInteractive the plan is proposed and Execute returns with
// AwaitingApproval set rather than running any step, pending a later call
// to ExecutePlan.
func (o *Orchestrator) Execute(ctx context.Context, task string) (*ExecutionResult, error) {
	o.task.Reset()
	o.recovery.Reset()

	complexity := ClassifyComplexity(task)
	if complexity == models.ComplexitySimple && o.mode != ExecutionInteractive {
		return o.executeDirect(ctx, task)
	}

	plan, err := o.planner.CreatePlan(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	o.emitter.PlanProposal(ctx, plan)
	if o.hooks.OnPlanCreated != nil {
		o.hooks.OnPlanCreated(plan)
	}

	if o.mode == ExecutionInteractive {
		o.emitter.ProjectPaused(ctx)
		return &ExecutionResult{
			Task:             task,
			Mode:             o.mode,
			Plan:             plan,
			AwaitingApproval: true,
		}, nil
	}

	o.emitter.PlanStarted(ctx, plan)
	return o.runPlan(ctx, task, plan)
}

// ExecutePlan resumes an interactive-mode execution once the caller has
// approved (and optionally amended) the plan returned by a prior Execute
// call with AwaitingApproval set.
func (o *Orchestrator) ExecutePlan(ctx context.Context, task string, plan *models.Plan) (*ExecutionResult, error) {
	o.emitter.ProjectResumed(ctx)
	o.emitter.PlanStarted(ctx, plan)
	return o.runPlan(ctx, task, plan)
}

func (o *Orchestrator) executeDirect(ctx context.Context, task string) (*ExecutionResult, error) {
	result, err := o.engine.RunStepWithLimit(ctx, task, "", directModeMaxIterations)
	if err != nil {
		return nil, err
	}
	return &ExecutionResult{
		Task:            task,
		Mode:            ExecutionDirect,
		FinalAnswer:     result.FinalAnswer,
		TotalIterations: result.Iterations,
		Success:         !result.Interrupted,
	}, nil
}

func (o *Orchestrator) runPlan(ctx context.Context, task string, plan *models.Plan) (*ExecutionResult, error) {
	var stepResults []StepResult
	succeeded := map[int]bool{}
	totalIterations := 0

	for _, step := range plan.Steps {
		if len(step.Dependencies) > 0 && !plan.DependenciesSatisfied(step, succeeded) {
			stepResults = append(stepResults, StepResult{
				StepID:           step.ID,
				Success:          false,
				Observation:      "Dependencies not met",
				ValidationStatus: ValidationSkipped,
			})
			continue
		}

		if o.hooks.OnStepStarted != nil {
			o.hooks.OnStepStarted(step)
		}
		o.emitter.Status(ctx, fmt.Sprintf("step %d/%d", step.ID, len(plan.Steps)))

		result := o.executeStep(ctx, step, plan, stepResults)
		stepResults = append(stepResults, result)
		totalIterations += result.IterationsUsed
		if result.Success {
			succeeded[step.ID] = true
		}

		if o.hooks.OnStepCompleted != nil {
			o.hooks.OnStepCompleted(result)
		}

		if !result.Success && step.Fallback != "" {
			o.emitter.Recovery(ctx, fmt.Sprintf("executing fallback for step %d: %s", step.ID, step.Fallback))
		}
	}

	finalAnswer := o.compileFinalAnswer(plan, stepResults)
	taskValidation := o.task.AssessTaskCompletion(task, finalAnswer)

	return &ExecutionResult{
		Task:            task,
		Mode:            o.mode,
		Plan:            plan,
		StepResults:     stepResults,
		FinalAnswer:     finalAnswer,
		TotalIterations: totalIterations,
		Success:         taskValidation.Status == ValidationValid,
	}, nil
}

// executeStep runs one plan step to completion (or exhaustion), wiring
// in the orchestrator's own step-boundary recovery: an INVALID validation
// appends a [RECOVERY] hint to the step's context and the step is re-run
// from scratch, up to stepRecoveryAttempts times. This is distinct from
// (and sits above) the Engine's own in-loop self-healing, which retries a
// single failing tool call rather than the whole step.
func (o *Orchestrator) executeStep(ctx context.Context, step models.PlanStep, plan *models.Plan, previous []StepResult) StepResult {
	ctx, span := o.tracer.Start(ctx, "orchestrator.step", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	maxIterations := step.EstimatedIterations * 2
	if maxIterations <= 0 {
		maxIterations = 2
	}

	stepContext := o.buildStepContext(step, plan, previous)
	var lastObservation string
	var totalIterations int

	for attempt := 0; attempt <= stepRecoveryAttempts; attempt++ {
		for _, s := range o.drainSuggestions() {
			stepContext += "\n[USER SUGGESTION] " + s
		}

		result, err := o.engine.RunStepWithLimit(ctx, step.Description, stepContext, maxIterations)
		if err != nil {
			return StepResult{
				StepID:           step.ID,
				Success:          false,
				Observation:      err.Error(),
				IterationsUsed:   totalIterations,
				ValidationStatus: ValidationInvalid,
			}
		}
		totalIterations += result.Iterations

		toolName, toolParams, observation := lastAction(result.Steps)
		if observation == "" {
			observation = result.FinalAnswer
		}
		lastObservation = observation

		if toolName == "" {
			if result.FinalAnswer != "" {
				// The step reached a Final Answer without ever calling a
				// tool (e.g. a purely conversational step); accept it.
				return StepResult{
					StepID:           step.ID,
					Success:          true,
					Observation:      result.FinalAnswer,
					IterationsUsed:   totalIterations,
					ValidationStatus: ValidationValid,
				}
			}
			// Exhausted its iteration budget without acting or answering.
			break
		}

		validation := o.validator.Validate(toolName, observation, toolParams)
		o.task.RecordAction(toolName, toolParams, observation, validation)

		if validation.Status == ValidationValid || validation.Status == ValidationSkipped {
			return StepResult{
				StepID:           step.ID,
				Success:          true,
				Observation:      observation,
				IterationsUsed:   totalIterations,
				ValidationStatus: ValidationValid,
			}
		}

		recovery, _ := o.recovery.Analyze(observation, toolName, toolParams)
		if recovery == nil || attempt == stepRecoveryAttempts {
			break
		}
		o.emitter.Recovery(ctx, recovery.Description)
		stepContext += "\n[RECOVERY] " + recovery.Description
	}

	return StepResult{
		StepID:           step.ID,
		Success:          false,
		Observation:      lastObservation,
		IterationsUsed:   totalIterations,
		ValidationStatus: ValidationInvalid,
	}
}

// lastAction returns the tool name, params, and observation content of
// the last action/observation pair recorded in steps, or zero values if
// the run never dispatched a tool.
func lastAction(steps []models.ReactStep) (toolName string, params map[string]interface{}, observation string) {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Kind == models.StepObservation && observation == "" {
			observation = steps[i].Content
		}
		if steps[i].Kind == models.StepAction {
			toolName = steps[i].ToolName
			params = steps[i].Params
			break
		}
	}
	return toolName, params, observation
}

func (o *Orchestrator) buildStepContext(step models.PlanStep, plan *models.Plan, previous []StepResult) string {
	lines := []string{
		fmt.Sprintf("OVERALL TASK: %s", plan.Task),
		fmt.Sprintf("CURRENT STEP: %d/%d - %s", step.ID, len(plan.Steps), step.Description),
	}
	if step.Tool != "" {
		lines = append(lines, fmt.Sprintf("SUGGESTED TOOL: %s", step.Tool))
	}
	if step.ExpectedOutput != "" {
		lines = append(lines, fmt.Sprintf("EXPECTED OUTPUT: %s", step.ExpectedOutput))
	}
	if len(previous) > 0 {
		lines = append(lines, "", "PREVIOUS RESULTS:")
		start := 0
		if len(previous) > 3 {
			start = len(previous) - 3
		}
		for _, pr := range previous[start:] {
			status := "FAILED"
			if pr.Success {
				status = "OK"
			}
			lines = append(lines, fmt.Sprintf("  Step %d: %s", pr.StepID, status))
		}
	}
	return strings.Join(lines, "\n")
}

func (o *Orchestrator) compileFinalAnswer(plan *models.Plan, results []StepResult) string {
	stepByID := make(map[int]models.PlanStep, len(plan.Steps))
	for _, s := range plan.Steps {
		stepByID[s.ID] = s
	}

	var successful, failed []StepResult
	for _, r := range results {
		if r.Success {
			successful = append(successful, r)
		} else {
			failed = append(failed, r)
		}
	}

	lines := []string{fmt.Sprintf("Task: %s", plan.Task), ""}

	if len(successful) > 0 {
		lines = append(lines, "Completed steps:")
		for _, r := range successful {
			if s, ok := stepByID[r.StepID]; ok {
				lines = append(lines, fmt.Sprintf("  - %s", s.Description))
			}
		}
	}

	if len(failed) > 0 {
		lines = append(lines, "", "Failed steps:")
		for _, r := range failed {
			if s, ok := stepByID[r.StepID]; ok {
				lines = append(lines, fmt.Sprintf("  - %s: %s", s.Description, truncate(r.Observation, 100)))
			}
		}
	}

	for _, r := range successful {
		lower := strings.ToLower(r.Observation)
		if strings.Contains(r.Observation, "Download URL") || strings.Contains(lower, "written") {
			lines = append(lines, "", fmt.Sprintf("Output: %s", r.Observation))
			break
		}
	}

	return strings.Join(lines, "\n")
}
