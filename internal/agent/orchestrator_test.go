package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

// recordingTool appends every Execute call's raw params to calls and
// returns a JSON success marker (as write_file does) for the path given.
type recordingTool struct {
	name  string
	calls []string
}

func (t *recordingTool) Name() string        { return t.name }
func (t *recordingTool) Description() string { return "records calls for assertions" }
func (t *recordingTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (t *recordingTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	t.calls = append(t.calls, string(params))
	var input struct {
		Path string `json:"file_path"`
	}
	_ = json.Unmarshal(params, &input)
	return &ToolResult{Content: `{"status": "success", "path": "` + input.Path + `"}`}, nil
}

func newOrchestratorRegistry(tool Tool) *ToolRegistry {
	r := NewToolRegistry()
	r.Register(tool)
	return r
}

func TestOrchestrator_Execute_SimpleTaskGoesDirect(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"Thought: trivial.\nAction: Final Answer: done directly",
	}}
	engine := NewEngine(newTestRegistry(), provider, "test-model", DefaultEngineConfig(), nil)
	planner := NewPlanner(nil, "test-model")
	orch := NewOrchestrator(engine, planner, ExecutionPlanned, nil)

	result, err := orch.Execute(context.Background(), "print hello")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result.Mode != ExecutionDirect {
		t.Errorf("Mode = %q, want direct", result.Mode)
	}
	if result.FinalAnswer != "done directly" {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}
	if !result.Success {
		t.Error("expected success")
	}
}

func TestOrchestrator_Execute_InteractiveModeAwaitsApproval(t *testing.T) {
	planResponse := `{
  "complexity": "moderate",
  "summary": "Do a thing",
  "steps": [
    {"id": 1, "description": "do it", "step_type": "execute", "tool": "run", "dependencies": [], "estimated_iterations": 1, "risk_level": "low"}
  ],
  "resources_needed": [],
  "potential_risks": [],
  "success_criteria": []
}`
	plannerProvider := &scriptedProvider{responses: []string{planResponse}}
	planner := NewPlanner(plannerProvider, "test-model")

	engineProvider := &scriptedProvider{responses: []string{
		"Thought: should not run yet.\nAction: Final Answer: should not happen",
	}}
	engine := NewEngine(newTestRegistry(), engineProvider, "test-model", DefaultEngineConfig(), nil)

	orch := NewOrchestrator(engine, planner, ExecutionInteractive, nil)

	result, err := orch.Execute(context.Background(), "research and write up a multi-page report across regions")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !result.AwaitingApproval {
		t.Fatal("expected AwaitingApproval in interactive mode")
	}
	if result.Plan == nil || len(result.Plan.Steps) != 1 {
		t.Fatalf("expected a proposed plan, got %+v", result.Plan)
	}
	if len(result.StepResults) != 0 {
		t.Errorf("expected no steps executed before approval, got %+v", result.StepResults)
	}
	if engineProvider.calls != 0 {
		t.Errorf("expected the engine to never be called before approval, calls=%d", engineProvider.calls)
	}
}

func TestOrchestrator_ExecutePlan_RunsStepsAndSkipsUnmetDependencies(t *testing.T) {
	tool := &recordingTool{name: "write_file"}
	provider := &scriptedProvider{responses: []string{
		`Thought: write it.` + "\n" + `Action: write_file({"file_path": "out.txt", "content": "hello"})`,
		"Thought: done.\nAction: Final Answer: wrote the file",
	}}
	engine := NewEngine(newOrchestratorRegistry(tool), provider, "test-model", DefaultEngineConfig(), nil)
	orch := NewOrchestrator(engine, NewPlanner(nil, "test-model"), ExecutionPlanned, nil)

	plan := &models.Plan{
		Task: "write a report",
		Steps: []models.PlanStep{
			{ID: 1, Description: "write the file", Tool: "write_file", EstimatedIterations: 1},
			{ID: 2, Description: "depends on a step that never ran", Dependencies: []int{99}, EstimatedIterations: 1},
		},
	}

	result, err := orch.ExecutePlan(context.Background(), plan.Task, plan)
	if err != nil {
		t.Fatalf("ExecutePlan error: %v", err)
	}
	if len(result.StepResults) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(result.StepResults))
	}
	if !result.StepResults[0].Success {
		t.Errorf("step 1 should succeed: %+v", result.StepResults[0])
	}
	if result.StepResults[1].ValidationStatus != ValidationSkipped {
		t.Errorf("step 2 should be skipped for unmet dependencies, got %+v", result.StepResults[1])
	}
	if len(tool.calls) != 1 {
		t.Errorf("expected write_file to be called exactly once, got %d calls", len(tool.calls))
	}
}

// validatorOnlyFailingTool fails its first two calls with a classifiable,
// validator-visible error that never sets ToolResult.IsError (so the
// Engine's own in-loop self-healing never triggers), then succeeds from
// the third call onward. Exercising recovery through this tool isolates
// the orchestrator's own step-boundary [RECOVERY] retry from the Engine's
// separate in-loop tool retry.
type validatorOnlyFailingTool struct{ calls int }

func (t *validatorOnlyFailingTool) Name() string        { return "execute_command" }
func (t *validatorOnlyFailingTool) Description() string { return "fails twice, then succeeds" }
func (t *validatorOnlyFailingTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (t *validatorOnlyFailingTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	t.calls++
	if t.calls < 3 {
		return &ToolResult{Content: "Exit code: 1\nErrors:\nModuleNotFoundError: No module named 'cv2'"}, nil
	}
	return &ToolResult{Content: "Exit code: 0\nCommand completed successfully (no output)"}, nil
}

func TestOrchestrator_ExecuteStep_RecoversOnInvalidValidation(t *testing.T) {
	tool := &validatorOnlyFailingTool{}
	provider := &scriptedProvider{responses: []string{
		`Thought: run it.` + "\n" + `Action: execute_command({"command": "python app.py"})`,
	}}
	registry := NewToolRegistry()
	registry.Register(tool)
	engine := NewEngine(registry, provider, "test-model", DefaultEngineConfig(), nil)
	orch := NewOrchestrator(engine, NewPlanner(nil, "test-model"), ExecutionPlanned, nil)

	plan := &models.Plan{
		Task: "run the app",
		Steps: []models.PlanStep{
			{ID: 1, Description: "run the app", Tool: "execute_command", EstimatedIterations: 1},
		},
	}

	result, err := orch.ExecutePlan(context.Background(), plan.Task, plan)
	if err != nil {
		t.Fatalf("ExecutePlan error: %v", err)
	}
	if len(result.StepResults) != 1 {
		t.Fatalf("expected 1 step result, got %d", len(result.StepResults))
	}
	if !result.StepResults[0].Success {
		t.Errorf("expected the step to recover and succeed, got %+v", result.StepResults[0])
	}
	if tool.calls < 3 {
		t.Errorf("expected the orchestrator's recovery retry to push past the first exhausted attempt, got %d calls", tool.calls)
	}
}

func TestOrchestrator_CompileFinalAnswer_ListsCompletedAndFailedSteps(t *testing.T) {
	engine := NewEngine(newTestRegistry(), &scriptedProvider{}, "test-model", DefaultEngineConfig(), nil)
	orch := NewOrchestrator(engine, NewPlanner(nil, "test-model"), ExecutionPlanned, nil)

	plan := &models.Plan{
		Task: "do two things",
		Steps: []models.PlanStep{
			{ID: 1, Description: "first thing"},
			{ID: 2, Description: "second thing"},
		},
	}
	results := []StepResult{
		{StepID: 1, Success: true, Observation: "written to disk"},
		{StepID: 2, Success: false, Observation: "Error: boom"},
	}

	answer := orch.compileFinalAnswer(plan, results)
	if !contains(answer, "first thing") || !contains(answer, "second thing") {
		t.Errorf("expected both step descriptions in the final answer: %s", answer)
	}
	if !contains(answer, "Failed steps:") {
		t.Errorf("expected a failed steps section: %s", answer)
	}
}
