package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

// scriptedProvider replies with one response string per call, in order.
// Calls beyond the scripted set repeat the last response.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	text := p.responses[idx]

	ch := make(chan *CompletionChunk, 1)
	ch <- &CompletionChunk{Text: text, Done: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string        { return "scripted" }
func (p *scriptedProvider) Models() []Model     { return nil }
func (p *scriptedProvider) SupportsTools() bool { return false }

// echoTool returns its "value" parameter as the observation.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echoes its value parameter." }
func (echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"value":{"type":"string"}}}`)
}
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var input struct {
		Value string `json:"value"`
	}
	_ = json.Unmarshal(params, &input)
	return &ToolResult{Content: "echo: " + input.Value}, nil
}

func newTestRegistry() *ToolRegistry {
	r := NewToolRegistry()
	r.Register(echoTool{})
	return r
}

func TestEngine_FinalAnswerStopsLoop(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"Thought: I can answer directly.\nAction: Final Answer: done",
	}}
	engine := NewEngine(newTestRegistry(), provider, "test-model", DefaultEngineConfig(), nil)

	result, err := engine.Run(context.Background(), "say done", nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.FinalAnswer != "done" {
		t.Errorf("FinalAnswer = %q, want %q", result.FinalAnswer, "done")
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
}

func TestEngine_ToolCallThenFinalAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`Thought: I should echo first.` + "\n" + `Action: echo({"value": "hi"})`,
		"Thought: Got my observation.\nAction: Final Answer: the answer is hi",
	}}
	engine := NewEngine(newTestRegistry(), provider, "test-model", DefaultEngineConfig(), nil)

	result, err := engine.Run(context.Background(), "echo hi then answer", nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.FinalAnswer != "the answer is hi" {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}
	if result.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", result.Iterations)
	}

	var sawObservation bool
	for _, step := range result.Steps {
		if step.Kind == models.StepObservation && step.Content == "echo: hi" {
			sawObservation = true
		}
	}
	if !sawObservation {
		t.Errorf("expected an observation step with content %q, got steps %+v", "echo: hi", result.Steps)
	}
}

func TestEngine_UnregisteredToolGetsObservationNotLoopCount(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`Thought: try a bogus tool.` + "\n" + `Action: nonexistent({})`,
		"Thought: give up.\nAction: Final Answer: could not find tool",
	}}
	engine := NewEngine(newTestRegistry(), provider, "test-model", DefaultEngineConfig(), nil)

	result, err := engine.Run(context.Background(), "try something unsupported", nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.FinalAnswer != "could not find tool" {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}
}

func TestEngine_LoopDetectionAbortsOnRepeatedAction(t *testing.T) {
	repeated := `Thought: echoing again.` + "\n" + `Action: echo({"value": "same"})`
	provider := &scriptedProvider{responses: []string{repeated, repeated, repeated, repeated}}
	engine := NewEngine(newTestRegistry(), provider, "test-model", DefaultEngineConfig(), nil)

	result, err := engine.Run(context.Background(), "loop forever", nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.FinalAnswer != "Task stopped due to repeated actions without progress." {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}
}

func TestEngine_MaxIterationsTerminates(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`Thought: thinking.` + "\n" + `Action: echo({"value": "v1"})`,
		`Thought: thinking.` + "\n" + `Action: echo({"value": "v2"})`,
		`Thought: thinking.` + "\n" + `Action: echo({"value": "v3"})`,
	}}
	cfg := DefaultEngineConfig()
	cfg.MaxIterations = 3
	engine := NewEngine(newTestRegistry(), provider, "test-model", cfg, nil)

	result, err := engine.Run(context.Background(), "never finish", nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.FinalAnswer != "Maximum iterations reached. Unable to complete the task." {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}
	if result.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", result.Iterations)
	}
}

func TestEngine_RecoveryRetriesFailingTool(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`Thought: run a command that needs a module.` + "\n" + `Action: execute_command({"command": "python app.py"})`,
		"Thought: done.\nAction: Final Answer: recovered",
	}}
	registry := NewToolRegistry()
	registry.Register(&recoveryCommandTool{})

	engine := NewEngine(registry, provider, "test-model", DefaultEngineConfig(), nil)
	result, err := engine.Run(context.Background(), "run app needing a missing module", nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.FinalAnswer != "recovered" {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}

	var sawRecovery bool
	for _, step := range result.Steps {
		if step.Kind == models.StepRecovery {
			sawRecovery = true
		}
	}
	if !sawRecovery {
		t.Errorf("expected a recovery step, got %+v", result.Steps)
	}
}

// recoveryCommandTool fails the first call with a classifiable
// module-not-found error, then succeeds on the next call.
type recoveryCommandTool struct{ calls int }

func (t *recoveryCommandTool) Name() string        { return "execute_command" }
func (t *recoveryCommandTool) Description() string { return "Executes a command; fails once." }
func (t *recoveryCommandTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (t *recoveryCommandTool) RequiresSandbox() bool { return true }
func (t *recoveryCommandTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	t.calls++
	if t.calls == 1 {
		return &ToolResult{Content: "Error: ModuleNotFoundError: No module named 'flask'", IsError: true}, nil
	}
	return &ToolResult{Content: "Exit code: 0\nCommand completed successfully (no output)"}, nil
}

func TestParseResponse(t *testing.T) {
	response := "Thought: I need to check the file.\nAction: read_file({\"path\": \"a.txt\"})"
	thought, action := parseResponse(response)
	if thought != "I need to check the file." {
		t.Errorf("thought = %q", thought)
	}
	if action != `read_file({"path": "a.txt"})` {
		t.Errorf("action = %q", action)
	}
}

func TestParseToolCall(t *testing.T) {
	name, params, ok := parseToolCall(`write_file({"path": "a.txt", "content": "hi"})`)
	if !ok {
		t.Fatal("expected ok")
	}
	if name != "write_file" {
		t.Errorf("name = %q", name)
	}
	if params["path"] != "a.txt" {
		t.Errorf("params[path] = %v", params["path"])
	}
}

func TestParseToolCall_MalformedJSONDefaultsToEmptyParams(t *testing.T) {
	name, params, ok := parseToolCall(`broken_tool({not valid json})`)
	if !ok {
		t.Fatal("expected ok")
	}
	if name != "broken_tool" {
		t.Errorf("name = %q", name)
	}
	if len(params) != 0 {
		t.Errorf("params = %v, want empty", params)
	}
}

func TestExtractFinalAnswer(t *testing.T) {
	answer, ok := extractFinalAnswer("Final Answer: the result is 42")
	if !ok || answer != "the result is 42" {
		t.Errorf("got (%q, %v)", answer, ok)
	}

	if _, ok := extractFinalAnswer(`echo({"value": "x"})`); ok {
		t.Error("expected ok=false for a tool call")
	}
}

func TestLoopDetector(t *testing.T) {
	d := &loopDetector{}
	key := "echo:{}"
	if d.count(key) != 0 {
		t.Fatalf("expected zero count initially")
	}
	d.record(key)
	d.record(key)
	if d.count(key) != 2 {
		t.Errorf("count = %d, want 2", d.count(key))
	}
}
