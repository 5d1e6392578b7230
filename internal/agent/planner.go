package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus/pkg/models"
)

const planningSystemPrompt = `You are a Planning Agent. Your job is to analyze tasks and create detailed execution plans.

Given a task, you must:
1. Assess complexity (simple/moderate/complex)
2. Identify required resources (libraries, APIs, files)
3. Break down into atomic steps
4. Identify dependencies between steps
5. Estimate iterations needed
6. Identify potential risks
7. Define success criteria

IMPORTANT RULES:
- Each step should be ONE atomic action
- For documents/articles: separate research, writing sections, charts, and final assembly
- For code: separate design, implementation, testing
- Be specific about which tool to use for each step
- Consider what could go wrong and have fallbacks

OUTPUT FORMAT (JSON):
{
  "complexity": "simple|moderate|complex",
  "summary": "Brief description of approach",
  "steps": [
    {
      "id": 1,
      "description": "What this step does",
      "step_type": "research|file_create|file_modify|execute|validate|combine",
      "tool": "tool_name or null",
      "dependencies": [step_ids],
      "expected_output": "What we expect",
      "estimated_iterations": 1,
      "risk_level": "low|medium|high",
      "fallback": "What to do if this fails"
    }
  ],
  "resources_needed": ["list of resources"],
  "potential_risks": ["list of risks"],
  "success_criteria": ["criteria for success"]
}

Respond ONLY with valid JSON.`

var simpleTaskKeywords = []string{"hello", "print", "simple", "create a file", "show", "list"}

var complexTaskKeywords = []string{
	"pdf", "report", "article", "document",
	"multiple", "pages", "charts", "graphs",
	"analysis", "compare", "research",
	"application", "website", "api",
}

// ClassifyComplexity runs the planner's keyword+word-count heuristic
// against a task description.
func ClassifyComplexity(task string) models.Complexity {
	lower := strings.ToLower(task)

	for _, kw := range simpleTaskKeywords {
		if strings.Contains(lower, kw) {
			return models.ComplexitySimple
		}
	}

	complexCount := 0
	for _, kw := range complexTaskKeywords {
		if strings.Contains(lower, kw) {
			complexCount++
		}
	}
	switch {
	case complexCount >= 2:
		return models.ComplexityComplex
	case complexCount == 1:
		return models.ComplexityModerate
	}

	words := len(strings.Fields(task))
	switch {
	case words > 30:
		return models.ComplexityComplex
	case words > 15:
		return models.ComplexityModerate
	}
	return models.ComplexitySimple
}

// ComplexityEstimate is the quick, planning-free assessment returned before
// a full Plan is synthesized.
type ComplexityEstimate struct {
	Complexity          models.Complexity `json:"complexity"`
	EstimatedIterations int               `json:"estimated_iterations"`
	EstimatedTime        string            `json:"estimated_time"`
	NeedsPlanning        bool              `json:"needs_planning"`
}

// EstimateComplexity returns the quick complexity estimate for a task,
// without synthesizing a full plan.
func EstimateComplexity(task string) ComplexityEstimate {
	complexity := ClassifyComplexity(task)
	switch complexity {
	case models.ComplexitySimple:
		return ComplexityEstimate{complexity, 3, "< 1 min", false}
	case models.ComplexityModerate:
		return ComplexityEstimate{complexity, 10, "1-3 min", true}
	default:
		return ComplexityEstimate{complexity, 30, "3-10 min", true}
	}
}

// Planner synthesizes a Plan for non-simple tasks via the LLM, falling
// back to a template plan when synthesis or parsing fails.
type Planner struct {
	provider LLMProvider
	model    string
}

// NewPlanner creates a planner that calls provider for plan synthesis.
func NewPlanner(provider LLMProvider, model string) *Planner {
	return &Planner{provider: provider, model: model}
}

// CreatePlan produces a Plan for task: a minimal one-step plan for simple
// tasks, or an LLM-synthesized plan (falling back to a template plan on
// parse failure) for moderate/complex tasks.
func (p *Planner) CreatePlan(ctx context.Context, task string) (*models.Plan, error) {
	complexity := ClassifyComplexity(task)
	if complexity == models.ComplexitySimple {
		return simplePlan(task), nil
	}

	if p.provider == nil {
		return fallbackPlan(task, complexity), nil
	}

	req := &CompletionRequest{
		Model:  p.model,
		System: planningSystemPrompt,
		Messages: []CompletionMessage{
			{Role: "user", Content: fmt.Sprintf("Create a detailed plan for this task:\n\n%s", task)},
		},
		MaxTokens: 4096,
	}

	chunks, err := p.provider.Complete(ctx, req)
	if err != nil {
		return fallbackPlan(task, complexity), nil
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return fallbackPlan(task, complexity), nil
		}
		sb.WriteString(chunk.Text)
	}

	plan, err := parsePlanResponse(task, sb.String())
	if err != nil {
		return fallbackPlan(task, complexity), nil
	}
	return plan, nil
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func parsePlanResponse(task, response string) (*models.Plan, error) {
	match := jsonObjectPattern.FindString(response)
	if match == "" {
		return nil, fmt.Errorf("no JSON object found in planner response")
	}

	var raw struct {
		Complexity      string `json:"complexity"`
		Summary         string `json:"summary"`
		Steps           []struct {
			ID                  int      `json:"id"`
			Description         string   `json:"description"`
			StepType            string   `json:"step_type"`
			Tool                string   `json:"tool"`
			Dependencies        []int    `json:"dependencies"`
			ExpectedOutput      string   `json:"expected_output"`
			EstimatedIterations int      `json:"estimated_iterations"`
			RiskLevel           string   `json:"risk_level"`
			Fallback            string   `json:"fallback"`
		} `json:"steps"`
		ResourcesNeeded []string `json:"resources_needed"`
		PotentialRisks  []string `json:"potential_risks"`
		SuccessCriteria []string `json:"success_criteria"`
	}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, fmt.Errorf("decode planner JSON: %w", err)
	}

	complexity := models.ComplexityModerate
	switch strings.ToLower(raw.Complexity) {
	case "simple":
		complexity = models.ComplexitySimple
	case "complex":
		complexity = models.ComplexityComplex
	}

	steps := make([]models.PlanStep, 0, len(raw.Steps))
	total := 0
	for i, s := range raw.Steps {
		stepType := models.StepExecute
		switch strings.ToLower(s.StepType) {
		case "research":
			stepType = models.StepResearch
		case "file_create":
			stepType = models.StepFileCreate
		case "file_modify":
			stepType = models.StepFileModify
		case "validate":
			stepType = models.StepValidate
		case "combine":
			stepType = models.StepCombine
		}
		risk := models.RiskLow
		switch strings.ToLower(s.RiskLevel) {
		case "medium":
			risk = models.RiskMedium
		case "high":
			risk = models.RiskHigh
		}
		id := s.ID
		if id == 0 {
			id = i + 1
		}
		iterations := s.EstimatedIterations
		if iterations == 0 {
			iterations = 1
		}
		steps = append(steps, models.PlanStep{
			ID: id, Description: s.Description, StepType: stepType, Tool: s.Tool,
			Dependencies: s.Dependencies, ExpectedOutput: s.ExpectedOutput,
			EstimatedIterations: iterations, RiskLevel: risk, Fallback: s.Fallback,
		})
		total += iterations
	}

	return &models.Plan{
		Task: task, Complexity: complexity, Summary: raw.Summary, Steps: steps,
		EstimatedIterations: total, ResourcesNeeded: raw.ResourcesNeeded,
		PotentialRisks: raw.PotentialRisks, SuccessCriteria: raw.SuccessCriteria,
	}, nil
}

func simplePlan(task string) *models.Plan {
	return &models.Plan{
		Task:       task,
		Complexity: models.ComplexitySimple,
		Summary:    "Simple task - direct execution",
		Steps: []models.PlanStep{
			{ID: 1, Description: "Execute the task directly", StepType: models.StepExecute, EstimatedIterations: 2, RiskLevel: models.RiskLow},
		},
		EstimatedIterations: 2,
		SuccessCriteria:     []string{"Task completed successfully"},
	}
}

func fallbackPlan(task string, complexity models.Complexity) *models.Plan {
	lower := strings.ToLower(task)
	var steps []models.PlanStep

	switch {
	case containsAny(lower, "pdf", "document", "report", "article"):
		steps = []models.PlanStep{
			{ID: 1, Description: "Research and gather information", StepType: models.StepResearch, Tool: "web_search", EstimatedIterations: 2, RiskLevel: models.RiskLow},
			{ID: 2, Description: "Create document structure/outline", StepType: models.StepFileCreate, Tool: "write_file", Dependencies: []int{1}, EstimatedIterations: 1, RiskLevel: models.RiskLow},
			{ID: 3, Description: "Write content sections", StepType: models.StepFileCreate, Tool: "write_file", Dependencies: []int{2}, EstimatedIterations: 5, RiskLevel: models.RiskMedium},
			{ID: 4, Description: "Generate charts/visualizations if needed", StepType: models.StepExecute, Tool: "execute_command", Dependencies: []int{3}, EstimatedIterations: 3, RiskLevel: models.RiskMedium},
			{ID: 5, Description: "Create final PDF", StepType: models.StepCombine, Tool: "create_pdf", Dependencies: []int{4}, EstimatedIterations: 2, RiskLevel: models.RiskLow},
		}
	case containsAny(lower, "code", "script", "program", "function"):
		steps = []models.PlanStep{
			{ID: 1, Description: "Understand requirements and design solution", StepType: models.StepResearch, EstimatedIterations: 1, RiskLevel: models.RiskLow},
			{ID: 2, Description: "Write the code", StepType: models.StepFileCreate, Tool: "write_file", Dependencies: []int{1}, EstimatedIterations: 2, RiskLevel: models.RiskMedium},
			{ID: 3, Description: "Test the code", StepType: models.StepExecute, Tool: "execute_command", Dependencies: []int{2}, EstimatedIterations: 2, RiskLevel: models.RiskMedium},
			{ID: 4, Description: "Validate output", StepType: models.StepValidate, Dependencies: []int{3}, EstimatedIterations: 1, RiskLevel: models.RiskLow},
		}
	default:
		steps = []models.PlanStep{
			{ID: 1, Description: "Analyze task requirements", StepType: models.StepResearch, EstimatedIterations: 1, RiskLevel: models.RiskLow},
			{ID: 2, Description: "Execute main task", StepType: models.StepExecute, Dependencies: []int{1}, EstimatedIterations: 3, RiskLevel: models.RiskMedium},
			{ID: 3, Description: "Verify results", StepType: models.StepValidate, Dependencies: []int{2}, EstimatedIterations: 1, RiskLevel: models.RiskLow},
		}
	}

	total := 0
	for _, s := range steps {
		total += s.EstimatedIterations
	}

	return &models.Plan{
		Task: task, Complexity: complexity, Summary: fmt.Sprintf("Fallback plan for %s task", complexity),
		Steps: steps, EstimatedIterations: total,
		PotentialRisks:  []string{"Plan is generic - may need adjustment"},
		SuccessCriteria: []string{"Task completed without errors"},
	}
}

// PlanMarkdown renders a Plan as human-readable markdown, for presentation
// in interactive-mode approval prompts.
func PlanMarkdown(p *models.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Plan: %s\n\n", p.Task)
	fmt.Fprintf(&b, "**Complexity**: %s\n", p.Complexity)
	fmt.Fprintf(&b, "**Estimated Iterations**: %d\n\n", p.EstimatedIterations)
	b.WriteString("## Summary\n")
	b.WriteString(p.Summary)
	b.WriteString("\n\n## Steps\n")
	for _, step := range p.Steps {
		deps := ""
		if len(step.Dependencies) > 0 {
			deps = fmt.Sprintf(" (depends on: %v)", step.Dependencies)
		}
		fmt.Fprintf(&b, "%d. **%s**%s\n", step.ID, step.Description, deps)
		fmt.Fprintf(&b, "   - Type: %s\n", step.StepType)
		if step.Tool != "" {
			fmt.Fprintf(&b, "   - Tool: %s\n", step.Tool)
		}
		if step.ExpectedOutput != "" {
			fmt.Fprintf(&b, "   - Expected: %s\n", step.ExpectedOutput)
		}
		b.WriteString("\n")
	}
	if len(p.ResourcesNeeded) > 0 {
		b.WriteString("## Resources Needed\n")
		for _, r := range p.ResourcesNeeded {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	if len(p.PotentialRisks) > 0 {
		b.WriteString("## Potential Risks\n")
		for _, r := range p.PotentialRisks {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	if len(p.SuccessCriteria) > 0 {
		b.WriteString("## Success Criteria\n")
		for _, c := range p.SuccessCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}
