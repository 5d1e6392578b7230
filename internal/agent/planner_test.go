package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestClassifyComplexity(t *testing.T) {
	cases := []struct {
		task string
		want models.Complexity
	}{
		{"print hello world", models.ComplexitySimple},
		{"write a detailed report with charts comparing quarterly sales across five regions and include an executive summary plus appendix", models.ComplexityComplex},
		{"research competitor pricing", models.ComplexityModerate},
	}
	for _, tc := range cases {
		if got := ClassifyComplexity(tc.task); got != tc.want {
			t.Errorf("ClassifyComplexity(%q) = %q, want %q", tc.task, got, tc.want)
		}
	}
}

func TestEstimateComplexity(t *testing.T) {
	est := EstimateComplexity("print hello")
	if est.NeedsPlanning {
		t.Errorf("simple task should not need planning: %+v", est)
	}
	est = EstimateComplexity("generate a pdf report with charts and graphs comparing research findings")
	if !est.NeedsPlanning {
		t.Errorf("complex task should need planning: %+v", est)
	}
}

func TestPlanner_CreatePlan_SimpleTaskSkipsLLM(t *testing.T) {
	planner := NewPlanner(nil, "test-model")
	plan, err := planner.CreatePlan(context.Background(), "print hello")
	if err != nil {
		t.Fatalf("CreatePlan error: %v", err)
	}
	if plan.Complexity != models.ComplexitySimple {
		t.Errorf("Complexity = %q, want simple", plan.Complexity)
	}
	if len(plan.Steps) != 1 {
		t.Errorf("Steps = %d, want 1", len(plan.Steps))
	}
}

func TestPlanner_CreatePlan_NilProviderFallsBackForComplexTask(t *testing.T) {
	planner := NewPlanner(nil, "test-model")
	plan, err := planner.CreatePlan(context.Background(), "write a detailed report comparing research across multiple documents")
	if err != nil {
		t.Fatalf("CreatePlan error: %v", err)
	}
	if len(plan.Steps) == 0 {
		t.Fatal("expected a fallback plan with steps")
	}
}

func TestPlanner_CreatePlan_ParsesLLMPlan(t *testing.T) {
	response := `Here is the plan:
{
  "complexity": "moderate",
  "summary": "Research then write",
  "steps": [
    {"id": 1, "description": "Research the topic", "step_type": "research", "tool": "web_search", "dependencies": [], "estimated_iterations": 2, "risk_level": "low"},
    {"id": 2, "description": "Write the file", "step_type": "file_create", "tool": "write_file", "dependencies": [1], "estimated_iterations": 1, "risk_level": "medium"}
  ],
  "resources_needed": ["internet access"],
  "potential_risks": ["source may be stale"],
  "success_criteria": ["file exists"]
}`
	provider := &scriptedProvider{responses: []string{response}}
	planner := NewPlanner(provider, "test-model")

	plan, err := planner.CreatePlan(context.Background(), "research and write up findings on widget trends across markets")
	if err != nil {
		t.Fatalf("CreatePlan error: %v", err)
	}
	if plan.Complexity != models.ComplexityModerate {
		t.Errorf("Complexity = %q, want moderate", plan.Complexity)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("Steps = %d, want 2", len(plan.Steps))
	}
	if plan.Steps[1].Dependencies[0] != 1 {
		t.Errorf("step 2 dependencies = %v, want [1]", plan.Steps[1].Dependencies)
	}
	if plan.EstimatedIterations != 3 {
		t.Errorf("EstimatedIterations = %d, want 3", plan.EstimatedIterations)
	}
}

func TestPlanner_CreatePlan_FallsBackOnUnparsableResponse(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"I cannot produce a plan right now."}}
	planner := NewPlanner(provider, "test-model")

	plan, err := planner.CreatePlan(context.Background(), "write a detailed multi-page report with charts and research comparisons")
	if err != nil {
		t.Fatalf("CreatePlan error: %v", err)
	}
	if len(plan.Steps) == 0 {
		t.Fatal("expected a fallback plan with steps")
	}
}

func TestFallbackPlan_DocumentKeywordsPickDocumentTemplate(t *testing.T) {
	plan := fallbackPlan("write a pdf report", models.ComplexityComplex)
	if plan.Steps[len(plan.Steps)-1].Tool != "create_pdf" {
		t.Errorf("expected the document template's final step to use create_pdf, got %q", plan.Steps[len(plan.Steps)-1].Tool)
	}
}

func TestFallbackPlan_CodeKeywordsPickCodeTemplate(t *testing.T) {
	plan := fallbackPlan("write a python script to parse logs", models.ComplexityModerate)
	var sawExecute bool
	for _, s := range plan.Steps {
		if s.Tool == "execute_command" {
			sawExecute = true
		}
	}
	if !sawExecute {
		t.Errorf("expected the code template to include an execute_command step, got %+v", plan.Steps)
	}
}

func TestPlanMarkdown_IncludesStepsAndRisks(t *testing.T) {
	plan := simplePlan("do a thing")
	plan.PotentialRisks = []string{"might fail"}
	md := PlanMarkdown(plan)
	if !strings.Contains(md, "do a thing") || !strings.Contains(md, "might fail") {
		t.Errorf("markdown missing expected content: %s", md)
	}
}
