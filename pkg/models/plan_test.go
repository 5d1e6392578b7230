package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestPlanJSONRoundTrip(t *testing.T) {
	original := Plan{
		Task:       "write a report and a script",
		Complexity: ComplexityModerate,
		Summary:    "research, draft, validate",
		Steps: []PlanStep{
			{
				ID:                   1,
				Description:          "research the topic",
				StepType:             StepResearch,
				Tool:                 "web_search",
				Dependencies:         nil,
				ExpectedOutput:       "a list of sources",
				EstimatedIterations:  3,
				RiskLevel:            RiskLow,
			},
			{
				ID:                   2,
				Description:          "write the report",
				StepType:             StepFileCreate,
				Tool:                 "write_file",
				Dependencies:         []int{1},
				ExpectedOutput:       "report.md",
				EstimatedIterations:  2,
				RiskLevel:            RiskMedium,
				Fallback:             "notify_user",
			},
		},
		EstimatedIterations: 5,
		ResourcesNeeded:     []string{"internet access"},
		PotentialRisks:      []string{"source may be stale"},
		SuccessCriteria:     []string{"report.md exists"},
	}

	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Plan
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch:\noriginal: %+v\ndecoded:  %+v", original, decoded)
	}
}

func TestPlanDependenciesSatisfied(t *testing.T) {
	p := &Plan{}
	step := PlanStep{ID: 2, Dependencies: []int{1}}

	if p.DependenciesSatisfied(step, map[int]bool{}) {
		t.Fatal("expected unsatisfied dependency to report false")
	}
	if !p.DependenciesSatisfied(step, map[int]bool{1: true}) {
		t.Fatal("expected satisfied dependency to report true")
	}
}
