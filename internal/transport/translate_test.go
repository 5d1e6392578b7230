package transport

import (
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestTranslateEvent_Thought(t *testing.T) {
	event := models.AgentEvent{
		Type:  models.AgentEventThought,
		React: &models.ReactEventPayload{Content: "I should read the file first."},
	}
	frame, ok := translateEvent("sess-1", event)
	if !ok {
		t.Fatal("expected thought event to translate")
	}
	if frame.Kind != ServerThought || frame.Content != "I should read the file first." {
		t.Errorf("unexpected frame: %+v", frame)
	}
	if frame.SessionID != "sess-1" {
		t.Errorf("SessionID = %q", frame.SessionID)
	}
}

func TestTranslateEvent_Activity(t *testing.T) {
	event := models.AgentEvent{
		Type: models.AgentEventActivity,
		React: &models.ReactEventPayload{
			ActivityType:   "tool_call",
			Tool:           "write_file",
			Params:         map[string]interface{}{"path": "out.txt"},
			ActivityStatus: "completed",
		},
	}
	frame, ok := translateEvent("sess-1", event)
	if !ok {
		t.Fatal("expected activity event to translate")
	}
	if frame.Kind != ServerActivity || frame.Tool != "write_file" || frame.ActivityStatus != "completed" {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

func TestTranslateEvent_PlanProposalCarriesPlan(t *testing.T) {
	plan := &models.Plan{Task: "build a report"}
	event := models.AgentEvent{
		Type:  models.AgentEventPlanProposal,
		React: &models.ReactEventPayload{Plan: plan, Task: plan.Task},
	}
	frame, ok := translateEvent("sess-1", event)
	if !ok {
		t.Fatal("expected plan_proposal event to translate")
	}
	if frame.Kind != ServerPlanProposal || frame.Plan != plan {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

func TestTranslateEvent_RunErrorCarriesMessage(t *testing.T) {
	event := models.AgentEvent{
		Type:  models.AgentEventRunError,
		Error: &models.ErrorEventPayload{Message: "provider unavailable"},
	}
	frame, ok := translateEvent("sess-1", event)
	if !ok {
		t.Fatal("expected run.error event to translate")
	}
	if frame.Kind != ServerError || frame.Message != "provider unavailable" {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

func TestTranslateEvent_AmbientEventsDoNotTranslate(t *testing.T) {
	for _, typ := range []models.AgentEventType{
		models.AgentEventRunStarted,
		models.AgentEventIterStarted,
		models.AgentEventModelDelta,
		models.AgentEventToolStarted,
		models.AgentEventContextPacked,
	} {
		if _, ok := translateEvent("sess-1", models.AgentEvent{Type: typ}); ok {
			t.Errorf("expected ambient event %q to have no wire translation", typ)
		}
	}
}
