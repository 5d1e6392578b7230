package transport

import "testing"

func TestValidateClientFrame_AcceptsWellFormedChat(t *testing.T) {
	raw := []byte(`{"kind":"chat","content":"summarize this repo"}`)
	frame := ClientFrame{Kind: ClientChat, Content: "summarize this repo"}
	if err := validateClientFrame(raw, frame); err != nil {
		t.Fatalf("expected valid chat frame, got error: %v", err)
	}
}

func TestValidateClientFrame_RejectsMissingContent(t *testing.T) {
	raw := []byte(`{"kind":"chat"}`)
	frame := ClientFrame{Kind: ClientChat}
	if err := validateClientFrame(raw, frame); err == nil {
		t.Fatal("expected validation error for chat frame missing content")
	}
}

func TestValidateClientFrame_RejectsUnknownKind(t *testing.T) {
	raw := []byte(`{"kind":"not_a_real_kind"}`)
	frame := ClientFrame{Kind: ClientFrameKind("not_a_real_kind")}
	if err := validateClientFrame(raw, frame); err == nil {
		t.Fatal("expected validation error for unknown frame kind")
	}
}

func TestValidateClientFrame_BareFramesAcceptNoParams(t *testing.T) {
	for _, kind := range []ClientFrameKind{ClientInterrupt, ClientApprovePlan, ClientPauseExecution, ClientResumeExecution} {
		raw := []byte(`{"kind":"` + string(kind) + `"}`)
		frame := ClientFrame{Kind: kind}
		if err := validateClientFrame(raw, frame); err != nil {
			t.Errorf("expected bare frame %q to validate, got: %v", kind, err)
		}
	}
}

func TestValidateClientFrame_UpdatePlanRequiresPlanWithTaskAndSteps(t *testing.T) {
	raw := []byte(`{"kind":"update_plan","plan":{"task":"do it","steps":[]}}`)
	frame := ClientFrame{Kind: ClientUpdatePlan}
	if err := validateClientFrame(raw, frame); err != nil {
		t.Fatalf("expected valid update_plan frame, got: %v", err)
	}

	badRaw := []byte(`{"kind":"update_plan","plan":{"steps":[]}}`)
	if err := validateClientFrame(badRaw, frame); err == nil {
		t.Fatal("expected validation error for update_plan missing plan.task")
	}
}

func TestDecodeClientFrame_RejectsMalformedJSON(t *testing.T) {
	if _, err := decodeClientFrame([]byte(`{not json`)); err == nil {
		t.Fatal("expected decode error for malformed JSON")
	}
}
