package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaRegistry lazily compiles the envelope schema plus one schema per
// client frame kind: a sync.Once-guarded compile step, then cheap Validate
// calls per frame.
type schemaRegistry struct {
	once    sync.Once
	initErr error
	envelope *jsonschema.Schema
	kinds    map[ClientFrameKind]*jsonschema.Schema
}

var frameSchemas schemaRegistry

func initFrameSchemas() error {
	frameSchemas.once.Do(func() {
		envelope, err := jsonschema.CompileString("client_frame", clientFrameSchema)
		if err != nil {
			frameSchemas.initErr = err
			return
		}
		frameSchemas.envelope = envelope

		kinds := map[ClientFrameKind]string{
			ClientChat:            chatSchema,
			ClientSuggestion:      suggestionSchema,
			ClientRequestPlan:     requestPlanSchema,
			ClientUpdatePlan:      updatePlanSchema,
			ClientInterrupt:       bareFrameSchema,
			ClientApprovePlan:     bareFrameSchema,
			ClientPauseExecution:  bareFrameSchema,
			ClientResumeExecution: bareFrameSchema,
		}

		frameSchemas.kinds = make(map[ClientFrameKind]*jsonschema.Schema, len(kinds))
		for kind, schema := range kinds {
			compiled, err := jsonschema.CompileString("client_frame_"+string(kind), schema)
			if err != nil {
				frameSchemas.initErr = err
				return
			}
			frameSchemas.kinds[kind] = compiled
		}
	})
	return frameSchemas.initErr
}

// validateClientFrame validates raw against the envelope schema and, if a
// schema is registered for frame.Kind, validates raw against it too. It
// never mutates frame; callers decode separately via json.Unmarshal.
func validateClientFrame(raw []byte, frame ClientFrame) error {
	if err := initFrameSchemas(); err != nil {
		return fmt.Errorf("compile frame schemas: %w", err)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if err := frameSchemas.envelope.Validate(payload); err != nil {
		return err
	}
	if schema := frameSchemas.kinds[frame.Kind]; schema != nil {
		if err := schema.Validate(payload); err != nil {
			return err
		}
	}
	return nil
}

const clientFrameSchema = `{
  "type": "object",
  "required": ["kind"],
  "properties": {
    "kind": {
      "type": "string",
      "enum": ["chat", "interrupt", "suggestion", "request_plan", "approve_plan", "update_plan", "pause_execution", "resume_execution"]
    },
    "session_id": { "type": "string" },
    "content": { "type": "string" },
    "plan": { "type": "object" }
  },
  "additionalProperties": true
}`

const bareFrameSchema = `{
  "type": "object",
  "additionalProperties": true
}`

const chatSchema = `{
  "type": "object",
  "required": ["content"],
  "properties": {
    "content": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const suggestionSchema = chatSchema

const requestPlanSchema = chatSchema

const updatePlanSchema = `{
  "type": "object",
  "required": ["plan"],
  "properties": {
    "plan": {
      "type": "object",
      "required": ["task", "steps"],
      "properties": {
        "task": { "type": "string", "minLength": 1 },
        "steps": { "type": "array" }
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`
