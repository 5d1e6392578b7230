// Package transport implements the streaming websocket gateway: one
// bidirectional connection per session, JSON frames validated against
// compiled schemas, translating between client commands and the
// internal/agent Orchestrator/EventEmitter event stream.
package transport

import (
	"encoding/json"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ClientFrameKind enumerates the message kinds accepted from the client.
type ClientFrameKind string

const (
	ClientChat             ClientFrameKind = "chat"
	ClientInterrupt        ClientFrameKind = "interrupt"
	ClientSuggestion       ClientFrameKind = "suggestion"
	ClientRequestPlan      ClientFrameKind = "request_plan"
	ClientApprovePlan      ClientFrameKind = "approve_plan"
	ClientUpdatePlan       ClientFrameKind = "update_plan"
	ClientPauseExecution   ClientFrameKind = "pause_execution"
	ClientResumeExecution  ClientFrameKind = "resume_execution"
)

// ServerFrameKind enumerates the message kinds sent to the client. The
// table in the wire protocol is documented as a subset with invariants;
// project_paused/project_resumed and recovery are additional kinds carried
// straight through from the internal AgentEvent stream.
type ServerFrameKind string

const (
	ServerConnected      ServerFrameKind = "connected"
	ServerInitializing   ServerFrameKind = "initializing"
	ServerSessionReady   ServerFrameKind = "session_ready"
	ServerStatus         ServerFrameKind = "status"
	ServerPlanProposal   ServerFrameKind = "plan_proposal"
	ServerPlanStarted    ServerFrameKind = "plan_started"
	ServerPlanUpdated    ServerFrameKind = "plan_updated"
	ServerActivity       ServerFrameKind = "activity"
	ServerThought        ServerFrameKind = "thought"
	ServerFinalAnswer    ServerFrameKind = "final_answer"
	ServerInterrupting   ServerFrameKind = "interrupting"
	ServerInterrupted    ServerFrameKind = "interrupted"
	ServerComplete       ServerFrameKind = "complete"
	ServerError          ServerFrameKind = "error"
	ServerProjectPaused  ServerFrameKind = "project_paused"
	ServerProjectResumed ServerFrameKind = "project_resumed"
	ServerRecovery       ServerFrameKind = "recovery"
)

// ClientFrame is one inbound message. Only the fields relevant to Kind are
// populated; unused fields are left zero.
type ClientFrame struct {
	Kind      ClientFrameKind `json:"kind"`
	SessionID string          `json:"session_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Plan      *models.Plan    `json:"plan,omitempty"`
}

// ServerFrame is one outbound message, carrying the union of fields any
// ServerFrameKind might need. json.Marshal drops empty fields so each
// frame on the wire only carries what its kind actually uses.
type ServerFrame struct {
	Kind ServerFrameKind `json:"kind"`

	SessionID string `json:"session_id,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	Task      string `json:"task,omitempty"`
	Message   string `json:"message,omitempty"`
	Content   string `json:"content,omitempty"`
	Status    string `json:"status,omitempty"`

	Plan *models.Plan `json:"plan,omitempty"`

	ActivityType   string                 `json:"activity_type,omitempty"`
	Tool           string                 `json:"tool,omitempty"`
	Params         map[string]interface{} `json:"params,omitempty"`
	Result         string                 `json:"result,omitempty"`
	ActivityError  string                 `json:"error_detail,omitempty"`
	ActivityStatus string                 `json:"activity_status,omitempty"`
	FileCreated    *models.FileCreated    `json:"file_created,omitempty"`
}

func marshalFrame(f ServerFrame) ([]byte, error) {
	return json.Marshal(f)
}
