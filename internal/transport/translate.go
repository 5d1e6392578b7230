package transport

import "github.com/haasonsaas/nexus/pkg/models"

// translateEvent maps one internal AgentEvent onto its wire frame, or
// returns ok=false for the purely ambient run/iter/model/tool/context
// events that have no listed wire counterpart — those are consumed by
// StatsCollector rather than streamed to the client.
func translateEvent(sessionID string, event models.AgentEvent) (ServerFrame, bool) {
	frame := ServerFrame{SessionID: sessionID}

	switch event.Type {
	case models.AgentEventThought:
		frame.Kind = ServerThought
		if event.React != nil {
			frame.Content = event.React.Content
		}

	case models.AgentEventActivity:
		frame.Kind = ServerActivity
		if event.React != nil {
			frame.ActivityType = event.React.ActivityType
			frame.Tool = event.React.Tool
			frame.Params = event.React.Params
			frame.Result = event.React.Result
			frame.ActivityError = event.React.ActivityErr
			frame.ActivityStatus = event.React.ActivityStatus
			frame.FileCreated = event.React.FileCreated
		}

	case models.AgentEventFinalAnswer:
		frame.Kind = ServerFinalAnswer
		if event.React != nil {
			frame.Content = event.React.Content
		}

	case models.AgentEventStatus:
		frame.Kind = ServerStatus
		if event.React != nil {
			frame.Status = event.React.Status
		}

	case models.AgentEventPlanProposal:
		frame.Kind = ServerPlanProposal
		if event.React != nil {
			frame.Plan = event.React.Plan
			frame.Task = event.React.Task
			frame.Message = event.React.Message
		}

	case models.AgentEventPlanStarted:
		frame.Kind = ServerPlanStarted
		if event.React != nil {
			frame.Plan = event.React.Plan
			frame.Task = event.React.Task
		}

	case models.AgentEventPlanUpdated:
		frame.Kind = ServerPlanUpdated
		if event.React != nil {
			frame.Plan = event.React.Plan
			frame.Task = event.React.Task
		}

	case models.AgentEventRecovery:
		frame.Kind = ServerRecovery
		if event.React != nil {
			frame.Message = event.React.Message
		}

	case models.AgentEventProjectPaused:
		frame.Kind = ServerProjectPaused

	case models.AgentEventProjectResumed:
		frame.Kind = ServerProjectResumed

	case models.AgentEventInterrupting:
		frame.Kind = ServerInterrupting

	case models.AgentEventInterrupted:
		frame.Kind = ServerInterrupted

	case models.AgentEventRunError:
		frame.Kind = ServerError
		if event.Error != nil {
			frame.Message = event.Error.Message
		}

	default:
		return ServerFrame{}, false
	}

	return frame, true
}
