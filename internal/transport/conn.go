package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/session"
	"github.com/haasonsaas/nexus/pkg/models"
)

const (
	maxPayloadBytes = 1 << 20
	pongWait        = 45 * time.Second
	writeWait       = 10 * time.Second
	pauseCheckEvery = 500 * time.Millisecond
)

// conn is one accepted websocket connection. Session binding is lazy: a
// conn starts with sess == nil and binds on the first chat/request_plan
// frame, per the ordering guarantee in the wire protocol (connected is
// sent immediately; session_ready only once a session exists).
type conn struct {
	server *Server
	ws     *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	sess         *session.Session
	registry     *agent.ToolRegistry
	planner      *agent.Planner
	activeOrch   *agent.Orchestrator
	pendingPlan  *models.Plan
	pendingTask  string
}

func (c *conn) run() {
	defer c.close()
	c.writeFrame(ServerFrame{Kind: ServerConnected})
	go c.writeLoop()
	c.readLoop()
}

func (c *conn) close() {
	c.cancel()
	close(c.send)
	_ = c.ws.Close()
	if c.sess != nil {
		_ = c.server.manager.Close(context.Background(), c.sess.SessionID)
	}
}

func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxPayloadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		frame, err := decodeClientFrame(data)
		if err != nil {
			c.writeFrame(ServerFrame{Kind: ServerError, Message: err.Error()})
			continue
		}
		c.dispatch(frame)
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func decodeClientFrame(raw []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return ClientFrame{}, err
	}
	if err := validateClientFrame(raw, frame); err != nil {
		return ClientFrame{}, err
	}
	return frame, nil
}

func (c *conn) writeFrame(f ServerFrame) {
	if f.SessionID == "" {
		c.mu.Lock()
		if c.sess != nil {
			f.SessionID = c.sess.SessionID
		}
		c.mu.Unlock()
	}
	payload, err := marshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	case <-c.ctx.Done():
	}
}

func (c *conn) dispatch(frame ClientFrame) {
	switch frame.Kind {
	case ClientChat:
		c.handleRun(frame, agent.ExecutionPlanned)
	case ClientRequestPlan:
		c.handleRun(frame, agent.ExecutionInteractive)
	case ClientInterrupt:
		c.handleInterrupt()
	case ClientSuggestion:
		c.handleSuggestion(frame)
	case ClientApprovePlan:
		c.handleApprovePlan()
	case ClientUpdatePlan:
		c.handleUpdatePlan(frame)
	case ClientPauseExecution:
		c.handlePause()
	case ClientResumeExecution:
		c.handleResume()
	default:
		c.writeFrame(ServerFrame{Kind: ServerError, Message: fmt.Sprintf("unknown frame kind %q", frame.Kind)})
	}
}

// bindSession lazily creates or resumes the connection's session and
// constructs the session-scoped registry/planner, sending initializing
// then session_ready.
func (c *conn) bindSession(requestedID string) error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.writeFrame(ServerFrame{Kind: ServerInitializing})

	var sess *session.Session
	var err error
	if requestedID != "" && c.server.manager.Exists(requestedID) {
		sess, err = c.server.manager.Resume(c.ctx, requestedID)
	} else {
		sess, err = c.server.manager.CreateNew(c.ctx)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sess = sess
	c.registry = c.server.newRegistry(sess)
	c.planner = agent.NewPlanner(c.server.provider, c.server.model)
	c.mu.Unlock()

	c.writeFrame(ServerFrame{Kind: ServerSessionReady, SessionID: sess.SessionID, Workspace: sess.Store.FilesDir()})
	return nil
}

// handleRun binds the session if needed and, if it isn't already
// processing a task, launches one in mode.
func (c *conn) handleRun(frame ClientFrame, mode agent.ExecutionMode) {
	if err := c.bindSession(frame.SessionID); err != nil {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: err.Error()})
		return
	}

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if sess.IsProcessing() {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: "session is already processing a task"})
		return
	}

	runCtx, release, ok := sess.TryBeginProcessing(c.ctx)
	if !ok {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: "session is already processing a task"})
		return
	}

	go c.runTask(runCtx, release, sess, frame.Content, mode)
}

// runTask executes one task to completion, streaming every translatable
// AgentEvent to the client in emission order and finishing with a single
// complete frame — never followed by further engine events for this task.
func (c *conn) runTask(runCtx context.Context, release func(), sess *session.Session, task string, mode agent.ExecutionMode) {
	defer release()

	sink := agent.NewChannelSink(256)
	emitter := agent.NewEventEmitter(uuid.NewString(), sink)

	drained := make(chan struct{})
	go func() {
		for event := range sink.Events() {
			if frame, ok := translateEvent(sess.SessionID, event); ok {
				c.writeFrame(frame)
			}
		}
		close(drained)
	}()

	engine := agent.NewEngine(c.registry, c.server.provider, c.server.model, c.server.engineConfig, emitter)
	engine.SetMetrics(c.server.metrics)
	orch := agent.NewOrchestrator(engine, c.planner, mode, emitter)
	orch.SetHooks(agent.OrchestratorHooks{
		OnStepStarted: func(models.PlanStep) { c.waitWhilePaused(runCtx, sess, emitter) },
	})

	c.mu.Lock()
	c.activeOrch = orch
	c.mu.Unlock()

	result, err := orch.Execute(runCtx, task)

	c.mu.Lock()
	c.activeOrch = nil
	c.mu.Unlock()

	sink.Close()
	<-drained

	if err != nil {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: err.Error()})
		c.writeFrame(ServerFrame{Kind: ServerComplete, Task: task})
		return
	}

	if result.AwaitingApproval {
		c.mu.Lock()
		c.pendingPlan = result.Plan
		c.pendingTask = task
		c.mu.Unlock()
	} else if _, outErr := sess.Store.SaveOutput(task, result.FinalAnswer); outErr != nil {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: outErr.Error()})
	}

	c.writeFrame(ServerFrame{Kind: ServerComplete, Task: task})
}

// waitWhilePaused blocks at a plan-step boundary while sess.Paused(),
// polling at pauseCheckEvery and bracketing the wait with
// project_paused/project_resumed, per the pause_execution suspension
// point.
func (c *conn) waitWhilePaused(runCtx context.Context, sess *session.Session, emitter *agent.EventEmitter) {
	if !sess.Paused() {
		return
	}
	emitter.ProjectPaused(runCtx)
	for sess.Paused() {
		select {
		case <-runCtx.Done():
			return
		case <-time.After(pauseCheckEvery):
		}
	}
	emitter.ProjectResumed(runCtx)
}

func (c *conn) handleInterrupt() {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return
	}
	c.writeFrame(ServerFrame{Kind: ServerInterrupting})
	sess.Interrupt()
}

func (c *conn) handleSuggestion(frame ClientFrame) {
	c.mu.Lock()
	orch := c.activeOrch
	c.mu.Unlock()
	if orch == nil {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: "no task is running to receive a suggestion"})
		return
	}
	orch.AddSuggestion(frame.Content)
}

func (c *conn) handleApprovePlan() {
	c.mu.Lock()
	plan, task := c.pendingPlan, c.pendingTask
	sess := c.sess
	c.mu.Unlock()
	if plan == nil || sess == nil {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: "no plan is awaiting approval"})
		return
	}

	runCtx, release, ok := sess.TryBeginProcessing(c.ctx)
	if !ok {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: "session is already processing a task"})
		return
	}

	c.mu.Lock()
	c.pendingPlan, c.pendingTask = nil, ""
	c.mu.Unlock()

	go c.runApprovedPlan(runCtx, release, sess, task, plan)
}

func (c *conn) runApprovedPlan(runCtx context.Context, release func(), sess *session.Session, task string, plan *models.Plan) {
	defer release()

	sink := agent.NewChannelSink(256)
	emitter := agent.NewEventEmitter(uuid.NewString(), sink)

	drained := make(chan struct{})
	go func() {
		for event := range sink.Events() {
			if frame, ok := translateEvent(sess.SessionID, event); ok {
				c.writeFrame(frame)
			}
		}
		close(drained)
	}()

	engine := agent.NewEngine(c.registry, c.server.provider, c.server.model, c.server.engineConfig, emitter)
	engine.SetMetrics(c.server.metrics)
	orch := agent.NewOrchestrator(engine, c.planner, agent.ExecutionInteractive, emitter)
	orch.SetHooks(agent.OrchestratorHooks{
		OnStepStarted: func(models.PlanStep) { c.waitWhilePaused(runCtx, sess, emitter) },
	})

	c.mu.Lock()
	c.activeOrch = orch
	c.mu.Unlock()

	result, err := orch.ExecutePlan(runCtx, task, plan)

	c.mu.Lock()
	c.activeOrch = nil
	c.mu.Unlock()

	sink.Close()
	<-drained

	if err != nil {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: err.Error()})
	} else if _, outErr := sess.Store.SaveOutput(task, result.FinalAnswer); outErr != nil {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: outErr.Error()})
	}
	c.writeFrame(ServerFrame{Kind: ServerComplete, Task: task})
}

// handleUpdatePlan replaces a plan still awaiting approval. Arrival of a
// new plan here atomically replaces the one awaiting approval; the wait
// for approve_plan continues.
func (c *conn) handleUpdatePlan(frame ClientFrame) {
	c.mu.Lock()
	hasPending := c.pendingPlan != nil
	if hasPending && frame.Plan != nil {
		c.pendingPlan = frame.Plan
		c.pendingTask = frame.Plan.Task
	}
	c.mu.Unlock()

	if !hasPending || frame.Plan == nil {
		c.writeFrame(ServerFrame{Kind: ServerError, Message: "no plan is awaiting approval to update"})
		return
	}
	c.writeFrame(ServerFrame{Kind: ServerPlanUpdated, Plan: frame.Plan, Task: frame.Plan.Task})
}

func (c *conn) handlePause() {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		sess.Pause()
	}
}

func (c *conn) handleResume() {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		sess.Resume()
	}
}
