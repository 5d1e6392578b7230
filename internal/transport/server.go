package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/session"
)

// RegistryFactory builds the tool registry for one newly bound session,
// typically wiring file/exec/websearch tools against sess.Store.FilesDir()
// and sess.Sandbox. The registry is rebuilt once per session bind and then
// reused (read-only) across every task run on that connection.
type RegistryFactory func(sess *session.Session) *agent.ToolRegistry

// Server upgrades incoming HTTP requests to the session websocket and owns
// the shared, session-independent state: the session manager, the LLM
// provider/model, and engine tuning. Each accepted connection gets its own
// *conn with its own lazily-bound session.
type Server struct {
	manager      *session.Manager
	newRegistry  RegistryFactory
	provider     agent.LLMProvider
	model        string
	engineConfig agent.EngineConfig

	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// SetMetrics attaches a Metrics sink propagated to every Engine the server
// constructs; passing nil disables metric recording.
func (s *Server) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// NewServer builds a Server. logger may be nil, in which case slog.Default
// is used.
func NewServer(manager *session.Manager, newRegistry RegistryFactory, provider agent.LLMProvider, model string, engineConfig agent.EngineConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		manager:      manager,
		newRegistry:  newRegistry,
		provider:     provider,
		model:        model,
		engineConfig: engineConfig,
		logger:       logger.With("component", "transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket and runs one conn to
// completion. It returns once the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		server: s,
		ws:     ws,
		send:   make(chan []byte, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	c.run()
}
