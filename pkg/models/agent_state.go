package models

// AgentState is the working state of a single ReAct run. It is mutated
// in place for the lifetime of one task and discarded (or archived into
// the conversation context) once the task completes.
type AgentState struct {
	Task              string    `json:"task"`
	ConversationHistory []Message `json:"conversation_history"`
	Observations      []string  `json:"observations"`
	Iteration         int       `json:"iteration"`
	IsComplete        bool      `json:"is_complete"`
	FinalAnswer       string    `json:"final_answer"`
}

// NewAgentState creates an empty AgentState for the given task.
func NewAgentState(task string) *AgentState {
	return &AgentState{Task: task}
}

// Valid reports whether the invariants on AgentState hold:
// is_complete implies a non-empty final answer, and iteration stays
// within maxIterations.
func (s *AgentState) Valid(maxIterations int) bool {
	if s.IsComplete && s.FinalAnswer == "" {
		return false
	}
	if s.Iteration > maxIterations {
		return false
	}
	return true
}

// Complete marks the state finished with the given final answer.
func (s *AgentState) Complete(answer string) {
	s.FinalAnswer = answer
	s.IsComplete = true
}
