package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/agentsim/pkg/agent"
	"github.com/harun/agentsim/pkg/history"
	"github.com/harun/agentsim/pkg/toolexecutor"
)

// State is a session lifecycle state
type State string

const (
	StateSelectingAgent State = "SELECTING_AGENT"
	StateAwaitingQuery  State = "AWAITING_QUERY"
	StateActive         State = "ACTIVE"
	StateCompleted      State = "COMPLETED"

	// StateNone is reported when no session has been created
	StateNone State = "NO_SESSION"
)

// Valid reports whether s is one of the four lifecycle states
func (s State) Valid() bool {
	switch s {
	case StateSelectingAgent, StateAwaitingQuery, StateActive, StateCompleted:
		return true
	}
	return false
}

// Session is one simulation run: its agent, tools, state and history
type Session struct {
	mu sync.RWMutex

	id        string
	agentName string
	agent     *agent.Agent
	tools     []toolexecutor.Tool
	state     State
	history   *history.Log
	createdAt time.Time
	startedAt time.Time
}

// New creates a session in SELECTING_AGENT
func New() *Session {
	return &Session{
		id:        uuid.NewString(),
		state:     StateSelectingAgent,
		history:   history.NewLog(),
		createdAt: time.Now().UTC(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) AgentName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentName
}

// Agent returns the selected agent definition, nil before selection
func (s *Session) Agent() *agent.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agent
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Tools returns a copy of the available tools in provider order
func (s *Session) Tools() []toolexecutor.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]toolexecutor.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// History returns the session's log. Callers may read it freely; appends go
// through the session's transition methods.
func (s *Session) History() *history.Log {
	return s.history
}

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// StartedAt is the time the session last entered ACTIVE
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Tool resolves an available tool by exact name
func (s *Session) Tool(name string) (toolexecutor.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tool, ok := toolexecutor.FindTool(s.tools, name)
	if !ok {
		return nil, NotFound("execute_tool", "tool", name)
	}
	return tool, nil
}

// Require checks the current state without mutating anything
func (s *Session) Require(op string, required State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.require(op, required)
}

func (s *Session) require(op string, required State) error {
	if s.state != required {
		return StateViolation(op, required, s.state)
	}
	return nil
}

// SelectAgent binds the agent and its tools: SELECTING_AGENT -> AWAITING_QUERY
func (s *Session) SelectAgent(name string, ag *agent.Agent, tools []toolexecutor.Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("select_agent", StateSelectingAgent); err != nil {
		return err
	}

	s.agentName = name
	s.agent = ag
	s.tools = make([]toolexecutor.Tool, len(tools))
	copy(s.tools, tools)
	s.state = StateAwaitingQuery
	return nil
}

// Start records the user query: AWAITING_QUERY -> ACTIVE
func (s *Session) Start(query string) (history.UserQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("start_session", StateAwaitingQuery); err != nil {
		return history.UserQuery{}, err
	}

	entry := history.NewUserQuery(query)
	if err := s.history.Add(entry); err != nil {
		return history.UserQuery{}, err
	}
	s.state = StateActive
	s.startedAt = time.Now().UTC()
	return entry, nil
}

// RecordToolCall appends a ToolCall with a fresh call id. Requires ACTIVE.
func (s *Session) RecordToolCall(toolName string, args map[string]any) (history.ToolCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("execute_tool", StateActive); err != nil {
		return history.ToolCall{}, err
	}

	entry := history.NewToolCall(toolName, args)
	if err := s.history.Add(entry); err != nil {
		return history.ToolCall{}, err
	}
	return entry, nil
}

// RecordToolResult appends the terminal entry for a call
func (s *Session) RecordToolResult(entry history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("execute_tool", StateActive); err != nil {
		return err
	}
	return s.history.Add(entry)
}

// Complete records the final response: ACTIVE -> COMPLETED
func (s *Session) Complete(response string) (history.FinalResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("submit_final_response", StateActive); err != nil {
		return history.FinalResponse{}, err
	}

	entry := history.NewFinalResponse(response)
	if err := s.history.Add(entry); err != nil {
		return history.FinalResponse{}, err
	}
	s.state = StateCompleted
	return entry, nil
}

// Snapshot is a read-only view of a session, live or replayed from a Store
type Snapshot struct {
	ID        string       `json:"session_id"`
	AgentName string       `json:"agent_name"`
	State     State        `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	StartedAt time.Time    `json:"started_at,omitzero"`
	History   *history.Log `json:"history"`
}

// Snapshot captures the session's current identity and state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:        s.id,
		AgentName: s.agentName,
		State:     s.state,
		CreatedAt: s.createdAt,
		StartedAt: s.startedAt,
		History:   s.history,
	}
}

// ToolStatus reports the tool call currently in flight, if any
type ToolStatus struct {
	Running   bool    `json:"running"`
	ToolName  string  `json:"tool_name,omitempty"`
	CallID    string  `json:"call_id,omitempty"`
	ElapsedMs float64 `json:"elapsed_ms"`
}
