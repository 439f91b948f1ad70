package gateway

import (
	"context"
	"fmt"

	"github.com/harun/agentsim/internal/tracing"
	"github.com/harun/agentsim/pkg/agent"
	"github.com/harun/agentsim/pkg/export"
	"github.com/harun/agentsim/pkg/history"
	"github.com/harun/agentsim/pkg/session"
	"github.com/harun/agentsim/pkg/toolexecutor"
)

// Simulator is the session controller the gateway drives
type Simulator interface {
	Agents() []*agent.Agent
	CreateSession(ctx context.Context) (session.Snapshot, error)
	SelectAgent(ctx context.Context, name string) error
	StartSession(ctx context.Context, query any) (history.UserQuery, error)
	Snapshot() (session.Snapshot, bool)
	SystemInstruction() string
	ToolDeclarations() []*toolexecutor.Declaration
	ToolDeclaration(name string) (*toolexecutor.Declaration, error)
	ExecuteTool(ctx context.Context, name string, args map[string]any) (toolexecutor.ExecutionResult, error)
	CancelTool() bool
	ToolStatus() session.ToolStatus
	SubmitFinalResponse(ctx context.Context, response any) (history.FinalResponse, error)
	ExportTrace(ctx context.Context) (*export.EvalCase, error)
}

// AgentInfo is the catalog view returned by agents.list
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
}

// StateResult is returned by session.state
type StateResult struct {
	HasSession bool               `json:"has_session"`
	SessionID  string             `json:"session_id,omitempty"`
	AgentName  string             `json:"agent_name,omitempty"`
	State      session.State      `json:"state"`
	Entries    int                `json:"entries"`
	Tool       session.ToolStatus `json:"tool"`
}

// ExecuteResult is returned by tools.execute. The result value is made
// JSON-safe before it leaves the gateway.
type ExecuteResult struct {
	Success        bool    `json:"success"`
	Result         any     `json:"result,omitempty"`
	ErrorType      string  `json:"error_type,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	ErrorTraceback string  `json:"error_traceback,omitempty"`
	DurationMs     float64 `json:"duration_ms"`
	Cancelled      bool    `json:"cancelled"`
}

// registerSimulatorMethods registers the session RPC surface
func (s *Server) registerSimulatorMethods() {
	methods := map[string]RequestHandler{
		"agents.list":         s.handleAgentsList,
		"session.create":      s.handleSessionCreate,
		"session.selectAgent": s.handleSelectAgent,
		"session.start":       s.handleSessionStart,
		"session.state":       s.handleSessionState,
		"session.history":     s.handleSessionHistory,
		"session.submit":      s.handleSessionSubmit,
		"session.export":      s.handleSessionExport,
		"tools.list":          s.handleToolsList,
		"tools.declaration":   s.handleToolDeclaration,
		"tools.execute":       s.handleToolExecute,
		"tools.cancel":        s.handleToolCancel,
		"tools.status":        s.handleToolStatus,
	}
	for name, handler := range methods {
		_ = s.router.RegisterMethod(name, handler)
	}
}

func (s *Server) handleAgentsList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	agents := s.sim.Agents()
	infos := make([]AgentInfo, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, AgentInfo{Name: a.Name, Description: a.Description, Model: a.Model})
	}
	return infos, nil
}

func (s *Server) handleSessionCreate(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	snap, err := s.sim.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Server) handleSelectAgent(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "agent")
	if err != nil {
		return nil, err
	}
	if err := s.sim.SelectAgent(ctx, name); err != nil {
		return nil, err
	}

	snap, _ := s.sim.Snapshot()
	return map[string]interface{}{
		"session_id":  snap.ID,
		"agent_name":  snap.AgentName,
		"state":       snap.State,
		"instruction": s.sim.SystemInstruction(),
		"tools":       s.sim.ToolDeclarations(),
	}, nil
}

func (s *Server) handleSessionStart(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	query, ok := params["query"]
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "query parameter is required"}
	}
	return s.sim.StartSession(ctx, query)
}

func (s *Server) handleSessionState(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	snap, ok := s.sim.Snapshot()
	result := StateResult{
		HasSession: ok,
		State:      snap.State,
		Tool:       s.sim.ToolStatus(),
	}
	if ok {
		result.SessionID = snap.ID
		result.AgentName = snap.AgentName
		result.Entries = snap.History.Len()
	}
	return result, nil
}

func (s *Server) handleSessionHistory(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	since, err := intParam(params, "since")
	if err != nil {
		return nil, err
	}

	snap, ok := s.sim.Snapshot()
	if !ok {
		return []history.Entry{}, nil
	}
	return snap.History.Since(since), nil
}

func (s *Server) handleSessionSubmit(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	response, ok := params["response"]
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "response parameter is required"}
	}
	return s.sim.SubmitFinalResponse(ctx, response)
}

func (s *Server) handleSessionExport(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return s.sim.ExportTrace(ctx)
}

func (s *Server) handleToolsList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return s.sim.ToolDeclarations(), nil
}

func (s *Server) handleToolDeclaration(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}
	return s.sim.ToolDeclaration(name)
}

// handleToolExecute runs on a context detached from the request so a
// dropped connection does not cancel the call; tools.cancel does.
func (s *Server) handleToolExecute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}

	args := map[string]any{}
	if raw, ok := params["args"]; ok && raw != nil {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, &RPCError{Code: InvalidParams, Message: "args must be an object"}
		}
		args = m
	}

	result, err := s.sim.ExecuteTool(tracing.Detach(ctx), name, args)
	if err != nil {
		return nil, err
	}
	return ExecuteResult{
		Success:        result.Success,
		Result:         export.Normalize(result.Result),
		ErrorType:      result.ErrorType,
		ErrorMessage:   result.ErrorMessage,
		ErrorTraceback: result.ErrorTraceback,
		DurationMs:     result.DurationMs,
		Cancelled:      result.Cancelled,
	}, nil
}

func (s *Server) handleToolCancel(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return map[string]bool{"cancelled": s.sim.CancelTool()}, nil
}

func (s *Server) handleToolStatus(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return s.sim.ToolStatus(), nil
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	value, ok := params[key].(string)
	if !ok || value == "" {
		return "", &RPCError{Code: InvalidParams, Message: fmt.Sprintf("%s parameter is required and must be a string", key)}
	}
	return value, nil
}

// intParam reads an optional non-negative integer; JSON numbers arrive as float64
func intParam(params map[string]interface{}, key string) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, nil
	}
	f, ok := raw.(float64)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("%s must be a non-negative integer", key)}
	}
	return int(f), nil
}
