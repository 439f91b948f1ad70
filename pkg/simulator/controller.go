package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/agentsim/internal/observability"
	"github.com/harun/agentsim/internal/tracing"
	"github.com/harun/agentsim/pkg/agent"
	"github.com/harun/agentsim/pkg/export"
	"github.com/harun/agentsim/pkg/history"
	"github.com/harun/agentsim/pkg/session"
	"github.com/harun/agentsim/pkg/toolexecutor"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// TimeoutErrorType is recorded when a call exceeds the configured timeout
const TimeoutErrorType = "TimeoutError"

// Observer is told about every state change and history append. It is
// called with the controller lock held and must not call back into it.
type Observer interface {
	OnStateChange(ctx context.Context, snap session.Snapshot)
	OnHistoryAppend(ctx context.Context, sessionID string, entry history.Entry)
}

// TraceSink stores exported traces
type TraceSink interface {
	SaveTrace(ctx context.Context, ec *export.EvalCase, snap session.Snapshot) (string, error)
}

// Options configure a Controller
type Options struct {
	Provider    agent.Provider
	ToolTimeout time.Duration // 0 = none
	Observers   []Observer
	Sink        TraceSink
	Builder     *export.Builder
}

// Controller is the single entry point for driving one simulation session
// at a time
type Controller struct {
	catalog   *agent.Catalog
	provider  agent.Provider
	engine    *toolexecutor.Engine
	builder   *export.Builder
	sink      TraceSink
	timeout   time.Duration
	observers []Observer

	mu           sync.Mutex
	sess         *session.Session
	declarations map[string]*toolexecutor.Declaration
	inFlight     *history.ToolCall
	cancelCall   context.CancelFunc
}

// NewController creates a controller over an agent catalog
func NewController(catalog *agent.Catalog, opts Options) (*Controller, error) {
	if catalog == nil {
		return nil, fmt.Errorf("agent catalog cannot be nil")
	}
	if opts.ToolTimeout < 0 {
		return nil, fmt.Errorf("tool timeout cannot be negative")
	}
	if opts.Provider == nil {
		opts.Provider = agent.NewToolsetProvider()
	}
	if opts.Builder == nil {
		opts.Builder = export.NewBuilder()
	}

	observability.EnsureRegistered()

	return &Controller{
		catalog:      catalog,
		provider:     opts.Provider,
		engine:       toolexecutor.NewEngine(),
		builder:      opts.Builder,
		sink:         opts.Sink,
		timeout:      opts.ToolTimeout,
		observers:    opts.Observers,
		declarations: make(map[string]*toolexecutor.Declaration),
	}, nil
}

// AddObserver registers an observer for subsequent changes
func (c *Controller) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Agents lists the selectable agents
func (c *Controller) Agents() []*agent.Agent {
	return c.catalog.List()
}

// Session returns the current session, nil before CreateSession
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// State returns the current session state, StateNone without a session
func (c *Controller) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return session.StateNone
	}
	return c.sess.State()
}

// Snapshot returns a view of the current session
func (c *Controller) Snapshot() (session.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return session.Snapshot{State: session.StateNone}, false
	}
	return c.sess.Snapshot(), true
}

// current returns the session or a StateViolation naming StateNone.
// Caller holds c.mu.
func (c *Controller) current(op string, required session.State) (*session.Session, error) {
	if c.sess == nil {
		return nil, session.StateViolation(op, required, session.StateNone)
	}
	return c.sess, nil
}

// CreateSession discards any previous session and starts a new one in
// SELECTING_AGENT
func (c *Controller) CreateSession(ctx context.Context) (session.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight != nil {
		return session.Snapshot{}, session.ToolInFlight("create_session")
	}

	c.sess = session.New()
	clear(c.declarations)

	snap := c.sess.Snapshot()
	ctx = tracing.WithSessionID(ctx, snap.ID)
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().Msg("Session created")
	observability.RecordSessionAudit(ctx, "create_session", snap.ID, "success", nil)
	c.stateChanged(ctx, snap)

	return snap, nil
}

// SelectAgent binds an agent and resolves its tools. Tools are resolved
// without holding the controller lock; the session is checked again
// before the agent is bound.
func (c *Controller) SelectAgent(ctx context.Context, name string) error {
	const op = "select_agent"

	c.mu.Lock()
	sess, err := c.current(op, session.StateSelectingAgent)
	if err == nil {
		err = sess.Require(op, session.StateSelectingAgent)
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	ag, ok := c.catalog.Get(name)
	if !ok {
		return session.NotFound(op, "agent", name)
	}

	ctx = tracing.WithAgentName(tracing.WithSessionID(ctx, sess.ID()), name)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	tools, err := c.provider.Tools(ctx, ag)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve agent tools")
		return fmt.Errorf("failed to resolve tools for agent %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// CreateSession may have replaced the session meanwhile
	if c.sess != sess {
		return session.NotFound(op, "session", sess.ID())
	}
	if err := sess.SelectAgent(name, ag, tools); err != nil {
		return err
	}

	clear(c.declarations)
	for _, tool := range tools {
		c.declarations[tool.Name()] = declarationOf(tool)
	}

	logger.Info().Int("tools", len(tools)).Msg("Agent selected")
	observability.RecordSessionAudit(ctx, op, sess.ID(), "success", map[string]interface{}{
		"agent": name,
		"tools": len(tools),
	})
	c.stateChanged(ctx, sess.Snapshot())
	return nil
}

// StartSession records the user query. Strings are kept verbatim; any
// other value is recorded as canonical JSON.
func (c *Controller) StartSession(ctx context.Context, query any) (history.UserQuery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "start_session"
	sess, err := c.current(op, session.StateAwaitingQuery)
	if err != nil {
		return history.UserQuery{}, err
	}

	entry, err := sess.Start(TextOf(query))
	if err != nil {
		return history.UserQuery{}, err
	}

	ctx = tracing.WithAgentName(tracing.WithSessionID(ctx, sess.ID()), sess.AgentName())
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().Msg("Session started")
	observability.RecordSessionAudit(ctx, op, sess.ID(), "success", nil)
	c.appended(ctx, sess.ID(), entry)
	c.stateChanged(ctx, sess.Snapshot())
	return entry, nil
}

// ExecuteTool records a call, runs the tool and records exactly one
// terminal entry for it. Tool failures are returned in the result, not
// as an error; errors are reserved for state and lookup failures, which
// leave history untouched.
func (c *Controller) ExecuteTool(ctx context.Context, name string, args map[string]any) (toolexecutor.ExecutionResult, error) {
	const op = "execute_tool"

	c.mu.Lock()
	sess, err := c.current(op, session.StateActive)
	if err != nil {
		c.mu.Unlock()
		return toolexecutor.ExecutionResult{}, err
	}
	if err := sess.Require(op, session.StateActive); err != nil {
		c.mu.Unlock()
		return toolexecutor.ExecutionResult{}, err
	}
	if c.inFlight != nil {
		c.mu.Unlock()
		return toolexecutor.ExecutionResult{}, session.ToolInFlight(op)
	}
	tool, err := sess.Tool(name)
	if err != nil {
		c.mu.Unlock()
		return toolexecutor.ExecutionResult{}, err
	}
	call, err := sess.RecordToolCall(name, args)
	if err != nil {
		c.mu.Unlock()
		return toolexecutor.ExecutionResult{}, err
	}
	c.inFlight = &call

	ctx = tracing.WithCallID(tracing.WithAgentName(tracing.WithSessionID(ctx, sess.ID()), sess.AgentName()), call.CallID)
	ctx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()
	c.cancelCall = cancelCall
	c.appended(ctx, sess.ID(), call)
	c.mu.Unlock()

	ctx, span := tracing.StartSpan(
		ctx,
		tracing.TracerSimulator,
		"simulator.execute_tool",
		attribute.String("tool", name),
		attribute.String("call_id", call.CallID),
	)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result := c.engine.Execute(runCtx, tool, history.CloneArguments(call.Arguments), sess)
	if result.Cancelled && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.ErrorType = TimeoutErrorType
		result.ErrorMessage = fmt.Sprintf("Tool execution timed out after %s", c.timeout)
	}

	var terminal history.Entry
	if result.Success {
		terminal = history.NewToolOutput(call.CallID, result.Result, result.DurationMs)
	} else {
		terminal = history.NewToolError(call.CallID, result.ErrorType, result.ErrorMessage, result.ErrorTraceback, result.DurationMs)
	}

	c.mu.Lock()
	if err := sess.RecordToolResult(terminal); err != nil {
		// Unreachable while inFlight blocks every other mutation
		logger.Error().Err(err).Msg("Failed to record tool result")
	} else {
		c.appended(ctx, sess.ID(), terminal)
	}
	c.inFlight = nil
	c.cancelCall = nil
	c.mu.Unlock()

	outcome := observability.OutcomeSuccess
	switch {
	case result.Cancelled:
		outcome = observability.OutcomeCancelled
	case !result.Success:
		outcome = observability.OutcomeError
	}
	duration := time.Duration(result.DurationMs * float64(time.Millisecond))
	observability.RecordToolExecution(name, outcome, result.ErrorType, duration)
	observability.RecordToolAudit(ctx, name, sess.ID(), outcome, map[string]interface{}{
		"call_id":     call.CallID,
		"duration_ms": result.DurationMs,
		"error_type":  result.ErrorType,
	})

	var spanErr error
	if !result.Success {
		spanErr = fmt.Errorf("%s: %s", result.ErrorType, result.ErrorMessage)
	}
	tracing.EndSpan(span, spanErr)

	logger.Info().
		Str("tool", name).
		Str("outcome", outcome).
		Float64("duration_ms", result.DurationMs).
		Msg("Tool call finished")

	return result, nil
}

// CancelTool signals the in-flight call. It reports whether one was in
// flight. A call that has not reached the engine yet is cancelled before
// its tool runs; a call whose tool already finished keeps its result.
func (c *Controller) CancelTool() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight == nil || c.cancelCall == nil {
		return false
	}
	c.cancelCall()
	return true
}

// ToolStatus reports progress of the in-flight call
func (c *Controller) ToolStatus() session.ToolStatus {
	c.mu.Lock()
	call := c.inFlight
	c.mu.Unlock()

	if call == nil {
		return session.ToolStatus{}
	}
	return session.ToolStatus{
		Running:   true,
		ToolName:  call.ToolName,
		CallID:    call.CallID,
		ElapsedMs: c.engine.ElapsedMs(),
	}
}

// SubmitFinalResponse records the answer and completes the session
func (c *Controller) SubmitFinalResponse(ctx context.Context, response any) (history.FinalResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "submit_final_response"
	sess, err := c.current(op, session.StateActive)
	if err != nil {
		return history.FinalResponse{}, err
	}
	if c.inFlight != nil {
		return history.FinalResponse{}, session.ToolInFlight(op)
	}

	entry, err := sess.Complete(TextOf(response))
	if err != nil {
		return history.FinalResponse{}, err
	}

	ctx = tracing.WithAgentName(tracing.WithSessionID(ctx, sess.ID()), sess.AgentName())
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().
		Int("entries", sess.History().Len()).
		Msg("Session completed")
	observability.RecordSessionAudit(ctx, op, sess.ID(), "success", nil)
	c.appended(ctx, sess.ID(), entry)
	c.stateChanged(ctx, sess.Snapshot())
	return entry, nil
}

// ExportTrace builds the golden trace of the completed session and hands
// it to the configured sink
func (c *Controller) ExportTrace(ctx context.Context) (*export.EvalCase, error) {
	c.mu.Lock()
	sess, err := c.current("export_trace", session.StateCompleted)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	snap := sess.Snapshot()
	c.mu.Unlock()

	ec, err := c.builder.Build(snap)
	if err != nil {
		return nil, err
	}

	ctx = tracing.WithAgentName(tracing.WithSessionID(ctx, snap.ID), snap.AgentName)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if c.sink != nil {
		path, err := c.sink.SaveTrace(ctx, ec, snap)
		if err != nil {
			return nil, fmt.Errorf("failed to save trace: %w", err)
		}
		logger.Info().Str("eval_id", ec.EvalID).Str("path", path).Msg("Trace exported")
	} else {
		logger.Info().Str("eval_id", ec.EvalID).Msg("Trace built")
	}

	return ec, nil
}

// SystemInstruction returns the selected agent's instruction
func (c *Controller) SystemInstruction() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.sess.Agent() == nil {
		return ""
	}
	return c.sess.Agent().Instruction
}

// ToolDeclarations returns the declarations of the session's tools in order
func (c *Controller) ToolDeclarations() []*toolexecutor.Declaration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return []*toolexecutor.Declaration{}
	}

	tools := c.sess.Tools()
	out := make([]*toolexecutor.Declaration, 0, len(tools))
	for _, tool := range tools {
		out = append(out, c.declarations[tool.Name()])
	}
	return out
}

// ToolDeclaration returns the cached declaration of one tool
func (c *Controller) ToolDeclaration(name string) (*toolexecutor.Declaration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	decl, ok := c.declarations[name]
	if !ok {
		return nil, session.NotFound("tool_declaration", "tool", name)
	}
	return decl, nil
}

func declarationOf(tool toolexecutor.Tool) *toolexecutor.Declaration {
	if decl := tool.Declaration(); decl != nil {
		return decl
	}
	return &toolexecutor.Declaration{Name: tool.Name(), Description: tool.Description()}
}

// stateChanged and appended notify observers. Caller holds c.mu.
func (c *Controller) stateChanged(ctx context.Context, snap session.Snapshot) {
	observability.RecordSessionTransition(string(snap.State))
	for _, o := range c.observers {
		o.OnStateChange(ctx, snap)
	}
}

func (c *Controller) appended(ctx context.Context, sessionID string, entry history.Entry) {
	for _, o := range c.observers {
		o.OnHistoryAppend(ctx, sessionID, entry)
	}
}

// TextOf renders caller input as history text: strings verbatim, nil as
// empty, anything else as canonical JSON
func TextOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(x, &decoded); err != nil {
			return string(x)
		}
		return TextOf(decoded)
	}

	data, err := json.Marshal(export.Normalize(v))
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
