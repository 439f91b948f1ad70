package export

import (
	"regexp"
	"strings"
	"time"

	"github.com/harun/agentsim/pkg/history"
	"github.com/harun/agentsim/pkg/session"
)

const (
	// UnknownAgent replaces an empty agent name in eval ids
	UnknownAgent = "unknown"
	// UnknownTool names a response whose call was never seen
	UnknownTool = "unknown"

	evalIDTimeLayout = "20060102T150405Z"
)

var (
	nonSnake       = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRuns = regexp.MustCompile(`_+`)
)

// Builder produces evaluation cases from completed sessions
type Builder struct {
	// Now stamps eval ids and creation timestamps; nil means time.Now
	Now func() time.Time
}

// NewBuilder creates a builder using the wall clock
func NewBuilder() *Builder {
	return &Builder{Now: time.Now}
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now().UTC()
	}
	return b.Now().UTC()
}

// Build exports a COMPLETED session snapshot
func (b *Builder) Build(snap session.Snapshot) (*EvalCase, error) {
	if snap.State != session.StateCompleted {
		return nil, session.StateViolation("export_trace", session.StateCompleted, snap.State)
	}

	var entries []history.Entry
	if snap.History != nil {
		entries = snap.History.Entries()
	}

	created := b.now()
	inv := Invocation{
		InvocationID:  snap.ID,
		UserContent:   userContent(entries),
		FinalResponse: finalResponse(entries),
	}

	uses, responses := toolData(entries)
	if len(uses) > 0 || len(responses) > 0 {
		inv.IntermediateData = &IntermediateData{
			ToolUses:      uses,
			ToolResponses: responses,
		}
	}

	return &EvalCase{
		EvalID:            EvalID(snap.AgentName, created),
		CreationTimestamp: float64(created.UnixMicro()) / 1e6,
		Conversation:      []Invocation{inv},
	}, nil
}

// EvalID formats <snake_case(agentName)>_<YYYYMMDDTHHMMSSZ>
func EvalID(agentName string, at time.Time) string {
	return SnakeCase(agentName) + "_" + at.UTC().Format(evalIDTimeLayout)
}

// SnakeCase splits before every non-leading capital, lowercases, and maps
// anything outside [a-z0-9_] to a single underscore
func SnakeCase(name string) string {
	if name == "" {
		name = UnknownAgent
	}
	var sb strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			sb.WriteByte('_')
		}
		sb.WriteRune(r)
	}

	s := strings.ToLower(sb.String())
	s = nonSnake.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return UnknownAgent
	}
	return s
}

func userContent(entries []history.Entry) Content {
	for _, e := range entries {
		if q, ok := e.(history.UserQuery); ok {
			return textContent(RoleUser, q.Content)
		}
	}
	return textContent(RoleUser, "")
}

func finalResponse(entries []history.Entry) Content {
	for i := len(entries) - 1; i >= 0; i-- {
		if f, ok := entries[i].(history.FinalResponse); ok {
			return textContent(RoleModel, f.Content)
		}
	}
	return textContent(RoleModel, "")
}

func toolData(entries []history.Entry) ([]ToolUse, []ToolResponse) {
	var uses []ToolUse
	var responses []ToolResponse
	names := make(map[string]string)

	nameOf := func(callID string) string {
		if name, ok := names[callID]; ok {
			return name
		}
		return UnknownTool
	}

	for _, e := range entries {
		switch v := e.(type) {
		case history.ToolCall:
			if _, seen := names[v.CallID]; !seen {
				names[v.CallID] = v.ToolName
			}
			args := history.CloneArguments(v.Arguments)
			if args == nil {
				args = map[string]any{}
			}
			uses = append(uses, ToolUse{ID: v.CallID, Name: v.ToolName, Args: args})
		case history.ToolOutput:
			responses = append(responses, ToolResponse{
				ID:       v.CallID,
				Name:     nameOf(v.CallID),
				Response: SerializeResult(v.Result),
			})
		case history.ToolError:
			responses = append(responses, ToolResponse{
				ID:       v.CallID,
				Name:     nameOf(v.CallID),
				Response: errorResponse(v),
			})
		case history.UserQuery, history.FinalResponse:
		}
	}
	return uses, responses
}

func errorResponse(e history.ToolError) map[string]any {
	resp := map[string]any{
		"error":         true,
		"error_type":    e.ErrorType,
		"error_message": e.ErrorMessage,
	}
	if e.Traceback != "" {
		resp["traceback"] = e.Traceback
	}
	return resp
}
