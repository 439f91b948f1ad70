package history

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// EntryType discriminates the history entry variants
type EntryType string

const (
	TypeUserQuery     EntryType = "user_query"
	TypeToolCall      EntryType = "tool_call"
	TypeToolOutput    EntryType = "tool_output"
	TypeToolError     EntryType = "tool_error"
	TypeFinalResponse EntryType = "final_response"
)

// Entry is one immutable event in a session timeline. The set of
// implementations is closed: UserQuery, ToolCall, ToolOutput, ToolError and
// FinalResponse.
type Entry interface {
	Type() EntryType
	Time() time.Time
	isEntry()
}

// now is replaced in tests that need stable timestamps
var now = func() time.Time {
	return time.Now().UTC()
}

// NewCallID mints a correlation token for a tool call
func NewCallID() string {
	id, err := gonanoid.New()
	if err != nil {
		return uuid.NewString()
	}
	return id
}

// UserQuery is the request that starts a session
type UserQuery struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserQuery creates a UserQuery stamped with the current time
func NewUserQuery(content string) UserQuery {
	return UserQuery{Content: content, Timestamp: now()}
}

func (UserQuery) Type() EntryType { return TypeUserQuery }
func (e UserQuery) Time() time.Time { return e.Timestamp }
func (UserQuery) isEntry() {}

// MarshalJSON adds the type discriminator
func (e UserQuery) MarshalJSON() ([]byte, error) {
	type alias UserQuery
	return json.Marshal(struct {
		Type EntryType `json:"type"`
		alias
	}{TypeUserQuery, alias(e)})
}

// ToolCall records a tool invocation request
type ToolCall struct {
	CallID    string         `json:"call_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewToolCall creates a ToolCall with a fresh call ID. The arguments are
// deep-copied so later mutation by the caller cannot alter the record.
func NewToolCall(toolName string, arguments map[string]any) ToolCall {
	args := CloneArguments(arguments)
	if args == nil {
		args = map[string]any{}
	}
	return ToolCall{
		CallID:    NewCallID(),
		ToolName:  toolName,
		Arguments: args,
		Timestamp: now(),
	}
}

// CloneArguments deep-copies nested objects and arrays of a tool argument
// map. Other values are copied as-is.
func CloneArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneArguments(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]string:
		return maps.Clone(t)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func (ToolCall) Type() EntryType { return TypeToolCall }
func (e ToolCall) Time() time.Time { return e.Timestamp }
func (ToolCall) isEntry() {}

// MarshalJSON adds the type discriminator
func (e ToolCall) MarshalJSON() ([]byte, error) {
	type alias ToolCall
	return json.Marshal(struct {
		Type EntryType `json:"type"`
		alias
	}{TypeToolCall, alias(e)})
}

// ToolOutput records a successful tool execution
type ToolOutput struct {
	CallID     string    `json:"call_id"`
	Result     any       `json:"result"`
	DurationMs float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewToolOutput creates a ToolOutput correlated with callID
func NewToolOutput(callID string, result any, durationMs float64) ToolOutput {
	return ToolOutput{
		CallID:     callID,
		Result:     result,
		DurationMs: durationMs,
		Timestamp:  now(),
	}
}

func (ToolOutput) Type() EntryType { return TypeToolOutput }
func (e ToolOutput) Time() time.Time { return e.Timestamp }
func (ToolOutput) isEntry() {}

// MarshalJSON adds the type discriminator
func (e ToolOutput) MarshalJSON() ([]byte, error) {
	type alias ToolOutput
	return json.Marshal(struct {
		Type EntryType `json:"type"`
		alias
	}{TypeToolOutput, alias(e)})
}

// ToolError records a failed or cancelled tool execution
type ToolError struct {
	CallID       string    `json:"call_id"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	Traceback    string    `json:"traceback,omitempty"`
	DurationMs   float64   `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewToolError creates a ToolError correlated with callID
func NewToolError(callID, errorType, errorMessage, traceback string, durationMs float64) ToolError {
	return ToolError{
		CallID:       callID,
		ErrorType:    errorType,
		ErrorMessage: errorMessage,
		Traceback:    traceback,
		DurationMs:   durationMs,
		Timestamp:    now(),
	}
}

func (ToolError) Type() EntryType { return TypeToolError }
func (e ToolError) Time() time.Time { return e.Timestamp }
func (ToolError) isEntry() {}

// MarshalJSON adds the type discriminator
func (e ToolError) MarshalJSON() ([]byte, error) {
	type alias ToolError
	return json.Marshal(struct {
		Type EntryType `json:"type"`
		alias
	}{TypeToolError, alias(e)})
}

// FinalResponse records the human's final answer
type FinalResponse struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewFinalResponse creates a FinalResponse stamped with the current time
func NewFinalResponse(content string) FinalResponse {
	return FinalResponse{Content: content, Timestamp: now()}
}

func (FinalResponse) Type() EntryType { return TypeFinalResponse }
func (e FinalResponse) Time() time.Time { return e.Timestamp }
func (FinalResponse) isEntry() {}

// MarshalJSON adds the type discriminator
func (e FinalResponse) MarshalJSON() ([]byte, error) {
	type alias FinalResponse
	return json.Marshal(struct {
		Type EntryType `json:"type"`
		alias
	}{TypeFinalResponse, alias(e)})
}

// DecodeEntry restores a concrete entry from its JSON form
func DecodeEntry(data []byte) (Entry, error) {
	var head struct {
		Type EntryType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to read entry type: %w", err)
	}

	switch head.Type {
	case TypeUserQuery:
		var e UserQuery
		err := json.Unmarshal(data, &e)
		return e, err
	case TypeToolCall:
		var e ToolCall
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		if e.Arguments == nil {
			e.Arguments = map[string]any{}
		}
		return e, nil
	case TypeToolOutput:
		var e ToolOutput
		err := json.Unmarshal(data, &e)
		return e, err
	case TypeToolError:
		var e ToolError
		err := json.Unmarshal(data, &e)
		return e, err
	case TypeFinalResponse:
		var e FinalResponse
		err := json.Unmarshal(data, &e)
		return e, err
	default:
		return nil, fmt.Errorf("unknown entry type %q", head.Type)
	}
}
