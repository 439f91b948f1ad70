package export

// Roles used for the two message contents of an invocation
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one piece of message content
type Part struct {
	Text string `json:"text"`
}

// Content is a single-author message
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

func textContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// ToolUse is a recorded tool call
type ToolUse struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResponse is the recorded result or error of a tool call
type ToolResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// IntermediateData holds the tool trajectory of an invocation
type IntermediateData struct {
	ToolUses      []ToolUse      `json:"tool_uses,omitempty"`
	ToolResponses []ToolResponse `json:"tool_responses,omitempty"`
}

// Invocation is one user turn and everything the agent did for it
type Invocation struct {
	InvocationID     string            `json:"invocation_id"`
	UserContent      Content           `json:"user_content"`
	FinalResponse    Content           `json:"final_response"`
	IntermediateData *IntermediateData `json:"intermediate_data,omitempty"`
}

// EvalCase is the golden trace document
type EvalCase struct {
	EvalID            string       `json:"eval_id"`
	CreationTimestamp float64      `json:"creation_timestamp"` // UTC epoch seconds
	Conversation      []Invocation `json:"conversation"`
}
