package toolexecutor

import (
	"context"
	"fmt"
)

// Tool is an invocable tool handle supplied by a Toolset
type Tool interface {
	Name() string
	Description() string
	// Declaration describes the tool's parameters for callers that build
	// argument input. It may be nil.
	Declaration() *Declaration
	Run(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (any, error)
}

// Declaration is the callable signature of a tool
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema object
}

// Toolset yields the tools of one source (static functions, an MCP server)
type Toolset interface {
	Tools(ctx context.Context) ([]Tool, error)
	Close() error
}

// StaticToolset serves a fixed list of tools
type StaticToolset struct {
	tools []Tool
}

// NewStaticToolset creates a toolset over the given tools
func NewStaticToolset(tools ...Tool) *StaticToolset {
	return &StaticToolset{tools: tools}
}

// Tools returns the configured tools in declaration order
func (s *StaticToolset) Tools(_ context.Context) ([]Tool, error) {
	out := make([]Tool, len(s.tools))
	copy(out, s.tools)
	return out, nil
}

// Close is a no-op for static tools
func (s *StaticToolset) Close() error {
	return nil
}

// FindTool looks a tool up by exact, case-sensitive name
func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, tool := range tools {
		if tool.Name() == name {
			return tool, true
		}
	}
	return nil, false
}

// CheckUniqueNames reports the first duplicated tool name
func CheckUniqueNames(tools []Tool) error {
	seen := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		if _, dup := seen[tool.Name()]; dup {
			return fmt.Errorf("duplicate tool name: %s", tool.Name())
		}
		seen[tool.Name()] = struct{}{}
	}
	return nil
}
