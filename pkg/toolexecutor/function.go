package toolexecutor

import (
	"context"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ToolParameter defines a parameter for a function tool
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]any) (any, error)

// ToolDefinition defines a function tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ValidationError reports arguments that do not match a tool's schema
type ValidationError struct {
	Tool     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// ErrorType names the failure category recorded in history
func (e *ValidationError) ErrorType() string {
	return "ValidationError"
}

// FunctionTool is a Tool backed by an in-process handler
type FunctionTool struct {
	def       ToolDefinition
	schema    *gojsonschema.Schema
	schemaMap map[string]any
}

// NewFunctionTool validates the definition and compiles its argument schema
func NewFunctionTool(def ToolDefinition) (*FunctionTool, error) {
	if err := validateToolDefinition(def); err != nil {
		return nil, fmt.Errorf("invalid tool definition: %w", err)
	}

	schemaMap := generateSchemaMap(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", def.Name, err)
	}

	return &FunctionTool{
		def:       def,
		schema:    schema,
		schemaMap: schemaMap,
	}, nil
}

// MustFunctionTool is NewFunctionTool for statically known definitions
func MustFunctionTool(def ToolDefinition) *FunctionTool {
	tool, err := NewFunctionTool(def)
	if err != nil {
		panic(err)
	}
	return tool
}

func (t *FunctionTool) Name() string        { return t.def.Name }
func (t *FunctionTool) Description() string { return t.def.Description }

// Declaration returns the generated JSON Schema as the parameter description
func (t *FunctionTool) Declaration() *Declaration {
	return &Declaration{
		Name:        t.def.Name,
		Description: t.def.Description,
		Parameters:  t.schemaMap,
	}
}

// Run validates args and invokes the handler with execCtx attached to ctx
func (t *FunctionTool) Run(ctx context.Context, args map[string]any, execCtx *ExecutionContext) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := validateParameters(t.def.Name, t.schema, args); err != nil {
		return nil, err
	}
	return t.def.Handler(ContextWithExecContext(ctx, execCtx), args)
}

var validParamTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	seen := make(map[string]bool, len(def.Parameters))
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if seen[param.Name] {
			return fmt.Errorf("duplicate parameter %s", param.Name)
		}
		seen[param.Name] = true
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validParamTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

// generateSchemaMap builds a JSON Schema object from tool parameters
func generateSchemaMap(def ToolDefinition) map[string]any {
	properties := make(map[string]any, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}
	return schemaMap
}

// validateParameters checks params against a compiled schema
func validateParameters(tool string, schema *gojsonschema.Schema, params map[string]any) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return &ValidationError{Tool: tool, Problems: []string{err.Error()}}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return &ValidationError{Tool: tool, Problems: problems}
	}
	return nil
}
