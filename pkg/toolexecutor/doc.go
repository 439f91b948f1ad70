// Package toolexecutor defines invocable tools and runs them one at a time.
//
// Invariants:
// - The Engine tracks at most one in-progress invocation.
// - Execute always returns an ExecutionResult; tool failures and panics are
//   converted into values, never propagated.
// - Cancellation is cooperative: the tool's context is cancelled and the
//   call is classified as cancelled unless it completed first.
// - Function tool arguments are schema-validated before the handler runs.
//
// Usage:
//
//	add, _ := toolexecutor.NewFunctionTool(toolexecutor.ToolDefinition{
//		Name:        "add",
//		Description: "Adds two numbers",
//		Parameters: []toolexecutor.ToolParameter{
//			{Name: "a", Type: "number", Description: "first", Required: true},
//			{Name: "b", Type: "number", Description: "second", Required: true},
//		},
//		Handler: func(ctx context.Context, params map[string]any) (any, error) {
//			return params["a"].(float64) + params["b"].(float64), nil
//		},
//	})
//	engine := toolexecutor.NewEngine()
//	result := engine.Execute(ctx, add, map[string]any{"a": 2.0, "b": 3.0}, sess)
//	_ = result.Success
package toolexecutor
