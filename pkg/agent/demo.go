package agent

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/harun/agentsim/pkg/toolexecutor"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// CalculatorAgentName is the name of the bundled demo agent
const CalculatorAgentName = "calculator_agent"

// CalculatorAgent returns the demo agent with a single add function tool.
// Extra toolsets (for example the demo MCP server) are appended after it.
func CalculatorAgent(extra ...toolexecutor.Toolset) *Agent {
	add := toolexecutor.MustFunctionTool(toolexecutor.ToolDefinition{
		Name:        "add",
		Description: "Adds two numbers.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "a", Type: "number", Description: "first addend", Required: true},
			{Name: "b", Type: "number", Description: "second addend", Required: true},
		},
		Handler: func(_ context.Context, params map[string]any) (any, error) {
			a, err := number(params, "a")
			if err != nil {
				return nil, err
			}
			b, err := number(params, "b")
			if err != nil {
				return nil, err
			}
			return integral(a + b), nil
		},
	})

	return &Agent{
		Name:        CalculatorAgentName,
		Description: "A helpful assistant for performing mathematical calculations.",
		Instruction: "You are an expert mathematician.\n\n" +
			"Use the available tools to perform requested calculations accurately and efficiently.",
		Model:    "demo",
		Toolsets: append([]toolexecutor.Toolset{toolexecutor.NewStaticToolset(add)}, extra...),
	}
}

// NewDemoMCPServer returns a streamable HTTP MCP handler exposing multiply
func NewDemoMCPServer() http.Handler {
	s := mcpserver.NewMCPServer("agentsim-demo", "0.1.0", mcpserver.WithToolCapabilities(true))
	s.AddTool(
		mcplib.NewTool("multiply",
			mcplib.WithDescription("Multiplies two numbers."),
			mcplib.WithNumber("a", mcplib.Description("first factor"), mcplib.Required()),
			mcplib.WithNumber("b", mcplib.Description("second factor"), mcplib.Required()),
		),
		func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			a, err := request.RequireFloat("a")
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			b, err := request.RequireFloat("b")
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			return mcplib.NewToolResultText(fmt.Sprint(integral(a * b))), nil
		},
	)
	return mcpserver.NewStreamableHTTPServer(s)
}

func number(params map[string]any, key string) (float64, error) {
	switch v := params[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, params[key])
	}
}

// integral reports whole numbers as int64 so traces read "5", not "5.0"
func integral(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}
