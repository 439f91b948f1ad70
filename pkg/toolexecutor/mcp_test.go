package toolexecutor

import (
	"context"
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMCPServer(t *testing.T) *httptest.Server {
	t.Helper()

	s := mcpserver.NewMCPServer("calc-tools", "0.1.0", mcpserver.WithToolCapabilities(true))
	s.AddTool(
		mcplib.NewTool("multiply",
			mcplib.WithDescription("Multiplies two numbers"),
			mcplib.WithNumber("a", mcplib.Description("first factor"), mcplib.Required()),
			mcplib.WithNumber("b", mcplib.Description("second factor"), mcplib.Required()),
		),
		func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			a := request.GetFloat("a", 0)
			b := request.GetFloat("b", 0)
			return mcplib.NewToolResultText(`{"product":` + strconv.FormatFloat(a*b, 'f', -1, 64) + `}`), nil
		},
	)
	s.AddTool(
		mcplib.NewTool("fail",
			mcplib.WithDescription("Always fails"),
		),
		func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			return mcplib.NewToolResultError("nope"), nil
		},
	)

	srv := httptest.NewServer(mcpserver.NewStreamableHTTPServer(s))
	t.Cleanup(srv.Close)
	return srv
}

func TestMCPServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     MCPServerConfig
		wantErr bool
	}{
		{name: "stdio", cfg: MCPServerConfig{ID: "fs", Transport: MCPTransportStdio, Command: "mcp-fs"}},
		{name: "http", cfg: MCPServerConfig{ID: "calc", Transport: MCPTransportHTTP, URL: "http://localhost/mcp"}},
		{name: "sse", cfg: MCPServerConfig{ID: "calc", Transport: MCPTransportSSE, URL: "http://localhost/sse"}},
		{name: "missing id", cfg: MCPServerConfig{Transport: MCPTransportStdio, Command: "x"}, wantErr: true},
		{name: "stdio without command", cfg: MCPServerConfig{ID: "fs", Transport: MCPTransportStdio}, wantErr: true},
		{name: "http without url", cfg: MCPServerConfig{ID: "calc", Transport: MCPTransportHTTP}, wantErr: true},
		{name: "unknown transport", cfg: MCPServerConfig{ID: "calc", Transport: "carrier-pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMCPToolset_ListAndCall(t *testing.T) {
	srv := newTestMCPServer(t)
	ctx := context.Background()

	ts := NewMCPToolset(MCPServerConfig{ID: "calc", Transport: MCPTransportHTTP, URL: srv.URL + "/mcp"})
	defer func() { _ = ts.Close() }()

	tools, err := ts.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)

	multiply, ok := FindTool(tools, "multiply")
	require.True(t, ok)
	assert.Equal(t, "Multiplies two numbers", multiply.Description())

	decl := multiply.Declaration()
	require.NotNil(t, decl)
	props, ok := decl.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")

	result, err := multiply.Run(ctx, map[string]any{"a": 6.0, "b": 7.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"product": 42.0}, result)
}

func TestMCPToolset_ToolErrors(t *testing.T) {
	srv := newTestMCPServer(t)
	ctx := context.Background()

	ts := NewMCPToolset(MCPServerConfig{ID: "calc", Transport: MCPTransportHTTP, URL: srv.URL + "/mcp"})
	defer func() { _ = ts.Close() }()

	tools, err := ts.Tools(ctx)
	require.NoError(t, err)

	fail, ok := FindTool(tools, "fail")
	require.True(t, ok)

	_, err = fail.Run(ctx, nil, nil)
	require.Error(t, err)
	var toolErr *MCPToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "nope", toolErr.Message)
	assert.Equal(t, "MCPToolError", ErrorTypeName(err))

	multiply, _ := FindTool(tools, "multiply")
	_, err = multiply.Run(ctx, map[string]any{"a": 1.0}, nil)
	assert.Equal(t, "ValidationError", ErrorTypeName(err))
}

func TestMCPToolset_EngineIntegration(t *testing.T) {
	srv := newTestMCPServer(t)
	ctx := context.Background()

	ts := NewMCPToolset(MCPServerConfig{ID: "calc", Transport: MCPTransportHTTP, URL: srv.URL + "/mcp"})
	defer func() { _ = ts.Close() }()

	tools, err := ts.Tools(ctx)
	require.NoError(t, err)
	multiply, _ := FindTool(tools, "multiply")

	result := NewEngine().Execute(ctx, multiply, map[string]any{"a": 3.0, "b": 4.0}, testSession)
	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, map[string]any{"product": 12.0}, result.Result)
}

func TestConvertMCPResult(t *testing.T) {
	text := &mcplib.CallToolResult{Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: "plain words"}}}
	assert.Equal(t, "plain words", convertMCPResult(text))

	jsonText := &mcplib.CallToolResult{Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: "[1,2]"}}}
	assert.Equal(t, []any{1.0, 2.0}, convertMCPResult(jsonText))

	structured := &mcplib.CallToolResult{StructuredContent: map[string]any{"ok": true}}
	assert.Equal(t, map[string]any{"ok": true}, convertMCPResult(structured))

	assert.Nil(t, convertMCPResult(&mcplib.CallToolResult{}))
}
