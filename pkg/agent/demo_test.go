package agent

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/harun/agentsim/pkg/toolexecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatorAgent(t *testing.T) {
	ctx := context.Background()
	calc := CalculatorAgent()

	assert.Equal(t, CalculatorAgentName, calc.Name)
	assert.NotEmpty(t, calc.Instruction)

	tools, err := NewToolsetProvider().Tools(ctx, calc)
	require.NoError(t, err)
	require.Len(t, tools, 1)

	add := tools[0]
	assert.Equal(t, "add", add.Name())
	require.NotNil(t, add.Declaration())

	tests := []struct {
		name string
		args map[string]any
		want any
	}{
		{"integers", map[string]any{"a": 2, "b": 3}, int64(5)},
		{"json numbers", map[string]any{"a": float64(2), "b": float64(3)}, int64(5)},
		{"fractions", map[string]any{"a": 0.5, "b": 0.25}, 0.75},
		{"negative", map[string]any{"a": -4, "b": 1}, int64(-3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := add.Run(ctx, tt.args, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing argument", func(t *testing.T) {
		_, err := add.Run(ctx, map[string]any{"a": 1}, nil)
		assert.Error(t, err)
	})
}

func TestDemoMCPServer(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(NewDemoMCPServer())
	defer srv.Close()

	ts := toolexecutor.NewMCPToolset(toolexecutor.MCPServerConfig{
		ID:        "demo",
		Transport: toolexecutor.MCPTransportHTTP,
		URL:       srv.URL + "/mcp",
	})
	calc := CalculatorAgent(ts)
	defer func() { _ = calc.Close() }()

	tools, err := NewToolsetProvider().Tools(ctx, calc)
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "multiply"}, toolNames(tools))

	multiply, ok := toolexecutor.FindTool(tools, "multiply")
	require.True(t, ok)

	got, err := multiply.Run(ctx, map[string]any{"a": 6, "b": 7}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(42), got)
}
