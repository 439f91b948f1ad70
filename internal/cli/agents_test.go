package cli

import (
	"testing"

	"github.com/harun/agentsim/internal/config"
	"github.com/harun/agentsim/pkg/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentsCommand(t *testing.T) {
	path, _ := writeConfig(t, func(c *config.Config) {
		c.Simulation.DemoAgent = false
		c.Agents = []config.AgentConfig{{
			Name:        "weather",
			Description: "Reports the weather.",
			Model:       "gemini-2.0-flash",
			MCPServers: []config.MCPServerConfig{
				{ID: "wx", Transport: "http", URL: "http://127.0.0.1:1/mcp"},
			},
		}}
	})

	t.Run("configured agents", func(t *testing.T) {
		out, err := execute(t, "agents", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "weather")
		assert.Contains(t, out, "gemini-2.0-flash")
		assert.Contains(t, out, "Reports the weather.")
		assert.NotContains(t, out, agent.CalculatorAgentName)
	})

	t.Run("demo agent with tools", func(t *testing.T) {
		emptyPath, _ := writeConfig(t, nil)
		out, err := execute(t, "agents", "--config", emptyPath, "--demo", "--tools")
		require.NoError(t, err)
		assert.Contains(t, out, agent.CalculatorAgentName)
		assert.Contains(t, out, "- add: Adds two numbers.")
	})

	t.Run("no agents", func(t *testing.T) {
		emptyPath, _ := writeConfig(t, func(c *config.Config) { c.Simulation.DemoAgent = false })
		out, err := execute(t, "agents", "--config", emptyPath)
		require.NoError(t, err)
		assert.Contains(t, out, "No agents configured")
	})
}
