package agent

import (
	"context"
	"fmt"

	"github.com/harun/agentsim/pkg/toolexecutor"
	"github.com/rs/zerolog/log"
)

// Provider resolves the invocable tools of an agent
type Provider interface {
	Tools(ctx context.Context, a *Agent) ([]toolexecutor.Tool, error)
}

// ToolsetProvider collects tools from an agent's toolsets in order and
// applies its tool policy
type ToolsetProvider struct{}

// NewToolsetProvider creates a toolset-backed provider
func NewToolsetProvider() *ToolsetProvider {
	return &ToolsetProvider{}
}

// Tools returns the agent's tools in toolset order
func (p *ToolsetProvider) Tools(ctx context.Context, a *Agent) ([]toolexecutor.Tool, error) {
	if a == nil {
		return nil, fmt.Errorf("agent cannot be nil")
	}

	var tools []toolexecutor.Tool
	for i, ts := range a.Toolsets {
		got, err := ts.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve toolset %d of agent %s: %w", i, a.Name, err)
		}
		tools = append(tools, got...)
	}

	if a.Policy != nil {
		for _, w := range a.Policy.Warnings() {
			log.Warn().Str("agent", a.Name).Msg(w)
		}
		tools = a.Policy.Filter(tools)
	}

	if err := toolexecutor.CheckUniqueNames(tools); err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.Name, err)
	}

	log.Debug().
		Str("agent", a.Name).
		Int("tools", len(tools)).
		Msg("Resolved agent tools")

	return tools, nil
}
