package agent

import (
	"errors"
	"fmt"

	"github.com/harun/agentsim/internal/config"
	"github.com/harun/agentsim/pkg/toolexecutor"
)

// Agent is a selectable agent definition
type Agent struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Instruction string                   `json:"instruction,omitempty"`
	Model       string                   `json:"model,omitempty"`
	Policy      *toolexecutor.ToolPolicy `json:"tool_policy,omitempty"`
	Toolsets    []toolexecutor.Toolset   `json:"-"`
}

// Close releases every toolset the agent owns
func (a *Agent) Close() error {
	var errs []error
	for _, ts := range a.Toolsets {
		if err := ts.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds agents from configuration. MCP servers become lazily
// connected toolsets; nothing is dialled here.
func FromConfig(cfgs []config.AgentConfig) ([]*Agent, error) {
	agents := make([]*Agent, 0, len(cfgs))
	for _, c := range cfgs {
		a := &Agent{
			Name:        c.Name,
			Description: c.Description,
			Instruction: c.Instruction,
			Model:       c.Model,
		}
		if len(c.Tools.Allow) > 0 || len(c.Tools.Deny) > 0 {
			a.Policy = &toolexecutor.ToolPolicy{
				Allow: c.Tools.Allow,
				Deny:  c.Tools.Deny,
			}
		}

		for _, s := range c.MCPServers {
			serverCfg := toolexecutor.MCPServerConfig{
				ID:        s.ID,
				Transport: s.Transport,
				Command:   s.Command,
				Args:      s.Args,
				Env:       s.Env,
				URL:       s.URL,
				Headers:   s.Headers,
			}
			if err := serverCfg.Validate(); err != nil {
				return nil, fmt.Errorf("agent %s: %w", c.Name, err)
			}
			a.Toolsets = append(a.Toolsets, toolexecutor.NewMCPToolset(serverCfg))
		}

		agents = append(agents, a)
	}
	return agents, nil
}
