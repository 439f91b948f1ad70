package toolexecutor

import (
	"github.com/rs/zerolog/log"
)

// ToolPolicy defines which tools of an agent are exposed to the operator
type ToolPolicy struct {
	Allow []string `json:"allow" mapstructure:"allow"` // List of allowed tools (* for all)
	Deny  []string `json:"deny" mapstructure:"deny"`   // List of denied tools (overrides allow)
}

// IsToolAllowed checks if a tool is allowed by the policy
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	if tp == nil {
		// No policy means allow all
		return true
	}

	for _, denied := range tp.Deny {
		if denied == toolName || denied == "*" {
			return false
		}
	}

	for _, allowed := range tp.Allow {
		if allowed == toolName || allowed == "*" {
			return true
		}
	}

	return false
}

// Filter returns the tools the policy admits, in their original order
func (tp *ToolPolicy) Filter(tools []Tool) []Tool {
	if tp == nil {
		return tools
	}

	out := make([]Tool, 0, len(tools))
	for _, tool := range tools {
		if tp.IsToolAllowed(tool.Name()) {
			out = append(out, tool)
			continue
		}
		log.Debug().Str("tool", tool.Name()).Msg("Tool hidden by policy")
	}
	return out
}

// Warnings lists suspicious but legal policy configurations
func (tp *ToolPolicy) Warnings() []string {
	if tp == nil {
		return nil
	}

	var warnings []string
	if contains(tp.Allow, "*") && contains(tp.Deny, "*") {
		warnings = append(warnings, "policy has both allow and deny wildcards; deny overrides allow")
	}
	if len(tp.Allow) == 0 {
		warnings = append(warnings, "policy has empty allow list; all tools are hidden")
	}
	return warnings
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
