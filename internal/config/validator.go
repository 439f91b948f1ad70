package config

import (
	"fmt"
	"regexp"
	"strings"
)

var agentNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateExportFormat validates the golden trace file format
func (v *Validator) ValidateExportFormat(format string) error {
	if format == "" {
		return nil // Use default
	}

	validFormats := []string{"json", "yaml"}
	for _, valid := range validFormats {
		if format == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid export format: %s (must be one of: %s)", format, strings.Join(validFormats, ", "))
}

// ValidatePort validates a TCP port; 0 asks for any free port
func (v *Validator) ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("server port must be between 0 and 65535, got %d", port)
	}
	return nil
}

// ValidateAgentName validates an agent identifier
func (v *Validator) ValidateAgentName(name string) error {
	if name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}
	if !agentNamePattern.MatchString(name) {
		return fmt.Errorf("invalid agent name: %s (letters, digits, '_' and '-', starting with a letter)", name)
	}
	return nil
}

// ValidateMCPServer validates one MCP server entry
func (v *Validator) ValidateMCPServer(server MCPServerConfig) error {
	if server.ID == "" {
		return fmt.Errorf("mcp server id cannot be empty")
	}

	switch server.Transport {
	case "stdio":
		if server.Command == "" {
			return fmt.Errorf("mcp server %s: stdio transport requires command", server.ID)
		}
	case "sse", "http":
		if server.URL == "" {
			return fmt.Errorf("mcp server %s: %s transport requires url", server.ID, server.Transport)
		}
	default:
		return fmt.Errorf("mcp server %s: invalid transport %q (must be one of: stdio, sse, http)", server.ID, server.Transport)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}
	if cfg.Server.Host == "" {
		errors = append(errors, fmt.Errorf("server host cannot be empty"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size must be >= 0"))
	}
	if cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging.max_age must be >= 0"))
	}

	if err := v.ValidateExportFormat(cfg.Simulation.ExportFormat); err != nil {
		errors = append(errors, err)
	}
	if cfg.Simulation.ToolTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("simulation.tool_timeout_seconds must be >= 0"))
	}
	if cfg.Simulation.RetentionDays < 0 {
		errors = append(errors, fmt.Errorf("simulation.retention_days must be >= 0"))
	}

	seen := make(map[string]bool)
	for i, agent := range cfg.Agents {
		if err := v.ValidateAgentName(agent.Name); err != nil {
			errors = append(errors, fmt.Errorf("agent %d: %w", i, err))
			continue
		}
		if seen[agent.Name] {
			errors = append(errors, fmt.Errorf("duplicate agent name: %s", agent.Name))
		}
		seen[agent.Name] = true

		serverIDs := make(map[string]bool)
		for _, server := range agent.MCPServers {
			if err := v.ValidateMCPServer(server); err != nil {
				errors = append(errors, fmt.Errorf("agent %s: %w", agent.Name, err))
				continue
			}
			if serverIDs[server.ID] {
				errors = append(errors, fmt.Errorf("agent %s: duplicate mcp server id: %s", agent.Name, server.ID))
			}
			serverIDs[server.ID] = true
		}
	}

	return errors
}
