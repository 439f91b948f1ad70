package config

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"time"
)

// Config represents the main agentsim configuration
type Config struct {
	// Server is the caller-facing gateway
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Agents available for selection
	Agents []AgentConfig `json:"agents" mapstructure:"agents"`

	// Simulation behaviour
	Simulation SimulationConfig `json:"simulation" mapstructure:"simulation"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory for session records and exported traces
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// AgentConfig defines one selectable agent
type AgentConfig struct {
	Name        string            `json:"name" mapstructure:"name"`
	Description string            `json:"description" mapstructure:"description"`
	Instruction string            `json:"instruction" mapstructure:"instruction"`
	Model       string            `json:"model" mapstructure:"model"`
	Tools       ToolPolicyConfig  `json:"tools" mapstructure:"tools"`
	MCPServers  []MCPServerConfig `json:"mcp_servers" mapstructure:"mcp_servers"`
}

// ToolPolicyConfig defines which of an agent's tools are exposed
type ToolPolicyConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// MCPServerConfig describes how to reach an MCP server
type MCPServerConfig struct {
	ID        string            `json:"id" mapstructure:"id"`
	Transport string            `json:"transport" mapstructure:"transport"` // stdio, sse, http
	Command   string            `json:"command,omitempty" mapstructure:"command"`
	Args      []string          `json:"args,omitempty" mapstructure:"args"`
	Env       []string          `json:"env,omitempty" mapstructure:"env"`
	URL       string            `json:"url,omitempty" mapstructure:"url"`
	Headers   map[string]string `json:"headers,omitempty" mapstructure:"headers"`
}

// SimulationConfig holds session and export settings
type SimulationConfig struct {
	ToolTimeoutSeconds int    `json:"tool_timeout_seconds" mapstructure:"tool_timeout_seconds"` // 0 = no timeout
	ExportFormat       string `json:"export_format" mapstructure:"export_format"`               // json, yaml
	RetentionDays      int    `json:"retention_days" mapstructure:"retention_days"`
	CleanupSchedule    string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
	DemoAgent          bool   `json:"demo_agent" mapstructure:"demo_agent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Simulation: SimulationConfig{
			ExportFormat:    "json",
			RetentionDays:   30,
			CleanupSchedule: "0 3 * * *",
			DemoAgent:       true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Agents: []AgentConfig{},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}

// SessionsDir is where JSONL session records are written
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// TracesDir is where exported golden traces are written
func (c *Config) TracesDir() string {
	return filepath.Join(c.DataDir, "traces")
}

// TraceDBPath is the SQLite trace catalog
func (c *Config) TraceDBPath() string {
	return filepath.Join(c.DataDir, "traces.db")
}

// ToolTimeout returns the per-call timeout, zero when disabled
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Simulation.ToolTimeoutSeconds) * time.Second
}

// Retention returns how long session records and traces are kept
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Simulation.RetentionDays) * 24 * time.Hour
}
