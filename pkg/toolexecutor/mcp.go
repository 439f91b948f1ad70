package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// MCP transports
const (
	MCPTransportStdio = "stdio"
	MCPTransportSSE   = "sse"
	MCPTransportHTTP  = "http"
)

// MCPServerConfig describes how to reach one MCP server
type MCPServerConfig struct {
	ID        string            `json:"id" mapstructure:"id"`
	Transport string            `json:"transport" mapstructure:"transport"`
	Command   string            `json:"command,omitempty" mapstructure:"command"`
	Args      []string          `json:"args,omitempty" mapstructure:"args"`
	Env       []string          `json:"env,omitempty" mapstructure:"env"`
	URL       string            `json:"url,omitempty" mapstructure:"url"`
	Headers   map[string]string `json:"headers,omitempty" mapstructure:"headers"`
}

// Validate checks that the transport has what it needs
func (c MCPServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("mcp server id cannot be empty")
	}
	switch c.Transport {
	case MCPTransportStdio:
		if c.Command == "" {
			return fmt.Errorf("mcp server %s: stdio transport requires a command", c.ID)
		}
	case MCPTransportSSE, MCPTransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("mcp server %s: %s transport requires a url", c.ID, c.Transport)
		}
	default:
		return fmt.Errorf("mcp server %s: unknown transport %q", c.ID, c.Transport)
	}
	return nil
}

// MCPToolError is a tool-level failure reported by an MCP server
type MCPToolError struct {
	Server  string
	Tool    string
	Message string
}

func (e *MCPToolError) Error() string {
	return fmt.Sprintf("mcp tool %s/%s failed: %s", e.Server, e.Tool, e.Message)
}

// ErrorType names the failure category recorded in history
func (e *MCPToolError) ErrorType() string {
	return "MCPToolError"
}

// MCPToolset discovers tools from an MCP server. The connection is opened
// lazily on the first Tools call and reused for every invocation.
type MCPToolset struct {
	cfg MCPServerConfig

	mu     sync.Mutex
	client *mcpclient.Client
}

// NewMCPToolset creates a toolset for the configured server
func NewMCPToolset(cfg MCPServerConfig) *MCPToolset {
	return &MCPToolset{cfg: cfg}
}

// ID returns the configured server id
func (s *MCPToolset) ID() string {
	return s.cfg.ID
}

func (s *MCPToolset) connect(ctx context.Context) (*mcpclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		c   *mcpclient.Client
		err error
	)
	switch s.cfg.Transport {
	case MCPTransportStdio:
		// stdio clients start their subprocess on construction
		c, err = mcpclient.NewStdioMCPClient(s.cfg.Command, s.cfg.Env, s.cfg.Args...)
	case MCPTransportSSE:
		c, err = mcpclient.NewSSEMCPClient(s.cfg.URL, transport.WithHeaders(s.cfg.Headers))
		if err == nil {
			// the event stream outlives the request that opened it
			err = c.Start(context.WithoutCancel(ctx))
		}
	case MCPTransportHTTP:
		c, err = mcpclient.NewStreamableHttpClient(s.cfg.URL, transport.WithHTTPHeaders(s.cfg.Headers))
		if err == nil {
			err = c.Start(context.WithoutCancel(ctx))
		}
	}
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, fmt.Errorf("failed to connect to mcp server %s: %w", s.cfg.ID, err)
	}

	_, err = c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ProtocolVersion: mcplib.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcplib.Implementation{Name: "agentsim", Version: "1.0.0"},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize mcp server %s: %w", s.cfg.ID, err)
	}

	log.Info().
		Str("server_id", s.cfg.ID).
		Str("transport", s.cfg.Transport).
		Msg("Connected to MCP server")

	s.client = c
	return c, nil
}

// Tools lists the server's tools
func (s *MCPToolset) Tools(ctx context.Context) ([]Tool, error) {
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools on mcp server %s: %w", s.cfg.ID, err)
	}

	tools := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		tool, err := newMCPTool(s, t)
		if err != nil {
			log.Warn().
				Str("server_id", s.cfg.ID).
				Str("tool", t.Name).
				Err(err).
				Msg("Skipping MCP tool with unusable schema")
			continue
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// Close shuts the connection down
func (s *MCPToolset) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *MCPToolset) call(ctx context.Context, name string, args map[string]any) (*mcplib.CallToolResult, error) {
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	return c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
}

// MCPTool is a Tool proxied to an MCP server
type MCPTool struct {
	toolset     *MCPToolset
	name        string
	description string
	parameters  map[string]any
	schema      *gojsonschema.Schema
}

func newMCPTool(toolset *MCPToolset, t mcplib.Tool) (*MCPTool, error) {
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, err
	}
	if len(t.RawInputSchema) > 0 {
		raw = t.RawInputSchema
	}

	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}

	return &MCPTool{
		toolset:     toolset,
		name:        t.Name,
		description: t.Description,
		parameters:  params,
		schema:      schema,
	}, nil
}

func (t *MCPTool) Name() string        { return t.name }
func (t *MCPTool) Description() string { return t.description }

func (t *MCPTool) Declaration() *Declaration {
	return &Declaration{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

// Run validates args against the server's input schema and calls the tool
func (t *MCPTool) Run(ctx context.Context, args map[string]any, _ *ExecutionContext) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := validateParameters(t.name, t.schema, args); err != nil {
		return nil, err
	}

	res, err := t.toolset.call(ctx, t.name, args)
	if err != nil {
		return nil, err
	}
	if res.IsError {
		return nil, &MCPToolError{
			Server:  t.toolset.ID(),
			Tool:    t.name,
			Message: contentText(res.Content),
		}
	}
	return convertMCPResult(res), nil
}

// convertMCPResult prefers structured content, then decodes a single text
// block as JSON when possible.
func convertMCPResult(res *mcplib.CallToolResult) any {
	if res.StructuredContent != nil {
		return res.StructuredContent
	}

	values := make([]any, 0, len(res.Content))
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcplib.TextContent:
			values = append(values, decodeText(v.Text))
		case mcplib.ImageContent:
			values = append(values, map[string]any{"type": "image", "mime_type": v.MIMEType})
		default:
			values = append(values, fmt.Sprintf("%v", v))
		}
	}

	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0]
	default:
		return values
	}
}

func decodeText(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return text
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return text
	}
	return v
}

func contentText(contents []mcplib.Content) string {
	parts := make([]string, 0, len(contents))
	for _, c := range contents {
		if tc, ok := c.(mcplib.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
