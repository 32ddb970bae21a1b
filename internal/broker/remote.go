package broker

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jmolinaso/voxbridge/internal/config"
	"github.com/jmolinaso/voxbridge/internal/fault"
)

// RemoteConfig describes one external MCP tool server.
type RemoteConfig struct {
	// Name registers the server under this tool name.
	Name string

	// Transport selects stdio or streamable-http.
	Transport config.Transport

	// Command is the executable plus arguments for stdio transport.
	Command string

	// URL is the endpoint for streamable-http transport.
	URL string

	// Env holds extra environment variables for stdio servers.
	Env map[string]string
}

// RemoteTool wraps an external MCP server behind the [Tool] interface so it
// registers and dispatches like a built-in service. Its command set is the
// server's tool catalog, discovered at start.
type RemoteTool struct {
	cfg    RemoteConfig
	client *mcpsdk.Client

	mu           sync.RWMutex
	session      *mcpsdk.ClientSession
	capabilities []string
}

var _ Tool = (*RemoteTool)(nil)

// NewRemoteTool builds an unconnected remote tool. Connection happens in
// [RemoteTool.Start].
func NewRemoteTool(cfg RemoteConfig) *RemoteTool {
	return &RemoteTool{
		cfg: cfg,
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "voxbridge", Version: "1.0.0"},
			nil,
		),
	}
}

func (t *RemoteTool) Name() string { return t.cfg.Name }

// Capabilities returns the server's discovered tool names. Empty before
// Start succeeds.
func (t *RemoteTool) Capabilities() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.capabilities...)
}

// Start connects the configured transport and imports the server's tool
// catalog as this tool's command set.
func (t *RemoteTool) Start(ctx context.Context) error {
	var transport mcpsdk.Transport
	switch t.cfg.Transport {
	case config.TransportStdio:
		parts := strings.Fields(t.cfg.Command)
		if len(parts) == 0 {
			return fault.Newf(fault.KindInvalidInput, t.cfg.Name, "stdio transport requires a command")
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		for k, v := range t.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case config.TransportStreamableHTTP:
		if t.cfg.URL == "" {
			return fault.Newf(fault.KindInvalidInput, t.cfg.Name, "streamable-http transport requires a url")
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: t.cfg.URL}
	default:
		return fault.Newf(fault.KindInvalidInput, t.cfg.Name, "unknown transport %q", t.cfg.Transport)
	}

	session, err := t.client.Connect(ctx, transport, nil)
	if err != nil {
		return fault.Wrap(fault.KindToolError, t.cfg.Name, "connect failed", err)
	}

	var names []string
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fault.Wrap(fault.KindToolError, t.cfg.Name, "tool listing failed", err)
		}
		names = append(names, tool.Name)
	}

	t.mu.Lock()
	if t.session != nil {
		_ = t.session.Close()
	}
	t.session = session
	t.capabilities = names
	t.mu.Unlock()
	return nil
}

// Shutdown closes the server session.
func (t *RemoteTool) Shutdown(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	err := t.session.Close()
	t.session = nil
	return err
}

// Ping checks the live session.
func (t *RemoteTool) Ping(ctx context.Context) error {
	t.mu.RLock()
	session := t.session
	t.mu.RUnlock()
	if session == nil {
		return fault.New(fault.KindToolStopped, t.cfg.Name, "not connected")
	}
	return session.Ping(ctx, nil)
}

// Execute calls the named server tool and flattens its text content.
func (t *RemoteTool) Execute(ctx context.Context, command string, params map[string]string) (map[string]any, error) {
	t.mu.RLock()
	session := t.session
	t.mu.RUnlock()
	if session == nil {
		return nil, fault.New(fault.KindToolStopped, t.cfg.Name, "not connected")
	}

	args := make(map[string]any, len(params))
	for k, v := range params {
		args[k] = v
	}
	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: command, Arguments: args})
	if err != nil {
		return nil, fault.Wrap(fault.KindToolError, t.cfg.Name, "call to "+command+" failed", err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return nil, fault.Newf(fault.KindToolError, t.cfg.Name, "%s: %s", command, sb.String())
	}
	return map[string]any{"content": sb.String(), "server": t.cfg.Name}, nil
}
