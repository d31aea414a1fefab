package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// mcpCaller is the part of the mcp-go client the transport needs.
type mcpCaller interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPTransport talks to workers over MCP streamable HTTP. The request method is the
// tool name and the params are its arguments. One initialized session is kept per
// worker and dropped after any call error so the next call reconnects.
type MCPTransport struct {
	ClientName    string
	ClientVersion string
	// Options are passed to every streamable HTTP client.
	Options []transport.StreamableHTTPCOption

	mu       sync.Mutex
	sessions map[string]*mcpSession
}

// mcpSession is a cached session. ready is closed once the handshake finished;
// caller and err are set before that and never change afterwards.
type mcpSession struct {
	ready  chan struct{}
	caller mcpCaller
	err    error
}

func (s *mcpSession) established() (mcpCaller, bool) {
	select {
	case <-s.ready:
		return s.caller, s.caller != nil
	default:
		return nil, false
	}
}

// NewMCPTransport creates an MCPTransport identifying itself with version.
func NewMCPTransport(version string) *MCPTransport {
	return &MCPTransport{
		ClientName:    "switchyard",
		ClientVersion: version,
		sessions:      make(map[string]*mcpSession),
	}
}

// session returns the worker's session, connecting first if needed. The handshake
// runs outside t.mu, so a slow worker only holds up callers of that same worker.
func (t *MCPTransport) session(ctx context.Context, desc api.ServerDescriptor) (mcpCaller, error) {
	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*mcpSession)
	}
	if s, ok := t.sessions[desc.Name]; ok {
		t.mu.Unlock()
		select {
		case <-s.ready:
			return s.caller, s.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s := &mcpSession{ready: make(chan struct{})}
	t.sessions[desc.Name] = s
	t.mu.Unlock()

	caller, err := t.connect(ctx, desc)

	t.mu.Lock()
	current := t.sessions[desc.Name] == s
	if err != nil && current {
		delete(t.sessions, desc.Name)
	}
	t.mu.Unlock()

	if err == nil && !current {
		// Forgotten or closed while connecting.
		_ = caller.Close()
		err = fmt.Errorf("session with %s was closed while connecting", desc.Name)
		caller = nil
	}
	s.caller, s.err = caller, err
	close(s.ready)
	return caller, err
}

func (t *MCPTransport) connect(ctx context.Context, desc api.ServerDescriptor) (mcpCaller, error) {
	url := WorkerURL(desc)
	logging.Debug("MCPTransport", "Connecting to %s at %s", desc.Name, url)
	mcpClient, err := client.NewStreamableHttpClient(url, t.Options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: t.ClientName, Version: t.ClientVersion}
	initResult, err := mcpClient.Initialize(ctx, initReq)
	if err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}
	logging.Debug("MCPTransport", "Session with %s established (server %s %s)", desc.Name, initResult.ServerInfo.Name, initResult.ServerInfo.Version)
	return mcpClient, nil
}

// Forget closes and drops the cached session for a worker. A handshake still in
// progress is abandoned and its client closed when it completes.
func (t *MCPTransport) Forget(name string) {
	t.mu.Lock()
	s, ok := t.sessions[name]
	delete(t.sessions, name)
	t.mu.Unlock()
	if !ok {
		return
	}
	if caller, ok := s.established(); ok {
		if err := caller.Close(); err != nil {
			logging.Debug("MCPTransport", "Closing session with %s: %v", name, err)
		}
	}
}

// Send implements Transport.
func (t *MCPTransport) Send(ctx context.Context, desc api.ServerDescriptor, req api.Request) (*api.Response, error) {
	s, err := t.session(ctx, desc)
	if err != nil {
		return nil, err
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = req.Method
	callReq.Params.Arguments = req.Params

	result, err := s.CallTool(ctx, callReq)
	if err != nil {
		t.Forget(desc.Name)
		return nil, fmt.Errorf("failed to call tool %s: %w", req.Method, err)
	}

	resp := convertResult(result)
	if resp.IsError {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

// Close closes every cached session.
func (t *MCPTransport) Close() error {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*mcpSession)
	t.mu.Unlock()

	var errs []error
	for name, s := range sessions {
		caller, ok := s.established()
		if !ok {
			continue
		}
		if err := caller.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// convertResult maps a tool result onto the wire response. Text items become plain
// strings; everything else is passed through as is.
func convertResult(result *mcp.CallToolResult) *api.Response {
	resp := &api.Response{}
	if result == nil {
		return resp
	}

	var texts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			resp.Content = append(resp.Content, c.Text)
			texts = append(texts, c.Text)
		case *mcp.TextContent:
			resp.Content = append(resp.Content, c.Text)
			texts = append(texts, c.Text)
		default:
			resp.Content = append(resp.Content, content)
		}
	}
	if result.StructuredContent != nil {
		resp.Content = append(resp.Content, result.StructuredContent)
	}

	if result.IsError {
		resp.IsError = true
		resp.Error = strings.Join(texts, "\n")
		if resp.Error == "" {
			resp.Error = "tool reported an error"
		}
	}
	return resp
}
