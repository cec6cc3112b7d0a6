// Package mcpbackend adapts a remote MCP server into a tool backend. The
// caller's identity travels on X-Forwarded-* headers so the remote side can
// enforce its own row-level filtering; the gateway never forwards the bearer
// credential itself.
package mcpbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tamshai/gateway/internal/ctxkey"
	"github.com/tamshai/gateway/internal/domain/identity"
	"github.com/tamshai/gateway/internal/port/outbound"
)

// inspectTool is the well-known remote tool used to snapshot a write target.
// Remote servers that host state-gated writes are expected to expose it; it
// takes {"tool": <name>, "params": <invocation params>} and returns
// {"exists": bool, "status": string, "submitted_by": string, ...preview}.
const inspectTool = "inspect_target"

// Identity forwarding headers read by the remote server.
const (
	HeaderUser       = "X-Forwarded-User"
	HeaderRoles      = "X-Forwarded-Roles"
	HeaderDepartment = "X-Forwarded-Department"
	HeaderEmail      = "X-Forwarded-Email"
)

// Backend proxies one domain's tools to a remote MCP server over the
// streamable HTTP transport, reconnecting once when the session drops.
type Backend struct {
	domain string
	client *mcp.Client

	mu        sync.Mutex
	transport mcp.Transport
	session   *mcp.ClientSession
}

// Compile-time check that Backend implements outbound.ToolBackend.
var _ outbound.ToolBackend = (*Backend)(nil)

// New builds a backend for the remote MCP server at endpoint.
func New(domain, endpoint string) *Backend {
	return &Backend{
		domain: domain,
		client: mcp.NewClient(&mcp.Implementation{Name: "tamshai-gateway", Version: "1.0.0"}, nil),
		transport: &mcp.StreamableClientTransport{
			Endpoint: endpoint,
			HTTPClient: &http.Client{
				Timeout:   30 * time.Second,
				Transport: &identityTransport{parent: http.DefaultTransport},
			},
		},
	}
}

// Domain returns the backend's domain name.
func (b *Backend) Domain() string { return b.domain }

// Close tears down the MCP session if one is open.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	err := b.session.Close()
	b.session = nil
	return err
}

// Read calls a READ tool on the remote server.
func (b *Backend) Read(ctx context.Context, uc identity.UserContext, toolName string, params map[string]any, limit int, cursor string) (*outbound.ReadResult, error) {
	args := make(map[string]any, len(params)+2)
	for k, v := range params {
		args[k] = v
	}
	args["limit"] = limit + 1
	if cursor != "" {
		args["cursor"] = cursor
	}

	res, err := b.callTool(ctx, uc, toolName, args)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(res)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", b.domain, toolName, err)
	}
	return &outbound.ReadResult{Rows: rows}, nil
}

// Inspect snapshots a write's target via the remote inspect_target tool.
func (b *Backend) Inspect(ctx context.Context, uc identity.UserContext, toolName string, params map[string]any) (*outbound.TargetState, error) {
	res, err := b.callTool(ctx, uc, inspectTool, map[string]any{
		"tool":   toolName,
		"params": params,
	})
	if err != nil {
		return nil, err
	}
	m, err := decodeObject(res)
	if err != nil {
		return nil, fmt.Errorf("%s/%s inspect: %w", b.domain, toolName, err)
	}

	state := &outbound.TargetState{Exists: true, Preview: make(map[string]any)}
	for k, v := range m {
		switch k {
		case "exists":
			exists, _ := v.(bool)
			if !exists {
				return nil, outbound.ErrRecordNotFound
			}
		case "status":
			state.Status = fmt.Sprintf("%v", v)
		case "submitted_by":
			state.SubmitterID = fmt.Sprintf("%v", v)
		default:
			state.Preview[k] = v
		}
	}
	return state, nil
}

// Write calls a WRITE tool on the remote server.
func (b *Backend) Write(ctx context.Context, uc identity.UserContext, toolName string, params map[string]any) (*outbound.WriteResult, error) {
	res, err := b.callTool(ctx, uc, toolName, params)
	if err != nil {
		return nil, err
	}
	data, err := decodeObject(res)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", b.domain, toolName, err)
	}
	return &outbound.WriteResult{Data: data}, nil
}

// callTool runs one tool call, establishing the session lazily and retrying
// once on a closed connection.
func (b *Backend) callTool(ctx context.Context, uc identity.UserContext, name string, args map[string]any) (*mcp.CallToolResult, error) {
	// The identity rides the request context so the HTTP transport can
	// attach the forwarding headers.
	ctx = context.WithValue(ctx, ctxkey.UserContextKey{}, uc)

	session, err := b.getSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", outbound.ErrBackendUnavailable, b.domain, err)
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if errors.Is(err, mcp.ErrConnectionClosed) {
		session, err = b.refreshSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", outbound.ErrBackendUnavailable, b.domain, err)
		}
		res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", outbound.ErrBackendUnavailable, b.domain, name, err)
	}
	if res.IsError {
		return nil, fmt.Errorf("%s/%s: %s", b.domain, name, errorText(res))
	}
	return res, nil
}

func (b *Backend) getSession(ctx context.Context) (*mcp.ClientSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return b.session, nil
	}
	session, err := b.client.Connect(ctx, b.transport, nil)
	if err != nil {
		return nil, err
	}
	b.session = session
	return session, nil
}

func (b *Backend) refreshSession(ctx context.Context) (*mcp.ClientSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		// Another goroutine may have already reconnected.
		if err := b.session.Ping(ctx, &mcp.PingParams{}); err == nil {
			return b.session, nil
		}
		_ = b.session.Close()
		b.session = nil
	}
	session, err := b.client.Connect(ctx, b.transport, nil)
	if err != nil {
		return nil, err
	}
	b.session = session
	return session, nil
}

// identityTransport copies the caller's identity from the request context
// onto the forwarding headers of every outbound MCP request.
type identityTransport struct {
	parent http.RoundTripper
}

func (t *identityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	uc, ok := req.Context().Value(ctxkey.UserContextKey{}).(identity.UserContext)
	if ok {
		req = req.Clone(req.Context())
		req.Header.Set(HeaderUser, uc.Subject)
		req.Header.Set(HeaderRoles, uc.RoleList())
		req.Header.Set(HeaderDepartment, uc.Department)
		req.Header.Set(HeaderEmail, uc.Email)
	}
	return t.parent.RoundTrip(req)
}

// decodeRows extracts a row list from a tool result. Structured content wins;
// otherwise the first text block is decoded as a JSON array, or as an object
// holding a "rows" array.
func decodeRows(res *mcp.CallToolResult) ([]map[string]any, error) {
	if res.StructuredContent != nil {
		return rowsFromValue(res.StructuredContent)
	}
	for _, c := range res.Content {
		text, ok := c.(*mcp.TextContent)
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(text.Text), &v); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
		return rowsFromValue(v)
	}
	return nil, nil
}

func rowsFromValue(v any) ([]map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		inner, ok := m["rows"]
		if !ok {
			return nil, fmt.Errorf("decode rows: object result without rows field")
		}
		v = inner
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("decode rows: unexpected result shape %T", v)
	}
	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode rows: row is %T, want object", item)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// decodeObject extracts a single object from a tool result.
func decodeObject(res *mcp.CallToolResult) (map[string]any, error) {
	if m, ok := res.StructuredContent.(map[string]any); ok {
		return m, nil
	}
	for _, c := range res.Content {
		text, ok := c.(*mcp.TextContent)
		if !ok {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(text.Text), &m); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		return m, nil
	}
	return map[string]any{}, nil
}

func errorText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if text, ok := c.(*mcp.TextContent); ok && text.Text != "" {
			return text.Text
		}
	}
	return "remote tool reported an error"
}
