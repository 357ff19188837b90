// Package connector adapts one upstream MCP server behind a single
// tagged-variant type, supporting stdio, sse, streamable-http, and openapi
// upstream kinds.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/logging"
	"github.com/mcphub-dev/mcphub/internal/settings"
)

// Status is the connector lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// ToolInfo is the hub's view of one upstream-reported tool, decorated with
// per-tool overrides applied as decorators, not mutations of the upstream
// view.
type ToolInfo struct {
	Server      string
	Name        string
	Description string
	InputSchema map[string]any
	Enabled     bool
}

const retryBase = time.Second
const retryFactor = 2
const retryCap = 60 * time.Second
const defaultKeepAlive = 60 * time.Second
const openAPIReinitInterval = 15 * time.Minute

// Connector owns one upstream server's transport, tool list, and retry
// state. The handshake for each kind is selected by the private
// doInitialize hook; the public methods enforce the shared state machine.
type Connector struct {
	name   string
	cfg    *settings.ServerConfig
	logger *logging.Logger

	mu          sync.RWMutex
	status      Status
	lastErr     error
	tools       []ToolInfo
	createTime   time.Time
	pid          int
	cancelRetry  context.CancelFunc
	cancelReinit context.CancelFunc

	client  *mcp.Client
	session *mcp.ClientSession
	cmd     *exec.Cmd

	openAPI *openAPIRuntime // non-nil only for kind=openapi
}

// New builds an unconnected Connector for cfg.
func New(cfg *settings.ServerConfig, logger *logging.Logger) *Connector {
	return &Connector{name: cfg.Name, cfg: cfg, logger: logger, status: StatusDisconnected}
}

// Name returns the server name this connector was built for.
func (c *Connector) Name() string { return c.name }

// Config returns the ServerConfig backing this connector.
func (c *Connector) Config() *settings.ServerConfig { return c.cfg }

// Status returns the current lifecycle state.
func (c *Connector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// LastError returns the most recently recorded connection error, if any.
func (c *Connector) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Tools returns the last observed, override-decorated tool list. Empty or
// stale when Status() != StatusConnected.
func (c *Connector) Tools() []ToolInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolInfo, len(c.tools))
	copy(out, c.tools)
	return out
}

// Initialize performs the kind-specific handshake and transitions
// disconnected -> connecting -> connected. A concurrent call while already
// connecting is a no-op.
func (c *Connector) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.status == StatusConnected {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	err := c.doInitialize(ctx)

	c.mu.Lock()
	if err != nil {
		c.status = StatusDisconnected
		c.lastErr = err
	} else {
		c.status = StatusConnected
		c.lastErr = nil
		c.createTime = time.Now()
	}
	c.mu.Unlock()

	c.emit(common.NewEvent(common.EventConnectorState, common.DirectionInternal).
		WithServer(c.name).WithError(err))

	if err != nil {
		c.scheduleRetry(ctx)
	} else if c.cfg.Kind == settings.KindOpenAPI && c.cfg.OpenAPI != nil && c.cfg.OpenAPI.URL != "" {
		c.scheduleReinit(ctx)
	}
	return err
}

// scheduleReinit periodically re-fetches and re-synthesizes an openapi
// connector's tool set so upstream document changes surface without a
// settings reload. Only url-based openapi connectors qualify; an inline
// schema payload never changes on its own. The reinit goroutine is
// detached from ctx's cancellation and is cancelled by Disconnect.
func (c *Connector) scheduleReinit(ctx context.Context) {
	c.mu.Lock()
	if c.cancelReinit != nil {
		c.cancelReinit()
	}
	reinitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelReinit = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(openAPIReinitInterval)
		defer ticker.Stop()
		for {
			select {
			case <-reinitCtx.Done():
				return
			case <-ticker.C:
				if err := c.initOpenAPI(reinitCtx); err != nil {
					c.mu.Lock()
					c.lastErr = err
					c.mu.Unlock()
					c.emit(common.NewEvent(common.EventConnectorState, common.DirectionInternal).
						WithServer(c.name).WithError(err))
				}
			}
		}
	}()
}

func (c *Connector) doInitialize(ctx context.Context) error {
	switch c.cfg.Kind {
	case settings.KindStdio:
		return c.initStdio(ctx)
	case settings.KindSSE:
		return c.initTransport(ctx, c.sseTransport())
	case settings.KindStreamableHTTP:
		return c.initTransport(ctx, c.streamableTransport())
	case settings.KindOpenAPI:
		return c.initOpenAPI(ctx)
	default:
		return common.NewUpstreamError(common.KindConfig, c.name, fmt.Sprintf("unknown kind %q", c.cfg.Kind), nil)
	}
}

// retryLoopKey marks the context a retry goroutine passes to Initialize.
type retryLoopKey struct{}

// scheduleRetry backs off exponentially (base 1s, factor 2, cap 60s) and
// re-attempts Initialize until it succeeds or the connector is disabled.
// The retry goroutine is detached from ctx's cancellation and is cancelled
// by Disconnect.
func (c *Connector) scheduleRetry(ctx context.Context) {
	if ctx.Value(retryLoopKey{}) != nil {
		// A failed attempt made by the retry loop itself; the loop backs off.
		return
	}
	c.mu.Lock()
	if c.cancelRetry != nil {
		c.cancelRetry()
	}
	retryCtx, cancel := context.WithCancel(context.WithValue(context.WithoutCancel(ctx), retryLoopKey{}, true))
	c.cancelRetry = cancel
	c.mu.Unlock()

	go func() {
		delay := retryBase
		for {
			select {
			case <-retryCtx.Done():
				return
			case <-time.After(delay):
			}
			if !c.cfg.IsEnabled() {
				return
			}
			if err := c.Initialize(retryCtx); err == nil {
				return
			}
			delay *= retryFactor
			if delay > retryCap {
				delay = retryCap
			}
		}
	}()
}

// Disconnect tears down the transport and cancels any pending retry or
// openapi re-synthesis. No keep-alive timer is run for any kind.
func (c *Connector) Disconnect() error {
	c.mu.Lock()
	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
	if c.cancelReinit != nil {
		c.cancelReinit()
		c.cancelReinit = nil
	}
	session := c.session
	cmd := c.cmd
	c.session = nil
	c.client = nil
	c.cmd = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	c.emit(common.NewEvent(common.EventConnectorState, common.DirectionInternal).
		WithServer(c.name).WithMetadata("transition", "disconnect"))
	return nil
}

// CallTool forwards name/args to the upstream and returns the raw MCP
// result. For openapi connectors this translates to an HTTP call.
func (c *Connector) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	c.mu.RLock()
	status := c.status
	session := c.session
	openAPI := c.openAPI
	c.mu.RUnlock()

	if status != StatusConnected {
		return nil, common.NewUpstreamError(common.KindTimeout, c.name, "connector not connected", common.ErrNotConnected)
	}

	start := time.Now()
	var result *mcp.CallToolResult
	var err error
	if openAPI != nil {
		result, err = openAPI.call(ctx, name, args)
	} else if session != nil {
		result, err = session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	} else {
		err = common.NewUpstreamError(common.KindInternal, c.name, "no active session", nil)
	}

	c.emit(common.NewEvent(common.EventToolCall, common.DirectionOutbound).
		WithServer(c.name).WithTool(name).WithDuration(time.Since(start)).WithError(err))

	if err != nil {
		ue := common.AsUpstreamError(err)
		if ue.Server == "" {
			ue.Server = c.name
		}
		return nil, ue
	}
	return result, nil
}

// ListPrompts returns the upstream's prompt list, or an empty list for
// openapi connectors (which have no prompt concept).
func (c *Connector) ListPrompts(ctx context.Context) ([]*mcp.Prompt, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil, nil
	}
	res, err := session.ListPrompts(ctx, nil)
	if err != nil {
		return nil, common.AsUpstreamError(err)
	}
	return res.Prompts, nil
}

// ListResources returns the upstream's resource list, or an empty list for
// openapi connectors.
func (c *Connector) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil, nil
	}
	res, err := session.ListResources(ctx, nil)
	if err != nil {
		return nil, common.AsUpstreamError(err)
	}
	return res.Resources, nil
}

// GetPrompt forwards a prompts/get request to the upstream.
func (c *Connector) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil, common.NewUpstreamError(common.KindNotFound, c.name, "connector has no active session", nil)
	}
	res, err := session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return nil, common.AsUpstreamError(err)
	}
	return res, nil
}

// ReadResource forwards a resources/read request to the upstream.
func (c *Connector) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil, common.NewUpstreamError(common.KindNotFound, c.name, "connector has no active session", nil)
	}
	res, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, common.AsUpstreamError(err)
	}
	return res, nil
}

func (c *Connector) emit(e *common.Event) {
	if c.logger != nil {
		c.logger.Emit(e)
	}
}

// PID returns the spawned process id for a stdio connector, or 0.
func (c *Connector) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pid
}

// CreateTime returns when the connector last transitioned to connected.
func (c *Connector) CreateTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.createTime
}

// setTools applies per-tool overrides to the raw upstream tool list and
// caches the result; the raw upstream tool list itself is never mutated.
func (c *Connector) setTools(raw []*mcp.Tool) {
	decorated := make([]ToolInfo, 0, len(raw))
	for _, t := range raw {
		override, hasOverride := c.cfg.Tools[t.Name]
		enabled := true
		desc := t.Description
		if hasOverride {
			if override.Enabled != nil {
				enabled = *override.Enabled
			}
			if override.Description != "" {
				desc = override.Description
			}
		}
		if !enabled {
			continue
		}
		schema := toSchemaMap(t.InputSchema)
		delete(schema, "$schema")
		decorated = append(decorated, ToolInfo{
			Server:      c.name,
			Name:        t.Name,
			Description: desc,
			InputSchema: schema,
			Enabled:     true,
		})
	}
	c.mu.Lock()
	c.tools = decorated
	c.mu.Unlock()
}

// toSchemaMap renders an arbitrary JSON-Schema-ish value (the go-sdk's
// *jsonschema.Schema, or already a plain map) into a plain map so callers
// (and $schema-stripping) don't need to know the SDK's concrete schema
// type. Round-trips through JSON rather than type-asserting, since the
// concrete type varies by SDK version.
func toSchemaMap(v any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}
