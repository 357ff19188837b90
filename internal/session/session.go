package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/dispatcher"
	"github.com/mcphub-dev/mcphub/internal/logging"
	"github.com/mcphub-dev/mcphub/internal/registry"
	"github.com/mcphub-dev/mcphub/internal/settings"
)

// smartSearchTool is the pseudo-tool smart-routing sessions additionally
// advertise as a direct interface to the vector index.
const smartSearchTool = "smart.search"

// Record is the hub's own bookkeeping for one downstream client session,
// independent of the go-sdk's internal session state.
type Record struct {
	ID           string
	Scope        Scope
	CreatedAt    time.Time
	lastActivity time.Time
	mu           sync.Mutex
}

func (r *Record) touch() {
	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

// LastActivity returns the last time this session handled a request.
func (r *Record) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// Manager builds *mcp.Server instances per request, wires their tool
// handlers to the dispatcher, and tracks lightweight session records for
// the admin/health surface. Generalizes MCPProxy.GetServerForRequest /
// createServerForSession / registerToolsForSession.
type Manager struct {
	store      *settings.Store
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	logger     *logging.Logger

	sessionTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Record
}

// NewManager builds a session Manager. sessionTimeout bounds every call
// made through a session as the session side of the effective deadline
// (see dispatcher.Deadline); 0 leaves it unset.
func NewManager(store *settings.Store, reg *registry.Registry, disp *dispatcher.Dispatcher, logger *logging.Logger, sessionTimeout time.Duration) *Manager {
	return &Manager{store: store, registry: reg, dispatcher: disp, logger: logger, sessionTimeout: sessionTimeout, sessions: map[string]*Record{}}
}

// deadlineFor builds the effective-deadline inputs for a call against
// server: the session's configured timeout plus server's own
// ConnectorOptions, read fresh from the settings document so an admin edit
// takes effect on the next call without restarting the session.
func (m *Manager) deadlineFor(server string) dispatcher.Deadline {
	d := dispatcher.Deadline{SessionTimeout: m.sessionTimeout}
	if server == "" {
		return d
	}
	doc := m.store.Load()
	cfg, ok := doc.MCPServers[server]
	if !ok {
		return d
	}
	d.ConnectorTimeout = common.GetSecondsFromInt(cfg.Options.TimeoutSeconds)
	d.MaxTotalTimeout = common.GetSecondsFromInt(cfg.Options.MaxTotalTimeoutSeconds)
	return d
}

// Sessions returns a snapshot of tracked session records.
func (m *Manager) Sessions() []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.sessions))
	for _, r := range m.sessions {
		out = append(out, r)
	}
	return out
}

// ForScopeSegment returns a go-sdk server factory (the shape both
// mcp.NewStreamableHTTPHandler and mcp.NewSSEHandler expect) bound to the
// scope named by segment (the URL path element after the transport's base,
// e.g. "" for global, "$smart", a group name, or a server name).
func (m *Manager) ForScopeSegment(segment string) func(r *http.Request) *mcp.Server {
	return func(r *http.Request) *mcp.Server {
		doc := m.store.Load()
		scope, ok := DeriveScope(segment, doc)
		if !ok {
			return m.errorServer(fmt.Sprintf("unknown scope %q", segment))
		}
		view := m.viewFor(doc, scope)

		sessionID := r.Header.Get("Mcp-Session-Id")
		if sessionID == "" {
			sessionID = common.NewRequestID()
		}
		rec := &Record{ID: sessionID, Scope: scope, CreatedAt: time.Now(), lastActivity: time.Now()}
		m.mu.Lock()
		m.sessions[sessionID] = rec
		m.mu.Unlock()

		return m.buildServer(r.Context(), scope, view, rec)
	}
}

func (m *Manager) viewFor(doc *settings.Document, scope Scope) *registry.View {
	switch scope.Kind {
	case KindServer:
		return m.registry.Server(scope.ID)
	case KindGroup:
		if g := doc.FindGroup(scope.ID); g != nil {
			return m.registry.Group(doc, g)
		}
		return &registry.View{Scope: "group:" + scope.ID}
	case KindSmart:
		return m.registry.Global()
	default:
		return m.registry.Global()
	}
}

// buildServer registers view's tools (plus the smart.search pseudo-tool for
// smart sessions) and every connector's prompts/resources against an
// mcp.Server, capability-gated on non-emptiness (the view must have at
// least one of each to be worth advertising).
func (m *Manager) buildServer(ctx context.Context, scope Scope, view *registry.View, rec *Record) *mcp.Server {
	prompts, err := m.dispatcher.ListPrompts(ctx, view)
	if err != nil {
		prompts = nil
	}
	resources, err := m.dispatcher.ListResources(ctx, view)
	if err != nil {
		resources = nil
	}

	caps := &mcp.ServerCapabilities{}
	if len(view.Tools) > 0 || scope.Kind == KindSmart {
		caps.Tools = &mcp.ToolCapabilities{ListChanged: true}
	}
	if len(prompts) > 0 {
		caps.Prompts = &mcp.PromptCapabilities{ListChanged: true}
	}
	if len(resources) > 0 {
		caps.Resources = &mcp.ResourceCapabilities{ListChanged: true}
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "mcphub-" + scope.String(), Version: "1.0.0"}, &mcp.ServerOptions{
		Capabilities: caps,
	})

	for _, t := range view.Tools {
		m.registerTool(srv, view, t, rec)
	}
	if scope.Kind == KindSmart {
		m.registerSmartSearch(srv, view, rec)
	}
	for _, p := range prompts {
		m.registerPrompt(srv, view, p, rec)
	}
	for _, res := range resources {
		m.registerResource(srv, view, res, rec)
	}
	return srv
}

func (m *Manager) registerTool(srv *mcp.Server, view *registry.View, t registry.ExposedTool, rec *Record) {
	tool := &mcp.Tool{
		Name:        t.ExposedName,
		Description: t.Description,
		InputSchema: toolSchema(t.InputSchema),
	}
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec.touch()
		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, common.NewUpstreamError(common.KindSchema, t.Server, "invalid tool arguments", err)
			}
		}
		return m.dispatcher.CallTool(ctx, view, req.Params.Name, args, m.deadlineFor(t.Server))
	})
}

func (m *Manager) registerSmartSearch(srv *mcp.Server, view *registry.View, rec *Record) {
	tool := &mcp.Tool{
		Name:        smartSearchTool,
		Description: "Search for relevant tools across all connected servers by natural-language query.",
		InputSchema: toolSchema(map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []any{"query"},
		}),
	}
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec.touch()
		var args struct {
			Query string `json:"query"`
		}
		if len(req.Params.Arguments) > 0 {
			_ = json.Unmarshal(req.Params.Arguments, &args)
		}
		// The target server isn't known until the index resolves a match, so
		// only the session-wide bound is available here; the connector's own
		// options.timeout/maxTotalTimeout apply to direct tool calls
		// (deadlineFor, above), not to smart-routed ones.
		result, err := m.dispatcher.SmartCall(ctx, view, args.Query, nil, 10, 0.7, m.deadlineFor(""))
		if err != nil {
			return nil, err
		}
		if result.CallResult != nil {
			return result.CallResult, nil
		}
		payload, _ := json.Marshal(result.Candidates)
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}}}, nil
	})
}

func (m *Manager) registerPrompt(srv *mcp.Server, view *registry.View, p *mcp.Prompt, rec *Record) {
	srv.AddPrompt(p, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		rec.touch()
		return m.dispatcher.GetPrompt(ctx, view, req.Params.Name, req.Params.Arguments)
	})
}

func (m *Manager) registerResource(srv *mcp.Server, view *registry.View, res *mcp.Resource, rec *Record) {
	srv.AddResource(res, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		rec.touch()
		return m.dispatcher.ReadResource(ctx, view, req.Params.URI)
	})
}

func (m *Manager) errorServer(message string) *mcp.Server {
	return mcp.NewServer(&mcp.Implementation{Name: "mcphub-error", Version: "1.0.0"}, &mcp.ServerOptions{
		Instructions: message,
	})
}

// toolSchema renders a plain JSON-Schema-shaped map into the go-sdk's
// *jsonschema.Schema (mcp.Tool.InputSchema's concrete type), the mirror of
// connector.toSchemaMap's reverse conversion.
func toolSchema(schema map[string]any) *jsonschema.Schema {
	raw, err := json.Marshal(schema)
	if err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	var out jsonschema.Schema
	if err := json.Unmarshal(raw, &out); err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	return &out
}
