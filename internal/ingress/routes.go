package ingress

import (
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// sessionTimeout bounds how long an idle streamable-HTTP session is kept
// alive server-side.
const sessionTimeout = 10 * time.Minute

// registerMCPRoutes wires the downstream transports:
// SSE ("/sse[/{scope}]" + its companion "/messages"), and streamable-HTTP
// ("/mcp[/{scope}]"). Each transport shares the same scope-derivation via
// sessions.ForScopeSegment, so "/mcp" is global, "/mcp/$smart" is the
// smart-routing session, "/mcp/{group-or-server}" is scoped.
func (r *Router) registerMCPRoutes() {
	base := r.basePath

	streamableOpts := &mcp.StreamableHTTPOptions{
		SessionTimeout: sessionTimeout,
		Stateless:      false,
	}

	streamable := mcp.NewStreamableHTTPHandler(r.getServerForStreamable, streamableOpts)
	streamableHandler := r.wrapMCP(streamable)
	r.mux.Handle(base+"/mcp", streamableHandler)
	r.mux.Handle(base+"/mcp/", streamableHandler)

	sse := mcp.NewSSEHandler(r.getServerForSSE, nil)
	sseHandler := r.wrapMCP(sse)
	r.mux.Handle(base+"/sse", sseHandler)
	r.mux.Handle(base+"/sse/", sseHandler)
	// "/messages" is the SSE transport's POST-back companion route; the
	// go-sdk's SSEHandler itself demuxes by path suffix, so it shares the
	// same handler (confirmed against aezizhu-universal-model-registry's
	// mux.Handle("/sse", ...); mux.Handle("/sse/", ...) pairing).
	r.mux.Handle(base+"/messages", sseHandler)
	r.mux.Handle(base+"/messages/", sseHandler)
}

// wrapMCP applies the shared guard chain (auth -> global-route -> readonly)
// around an MCP transport handler.
func (r *Router) wrapMCP(h http.Handler) http.Handler {
	return chain(h, r.authMiddleware, r.globalRouteGuard, r.readonlyGuard)
}

func (r *Router) getServerForStreamable(req *http.Request) *mcp.Server {
	return r.sessions.ForScopeSegment(scopeSegment(req.URL.Path, r.basePath))(req)
}

func (r *Router) getServerForSSE(req *http.Request) *mcp.Server {
	return r.sessions.ForScopeSegment(scopeSegment(req.URL.Path, r.basePath))(req)
}
