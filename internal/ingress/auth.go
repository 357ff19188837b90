// Package ingress wires the HTTP route surface: the SSE/streamable-HTTP
// session endpoints, housekeeping verbs, the admin API, and the
// three-tier auth chain.
package ingress

import (
	"net/http"
	"strings"

	"github.com/mcphub-dev/mcphub/internal/auth"
)

func extractAuthToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return header
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func writeForbidden(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden","reason":"` + reason + `"}`))
}

// authMiddleware implements a three-tier chain: skipAuth wins outright;
// else bearer auth if enabled and matching; else a valid JWT via
// "x-auth-token" header or "?token=".
func (r *Router) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		doc := r.store.Load()
		routing := doc.SystemConfig.Routing

		if routing.SkipAuth {
			next.ServeHTTP(w, req)
			return
		}

		if routing.EnableBearerAuth {
			if token := extractAuthToken(req.Header.Get("Authorization")); token != "" && token == routing.BearerAuthKey {
				next.ServeHTTP(w, req)
				return
			}
		}

		token := req.Header.Get("x-auth-token")
		if token == "" {
			token = req.URL.Query().Get("token")
		}
		if token == "" {
			writeUnauthorized(w)
			return
		}
		claims, err := r.tokens.Verify(token)
		if err != nil {
			writeUnauthorized(w)
			return
		}
		req = req.WithContext(withUser(req.Context(), claims.Username, claims.Role))
		next.ServeHTTP(w, req)
	})
}

// globalRouteGuard rejects scope-absent requests with 403 when
// enableGlobalRoute is false.
func (r *Router) globalRouteGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		doc := r.store.Load()
		if !doc.SystemConfig.Routing.EnableGlobalRoute && scopeSegment(req.URL.Path, r.basePath) == "" {
			writeForbidden(w, "global route disabled")
			return
		}
		next.ServeHTTP(w, req)
	})
}

// readonlyGuard enforces readonly mode: only GET and tool-call paths may
// proceed; every other mutating verb is rejected.
func (r *Router) readonlyGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.readonly && req.Method != http.MethodGet && !isToolCallPath(req.URL.Path) {
			writeForbidden(w, "readonly mode")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func isToolCallPath(path string) bool {
	return strings.Contains(path, "/tools/call/") || strings.HasSuffix(path, "/mcp") || strings.Contains(path, "/mcp/")
}

// apiKeyMiddleware is the legacy static-API-key chain the admin
// tool-invocation endpoint also accepts.
func apiKeyMiddleware(store *auth.APIKeyStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if store == nil {
			next.ServeHTTP(w, req)
			return
		}
		token := extractAuthToken(req.Header.Get("Authorization"))
		if token == "" || !store.Validate(token) {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// scopeSegment extracts the scope path element after basePath+transport
// ("" for global, "$smart", a group/server name).
func scopeSegment(path, basePath string) string {
	trimmed := strings.TrimPrefix(path, basePath)
	trimmed = strings.Trim(trimmed, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	rest := parts[1]
	// rest may be "messages", "mcp", or "{scope}/mcp" etc.; only a leading
	// segment that isn't one of the well-known transport names is a scope.
	restParts := strings.SplitN(rest, "/", 2)
	head := restParts[0]
	switch head {
	case "sse", "messages", "mcp":
		return ""
	default:
		return head
	}
}
