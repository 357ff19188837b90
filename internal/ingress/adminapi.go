package ingress

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mcphub-dev/mcphub/internal/auth"
	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/dispatcher"
	"github.com/mcphub-dev/mcphub/internal/settings"
)

// registerAdminRoutes wires the JSON-over-http.ServeMux admin surface,
// using the same Content-Type+status-code convention as writeUnauthorized.
// Server, group, settings, system-config and register mutations go through
// authMiddleware + readonlyGuard; /health and /auth/login are open; the
// remaining routes go only through authMiddleware.
func (r *Router) registerAdminRoutes() {
	base := r.basePath + "/api"

	r.mux.Handle("GET "+base+"/health", http.HandlerFunc(r.handleHealth))
	if r.metrics != nil {
		r.mux.Handle("GET "+r.basePath+"/metrics", r.metrics.Handler())
	}

	r.mux.Handle("GET "+base+"/servers", r.guarded(http.HandlerFunc(r.handleListServers)))
	r.mux.Handle("POST "+base+"/servers", r.guardedMutating(http.HandlerFunc(r.handleCreateServer)))
	r.mux.Handle("PUT "+base+"/servers/{name}", r.guardedMutating(http.HandlerFunc(r.handleUpdateServer)))
	r.mux.Handle("DELETE "+base+"/servers/{name}", r.guardedMutating(http.HandlerFunc(r.handleDeleteServer)))

	r.mux.Handle("GET "+base+"/groups", r.guarded(http.HandlerFunc(r.handleListGroups)))
	r.mux.Handle("POST "+base+"/groups", r.guardedMutating(http.HandlerFunc(r.handleCreateGroup)))
	r.mux.Handle("DELETE "+base+"/groups/{id}", r.guardedMutating(http.HandlerFunc(r.handleDeleteGroup)))
	r.mux.Handle("PUT "+base+"/groups/{id}/servers/batch", r.guardedMutating(http.HandlerFunc(r.handleReplaceGroupMembers)))

	r.mux.Handle("GET "+base+"/settings", r.guarded(http.HandlerFunc(r.handleGetSettings)))
	r.mux.Handle("PUT "+base+"/settings", r.guardedMutating(http.HandlerFunc(r.handlePutSettings)))

	r.mux.Handle("GET "+base+"/system-config", r.guarded(http.HandlerFunc(r.handleGetSystemConfig)))
	r.mux.Handle("PUT "+base+"/system-config", r.guardedMutating(http.HandlerFunc(r.handlePutSystemConfig)))

	toolCall := http.HandlerFunc(r.handleToolCall)
	r.mux.Handle("POST "+base+"/tools/call/{server}", apiKeyMiddleware(r.apiKeys, r.guarded(toolCall)))

	r.mux.Handle("POST "+base+"/auth/login", http.HandlerFunc(r.handleLogin))
	r.mux.Handle("GET "+base+"/auth/me", r.guarded(http.HandlerFunc(r.handleMe)))
	r.mux.Handle("POST "+base+"/auth/register", r.guardedMutating(http.HandlerFunc(r.handleRegister)))
	r.mux.Handle("POST "+base+"/auth/password", r.guarded(http.HandlerFunc(r.handlePassword)))
}

func (r *Router) guarded(h http.Handler) http.Handler {
	return chain(h, r.authMiddleware)
}

func (r *Router) guardedMutating(h http.Handler) http.Handler {
	return chain(h, r.authMiddleware, r.readonlyGuard)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	ue := common.AsUpstreamError(err)
	status := http.StatusInternalServerError
	switch ue.Kind {
	case common.KindNotFound:
		status = http.StatusNotFound
	case common.KindConfig, common.KindSchema:
		status = http.StatusBadRequest
	case common.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": ue.Error()})
}

// --- health ---

type connectorHealth struct {
	Server    string `json:"server"`
	Status    string `json:"status"`
	LastError string `json:"lastError,omitempty"`
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	var conns []connectorHealth
	for _, c := range r.pool.List() {
		ch := connectorHealth{Server: c.Name(), Status: string(c.Status())}
		if err := c.LastError(); err != nil {
			ch.LastError = err.Error()
		}
		conns = append(conns, ch)
	}
	degraded := r.index != nil && r.index.Degraded()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"connectors":          conns,
		"allConnected":        r.pool.AllConnected(),
		"smartRoutingDegraded": degraded,
	})
}

// --- servers ---

func (r *Router) handleListServers(w http.ResponseWriter, req *http.Request) {
	doc := r.store.Load()
	writeJSON(w, http.StatusOK, doc.MCPServers)
}

func (r *Router) handleCreateServer(w http.ResponseWriter, req *http.Request) {
	var cfg settings.ServerConfig
	if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, "", "invalid request body", err))
		return
	}
	old := r.store.Load()
	next := cloneDocument(old)
	if err := next.AddServer(&cfg); err != nil {
		writeError(w, err)
		return
	}
	r.applyDocument(req.Context(), old, next, w)
}

func (r *Router) handleUpdateServer(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	var cfg settings.ServerConfig
	if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, name, "invalid request body", err))
		return
	}
	old := r.store.Load()
	next := cloneDocument(old)
	if err := next.UpdateServer(name, &cfg); err != nil {
		writeError(w, err)
		return
	}
	r.applyDocument(req.Context(), old, next, w)
}

func (r *Router) handleDeleteServer(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	old := r.store.Load()
	next := cloneDocument(old)
	if err := next.RemoveServer(name); err != nil {
		writeError(w, err)
		return
	}
	r.applyDocument(req.Context(), old, next, w)
}

// --- groups ---

func (r *Router) handleListGroups(w http.ResponseWriter, req *http.Request) {
	doc := r.store.Load()
	writeJSON(w, http.StatusOK, doc.Groups)
}

func (r *Router) handleCreateGroup(w http.ResponseWriter, req *http.Request) {
	var g settings.Group
	if err := json.NewDecoder(req.Body).Decode(&g); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, "", "invalid request body", err))
		return
	}
	old := r.store.Load()
	next := cloneDocument(old)
	if err := next.AddGroup(&g); err != nil {
		writeError(w, err)
		return
	}
	r.applyDocument(req.Context(), old, next, w)
}

func (r *Router) handleDeleteGroup(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	old := r.store.Load()
	next := cloneDocument(old)
	if err := next.RemoveGroup(id); err != nil {
		writeError(w, err)
		return
	}
	r.applyDocument(req.Context(), old, next, w)
}

func (r *Router) handleReplaceGroupMembers(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	var members []settings.GroupMember
	if err := json.NewDecoder(req.Body).Decode(&members); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, id, "invalid request body", err))
		return
	}
	old := r.store.Load()
	next := cloneDocument(old)
	if err := next.ReplaceGroupMembers(id, members); err != nil {
		writeError(w, err)
		return
	}
	r.applyDocument(req.Context(), old, next, w)
}

// --- settings / system-config ---

func (r *Router) handleGetSettings(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.store.Load())
}

func (r *Router) handlePutSettings(w http.ResponseWriter, req *http.Request) {
	var next settings.Document
	if err := json.NewDecoder(req.Body).Decode(&next); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, "", "invalid request body", err))
		return
	}
	if err := next.Validate(); err != nil {
		writeError(w, common.NewUpstreamError(common.KindConfig, "", err.Error(), err))
		return
	}
	old := r.store.Load()
	r.applyDocument(req.Context(), old, &next, w)
}

func (r *Router) handleGetSystemConfig(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.store.Load().SystemConfig)
}

func (r *Router) handlePutSystemConfig(w http.ResponseWriter, req *http.Request) {
	var sc settings.SystemConfig
	if err := json.NewDecoder(req.Body).Decode(&sc); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, "", "invalid request body", err))
		return
	}
	old := r.store.Load()
	next := cloneDocument(old)
	next.SystemConfig = sc
	r.applyDocument(req.Context(), old, next, w)
}

// applyDocument persists next, reconciles the connector pool against the
// diff, and refreshes the smart-routing index (if enabled) before replying.
func (r *Router) applyDocument(ctx context.Context, old, next *settings.Document, w http.ResponseWriter) {
	user, _ := userFromContext(ctx)
	if err := r.store.Save(next, user.Username); err != nil {
		writeError(w, err)
		return
	}
	r.pool.Reconcile(ctx, old, next)
	if r.index != nil {
		_ = r.index.Refresh(ctx)
	}
	writeJSON(w, http.StatusOK, next)
}

func cloneDocument(doc *settings.Document) *settings.Document {
	data, err := json.Marshal(doc)
	if err != nil {
		return settings.Empty()
	}
	var out settings.Document
	if err := json.Unmarshal(data, &out); err != nil {
		return settings.Empty()
	}
	return &out
}

// --- tool invocation ---

type toolCallRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

func (r *Router) handleToolCall(w http.ResponseWriter, req *http.Request) {
	server := req.PathValue("server")
	var body toolCallRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, server, "invalid request body", err))
		return
	}
	view := r.registry.Server(server)
	result, err := r.dispatcher.CallTool(req.Context(), view, body.Tool, body.Arguments, r.deadlineFor(server))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// deadlineFor builds the effective-deadline inputs for a direct admin-API
// tool call against server: the router's own listener timeout stands in
// for the session bound (the admin API has no persistent MCP session of
// its own), plus server's ConnectorOptions.
func (r *Router) deadlineFor(server string) dispatcher.Deadline {
	d := dispatcher.Deadline{SessionTimeout: common.GetSecondsFromInt(r.cfg.Timeout)}
	cfg, ok := r.store.Load().MCPServers[server]
	if !ok {
		return d
	}
	d.ConnectorTimeout = common.GetSecondsFromInt(cfg.Options.TimeoutSeconds)
	d.MaxTotalTimeout = common.GetSecondsFromInt(cfg.Options.MaxTotalTimeoutSeconds)
	return d
}

// --- auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *Router) userStore() *auth.UserStore {
	doc := r.store.Load()
	users := make([]auth.User, 0, len(doc.Users))
	for _, u := range doc.Users {
		role := "readonly"
		if u.IsAdmin {
			role = "admin"
		}
		users = append(users, auth.User{Username: u.Username, PasswordHash: u.PasswordHash, Role: role})
	}
	return auth.NewUserStore(users)
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, "", "invalid request body", err))
		return
	}
	user, err := r.userStore().Authenticate(body.Username, body.Password)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	token, err := r.tokens.Issue(user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	user, ok := userFromContext(req.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": user.Username, "role": user.Role})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	caller, ok := userFromContext(req.Context())
	if !ok || caller.Role != "admin" {
		writeForbidden(w, "admin role required")
		return
	}
	var body registerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, "", "invalid request body", err))
		return
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	old := r.store.Load()
	next := cloneDocument(old)
	for _, u := range next.Users {
		if u.Username == body.Username {
			writeError(w, common.NewUpstreamError(common.KindConfig, body.Username, "username already in use", common.ErrNameCollision))
			return
		}
	}
	next.Users = append(next.Users, settings.UserRecord{Username: body.Username, PasswordHash: hash, IsAdmin: body.IsAdmin})
	r.applyDocument(req.Context(), old, next, w)
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r *Router) handlePassword(w http.ResponseWriter, req *http.Request) {
	caller, ok := userFromContext(req.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	var body passwordRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, common.NewUpstreamError(common.KindSchema, "", "invalid request body", err))
		return
	}
	if _, err := r.userStore().Authenticate(caller.Username, body.CurrentPassword); err != nil {
		writeUnauthorized(w)
		return
	}
	hash, err := auth.HashPassword(body.NewPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	old := r.store.Load()
	next := cloneDocument(old)
	for i, u := range next.Users {
		if u.Username == caller.Username {
			next.Users[i].PasswordHash = hash
		}
	}
	r.applyDocument(req.Context(), old, next, w)
}
