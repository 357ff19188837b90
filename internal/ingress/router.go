// Package ingress wires the HTTP route surface: the SSE/streamable-HTTP
// session endpoints, housekeeping verbs, the admin API, and the
// three-tier auth chain.
package ingress

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/mcphub-dev/mcphub/internal/auth"
	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/dispatcher"
	"github.com/mcphub-dev/mcphub/internal/logging"
	"github.com/mcphub-dev/mcphub/internal/metrics"
	"github.com/mcphub-dev/mcphub/internal/pool"
	"github.com/mcphub-dev/mcphub/internal/registry"
	"github.com/mcphub-dev/mcphub/internal/session"
	"github.com/mcphub-dev/mcphub/internal/settings"
	"github.com/mcphub-dev/mcphub/internal/smartroute"
)

// Config bounds the HTTP listener and route-level toggles that the settings
// document itself doesn't own: host/port/readonly are deployment concerns,
// kept separate from the portable settings file.
type Config struct {
	Host     string
	Port     string
	Timeout  int // seconds, matches common.GetSecondsFromInt
	BasePath string
	Readonly bool
}

// DefaultHost/DefaultPort are the listener defaults when unset.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = "8090"
)

// Router owns the HTTP mux, the admin API's dependencies, and the auth/guard
// middleware chain.
type Router struct {
	cfg Config

	store      *settings.Store
	pool       *pool.Pool
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	sessions   *session.Manager
	index      *smartroute.Index // nil when smart routing is disabled
	metrics    *metrics.Recorder
	logger     *logging.Logger

	tokens  *auth.TokenAuthenticator
	apiKeys *auth.APIKeyStore

	mux    *http.ServeMux
	server *http.Server

	readonly bool
	basePath string
}

// Deps bundles the already-constructed components New wires into routes.
type Deps struct {
	Store      *settings.Store
	Pool       *pool.Pool
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Sessions   *session.Manager
	Index      *smartroute.Index // nil disables smart-routing re-indexing after admin edits
	Metrics    *metrics.Recorder
	Logger     *logging.Logger
	Tokens     *auth.TokenAuthenticator
	APIKeys    *auth.APIKeyStore // nil disables the legacy static-key chain
}

// New builds a Router and registers every route. cfg zero-values fall back
// to DefaultHost/DefaultPort/60s timeout.
func New(cfg Config, deps Deps) *Router {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60
	}

	mux := http.NewServeMux()
	r := &Router{
		cfg:        cfg,
		store:      deps.Store,
		pool:       deps.Pool,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		sessions:   deps.Sessions,
		index:      deps.Index,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		tokens:     deps.Tokens,
		apiKeys:    deps.APIKeys,
		mux:        mux,
		readonly:   cfg.Readonly,
		basePath:   cfg.BasePath,
	}

	r.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  common.GetSecondsFromInt(cfg.Timeout),
		WriteTimeout: common.GetSecondsFromInt(cfg.Timeout),
	}

	r.registerMCPRoutes()
	r.registerAdminRoutes()
	return r
}

// ListenAndServe starts the HTTP server; it blocks until Shutdown is called
// or the listener fails.
func (r *Router) ListenAndServe() error {
	r.emit(common.NewEvent(common.EventSystem, common.DirectionInternal).
		WithMetadata("message", fmt.Sprintf("ingress listening on %s", r.server.Addr)))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ingress server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// Addr returns the bound listen address.
func (r *Router) Addr() string { return r.server.Addr }

func (r *Router) emit(e *common.Event) {
	if r.logger != nil {
		r.logger.Emit(e)
	}
}

// chain applies middleware in the order listed, outermost first.
func chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
