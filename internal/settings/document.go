// Package settings owns the single JSON settings document MCPHub persists
// to disk: servers, groups, users, and system configuration.
package settings

import (
	"encoding/json"
	"fmt"

	"github.com/mcphub-dev/mcphub/internal/common"
)

// ServerKind is the tagged-variant discriminator for ServerConfig.
type ServerKind string

const (
	KindStdio          ServerKind = "stdio"
	KindSSE            ServerKind = "sse"
	KindStreamableHTTP ServerKind = "streamable-http"
	KindOpenAPI        ServerKind = "openapi"
)

// ToolOverride customizes one upstream-reported tool.
type ToolOverride struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	Description string `json:"description,omitempty"`
}

// ConnectorOptions bounds a connector's per-call behavior.
type ConnectorOptions struct {
	TimeoutSeconds          int  `json:"timeout,omitempty"`
	MaxTotalTimeoutSeconds  int  `json:"maxTotalTimeout,omitempty"`
	ResetTimeoutOnProgress  bool `json:"resetTimeoutOnProgress,omitempty"`
}

// OpenAPISecurity describes how the hub authenticates outbound calls for an
// openapi-synthesized connector.
type OpenAPISecurity struct {
	Type  string `json:"type,omitempty"` // none|apiKey|http|oauth2|openIdConnect
	In    string `json:"in,omitempty"`   // header|query|cookie (apiKey only)
	Name  string `json:"name,omitempty"` // header/query/cookie name (apiKey only)
	Value string `json:"value,omitempty"`
	// Scheme is "bearer" or "basic" for type=http.
	Scheme string `json:"scheme,omitempty"`
	Token  string `json:"token,omitempty"`
}

// OpenAPIPayload is the openapi-kind ServerConfig payload: exactly one of
// URL (fetch the document remotely) or Schema (inline document) is set.
type OpenAPIPayload struct {
	URL      string           `json:"url,omitempty"`
	Schema   json.RawMessage  `json:"schema,omitempty"`
	Security *OpenAPISecurity `json:"security,omitempty"`
}

// ServerConfig is one entry of mcpServers. Exactly one kind-specific payload
// is populated, matching Kind.
type ServerConfig struct {
	Name    string     `json:"-"`
	Kind    ServerKind `json:"type"`
	Enabled *bool      `json:"enabled,omitempty"`
	Owner   string     `json:"owner,omitempty"`

	// stdio
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// sse / streamable-http
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// openapi
	OpenAPI *OpenAPIPayload `json:"openapi,omitempty"`

	KeepAliveIntervalSeconds int                     `json:"keepAliveInterval,omitempty"`
	Options                  ConnectorOptions        `json:"options,omitempty"`
	Tools                    map[string]ToolOverride `json:"tools,omitempty"`
}

// IsEnabled defaults to true when unset.
func (s *ServerConfig) IsEnabled() bool {
	if s == nil || s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// GetSubstitutedHeaders returns Headers with ${VAR}/$VAR expanded.
func (s *ServerConfig) GetSubstitutedHeaders() map[string]string {
	out := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		out[k] = common.ExpandEnv(v)
	}
	return out
}

// GetSubstitutedEnv returns Env with ${VAR}/$VAR expanded.
func (s *ServerConfig) GetSubstitutedEnv() map[string]string {
	out := make(map[string]string, len(s.Env))
	for k, v := range s.Env {
		out[k] = common.ExpandEnv(v)
	}
	return out
}

// Validate enforces the "exactly one kind-specific payload" invariant and
// URL-safe naming.
func (s *ServerConfig) Validate() error {
	if !common.IsURLCompliant(s.Name) {
		return common.NewUpstreamError(common.KindConfig, s.Name, "server name must be URL-safe", nil)
	}
	payloads := 0
	switch s.Kind {
	case KindStdio:
		if s.Command == "" {
			return common.NewUpstreamError(common.KindConfig, s.Name, "stdio server requires command", nil)
		}
	case KindSSE, KindStreamableHTTP:
		if s.URL == "" {
			return common.NewUpstreamError(common.KindConfig, s.Name, "sse/streamable-http server requires url", nil)
		}
	case KindOpenAPI:
		if s.OpenAPI == nil || (s.OpenAPI.URL == "" && len(s.OpenAPI.Schema) == 0) {
			return common.NewUpstreamError(common.KindConfig, s.Name, "openapi server requires url or schema", nil)
		}
	default:
		return common.NewUpstreamError(common.KindConfig, s.Name, fmt.Sprintf("unknown server kind %q", s.Kind), nil)
	}
	for _, set := range []bool{s.Command != "", s.URL != "", s.OpenAPI != nil} {
		if set {
			payloads++
		}
	}
	if payloads != 1 {
		return common.NewUpstreamError(common.KindConfig, s.Name, "exactly one kind-specific payload must be set", nil)
	}
	return nil
}

// GroupMember admits either all tools of a server or an explicit subset.
type GroupMember struct {
	Name  string   `json:"name"`
	Tools []string `json:"tools,omitempty"` // nil/absent means "all"
}

// AdmitsAll reports whether this member admits every tool of its server.
func (m GroupMember) AdmitsAll() bool { return len(m.Tools) == 0 }

// Group is a named, owned collection of server/tool admission rules.
type Group struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Owner   string        `json:"owner,omitempty"`
	Members []GroupMember `json:"members"`
}

// RoutingConfig is systemConfig.routing.
type RoutingConfig struct {
	EnableGlobalRoute    bool   `json:"enableGlobalRoute"`
	EnableGroupNameRoute bool   `json:"enableGroupNameRoute"`
	EnableBearerAuth     bool   `json:"enableBearerAuth"`
	BearerAuthKey        string `json:"bearerAuthKey,omitempty"`
	SkipAuth             bool   `json:"skipAuth"`
}

// InstallConfig is systemConfig.install.
type InstallConfig struct {
	PythonIndexURL string `json:"pythonIndexUrl,omitempty"`
	NPMRegistry    string `json:"npmRegistry,omitempty"`
	BaseURL        string `json:"baseUrl,omitempty"`
}

// SmartRoutingConfig is systemConfig.smartRouting.
type SmartRoutingConfig struct {
	Enabled               bool   `json:"enabled"`
	DBUrl                 string `json:"dbUrl,omitempty"`
	OpenAIAPIBaseURL      string `json:"openaiApiBaseUrl,omitempty"`
	OpenAIAPIKey          string `json:"openaiApiKey,omitempty"`
	OpenAIAPIEmbeddingModel string `json:"openaiApiEmbeddingModel,omitempty"`
}

// MCPRouterConfig is systemConfig.mcpRouter.
type MCPRouterConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	Referer string `json:"referer,omitempty"`
	Title   string `json:"title,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// SystemConfig is systemConfig.
type SystemConfig struct {
	Routing      RoutingConfig      `json:"routing"`
	Install      InstallConfig      `json:"install"`
	SmartRouting SmartRoutingConfig `json:"smartRouting"`
	MCPRouter    MCPRouterConfig    `json:"mcpRouter"`
}

// UserRecord is one entry of users[].
type UserRecord struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password-bcrypt"`
	IsAdmin      bool   `json:"isAdmin"`
}

// UserConfig is one entry of userConfigs, per-user preferences.
type UserConfig struct {
	DefaultScope string `json:"defaultScope,omitempty"`
}

// Document is the whole on-disk settings file.
type Document struct {
	MCPServers   map[string]*ServerConfig `json:"mcpServers"`
	Groups       []*Group                 `json:"groups"`
	Users        []UserRecord             `json:"users"`
	SystemConfig SystemConfig             `json:"systemConfig"`
	UserConfigs  map[string]UserConfig    `json:"userConfigs"`
}

// Empty returns the zero document used on load failure or first boot.
func Empty() *Document {
	return &Document{
		MCPServers:  map[string]*ServerConfig{},
		Groups:      []*Group{},
		Users:       []UserRecord{},
		UserConfigs: map[string]UserConfig{},
	}
}

// UnmarshalJSON stamps each ServerConfig's mcpServers map key onto its Name
// field. Encoding needs no counterpart, since Name is json:"-".
func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	for name, cfg := range a.MCPServers {
		cfg.Name = name
	}
	*d = Document(a)
	return nil
}
