// Package session builds one mcp.Server per downstream client connection,
// deriving its scope from the request URL and registering the matching
// registry view's tools/prompts/resources against the dispatcher.
package session

import (
	"strings"

	"github.com/mcphub-dev/mcphub/internal/settings"
)

// Kind is one of the four scopes a session can be bound to.
type Kind string

const (
	KindGlobal Kind = "global"
	KindGroup  Kind = "group"
	KindServer Kind = "server"
	KindSmart  Kind = "smart"
)

// Scope is the resolved binding for one session.
type Scope struct {
	Kind Kind
	ID   string // group ID for KindGroup, server name for KindServer
}

// String renders the scope the way session IDs/logs reference it, e.g.
// "group:g1", "server:time", "smart", "global".
func (s Scope) String() string {
	switch s.Kind {
	case KindGroup, KindServer:
		return string(s.Kind) + ":" + s.ID
	default:
		return string(s.Kind)
	}
}

// DeriveScope implements the URL-derived scope rule: path segment absent
// -> global; "$smart" -> smart; a name matching a group -> group (group
// takes precedence over a same-named server); else a name matching a
// server -> server; else not-found.
func DeriveScope(segment string, doc *settings.Document) (Scope, bool) {
	segment = strings.Trim(segment, "/")
	if segment == "" {
		return Scope{Kind: KindGlobal}, true
	}
	if segment == "$smart" {
		return Scope{Kind: KindSmart}, true
	}
	if g := doc.FindGroupByName(segment); g != nil {
		return Scope{Kind: KindGroup, ID: g.ID}, true
	}
	if _, ok := doc.MCPServers[segment]; ok {
		return Scope{Kind: KindServer, ID: segment}, true
	}
	return Scope{}, false
}
