// Package registry computes the merged, name-collision-resolved view of
// tools across the connector pool, built on the pool's read-only query
// surface with a "/" scope-qualified namespacing form for colliding tool
// names.
package registry

import (
	"sort"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/connector"
	"github.com/mcphub-dev/mcphub/internal/pool"
	"github.com/mcphub-dev/mcphub/internal/settings"
)

// ExposedTool is one entry of a materialized View: the tool's info plus the
// name it is exposed under in that view (bare, or "{server}/{tool}" when
// another server in the same view exposes the same bare name).
type ExposedTool struct {
	connector.ToolInfo
	ExposedName string
}

// View is the materialized, scope-filtered tool list for one session.
type View struct {
	Scope string
	Tools []ExposedTool
}

// Registry computes Views on demand from the pool's current snapshot; it
// holds no state of its own (the pool and settings document are the source
// of truth; Registry never holds a back-pointer into either.
type Registry struct {
	pool *pool.Pool
}

// New builds a Registry over pool.
func New(p *pool.Pool) *Registry {
	return &Registry{pool: p}
}

// visibleTools returns every (connector, tool) pair that is not hidden by
// a disabled connector or a disabled per-tool override (the per-tool
// disable is already applied by connector.setTools).
func (r *Registry) visibleTools() []connector.ToolInfo {
	var out []connector.ToolInfo
	for _, c := range r.pool.List() {
		if !c.Config().IsEnabled() || c.Status() != connector.StatusConnected {
			continue
		}
		out = append(out, c.Tools()...)
	}
	return out
}

// Global returns the view of every visible tool, scope-resolved for name
// collisions.
func (r *Registry) Global() *View {
	return resolveCollisions("global", r.visibleTools())
}

// Server returns the view restricted to one server's tools.
func (r *Registry) Server(name string) *View {
	var out []connector.ToolInfo
	for _, t := range r.visibleTools() {
		if t.Server == name {
			out = append(out, t)
		}
	}
	return resolveCollisions("server:"+name, out)
}

// Group returns the view admitted by a group's member rules, skipping
// members whose server no longer exists (already
// guaranteed by visibleTools only returning live connectors).
func (r *Registry) Group(doc *settings.Document, g *settings.Group) *View {
	admitted := map[string]map[string]bool{} // server -> tool name -> true, nil map means "all"
	for _, m := range g.Members {
		if m.AdmitsAll() {
			admitted[m.Name] = nil
			continue
		}
		set := map[string]bool{}
		for _, t := range m.Tools {
			set[t] = true
		}
		admitted[m.Name] = set
	}

	var out []connector.ToolInfo
	for _, t := range r.visibleTools() {
		rule, member := admitted[t.Server]
		if !member {
			continue
		}
		if rule == nil || rule[t.Name] {
			out = append(out, t)
		}
	}
	return resolveCollisions("group:"+g.ID, out)
}

// resolveCollisions applies the name-collision policy: a bare tool
// name exposed by more than one server becomes "{server}/{tool}" for every
// server that has it; otherwise the bare name is used.
func resolveCollisions(scope string, tools []connector.ToolInfo) *View {
	counts := map[string]int{}
	for _, t := range tools {
		counts[t.Name]++
	}

	out := make([]ExposedTool, 0, len(tools))
	for _, t := range tools {
		name := t.Name
		if counts[t.Name] > 1 {
			name = t.Server + "/" + t.Name
		}
		out = append(out, ExposedTool{ToolInfo: t, ExposedName: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExposedName < out[j].ExposedName })
	return &View{Scope: scope, Tools: out}
}

// Resolve implements the reverse mapping: an exact "{server}/{tool}"
// binds to that server; a bare name binds only if unambiguous, else
// ErrAmbiguousTool.
func (v *View) Resolve(qualifiedName string) (server, tool string, err error) {
	for _, t := range v.Tools {
		if t.ExposedName == qualifiedName {
			return t.Server, t.Name, nil
		}
	}
	// Bare-name fallback against possibly-prefixed entries.
	var matches []ExposedTool
	for _, t := range v.Tools {
		if t.Name == qualifiedName {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return "", "", common.NewUpstreamError(common.KindNotFound, "", "tool not found: "+qualifiedName, nil)
	case 1:
		return matches[0].Server, matches[0].Name, nil
	default:
		return "", "", common.NewUpstreamError(common.KindNotFound, "", "ambiguous", common.ErrAmbiguousTool)
	}
}
