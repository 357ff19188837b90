// Package dispatcher resolves inbound listTools/listPrompts/listResources/
// callTool/smartCall requests against a registry view and forwards them to
// the target connector, handling qualified-name resolution and argument
// forwarding for any scope-filtered view over the pool.
package dispatcher

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/metrics"
	"github.com/mcphub-dev/mcphub/internal/pool"
	"github.com/mcphub-dev/mcphub/internal/registry"
	"github.com/mcphub-dev/mcphub/internal/smartroute"
)

// DefaultTimeout is the dispatcher-level call timeout. It applies when
// neither the session nor the connector's options specify one, and it is
// also the upper bound of every effective deadline.
const DefaultTimeout = 60 * time.Second

// Deadline describes the three timeout inputs an effective deadline is
// computed from: whichever of the three is smallest.
type Deadline struct {
	SessionTimeout  time.Duration // 0 means unset
	ConnectorTimeout time.Duration
	MaxTotalTimeout time.Duration
}

// Effective returns the smallest positive duration among d's fields and
// DefaultTimeout.
func (d Deadline) Effective() time.Duration {
	eff := DefaultTimeout
	for _, v := range []time.Duration{d.SessionTimeout, d.ConnectorTimeout, d.MaxTotalTimeout} {
		if v > 0 && v < eff {
			eff = v
		}
	}
	return eff
}

// Dispatcher forwards resolved calls to the connector pool.
type Dispatcher struct {
	pool     *pool.Pool
	registry *registry.Registry
	index    *smartroute.Index
	metrics  *metrics.Recorder
}

// New builds a Dispatcher over p/r/idx. idx may be nil if smart routing is
// disabled; SmartCall then always returns common.KindConfig.
func New(p *pool.Pool, r *registry.Registry, idx *smartroute.Index) *Dispatcher {
	return &Dispatcher{pool: p, registry: r, index: idx}
}

// SetMetrics attaches a recorder for tool-call/smart-search instruments.
// Metrics stay a no-op until this is called, so existing callers and tests
// that build a Dispatcher without one are unaffected.
func (d *Dispatcher) SetMetrics(m *metrics.Recorder) {
	d.metrics = m
}

// ListTools flattens view into its exposed-name tool list.
func (d *Dispatcher) ListTools(view *registry.View) []registry.ExposedTool {
	return view.Tools
}

// CallTool resolves qualifiedName within view and forwards args to the
// owning connector, honoring the effective deadline.
func (d *Dispatcher) CallTool(ctx context.Context, view *registry.View, qualifiedName string, args map[string]any, deadline Deadline) (*mcp.CallToolResult, error) {
	server, tool, err := view.Resolve(qualifiedName)
	if err != nil {
		return nil, err
	}

	c := d.pool.Get(server)
	if c == nil {
		return nil, common.NewUpstreamError(common.KindNotFound, server, "server not found", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, deadline.Effective())
	defer cancel()

	start := time.Now()
	result, err := c.CallTool(callCtx, tool, args)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if callCtx.Err() != nil {
			d.recordToolCall(ctx, server, tool, "timeout", elapsed)
			return nil, common.NewUpstreamError(common.KindTimeout, server, "call deadline exceeded", err)
		}
		d.recordToolCall(ctx, server, tool, "error", elapsed)
		return nil, err
	}
	d.recordToolCall(ctx, server, tool, "ok", elapsed)
	return result, nil
}

func (d *Dispatcher) recordToolCall(ctx context.Context, server, tool, status string, seconds float64) {
	if d.metrics != nil {
		d.metrics.RecordToolCall(ctx, server, tool, status, seconds)
	}
}

func (d *Dispatcher) recordSmartSearch(ctx context.Context, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordSmartSearch(ctx, outcome)
	}
}

// SmartMargin is how much the top candidate's similarity must exceed the
// runner-up's before smartCall auto-invokes it directly.
const SmartMargin = 0.08

// SmartResult is returned by SmartCall: either a single auto-invoked tool
// call's result, or the ranked candidate list for the client to choose from.
type SmartResult struct {
	Invoked    *registry.ExposedTool
	CallResult *mcp.CallToolResult
	Candidates []smartroute.Match
}

// SmartCall searches for tools matching query, auto-invoking the sole clear
// winner or else returning the ranked candidate list.
func (d *Dispatcher) SmartCall(ctx context.Context, view *registry.View, query string, args map[string]any, k int, threshold float64, deadline Deadline) (*SmartResult, error) {
	if d.index == nil {
		return nil, common.NewUpstreamError(common.KindConfig, "", "smart routing is not enabled", nil)
	}

	scopeServers := serversInView(view)
	matches, err := d.index.Search(ctx, query, k, threshold, scopeServers)
	if err != nil {
		d.recordSmartSearch(ctx, "error")
		return nil, err
	}
	if len(matches) == 0 {
		d.recordSmartSearch(ctx, "no-match")
		return &SmartResult{Candidates: matches}, nil
	}
	if len(matches) == 1 || matches[0].Similarity-matches[1].Similarity >= SmartMargin {
		top := matches[0]
		qualified := top.Server + "/" + top.Tool
		result, err := d.CallTool(ctx, view, qualified, args, deadline)
		if err != nil {
			// Fall through to bare name in case the view doesn't need prefixing.
			result, err = d.CallTool(ctx, view, top.Tool, args, deadline)
			if err != nil {
				d.recordSmartSearch(ctx, "error")
				return nil, err
			}
		}
		var invoked *registry.ExposedTool
		for _, t := range view.Tools {
			if t.Server == top.Server && t.Name == top.Tool {
				tt := t
				invoked = &tt
				break
			}
		}
		d.recordSmartSearch(ctx, "auto-invoked")
		return &SmartResult{Invoked: invoked, CallResult: result, Candidates: matches}, nil
	}
	d.recordSmartSearch(ctx, "ambiguous")
	return &SmartResult{Candidates: matches}, nil
}

func serversInView(view *registry.View) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range view.Tools {
		if !seen[t.Server] {
			seen[t.Server] = true
			out = append(out, t.Server)
		}
	}
	return out
}
