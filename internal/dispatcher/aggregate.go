package dispatcher

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/registry"
)

// ListPrompts aggregates prompts from every connector visible in view.
// Prompt names are passed through unchanged; names that collide across
// servers are not prefixed.
func (d *Dispatcher) ListPrompts(ctx context.Context, view *registry.View) ([]*mcp.Prompt, error) {
	var out []*mcp.Prompt
	for _, server := range serversInView(view) {
		c := d.pool.Get(server)
		if c == nil {
			continue
		}
		prompts, err := c.ListPrompts(ctx)
		if err != nil {
			continue
		}
		out = append(out, prompts...)
	}
	return out, nil
}

// GetPrompt forwards a prompts/get request to whichever connector in view
// reports a prompt by that name.
func (d *Dispatcher) GetPrompt(ctx context.Context, view *registry.View, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	for _, server := range serversInView(view) {
		c := d.pool.Get(server)
		if c == nil {
			continue
		}
		prompts, err := c.ListPrompts(ctx)
		if err != nil {
			continue
		}
		for _, p := range prompts {
			if p.Name == name {
				return c.GetPrompt(ctx, name, args)
			}
		}
	}
	return nil, common.NewUpstreamError(common.KindNotFound, "", "prompt not found", nil)
}

// ListResources aggregates resources from every connector visible in view.
func (d *Dispatcher) ListResources(ctx context.Context, view *registry.View) ([]*mcp.Resource, error) {
	var out []*mcp.Resource
	for _, server := range serversInView(view) {
		c := d.pool.Get(server)
		if c == nil {
			continue
		}
		resources, err := c.ListResources(ctx)
		if err != nil {
			continue
		}
		out = append(out, resources...)
	}
	return out, nil
}

// ReadResource forwards a resources/read request to whichever connector in
// view reports a resource by that URI.
func (d *Dispatcher) ReadResource(ctx context.Context, view *registry.View, uri string) (*mcp.ReadResourceResult, error) {
	for _, server := range serversInView(view) {
		c := d.pool.Get(server)
		if c == nil {
			continue
		}
		resources, err := c.ListResources(ctx)
		if err != nil {
			continue
		}
		for _, res := range resources {
			if res.URI == uri {
				return c.ReadResource(ctx, uri)
			}
		}
	}
	return nil, common.NewUpstreamError(common.KindNotFound, "", "resource not found", nil)
}
