package connector

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HeaderRoundTripper injects static headers into every outbound request,
// overriding any already present. Shared by both the MCP client transports
// and the openapi HTTP client.
type HeaderRoundTripper struct {
	Base    http.RoundTripper
	Headers map[string]string
}

func (rt HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}
	cloned := req.Clone(req.Context())
	for k, v := range rt.Headers {
		cloned.Header.Set(k, v)
	}
	return base.RoundTrip(cloned)
}

func (c *Connector) httpClient(headers map[string]string) *http.Client {
	return &http.Client{
		Transport: HeaderRoundTripper{Headers: headers},
		Timeout:   30 * time.Second,
	}
}

func (c *Connector) sseTransport() mcp.Transport {
	return &mcp.SSEClientTransport{
		Endpoint:   c.cfg.URL,
		HTTPClient: c.httpClient(c.cfg.GetSubstitutedHeaders()),
	}
}

func (c *Connector) streamableTransport() mcp.Transport {
	return &mcp.StreamableClientTransport{
		Endpoint:   c.cfg.URL,
		HTTPClient: c.httpClient(c.cfg.GetSubstitutedHeaders()),
	}
}

func (c *Connector) initTransport(ctx context.Context, transport mcp.Transport) error {
	client := mcp.NewClient(&mcp.Implementation{Name: "mcphub", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.name, err)
	}

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		session.Close()
		return fmt.Errorf("failed to list tools for %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.client = client
	c.session = session
	c.mu.Unlock()
	c.setTools(tools.Tools)
	return nil
}

func (c *Connector) initStdio(ctx context.Context) error {
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Env = append(os.Environ(), cmd.Env...)
	for k, v := range c.cfg.GetSubstitutedEnv() {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	transport := &mcp.CommandTransport{Command: cmd}

	if err := c.initTransport(ctx, transport); err != nil {
		return err
	}
	c.mu.Lock()
	c.cmd = cmd
	if cmd.Process != nil {
		c.pid = cmd.Process.Pid
	}
	c.mu.Unlock()
	return nil
}
