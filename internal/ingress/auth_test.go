package ingress

import "testing"

func TestExtractAuthToken(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"Bearer abc123":     "abc123",
		"bearer abc123":     "abc123",
		"raw-token-no-pfx":  "raw-token-no-pfx",
		"Basic dXNlcjpwYXNz": "Basic dXNlcjpwYXNz",
	}
	for header, want := range cases {
		if got := extractAuthToken(header); got != want {
			t.Errorf("extractAuthToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestScopeSegment(t *testing.T) {
	cases := []struct{ path, base, want string }{
		{"/mcp", "", ""},
		{"/mcp/", "", ""},
		{"/mcp/$smart", "", "$smart"},
		{"/mcp/myserver", "", "myserver"},
		{"/sse/mygroup", "", "mygroup"},
		{"/messages", "", ""},
	}
	for _, c := range cases {
		if got := scopeSegment(c.path, c.base); got != c.want {
			t.Errorf("scopeSegment(%q, %q) = %q, want %q", c.path, c.base, got, c.want)
		}
	}
}

func TestIsToolCallPath(t *testing.T) {
	if !isToolCallPath("/api/tools/call/time") {
		t.Error("expected /api/tools/call/time to be a tool-call path")
	}
	if !isToolCallPath("/mcp") {
		t.Error("expected /mcp to be a tool-call path (mcp transport)")
	}
	if isToolCallPath("/api/servers") {
		t.Error("did not expect /api/servers to be a tool-call path")
	}
}
