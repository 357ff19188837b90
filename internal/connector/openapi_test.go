package connector

import (
	"testing"

	"github.com/mcphub-dev/mcphub/internal/settings"
)

func TestSynthesizeTools_NamesMatchSpecScenario(t *testing.T) {
	doc := &oaDocument{
		Paths: map[string]oaPathItem{
			"/users": {
				"get":  {},
				"post": {},
			},
			"/users/{id}": {
				"get":    {},
				"delete": {},
			},
			"/admin/settings": {
				"get": {},
			},
			"/": {
				"get": {},
			},
		},
	}

	tools := synthesizeTools(doc)

	want := map[string]bool{
		"get_users": true, "post_users": true, "get_users1": true,
		"delete_users": true, "get_admin_settings": true, "get_root": true,
	}
	if len(tools) != len(want) {
		t.Fatalf("got %d tools, want %d: %v", len(tools), len(want), keys(tools))
	}
	for name := range want {
		if _, ok := tools[name]; !ok {
			t.Fatalf("expected tool %q, got %v", name, keys(tools))
		}
	}
}

func keys(m map[string]*openAPITool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSynthesizeTools_PrefersOperationID(t *testing.T) {
	doc := &oaDocument{
		Paths: map[string]oaPathItem{
			"/widgets": {"get": {OperationID: "listWidgets"}},
		},
	}
	tools := synthesizeTools(doc)
	if _, ok := tools["listWidgets"]; !ok {
		t.Fatalf("expected operationId to be used as tool name, got %v", keys(tools))
	}
}

func TestAssembleInputSchema_CombinesPathQueryAndBody(t *testing.T) {
	op := oaOperation{
		Parameters: []oaParameter{
			{Name: "id", In: "path"},
			{Name: "verbose", In: "query", Required: true, Schema: map[string]any{"type": "boolean"}},
		},
		RequestBody: &oaRequestBody{
			Required: true,
			Content: map[string]oaMediaType{
				"application/json": {Schema: map[string]any{"type": "object"}},
			},
		},
	}

	schema := assembleInputSchema(op)
	props := schema["properties"].(map[string]any)
	if _, ok := props["id"]; !ok {
		t.Fatal("expected path parameter in properties")
	}
	if _, ok := props["body"]; !ok {
		t.Fatal("expected request body in properties")
	}
	required := schema["required"].([]string)
	wantRequired := map[string]bool{"id": true, "verbose": true, "body": true}
	if len(required) != len(wantRequired) {
		t.Fatalf("required = %v, want keys of %v", required, wantRequired)
	}
}

func TestEffectiveBaseURL_PrefersDocumentServers(t *testing.T) {
	doc := &oaDocument{Servers: []oaServer{{URL: "https://api.example.com/v1/"}}}
	got := effectiveBaseURL(doc, &settings.OpenAPIPayload{URL: "https://spec.example.com/openapi.json"})
	if got != "https://api.example.com/v1" {
		t.Fatalf("got %q", got)
	}
}
