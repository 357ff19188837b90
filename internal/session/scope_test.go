package session

import (
	"testing"

	"github.com/mcphub-dev/mcphub/internal/settings"
)

func testDocument() *settings.Document {
	doc := settings.Empty()
	doc.MCPServers["time"] = &settings.ServerConfig{Name: "time", Kind: settings.KindStdio, Command: "time-server"}
	doc.Groups = append(doc.Groups, &settings.Group{ID: "g1", Name: "time"})
	return doc
}

func TestDeriveScope_Global(t *testing.T) {
	scope, ok := DeriveScope("", testDocument())
	if !ok || scope.Kind != KindGlobal {
		t.Fatalf("expected global scope, got %+v (ok=%v)", scope, ok)
	}
}

func TestDeriveScope_Smart(t *testing.T) {
	scope, ok := DeriveScope("$smart", testDocument())
	if !ok || scope.Kind != KindSmart {
		t.Fatalf("expected smart scope, got %+v (ok=%v)", scope, ok)
	}
}

func TestDeriveScope_GroupTakesPrecedenceOverServerWithSameName(t *testing.T) {
	// The fixture names both a server and a group "time"; group must win.
	scope, ok := DeriveScope("time", testDocument())
	if !ok || scope.Kind != KindGroup || scope.ID != "g1" {
		t.Fatalf("expected group scope g1, got %+v (ok=%v)", scope, ok)
	}
}

func TestDeriveScope_Server(t *testing.T) {
	scope, ok := DeriveScope("other-server", testDocument())
	if ok {
		t.Fatalf("expected not-found for unknown segment, got %+v", scope)
	}

	doc := testDocument()
	doc.MCPServers["solo"] = &settings.ServerConfig{Name: "solo", Kind: settings.KindStdio, Command: "solo-server"}
	scope, ok = DeriveScope("solo", doc)
	if !ok || scope.Kind != KindServer || scope.ID != "solo" {
		t.Fatalf("expected server scope solo, got %+v (ok=%v)", scope, ok)
	}
}

func TestScope_String(t *testing.T) {
	cases := []struct {
		scope Scope
		want  string
	}{
		{Scope{Kind: KindGlobal}, "global"},
		{Scope{Kind: KindSmart}, "smart"},
		{Scope{Kind: KindGroup, ID: "g1"}, "group:g1"},
		{Scope{Kind: KindServer, ID: "time"}, "server:time"},
	}
	for _, c := range cases {
		if got := c.scope.String(); got != c.want {
			t.Errorf("Scope{%+v}.String() = %q, want %q", c.scope, got, c.want)
		}
	}
}
