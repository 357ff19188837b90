package registry

import (
	"testing"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/connector"
)

func TestResolveCollisions_DuplicateNamesGetServerPrefix(t *testing.T) {
	tools := []connector.ToolInfo{
		{Server: "a", Name: "search"},
		{Server: "b", Name: "search"},
		{Server: "a", Name: "unique"},
	}
	view := resolveCollisions("global", tools)

	names := map[string]bool{}
	for _, t := range view.Tools {
		names[t.ExposedName] = true
	}
	if !names["a/search"] || !names["b/search"] {
		t.Fatalf("expected prefixed names for collision, got %v", names)
	}
	if !names["unique"] {
		t.Fatalf("expected bare name for non-colliding tool, got %v", names)
	}
}

func TestView_Resolve_AmbiguousBareNameIsError(t *testing.T) {
	view := resolveCollisions("group:g1", []connector.ToolInfo{
		{Server: "a", Name: "search"},
		{Server: "b", Name: "search"},
	})

	if _, _, err := view.Resolve("search"); common.AsUpstreamError(err).Kind != common.KindNotFound {
		t.Fatalf("expected not-found/ambiguous error, got %v", err)
	}
	server, tool, err := view.Resolve("a/search")
	if err != nil || server != "a" || tool != "search" {
		t.Fatalf("expected exact qualified resolution, got (%q,%q,%v)", server, tool, err)
	}
}

func TestView_Resolve_UnambiguousBareNameResolves(t *testing.T) {
	view := resolveCollisions("server:a", []connector.ToolInfo{{Server: "a", Name: "search"}})
	server, tool, err := view.Resolve("search")
	if err != nil || server != "a" || tool != "search" {
		t.Fatalf("expected resolution, got (%q,%q,%v)", server, tool, err)
	}
}
