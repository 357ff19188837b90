package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcphub-dev/mcphub/internal/common"
)

func TestStore_Load_MissingFileReturnsEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	store := NewStore(path, nil)

	doc := store.Load()
	if len(doc.MCPServers) != 0 {
		t.Fatalf("expected empty document, got %d servers", len(doc.MCPServers))
	}
}

func TestStore_Load_CorruptFileReturnsEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store := NewStore(path, nil)

	doc := store.Load()
	if doc == nil || len(doc.MCPServers) != 0 {
		t.Fatalf("expected empty document on corrupt file, got %+v", doc)
	}
}

func TestStore_SaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	store := NewStore(path, nil)

	doc := Empty()
	enabled := true
	doc.MCPServers["time"] = &ServerConfig{Name: "time", Kind: KindStdio, Command: "time-mcp", Enabled: &enabled}

	if err := store.Save(doc, "admin"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	store.ClearCache()
	reloaded := store.Load()
	cfg, ok := reloaded.MCPServers["time"]
	if !ok {
		t.Fatalf("expected reloaded document to contain server %q", "time")
	}
	if cfg.Command != "time-mcp" {
		t.Fatalf("Command = %q, want %q", cfg.Command, "time-mcp")
	}
}

func TestStore_Save_UpdatesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_settings.json")
	store := NewStore(path, nil)
	_ = store.Load()

	if err := store.Save(Empty(), ""); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if store.Load() == nil {
		t.Fatalf("expected Load() to return the saved document")
	}
}

func TestServerConfig_Validate_RejectsMultiplePayloads(t *testing.T) {
	cfg := &ServerConfig{Name: "bad", Kind: KindStdio, Command: "x", URL: "http://example.com"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	ue := common.AsUpstreamError(err)
	if ue.Kind != common.KindConfig {
		t.Fatalf("expected config error kind, got %v", ue.Kind)
	}
}

func TestDocument_AddServer_RefusesNameCollision(t *testing.T) {
	doc := Empty()
	if err := doc.AddServer(&ServerConfig{Name: "time", Kind: KindStdio, Command: "time-mcp"}); err != nil {
		t.Fatalf("first AddServer() error = %v", err)
	}
	err := doc.AddServer(&ServerConfig{Name: "time", Kind: KindStdio, Command: "other-mcp"})
	if err == nil {
		t.Fatal("expected collision error")
	}
	ue := common.AsUpstreamError(err)
	if ue.Kind != common.KindConfig {
		t.Fatalf("expected config error kind, got %v", ue.Kind)
	}
}

func TestServerConfig_GetSubstitutedHeaders_ExpandsEnv(t *testing.T) {
	t.Setenv("API_TOKEN", "secret123")
	cfg := &ServerConfig{Headers: map[string]string{"Authorization": "Bearer ${API_TOKEN}"}}
	got := cfg.GetSubstitutedHeaders()
	if got["Authorization"] != "Bearer secret123" {
		t.Fatalf("Authorization = %q", got["Authorization"])
	}
}

func TestDocument_ValidMembers_SkipsStaleServerReferences(t *testing.T) {
	doc := Empty()
	_ = doc.AddServer(&ServerConfig{Name: "time", Kind: KindStdio, Command: "time-mcp"})
	g := &Group{ID: "g1", Name: "grp", Members: []GroupMember{{Name: "time"}, {Name: "removed"}}}

	members := doc.ValidMembers(g)
	if len(members) != 1 || members[0].Name != "time" {
		t.Fatalf("expected only the live server reference, got %+v", members)
	}
}
