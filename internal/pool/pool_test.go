package pool

import (
	"context"
	"testing"
	"time"

	"github.com/mcphub-dev/mcphub/internal/settings"
)

func TestPool_Boot_SkipsDisabledServers(t *testing.T) {
	p := New(nil, 2*time.Second)
	disabled := false
	doc := settings.Empty()
	doc.MCPServers["off"] = &settings.ServerConfig{Name: "off", Kind: settings.KindStdio, Command: "nope", Enabled: &disabled}

	_ = p.Boot(context.Background(), doc)

	if p.Get("off") != nil {
		t.Fatal("expected disabled server to be skipped")
	}
}

func TestPool_Reconcile_RemovesDeletedServer(t *testing.T) {
	p := New(nil, time.Second)
	oldDoc := settings.Empty()
	oldDoc.MCPServers["time"] = &settings.ServerConfig{Name: "time", Kind: settings.KindStdio, Command: "does-not-exist-binary"}
	_ = p.Boot(context.Background(), oldDoc)

	if p.Get("time") == nil {
		t.Fatal("expected connector to be registered after boot")
	}

	newDoc := settings.Empty()
	p.Reconcile(context.Background(), oldDoc, newDoc)

	if p.Get("time") != nil {
		t.Fatal("expected connector to be removed after reconcile")
	}
}

func TestPool_Reconcile_IsIdempotentOnUnchangedDocument(t *testing.T) {
	p := New(nil, time.Second)
	doc := settings.Empty()
	doc.MCPServers["time"] = &settings.ServerConfig{Name: "time", Kind: settings.KindStdio, Command: "does-not-exist-binary"}
	_ = p.Boot(context.Background(), doc)

	before := p.Get("time")
	p.Reconcile(context.Background(), doc, doc)
	after := p.Get("time")

	if before != after {
		t.Fatal("expected reconcile against the same document to be a no-op")
	}
}
