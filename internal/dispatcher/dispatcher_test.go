package dispatcher

import (
	"testing"
	"time"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/pool"
	"github.com/mcphub-dev/mcphub/internal/registry"
	"github.com/mcphub-dev/mcphub/internal/settings"
)

func TestDeadline_Effective_PicksSmallest(t *testing.T) {
	d := Deadline{SessionTimeout: 10 * time.Second, ConnectorTimeout: 5 * time.Second, MaxTotalTimeout: 30 * time.Second}
	if got := d.Effective(); got != 5*time.Second {
		t.Fatalf("expected 5s, got %v", got)
	}
}

func TestDeadline_Effective_DefaultsWhenUnset(t *testing.T) {
	d := Deadline{}
	if got := d.Effective(); got != DefaultTimeout {
		t.Fatalf("expected default %v, got %v", DefaultTimeout, got)
	}
}

func TestCallTool_UnknownQualifiedNameIsNotFound(t *testing.T) {
	p := pool.New(nil, time.Second)
	r := registry.New(p)
	disp := New(p, r, nil)

	view := r.Global()
	_, err := disp.CallTool(nil, view, "missing/tool", nil, Deadline{})
	if err == nil {
		t.Fatal("expected error for unresolved tool")
	}
	if kind := common.AsUpstreamError(err).Kind; kind != common.KindNotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSmartCall_WithoutIndexReturnsConfigError(t *testing.T) {
	p := pool.New(nil, time.Second)
	r := registry.New(p)
	disp := New(p, r, nil)

	doc := settings.Empty()
	view := r.Global()
	_ = doc
	_, err := disp.SmartCall(nil, view, "q", nil, 5, 0.7, Deadline{})
	if err == nil {
		t.Fatal("expected config error when smart routing index is nil")
	}
	if kind := common.AsUpstreamError(err).Kind; kind != common.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}
