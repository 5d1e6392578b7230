package agent

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeTool struct {
	name      string
	sandboxed bool
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool " + f.name }
func (f *fakeTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: "ok"}, nil
}
func (f *fakeTool) RequiresSandbox() bool { return f.sandboxed }

func TestToolRegistry_RegisterAndGet(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&fakeTool{name: "alpha"})

	got, err := r.Get("alpha")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Name() != "alpha" {
		t.Errorf("Name() = %q, want alpha", got.Name())
	}

	if _, err := r.Get("missing"); err == nil {
		t.Error("expected error for unregistered tool")
	}
}

func TestToolRegistry_DuplicateOverwritesButKeepsOrder(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&fakeTool{name: "a"})
	r.Register(&fakeTool{name: "b"})
	r.Register(&fakeTool{name: "a", sandboxed: true})

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(all))
	}
	if all[0].Name() != "a" || all[1].Name() != "b" {
		t.Errorf("order = [%s, %s], want [a, b]", all[0].Name(), all[1].Name())
	}
	if !r.RequiresSandbox("a") {
		t.Error("expected overwritten tool 'a' to require sandbox")
	}
}

func TestToolRegistry_Schema(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&fakeTool{name: "alpha"})
	r.Register(&fakeTool{name: "beta"})

	schemas := r.Schema()
	if len(schemas) != 2 {
		t.Fatalf("len(Schema()) = %d, want 2", len(schemas))
	}
	if schemas[0].Name != "alpha" || schemas[1].Name != "beta" {
		t.Errorf("schema order = [%s, %s], want [alpha, beta]", schemas[0].Name, schemas[1].Name)
	}
}

func TestToolRegistry_RequiresSandbox(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&fakeTool{name: "plain"})
	r.Register(&fakeTool{name: "boxed", sandboxed: true})

	if r.RequiresSandbox("plain") {
		t.Error("plain tool should not require sandbox")
	}
	if !r.RequiresSandbox("boxed") {
		t.Error("boxed tool should require sandbox")
	}
	if r.RequiresSandbox("nonexistent") {
		t.Error("unregistered tool should not require sandbox")
	}
}
