package tool

import (
	"context"
	"testing"

	"github.com/rfenwick/aide/internal/config"
	"github.com/rfenwick/aide/internal/permission"
)

type stubTool struct {
	name string
}

func (t *stubTool) Name() string { return t.name }

func (t *stubTool) Definition() Definition {
	return Definition{Name: t.name, Parameters: map[string]any{"type": "object"}}
}

func (t *stubTool) Execute(ctx context.Context, params map[string]any, cwd string) (string, error) {
	return "stub", nil
}

func TestRegistryResolveIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "MyTool"})

	for _, name := range []string{"MyTool", "mytool", "MYTOOL"} {
		if _, ok := r.Resolve(name); !ok {
			t.Errorf("Resolve(%q) failed", name)
		}
	}
	if _, ok := r.Resolve("other"); ok {
		t.Error("Resolve(other) found an unregistered tool")
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "Zeta"})
	r.Register(&stubTool{name: "Alpha"})
	r.Register(&stubTool{name: "Mid"})

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("definitions = %d, want 3", len(defs))
	}
	if defs[0].Name != "Alpha" || defs[1].Name != "Mid" || defs[2].Name != "Zeta" {
		t.Errorf("definitions out of order: %v", defs)
	}
}

func TestRegistryPreCheckVerdicts(t *testing.T) {
	r := NewRegistry()
	r.Register(&ReadTool{})
	ctx := context.Background()
	settings := config.NewSettings()
	settings.Permissions.Deny = []string{"Read(**/.env)"}

	v, err := r.PreCheck(ctx, "Read", map[string]any{"file_path": "/src/main.go"}, "/src", settings, nil)
	if err != nil {
		t.Fatalf("PreCheck() error: %v", err)
	}
	if v.Required || v.Denied {
		t.Errorf("read-only verdict = %+v, want allowed", v)
	}

	v, err = r.PreCheck(ctx, "Read", map[string]any{"file_path": "/src/.env"}, "/src", settings, nil)
	if err != nil {
		t.Fatalf("PreCheck() error: %v", err)
	}
	if !v.Denied {
		t.Errorf("deny-rule verdict = %+v, want denied", v)
	}
}

func TestRegistryPreCheckUnguardedAsk(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "Deploy"})
	settings := config.NewSettings()

	v, err := r.PreCheck(context.Background(), "Deploy", map[string]any{"path": "/x"}, "/", settings, nil)
	if err != nil {
		t.Fatalf("PreCheck() error: %v", err)
	}
	if !v.Required || v.Request == nil {
		t.Fatalf("verdict = %+v, want ask with request", v)
	}
	if v.Request.ToolName != "Deploy" || v.Request.Type != permission.TypeAll {
		t.Errorf("request = %+v", v.Request)
	}
}

func TestRegistryPreCheckGuardedBuildsDiff(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")

	r := NewRegistry()
	r.Register(&EditTool{})
	settings := config.NewSettings()

	params := map[string]any{
		"file_path":  "main.go",
		"old_string": "func main() {}",
		"new_string": "func main() { run() }",
	}
	v, err := r.PreCheck(context.Background(), "Edit", params, dir, settings, nil)
	if err != nil {
		t.Fatalf("PreCheck() error: %v", err)
	}
	if !v.Required || v.Request == nil {
		t.Fatalf("verdict = %+v, want ask", v)
	}
	if v.Request.Type != permission.TypeWrite {
		t.Errorf("request type = %s, want write", v.Request.Type)
	}
	if v.Request.Diff == nil || v.Request.Diff.Added == 0 {
		t.Errorf("diff = %+v, want populated change preview", v.Request.Diff)
	}
}
