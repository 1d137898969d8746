package actions

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modforge/moduled/internal/editor"
)

func testContext(t *testing.T) ModuleContext {
	t.Helper()
	return ModuleContext{ModuleID: "mod", WorkspaceDir: t.TempDir()}
}

func TestCatalogFilterAndOrder(t *testing.T) {
	r := NewWorkspaceRegistry(editor.New())

	all := r.Catalog(nil)
	if len(all) != 4 {
		t.Fatalf("catalog size = %d, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Name >= all[i].Name {
			t.Fatalf("catalog not sorted: %+v", all)
		}
	}

	subset := r.Catalog([]string{"read_file", "edit_code"})
	if len(subset) != 2 {
		t.Fatalf("filtered catalog = %+v", subset)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	action := Action{Name: "noop", Handler: func(context.Context, json.RawMessage, ModuleContext) (any, error) { return nil, nil }}
	if err := r.Register(action); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(action); err == nil {
		t.Fatal("duplicate register succeeded")
	}
}

func TestReadWriteListFiles(t *testing.T) {
	r := NewWorkspaceRegistry(editor.New())
	mc := testContext(t)
	ctx := context.Background()

	_, err := r.Execute(ctx, "write_file", json.RawMessage(`{"path":"src/main.go","content":"package main\n"}`), mc)
	if err != nil {
		t.Fatalf("write_file: %v", err)
	}

	result, err := r.Execute(ctx, "read_file", json.RawMessage(`{"path":"src/main.go"}`), mc)
	if err != nil {
		t.Fatalf("read_file: %v", err)
	}
	payload := result.(map[string]any)
	if payload["content"] != "package main\n" {
		t.Fatalf("read content = %v", payload["content"])
	}

	result, err = r.Execute(ctx, "list_files", json.RawMessage(`{"dir":"src"}`), mc)
	if err != nil {
		t.Fatalf("list_files: %v", err)
	}
	files := result.(map[string]any)["files"].([]string)
	if len(files) != 1 || files[0] != "main.go" {
		t.Fatalf("files = %v", files)
	}
}

func TestExecuteRejectsWorkspaceEscape(t *testing.T) {
	r := NewWorkspaceRegistry(editor.New())
	mc := testContext(t)
	ctx := context.Background()

	escapes := []string{`{"path":"../outside.txt","content":"x"}`, `{"path":"/etc/passwd","content":"x"}`}
	for _, args := range escapes {
		if _, err := r.Execute(ctx, "write_file", json.RawMessage(args), mc); err == nil {
			t.Errorf("write_file %s succeeded, want error", args)
		}
	}
}

func TestEditCodeAppliesBlocks(t *testing.T) {
	r := NewWorkspaceRegistry(editor.New())
	mc := testContext(t)
	ctx := context.Background()

	path := filepath.Join(mc.WorkspaceDir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	args := `{"path":"main.go","edits":[{"original":"func main() {}","updated":"func main() { run() }"}]}`
	result, err := r.Execute(ctx, "edit_code", json.RawMessage(args), mc)
	if err != nil {
		t.Fatalf("edit_code: %v", err)
	}
	payload := result.(map[string]any)
	if payload["applied"] != 1 {
		t.Fatalf("payload = %+v", payload)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "run()") {
		t.Fatalf("file content = %q", data)
	}
}

func TestEditCodeCreatesNewFile(t *testing.T) {
	r := NewWorkspaceRegistry(editor.New())
	mc := testContext(t)

	args := `{"path":"fresh.go","edits":[{"original":"","updated":"package fresh\n"}]}`
	if _, err := r.Execute(context.Background(), "edit_code", json.RawMessage(args), mc); err != nil {
		t.Fatalf("edit_code: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(mc.WorkspaceDir, "fresh.go"))
	if err != nil {
		t.Fatalf("read created file: %v", err)
	}
	if string(data) != "package fresh\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestEditCodeAllBlocksFailing(t *testing.T) {
	r := NewWorkspaceRegistry(editor.New())
	mc := testContext(t)

	path := filepath.Join(mc.WorkspaceDir, "main.go")
	original := "package main\n"
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	args := `{"path":"main.go","edits":[{"original":"zzzz-not-here","updated":"nope"}]}`
	if _, err := r.Execute(context.Background(), "edit_code", json.RawMessage(args), mc); err == nil {
		t.Fatal("edit_code succeeded with no matching block")
	}
	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Fatalf("file changed on failure: %q", data)
	}
}

func TestSharedActionDelegation(t *testing.T) {
	r := NewRegistry()
	var gotModule, gotAction string
	r.SetDelegate(func(_ context.Context, moduleID, action string, _ json.RawMessage) (any, error) {
		gotModule, gotAction = moduleID, action
		return "delegated", nil
	})

	result, err := r.Execute(context.Background(), "billing/read_file", json.RawMessage(`{}`), ModuleContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "delegated" || gotModule != "billing" || gotAction != "read_file" {
		t.Fatalf("delegation = (%v, %s, %s)", result, gotModule, gotAction)
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), "bogus", nil, ModuleContext{}); err == nil {
		t.Fatal("unknown action succeeded")
	}
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	r := NewRegistry()
	invoked := false
	if err := r.Register(Action{
		Name: "noop",
		Handler: func(context.Context, json.RawMessage, ModuleContext) (any, error) {
			invoked = true
			return nil, nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Execute(ctx, "noop", nil, ModuleContext{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if invoked {
		t.Fatal("handler ran despite cancelled context")
	}
}
