package agents

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const reviewerSource = `package main

func AgentDefinition() map[string]any {
	return map[string]any{
		"type_id":      "reviewer",
		"instructions": "Review every change to the module sources.",
		"actions":      []string{"read_file", "list_files"},
	}
}`

func writeAgentFile(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.go")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("write agent file: %v", err)
	}
	return path
}

func TestGoLoaderLoad(t *testing.T) {
	path := writeAgentFile(t, reviewerSource)

	behavior, err := GoLoader{}.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if behavior.TypeID() != "reviewer" {
		t.Errorf("type id = %q", behavior.TypeID())
	}
	if behavior.Instructions() == "" {
		t.Error("instructions empty")
	}
	actions := behavior.Actions()
	if len(actions) != 2 || actions[0] != "read_file" {
		t.Errorf("actions = %v", actions)
	}
}

func TestGoLoaderMissingSymbol(t *testing.T) {
	path := writeAgentFile(t, "package main\n\nvar unrelated = 1\n")

	_, err := GoLoader{}.Load(path)
	if !errors.Is(err, ErrSymbolMissing) {
		t.Fatalf("err = %v, want ErrSymbolMissing", err)
	}
}

func TestGoLoaderRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name   string
		source string
	}{
		{"no type_id", `package main

func AgentDefinition() map[string]any {
	return map[string]any{"instructions": "x"}
}`},
		{"wrong return type", `package main

func AgentDefinition() string { return "reviewer" }`},
		{"bad actions", `package main

func AgentDefinition() map[string]any {
	return map[string]any{"type_id": "reviewer", "actions": 7}
}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeAgentFile(t, tc.source)
			if _, err := (GoLoader{}).Load(path); err == nil {
				t.Fatal("Load accepted a bad definition")
			}
		})
	}
}

func TestGoLoaderDefinitionError(t *testing.T) {
	path := writeAgentFile(t, `package main

import "errors"

func AgentDefinition() (map[string]any, error) {
	return nil, errors.New("not configured")
}`)
	if _, err := (GoLoader{}).Load(path); err == nil {
		t.Fatal("Load ignored the definition error")
	}
}
