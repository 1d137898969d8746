package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modforge/moduled/internal/editor"
)

// NewWorkspaceRegistry builds the registry of built-in workspace actions:
// reading, listing, and writing files, plus edit_code driving the edit
// engine. All paths are relative to the module's workspace directory.
func NewWorkspaceRegistry(engine *editor.Engine) *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(Action{
		Name:        "read_file",
		Description: "Read a file from the module workspace",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Workspace-relative file path"},
			},
			"required": []string{"path"},
		},
		Handler: readFileAction,
	}))
	must(r.Register(Action{
		Name:        "write_file",
		Description: "Create or overwrite a file in the module workspace",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"path", "content"},
		},
		Handler: writeFileAction,
	}))
	must(r.Register(Action{
		Name:        "list_files",
		Description: "List files under a workspace directory",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dir": map[string]any{"type": "string", "description": "Workspace-relative directory, defaults to the root"},
			},
		},
		Handler: listFilesAction,
	}))
	must(r.Register(Action{
		Name:        "edit_code",
		Description: "Apply search/replace edit blocks to a workspace file using fuzzy matching",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
				"edits": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"original": map[string]any{"type": "string"},
							"updated":  map[string]any{"type": "string"},
						},
						"required": []string{"original", "updated"},
					},
				},
			},
			"required": []string{"path", "edits"},
		},
		Handler: editCodeAction(engine),
	}))
	return r
}

// workspacePath resolves a workspace-relative path, rejecting escapes.
func workspacePath(mc ModuleContext, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path must be workspace-relative")
	}
	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the workspace")
	}
	return filepath.Join(mc.WorkspaceDir, cleaned), nil
}

func readFileAction(_ context.Context, args json.RawMessage, mc ModuleContext) (any, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("decode read_file arguments: %w", err)
	}
	path, err := workspacePath(mc, params.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", params.Path, err)
	}
	return map[string]any{"path": params.Path, "content": string(data)}, nil
}

func writeFileAction(_ context.Context, args json.RawMessage, mc ModuleContext) (any, error) {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("decode write_file arguments: %w", err)
	}
	path, err := workspacePath(mc, params.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(params.Content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", params.Path, err)
	}
	return map[string]any{"path": params.Path, "bytes": len(params.Content)}, nil
}

func listFilesAction(_ context.Context, args json.RawMessage, mc ModuleContext) (any, error) {
	var params struct {
		Dir string `json:"dir"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("decode list_files arguments: %w", err)
		}
	}
	dir := mc.WorkspaceDir
	if strings.TrimSpace(params.Dir) != "" {
		resolved, err := workspacePath(mc, params.Dir)
		if err != nil {
			return nil, err
		}
		dir = resolved
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{"files": []string{}}, nil
		}
		return nil, fmt.Errorf("list %s: %w", params.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return map[string]any{"files": names}, nil
}

func editCodeAction(engine *editor.Engine) Handler {
	return func(_ context.Context, args json.RawMessage, mc ModuleContext) (any, error) {
		var params struct {
			Path  string `json:"path"`
			Edits []struct {
				Original string `json:"original"`
				Updated  string `json:"updated"`
			} `json:"edits"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("decode edit_code arguments: %w", err)
		}
		if len(params.Edits) == 0 {
			return nil, fmt.Errorf("edit_code requires at least one edit block")
		}
		path, err := workspacePath(mc, params.Path)
		if err != nil {
			return nil, err
		}

		content := ""
		if data, err := os.ReadFile(path); err == nil {
			content = string(data)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", params.Path, err)
		}

		blocks := make([]editor.EditBlock, 0, len(params.Edits))
		for _, edit := range params.Edits {
			blocks = append(blocks, editor.EditBlock{FilePath: params.Path, Original: edit.Original, Updated: edit.Updated})
		}
		outcome := engine.Apply(content, blocks)

		if outcome.Failed < len(blocks) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create parent dir: %w", err)
			}
			if err := os.WriteFile(path, []byte(outcome.Content), 0o644); err != nil {
				return nil, fmt.Errorf("write %s: %w", params.Path, err)
			}
		}
		if outcome.Failed == len(blocks) {
			return nil, fmt.Errorf("no edit block matched %s: %s", params.Path, firstError(outcome))
		}
		return map[string]any{
			"path":    params.Path,
			"applied": len(blocks) - outcome.Failed,
			"failed":  outcome.Failed,
			"results": outcome.Results,
		}, nil
	}
}

func firstError(outcome editor.Outcome) string {
	for _, result := range outcome.Results {
		if result.Error != "" {
			return result.Error
		}
	}
	return "unknown failure"
}
