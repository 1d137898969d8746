// Package actions executes the named operations an agent may request. Local
// actions run against the module's workspace; actions addressed to another
// module are routed through the shared delegate.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/modforge/moduled/internal/model"
)

type ModuleContext struct {
	ModuleID     string
	WorkspaceDir string
}

type Handler func(ctx context.Context, args json.RawMessage, mc ModuleContext) (any, error)

type Action struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Delegate routes an action addressed to another module. The dispatch loop
// wires this to the target module's own registry and workspace.
type Delegate func(ctx context.Context, moduleID, action string, args json.RawMessage) (any, error)

type Registry struct {
	mu       sync.RWMutex
	actions  map[string]Action
	delegate Delegate
}

func NewRegistry() *Registry {
	return &Registry{actions: map[string]Action{}}
}

func (r *Registry) Register(action Action) error {
	name := strings.TrimSpace(action.Name)
	if name == "" {
		return fmt.Errorf("action name is required")
	}
	if action.Handler == nil {
		return fmt.Errorf("action %s has no handler", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %s is already registered", name)
	}
	action.Name = name
	r.actions[name] = action
	return nil
}

func (r *Registry) SetDelegate(delegate Delegate) {
	r.mu.Lock()
	r.delegate = delegate
	r.mu.Unlock()
}

// Catalog returns the schemas of the registered actions, restricted to the
// given names when the list is non-empty, sorted by name.
func (r *Registry) Catalog(names []string) []model.ActionSchema {
	allowed := map[string]struct{}{}
	for _, name := range names {
		allowed[name] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ActionSchema
	for name, action := range r.actions {
		if len(allowed) > 0 {
			if _, ok := allowed[name]; !ok {
				continue
			}
		}
		out = append(out, model.ActionSchema{
			Name:        name,
			Description: action.Description,
			Parameters:  action.Parameters,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs one action. A name of the form "module/action" is a shared
// action on another module and goes through the delegate.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, mc ModuleContext) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if target, action, ok := strings.Cut(name, "/"); ok {
		r.mu.RLock()
		delegate := r.delegate
		r.mu.RUnlock()
		if delegate == nil {
			return nil, fmt.Errorf("no delegate configured for shared action %s", name)
		}
		return delegate(ctx, target, action, args)
	}

	r.mu.RLock()
	action, ok := r.actions[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown action %s", name)
	}
	return action.Handler(ctx, args, mc)
}
