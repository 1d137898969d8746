// Package dispatch runs the request/response loop that lets a model
// repeatedly invoke actions against a module before producing a final
// answer. Every step is appended to the session ledger before and after it
// runs, so a crash mid-dispatch leaves an auditable trace of intent.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modforge/moduled/internal/actions"
	"github.com/modforge/moduled/internal/agents"
	"github.com/modforge/moduled/internal/ledger"
	"github.com/modforge/moduled/internal/lifecycle"
	"github.com/modforge/moduled/internal/model"
)

// DefaultMaxModelSteps bounds how many model turns one dispatch may take
// before it is abandoned as runaway.
const DefaultMaxModelSteps = 16

// Executor runs requested actions. *actions.Registry satisfies it.
type Executor interface {
	Execute(ctx context.Context, name string, args json.RawMessage, mc actions.ModuleContext) (any, error)
	Catalog(names []string) []model.ActionSchema
}

type Loop struct {
	Machine   *lifecycle.Machine
	Ledger    *ledger.Ledger
	Resolver  *agents.Resolver
	Completer model.Completer
	Executor  Executor

	// WorkspaceRoot is the directory holding one workspace per module.
	WorkspaceRoot string
	// MaxModelSteps overrides DefaultMaxModelSteps when > 0.
	MaxModelSteps int
}

type RunInput struct {
	ModuleID   string
	Profile    string
	SessionID  string
	BundlePath string
	Input      string
}

// Run drives one dispatch to completion and returns the full session
// history. Actions requested by the model run strictly in the order
// returned, one at a time; a failing action becomes an error tool_result and
// the batch continues. The module's busy flag is released on every exit
// path, including panic and cancellation.
func (l *Loop) Run(ctx context.Context, in RunInput) ([]ledger.Message, error) {
	if strings.TrimSpace(in.ModuleID) == "" {
		return nil, fmt.Errorf("module_id is required")
	}
	if strings.TrimSpace(in.Profile) == "" {
		return nil, fmt.Errorf("profile is required")
	}
	if l.Completer == nil {
		return nil, fmt.Errorf("no model configured")
	}

	unlock := l.Machine.Lock(in.ModuleID)
	defer unlock()

	if err := l.Machine.SetBusy(ctx, in.ModuleID); err != nil {
		return nil, err
	}
	defer func() {
		// Release even when ctx is already cancelled or the loop panicked.
		_ = l.Machine.SetIdle(context.WithoutCancel(ctx), in.ModuleID)
	}()

	return l.run(ctx, in)
}

func (l *Loop) run(ctx context.Context, in RunInput) ([]ledger.Message, error) {
	history, err := l.Ledger.Read(ctx, in.ModuleID, in.Profile, in.SessionID)
	if err != nil {
		return nil, err
	}

	userMsg, err := l.Ledger.Append(ctx, ledger.AppendInput{
		ModuleID:  in.ModuleID,
		Section:   in.Profile,
		SessionID: in.SessionID,
		Role:      ledger.RoleUser,
		Content:   in.Input,
	})
	if err != nil {
		return nil, err
	}
	history = append(history, userMsg)

	behavior, err := l.Resolver.Resolve(in.Profile, in.BundlePath)
	if err != nil {
		return nil, err
	}
	catalog := l.Executor.Catalog(behavior.Actions())
	mc := actions.ModuleContext{
		ModuleID:     in.ModuleID,
		WorkspaceDir: filepath.Join(l.WorkspaceRoot, in.ModuleID),
	}

	maxSteps := l.MaxModelSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxModelSteps
	}

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		completion, err := l.Completer.Complete(ctx, model.CompletionRequest{
			Instructions: behavior.Instructions(),
			History:      history,
			Catalog:      catalog,
		})
		if err != nil {
			return nil, fmt.Errorf("model step: %w", err)
		}

		if len(completion.Actions) == 0 {
			finalMsg, err := l.Ledger.Append(ctx, ledger.AppendInput{
				ModuleID:  in.ModuleID,
				Section:   in.Profile,
				SessionID: in.SessionID,
				Role:      ledger.RoleAssistant,
				Content:   completion.Content,
			})
			if err != nil {
				return nil, err
			}
			return append(history, finalMsg), nil
		}

		// The model narrated alongside its action batch; keep the narration.
		if strings.TrimSpace(completion.Content) != "" {
			noteMsg, err := l.Ledger.Append(ctx, ledger.AppendInput{
				ModuleID:  in.ModuleID,
				Section:   in.Profile,
				SessionID: in.SessionID,
				Role:      ledger.RoleAssistant,
				Content:   completion.Content,
			})
			if err != nil {
				return nil, err
			}
			history = append(history, noteMsg)
		}

		for _, action := range completion.Actions {
			// The caller's context aborts the batch between actions, never
			// mid-action; completed actions stay recorded.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			batch, err := l.runAction(ctx, in, action, mc)
			if err != nil {
				return nil, err
			}
			history = append(history, batch...)
		}
		// Loop back for another model step: the model sees the action
		// outputs and either continues or concludes.
	}
	return nil, fmt.Errorf("dispatch exceeded %d model steps", maxSteps)
}

// runAction records the request, executes it, and records the result. The
// request is written before execution so partial progress stays observable
// under process failure. Execution errors do not propagate; they become an
// error-carrying tool_result.
func (l *Loop) runAction(ctx context.Context, in RunInput, action model.ActionRequest, mc actions.ModuleContext) ([]ledger.Message, error) {
	callMsg, err := l.Ledger.Append(ctx, ledger.AppendInput{
		ModuleID:    in.ModuleID,
		Section:     in.Profile,
		SessionID:   in.SessionID,
		Role:        ledger.RoleAssistant,
		MessageType: ledger.TypeToolCall,
		Content:     fmt.Sprintf("requested action %s", action.Name),
		ToolData: map[string]any{
			"id":        action.ID,
			"name":      action.Name,
			"arguments": string(action.Arguments),
		},
	})
	if err != nil {
		return nil, err
	}

	result, execErr := l.executeAction(ctx, action, mc)
	toolData := map[string]any{"id": action.ID, "name": action.Name}
	content := fmt.Sprintf("action %s completed", action.Name)
	if execErr != nil {
		toolData["error"] = execErr.Error()
		content = fmt.Sprintf("action %s failed: %v", action.Name, execErr)
	} else {
		toolData["output"] = result
	}

	resultMsg, err := l.Ledger.Append(ctx, ledger.AppendInput{
		ModuleID:    in.ModuleID,
		Section:     in.Profile,
		SessionID:   in.SessionID,
		Role:        ledger.RoleTool,
		MessageType: ledger.TypeToolResult,
		Content:     content,
		ToolData:    toolData,
	})
	if err != nil {
		return nil, err
	}
	return []ledger.Message{callMsg, resultMsg}, nil
}

// executeAction isolates a single action, converting panics in handlers into
// ordinary errors so one misbehaving action cannot abort the batch.
func (l *Loop) executeAction(ctx context.Context, action model.ActionRequest, mc actions.ModuleContext) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", action.Name, r)
		}
	}()
	return l.Executor.Execute(ctx, action.Name, action.Arguments, mc)
}
