// Package model defines the completion port the dispatch loop drives. The
// transport is opaque to the engine: a completer receives the full session
// history plus the action catalog and answers with either final content or a
// batch of requested actions.
package model

import (
	"context"
	"encoding/json"

	"github.com/modforge/moduled/internal/ledger"
)

// ActionSchema describes one action the model may request.
type ActionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ActionRequest is one action invocation proposed by the model.
type ActionRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Completion is a single model step: plain content ends the dispatch,
// requested actions continue it.
type Completion struct {
	Content string
	Actions []ActionRequest
}

type CompletionRequest struct {
	Instructions string
	History      []ledger.Message
	Catalog      []ActionSchema
}

type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}
