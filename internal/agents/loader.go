package agents

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const agentDefinitionFuncName = "AgentDefinition"

// ErrSymbolMissing marks an implementation file that interprets cleanly but
// does not export the expected AgentDefinition function.
var ErrSymbolMissing = errors.New("agent implementation does not define " + agentDefinitionFuncName)

// Loader locates and instantiates one agent implementation from a bundle
// file. Implementations must be safe for concurrent use.
type Loader interface {
	Load(path string) (Behavior, error)
}

// GoLoader interprets a bundle's Go implementation file and builds a Behavior
// from the definition it exports. The file must declare
// AgentDefinition() map[string]any (optionally with an error second return)
// carrying type_id, instructions, and an optional actions list.
type GoLoader struct{}

func (GoLoader) Load(path string) (Behavior, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent implementation %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("agent implementation %s is empty", path)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("prepare interpreter: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(agentDefinitionFuncName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrSymbolMissing)
	}
	def, err := invokeDefinitionFunc(fnValue)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return behaviorFromDefinition(path, def)
}

func invokeDefinitionFunc(value reflect.Value) (map[string]any, error) {
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, ErrSymbolMissing
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return map[string]any[, error]", agentDefinitionFuncName)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok && e != nil {
			return nil, e
		}
		return nil, fmt.Errorf("%s returned a non-error second value", agentDefinitionFuncName)
	}
	def, ok := results[0].Interface().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must return map[string]any", agentDefinitionFuncName)
	}
	return def, nil
}

func behaviorFromDefinition(path string, def map[string]any) (Behavior, error) {
	typeID, _ := def["type_id"].(string)
	typeID = strings.TrimSpace(typeID)
	if typeID == "" {
		return nil, fmt.Errorf("%s: definition has no type_id", path)
	}
	instructions, _ := def["instructions"].(string)

	var actions []string
	switch raw := def["actions"].(type) {
	case nil:
	case []string:
		actions = raw
	case []any:
		for _, entry := range raw {
			name, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%s: actions entries must be strings", path)
			}
			actions = append(actions, name)
		}
	default:
		return nil, fmt.Errorf("%s: actions must be a string list", path)
	}

	return behaviorSpec{typeID: typeID, instructions: instructions, actions: actions}, nil
}
