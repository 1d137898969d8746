// Package agents resolves a (module, profile) pair to the concrete agent
// behavior driving its dispatches: either one of the built-ins registered at
// process start, or an implementation loaded at runtime from a deployment
// bundle.
package agents

// Behavior is the capability interface every agent implementation provides.
type Behavior interface {
	// TypeID is the identifier the implementation reports about itself. For
	// bundle-loaded agents it must equal the name declared in the manifest.
	TypeID() string
	// Instructions is the system guidance sent with every model step.
	Instructions() string
	// Actions lists the action names this agent may request. Empty means the
	// full catalog.
	Actions() []string
}

type behaviorSpec struct {
	typeID       string
	instructions string
	actions      []string
}

func (a behaviorSpec) TypeID() string       { return a.typeID }
func (a behaviorSpec) Instructions() string { return a.instructions }
func (a behaviorSpec) Actions() []string    { return a.actions }

// Builtins returns the fixed set of agent behaviors registered at startup,
// one per lifecycle workflow.
func Builtins() []Behavior {
	return []Behavior{
		behaviorSpec{
			typeID: "initialize",
			instructions: "You are setting up a freshly created module. Inspect the workspace, " +
				"scaffold the files the capability manifest calls for, and report what you built. " +
				"Use edit_code for every source change.",
		},
		behaviorSpec{
			typeID: "maintain",
			instructions: "You maintain an existing module. Apply the requested change with the " +
				"smallest edit that keeps the workspace consistent, and describe what changed.",
		},
		behaviorSpec{
			typeID: "remove",
			instructions: "You are winding a module down. Remove its artifacts from the workspace " +
				"and summarize anything the operator must clean up by hand.",
			actions: []string{"read_file", "list_files", "edit_code"},
		},
	}
}
