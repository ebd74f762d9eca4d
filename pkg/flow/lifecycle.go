package flow

import (
	"context"

	"github.com/manifold-flow/manifold/pkg/value"
)

// Lifecycle is the three-phase contract every node implementation must
// satisfy. The engine calls exactly Prep → Exec → Post once per real
// execution, and zero times when a checkpoint replay serves the node.
//
// Routing is data: Post returns an Outcome whose Action selects the next
// edge. Returning an error from any phase marks the node failed.
type Lifecycle interface {
	// Prep reads whatever the node needs from the invocation and returns
	// an opaque work description for Exec.
	Prep(ctx context.Context, in *Invocation) (any, error)

	// Exec performs the node's core work. It must not touch the shared
	// store; everything it needs arrives in the prep result.
	Exec(ctx context.Context, prep any) (any, error)

	// Post turns the exec result into the node's outputs and the action
	// used to select the outgoing edge.
	Post(ctx context.Context, in *Invocation, prep, exec any) (Outcome, error)
}

// Invocation carries the per-execution view handed to each lifecycle phase:
// the node's identity, its fully resolved effective parameters, and a view
// of the shared store.
type Invocation struct {
	NodeID string
	Params *value.Map
	Store  *StoreView
}

// Outcome is the result of a node's Post phase.
type Outcome struct {
	// Action selects the outgoing edge; empty means DefaultAction.
	Action string
	// Outputs are written into the store under the node's namespace.
	Outputs *value.Map
}

// NodeInfo is what a registry lookup yields for a type name: a factory for
// the implementation plus the output keys the type declares statically.
// How types are versioned, stored, or discovered is the registry's concern.
type NodeInfo struct {
	New func() Lifecycle
	// Outputs lists the keys the node type is known to write.
	Outputs []string
	// DynamicOutputs marks types that write keys unknowable before
	// execution; declared workflow outputs always trace to such types.
	DynamicOutputs bool
}

// Registry resolves node type names to implementations.
type Registry interface {
	// Lookup returns the info for a type name, or an error when the type
	// is unknown.
	Lookup(typeName string) (NodeInfo, error)
	// Types returns all known type names, used for near-miss suggestions
	// in compile errors.
	Types() []string
}
