// Package flow implements the workflow orchestration engine: a declarative
// graph of typed nodes is compiled into a wired, executable network and
// walked in dependency order, with cross-node data passed through a
// namespaced shared store and node-level checkpointing for resumable runs.
package flow

import "github.com/manifold-flow/manifold/pkg/value"

// DefaultAction is the implicit edge action taken when a node signals
// ordinary completion.
const DefaultAction = "default"

// NodeSpec declares one unit of work in a workflow document. Params values
// may embed ${...} template tokens, including tokens nested inside list and
// map structures.
type NodeSpec struct {
	ID     string     `json:"id" yaml:"id"`
	Type   string     `json:"type" yaml:"type"`
	Params *value.Map `json:"params,omitempty" yaml:"params,omitempty"`
}

// Edge is a directed, action-labelled connection between two nodes. An
// empty action means DefaultAction.
type Edge struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
}

// InputDecl declares a workflow input parameter.
type InputDecl struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool         `json:"required,omitempty" yaml:"required,omitempty"`
	TypeHint    string       `json:"type,omitempty" yaml:"type,omitempty"`
	Default     *value.Value `json:"default,omitempty" yaml:"default,omitempty"`
}

// OutputDecl declares a workflow output. Advisory only: untraceable outputs
// produce compile warnings, never errors, because node implementations may
// write dynamically-named keys.
type OutputDecl struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	TypeHint    string `json:"type,omitempty" yaml:"type,omitempty"`
}

// WorkflowIR is the parsed workflow document consumed by Compile.
type WorkflowIR struct {
	Name    string      `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes   []NodeSpec  `json:"nodes" yaml:"nodes"`
	Edges   []Edge      `json:"edges,omitempty" yaml:"edges,omitempty"`
	Inputs  InputDecls  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs OutputDecls `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// Start optionally designates the start node; when empty the first
	// node in declaration order starts the flow.
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
}

// Node returns the spec with the given id, or nil.
func (ir *WorkflowIR) Node(id string) *NodeSpec {
	for i := range ir.Nodes {
		if ir.Nodes[i].ID == id {
			return &ir.Nodes[i]
		}
	}
	return nil
}

// Input returns the input declaration with the given name, or nil.
func (ir *WorkflowIR) Input(name string) *InputDecl {
	for i := range ir.Inputs {
		if ir.Inputs[i].Name == name {
			return &ir.Inputs[i]
		}
	}
	return nil
}

// OutgoingEdges returns all edges leaving nodeID, in definition order.
func (ir *WorkflowIR) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range ir.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}
