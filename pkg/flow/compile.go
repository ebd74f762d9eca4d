package flow

import (
	"fmt"

	"github.com/manifold-flow/manifold/pkg/value"
)

// Reserved parameter names recognized by the compiler for the batch
// extension (see batch.go). They never reach the node implementation.
const (
	batchItemsParam = "batch_items"
	batchVarParam   = "batch_var"
)

// CompiledNode is the runtime-owned wrapper around one node: its
// implementation, its params partitioned into compile-time static and
// per-execution templated sets, and its action-routed successors.
type CompiledNode struct {
	ID   string
	Type string
	Impl Lifecycle
	Info NodeInfo

	// StaticParams contain no template tokens and are fixed at compile.
	StaticParams *value.Map
	// TemplateParams are re-resolved against a fresh context before every
	// execution of the node.
	TemplateParams *value.Map

	// Successors maps an action string to the next node id. Exactly one
	// edge per (from, action) pair exists.
	Successors map[string]string

	// Batch, when set, makes the engine run the node once per item of the
	// resolved collection instead of once.
	Batch *BatchSpec
}

// BatchSpec configures fan-out over a collection for one node.
type BatchSpec struct {
	// Items is the unresolved collection reference (usually a whole-string
	// template like "${splitter.chunks}").
	Items value.Value
	// Var is the binding name each item is exposed under; default "item".
	Var string
}

// CompiledFlow is a validated, wired, executable node network. It is
// immutable after compilation and safe to execute repeatedly; each run owns
// its own shared store.
type CompiledFlow struct {
	Name    string
	Nodes   map[string]*CompiledNode
	Order   []string // declaration order, for deterministic iteration
	Start   string
	Inputs  []InputDecl
	Outputs []OutputDecl
	// Warnings collected during compilation (untraceable outputs etc).
	Warnings []Warning

	defaults map[string]value.Value
}

// InputDefaults returns the resolution-context layer built from declared
// input defaults.
func (f *CompiledFlow) InputDefaults() map[string]value.Value {
	return f.defaults
}

// CompileOptions carries compile-time knobs.
type CompileOptions struct {
	// Inputs are execution-time input values already known at compile
	// time; they satisfy required-input checks and shadow defaults.
	Inputs map[string]value.Value
}

// Compile validates a workflow document and wires it into an executable
// CompiledFlow. All discovered problems are reported together as
// CompileErrors; warnings ride on the returned flow.
func Compile(ir *WorkflowIR, reg Registry, opts CompileOptions) (*CompiledFlow, error) {
	if ir == nil {
		return nil, &CompileError{Phase: "structure", Message: "workflow document is nil"}
	}
	if reg == nil {
		return nil, &CompileError{Phase: "types", Message: "node registry is nil"}
	}

	if errs := validateStructure(ir); len(errs) > 0 {
		return nil, errs
	}

	var errs CompileErrors
	errs = append(errs, validateInputs(ir, opts.Inputs)...)
	errs = append(errs, validateTemplates(ir)...)

	// Resolve implementations. Lookup failures are collected so a single
	// compile reports every unknown type at once.
	infos := make(map[string]NodeInfo)
	nodes := make(map[string]*CompiledNode, len(ir.Nodes))
	order := make([]string, 0, len(ir.Nodes))
	for i := range ir.Nodes {
		spec := &ir.Nodes[i]
		info, err := reg.Lookup(spec.Type)
		if err != nil {
			errs = append(errs, &CompileError{
				Phase:      "types",
				NodeID:     spec.ID,
				NodeType:   spec.Type,
				Message:    fmt.Sprintf("unknown node type %q", spec.Type),
				Suggestion: closestMatch(spec.Type, reg.Types()),
			})
			continue
		}
		infos[spec.Type] = info

		impl := info.New()
		if impl == nil {
			errs = append(errs, &CompileError{
				Phase:    "types",
				NodeID:   spec.ID,
				NodeType: spec.Type,
				Message:  "node factory returned no implementation",
			})
			continue
		}

		cn := &CompiledNode{
			ID:             spec.ID,
			Type:           spec.Type,
			Impl:           impl,
			Info:           info,
			StaticParams:   value.NewMap(),
			TemplateParams: value.NewMap(),
			Successors:     make(map[string]string),
		}
		partitionParams(spec.Params, cn)
		nodes[spec.ID] = cn
		order = append(order, spec.ID)
	}

	// Wire edges into per-node successor maps.
	for _, e := range ir.Edges {
		action := e.Action
		if action == "" {
			action = DefaultAction
		}
		from, ok := nodes[e.From]
		if !ok {
			continue // structural pass already rejected unknown endpoints
		}
		if prev, dup := from.Successors[action]; dup {
			errs = append(errs, &CompileError{
				Phase:   "edges",
				NodeID:  e.From,
				Message: fmt.Sprintf("duplicate edge for action %q (to %q and %q)", action, prev, e.To),
			})
			continue
		}
		from.Successors[action] = e.To
	}

	if len(errs) > 0 {
		return nil, errs
	}

	start := ir.Start
	if start == "" {
		start = order[0]
	}

	defaults := make(map[string]value.Value)
	for _, decl := range ir.Inputs {
		if decl.Default != nil {
			defaults[decl.Name] = *decl.Default
		}
	}

	return &CompiledFlow{
		Name:     ir.Name,
		Nodes:    nodes,
		Order:    order,
		Start:    start,
		Inputs:   append([]InputDecl(nil), ir.Inputs...),
		Outputs:  append([]OutputDecl(nil), ir.Outputs...),
		Warnings: validateOutputs(ir, infos),
		defaults: defaults,
	}, nil
}

// partitionParams splits a node's declared params into static and templated
// sets and peels off the reserved batch params.
func partitionParams(params *value.Map, cn *CompiledNode) {
	if params == nil {
		return
	}
	for _, k := range params.Keys() {
		pv, _ := params.Get(k)
		switch k {
		case batchItemsParam:
			if cn.Batch == nil {
				cn.Batch = &BatchSpec{Var: "item"}
			}
			cn.Batch.Items = pv
		case batchVarParam:
			if cn.Batch == nil {
				cn.Batch = &BatchSpec{Var: "item"}
			}
			if s, ok := pv.AsString(); ok && s != "" {
				cn.Batch.Var = s
			}
		default:
			if HasTokens(pv) {
				cn.TemplateParams.Set(k, pv)
			} else {
				cn.StaticParams.Set(k, pv.Clone())
			}
		}
	}
}
