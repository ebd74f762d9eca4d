package flow

import (
	"fmt"

	"github.com/agext/levenshtein"

	"github.com/manifold-flow/manifold/pkg/value"
)

// validateStructure checks the graph skeleton: a non-empty node list,
// unique ids, and edge endpoints that reference existing nodes.
func validateStructure(ir *WorkflowIR) CompileErrors {
	var errs CompileErrors

	if len(ir.Nodes) == 0 {
		errs = append(errs, &CompileError{
			Phase:   "structure",
			Message: "workflow has no nodes",
		})
		return errs
	}

	seen := make(map[string]bool, len(ir.Nodes))
	for _, n := range ir.Nodes {
		if n.ID == "" {
			errs = append(errs, &CompileError{
				Phase:    "structure",
				NodeType: n.Type,
				Message:  "node has empty id",
			})
			continue
		}
		if seen[n.ID] {
			errs = append(errs, &CompileError{
				Phase:   "structure",
				NodeID:  n.ID,
				Message: "duplicate node id",
			})
		}
		seen[n.ID] = true
	}

	for _, e := range ir.Edges {
		if !seen[e.From] {
			errs = append(errs, &CompileError{
				Phase:      "structure",
				Message:    fmt.Sprintf("edge references unknown source node %q", e.From),
				Suggestion: closestMatch(e.From, nodeIDs(ir)),
			})
		}
		if !seen[e.To] {
			errs = append(errs, &CompileError{
				Phase:      "structure",
				Message:    fmt.Sprintf("edge references unknown target node %q", e.To),
				Suggestion: closestMatch(e.To, nodeIDs(ir)),
			})
		}
	}

	if ir.Start != "" && !seen[ir.Start] {
		errs = append(errs, &CompileError{
			Phase:      "structure",
			Message:    fmt.Sprintf("designated start node %q does not exist", ir.Start),
			Suggestion: closestMatch(ir.Start, nodeIDs(ir)),
		})
	}

	return errs
}

// validateInputs enforces that every required input has either an
// execution-time value or a declared default, before any node executes.
func validateInputs(ir *WorkflowIR, provided map[string]value.Value) CompileErrors {
	var errs CompileErrors
	for _, decl := range ir.Inputs {
		if !decl.Required || decl.Default != nil {
			continue
		}
		if _, ok := provided[decl.Name]; ok {
			continue
		}
		errs = append(errs, &CompileError{
			Phase:   "inputs",
			Message: fmt.Sprintf("required input %q has no value and no default", "inputs."+decl.Name),
		})
	}
	return errs
}

// validateTemplates checks that every template token's root identifier
// names an existing node or a declared workflow input. Unresolvable roots
// are hard compile errors with a closest-match suggestion.
func validateTemplates(ir *WorkflowIR) CompileErrors {
	roots := make(map[string]bool, len(ir.Nodes)+len(ir.Inputs))
	var candidates []string
	for _, n := range ir.Nodes {
		roots[n.ID] = true
		candidates = append(candidates, n.ID)
	}
	for _, in := range ir.Inputs {
		roots[in.Name] = true
		candidates = append(candidates, in.Name)
	}

	var errs CompileErrors
	for _, n := range ir.Nodes {
		if n.Params == nil {
			continue
		}
		// Batch nodes get one extra root: the per-item binding name.
		itemVar := ""
		if n.Params.Has(batchItemsParam) {
			itemVar = "item"
			if s := n.Params.GetString(batchVarParam); s != "" {
				itemVar = s
			}
		}
		for _, k := range n.Params.Keys() {
			pv, _ := n.Params.Get(k)
			for _, tok := range Tokens(k, pv) {
				if roots[tok.Root()] || tok.Root() == itemVar {
					continue
				}
				errs = append(errs, &CompileError{
					Phase:      "templates",
					NodeID:     n.ID,
					NodeType:   n.Type,
					Message:    fmt.Sprintf("param %q: template %s references unknown root %q", tok.Path, tok.Raw, tok.Root()),
					Suggestion: closestMatch(tok.Root(), candidates),
				})
			}
		}
	}
	return errs
}

// validateOutputs checks each declared output for traceability to some
// node's possible outputs. Untraceable outputs are warnings, never errors:
// implementations may write dynamically-named keys unknowable before
// execution.
//
// An output name is considered traceable when it matches a statically
// declared output key of some node's type, or a node id, or when any node's
// type declares dynamic outputs.
func validateOutputs(ir *WorkflowIR, infos map[string]NodeInfo) []Warning {
	anyDynamic := false
	known := make(map[string]bool)
	for _, n := range ir.Nodes {
		known[n.ID] = true
		info, ok := infos[n.Type]
		if !ok {
			continue
		}
		if info.DynamicOutputs {
			anyDynamic = true
		}
		for _, out := range info.Outputs {
			known[out] = true
			known[n.ID+"."+out] = true
		}
	}

	var warns []Warning
	for _, decl := range ir.Outputs {
		if anyDynamic || known[decl.Name] {
			continue
		}
		warns = append(warns, Warning{
			Message: fmt.Sprintf("declared output %q is not traceable to any node output", decl.Name),
		})
	}
	return warns
}

func nodeIDs(ir *WorkflowIR) []string {
	ids := make([]string, 0, len(ir.Nodes))
	for _, n := range ir.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// closestMatch returns the candidate with the smallest edit distance from
// name, or "" when nothing is plausibly close.
func closestMatch(name string, candidates []string) string {
	best := ""
	bestDist := len(name)/2 + 1 // anything further off is noise
	for _, c := range candidates {
		d := levenshtein.Distance(name, c, nil)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
