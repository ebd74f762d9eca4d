package flow

import (
	"context"
	"fmt"

	"github.com/manifold-flow/manifold/pkg/value"
)

// Batch extension: a node carrying batch_items runs its lifecycle once per
// element of the resolved collection. Every item executes against an
// isolated child resolution context (parent context plus a single item
// binding) and items share no mutable state — outputs travel back through
// each item's Outcome and are collected in input order. That isolation is
// what would let a parallel executor replace this loop without changing
// the contract.

// resolveBatchItems resolves the node's collection reference to a list. A
// string that resolves to serialized structured data is accepted so a raw
// upstream output can feed a fan-out directly.
func resolveBatchItems(node *CompiledNode, rc *ResolutionContext) ([]value.Value, error) {
	resolved := rc.Resolve(node.Batch.Items)
	if s, ok := resolved.AsString(); ok {
		if parsed, pOK := parseStructured(s); pOK {
			resolved = parsed
		}
	}
	items, ok := resolved.AsList()
	if !ok {
		return nil, fmt.Errorf("batch_items resolved to %s, want list", resolved.Kind().String())
	}
	return items, nil
}

// runBatch executes node once per item, sequentially and in order, and
// folds the per-item results into a single outcome: outputs "results"
// (ordered list) and "count".
func (e *Engine) runBatch(ctx context.Context, node *CompiledNode, rc *ResolutionContext, items []value.Value) (Outcome, error) {
	results := make([]value.Value, 0, len(items))

	for i, item := range items {
		// Same cooperative cancellation boundary as the node loop.
		select {
		case <-ctx.Done():
			return Outcome{}, fmt.Errorf("batch cancelled at item %d: %w", i, ctx.Err())
		default:
		}

		child := rc.WithBinding(node.Batch.Var, item)
		params := e.effectiveParams(node, child)

		outcome, err := e.invoke(ctx, node, params)
		if err != nil {
			return Outcome{}, fmt.Errorf("item %d: %w", i, err)
		}
		results = append(results, itemResult(outcome.Outputs))
	}

	outputs := value.NewMap()
	outputs.Set("results", value.FromList(results))
	outputs.Set("count", value.Int(int64(len(results))))
	return Outcome{Action: DefaultAction, Outputs: outputs}, nil
}

// itemResult condenses one item's outputs: a single-key output map yields
// the bare value, anything else is kept as the full map.
func itemResult(outputs *value.Map) value.Value {
	switch outputs.Len() {
	case 0:
		return value.Null()
	case 1:
		v, _ := outputs.Get(outputs.Keys()[0])
		return v
	default:
		return value.FromMap(outputs)
	}
}
