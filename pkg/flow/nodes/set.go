package nodes

import (
	"context"
	"fmt"

	"github.com/manifold-flow/manifold/pkg/flow"
	"github.com/manifold-flow/manifold/pkg/value"
)

// SetNode copies its "key"/"value" params into its outputs, making a
// resolved value addressable for downstream nodes. An optional "action"
// param overrides the routing action, which lets a flow branch on any
// resolved value.
type SetNode struct{}

type setPrep struct {
	key    string
	val    value.Value
	action string
}

func (n *SetNode) Prep(_ context.Context, in *flow.Invocation) (any, error) {
	key := in.Params.GetString("key")
	if key == "" {
		return nil, fmt.Errorf("set: missing 'key' param")
	}
	val, ok := in.Params.Get("value")
	if !ok {
		val = value.Null()
	}
	return setPrep{key: key, val: val, action: in.Params.GetString("action")}, nil
}

func (n *SetNode) Exec(_ context.Context, prep any) (any, error) {
	return prep, nil
}

func (n *SetNode) Post(_ context.Context, _ *flow.Invocation, _, exec any) (flow.Outcome, error) {
	p := exec.(setPrep)
	out := value.NewMap()
	out.Set(p.key, p.val)
	return flow.Outcome{Action: p.action, Outputs: out}, nil
}
