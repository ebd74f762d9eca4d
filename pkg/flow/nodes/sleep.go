package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/manifold-flow/manifold/pkg/flow"
	"github.com/manifold-flow/manifold/pkg/value"
)

// SleepNode pauses the flow for the "duration" param. The wait respects
// context cancellation, which is the one blocking call a node can make
// interruptible for free.
type SleepNode struct{}

func (n *SleepNode) Prep(_ context.Context, in *flow.Invocation) (any, error) {
	ds := in.Params.GetString("duration")
	if ds == "" {
		return nil, fmt.Errorf("sleep: missing 'duration' param")
	}
	d, err := time.ParseDuration(ds)
	if err != nil {
		return nil, fmt.Errorf("sleep: invalid duration %q: %w", ds, err)
	}
	return d, nil
}

func (n *SleepNode) Exec(ctx context.Context, prep any) (any, error) {
	d := prep.(time.Duration)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
	}
	return d, nil
}

func (n *SleepNode) Post(_ context.Context, _ *flow.Invocation, _, exec any) (flow.Outcome, error) {
	out := value.NewMap()
	out.Set("slept", value.String(exec.(time.Duration).String()))
	return flow.Outcome{Outputs: out}, nil
}
