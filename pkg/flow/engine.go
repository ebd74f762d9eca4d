package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/manifold-flow/manifold/pkg/value"
)

// Per-node execution states, logged as the engine walks the graph.
type NodeState string

const (
	NodePending   NodeState = "pending"
	NodeResolving NodeState = "resolving"
	NodeReplayed  NodeState = "replayed"
	NodeExecuting NodeState = "executing"
	NodeSucceeded NodeState = "succeeded"
	NodeFailed    NodeState = "failed"
)

const defaultMaxVisits = 50

// Options configures an Engine.
type Options struct {
	// Inputs are the execution-time input values.
	Inputs map[string]value.Value
	// StatePath, when non-empty, enables on-disk run state: written after
	// every completed node, loadable for resume.
	StatePath string
	// Cache overrides the checkpoint cache; nil means a fresh MemoryCache.
	Cache CheckpointCache
	// Store overrides the shared store, used when resuming.
	Store *SharedStore
	// MaxVisits caps visits per node before the cycle guard trips.
	MaxVisits int
	// RetryAttempts bounds lifecycle retries for transient errors; nodes
	// may override via a numeric "retries" static param. Default 1 (no
	// retry).
	RetryAttempts int
	// RetryDelay is the base backoff delay; nodes may override via a
	// duration-string "retry_delay" static param.
	RetryDelay time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine walks a CompiledFlow. One Engine drives one execution.
type Engine struct {
	flow  *CompiledFlow
	opts  Options
	store *SharedStore
	cache CheckpointCache
	state *RunState
	log   *slog.Logger
}

// NewEngine prepares an execution of flow.
func NewEngine(flow *CompiledFlow, opts Options) (*Engine, error) {
	if flow == nil {
		return nil, fmt.Errorf("flow must not be nil")
	}
	if opts.MaxVisits <= 0 {
		opts.MaxVisits = defaultMaxVisits
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	store := opts.Store
	if store == nil {
		store = NewSharedStore()
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}

	return &Engine{
		flow:  flow,
		opts:  opts,
		store: store,
		cache: cache,
		state: &RunState{
			RunID:   uuid.NewString(),
			Flow:    flow.Name,
			Entries: make(map[string]*CheckpointEntry),
		},
		log: log,
	}, nil
}

// Resume prepares an execution seeded from a previously saved run state:
// the store is restored and the checkpoint cache is pre-populated, so the
// walk replays every node whose resolved inputs are unchanged and only
// re-executes from the first difference or failure onward.
func Resume(flow *CompiledFlow, statePath string, opts Options) (*Engine, error) {
	st, err := LoadRunState(statePath)
	if err != nil {
		return nil, err
	}
	opts.Store = storeFromState(st.Store)
	opts.Cache = cacheFromState(st)
	if opts.StatePath == "" {
		opts.StatePath = statePath
	}
	eng, err := NewEngine(flow, opts)
	if err != nil {
		return nil, err
	}
	eng.state.RunID = st.RunID
	eng.state.Entries = st.Entries
	return eng, nil
}

// Run executes the flow. Cancellation is honored only between node
// executions, never mid-lifecycle. The shared store is returned even on
// failure so previously successful outputs stay inspectable.
func (e *Engine) Run(ctx context.Context) (*SharedStore, error) {
	for name, v := range e.opts.Inputs {
		e.store.Seed(name, v)
	}

	visits := make(map[string]int)
	currentID := e.flow.Start

	for {
		select {
		case <-ctx.Done():
			return e.store, &RunError{
				NodeID:   currentID,
				Category: CategoryCancelled,
				Message:  "cancelled between nodes",
				Err:      ctx.Err(),
			}
		default:
		}

		visits[currentID]++
		if visits[currentID] > e.opts.MaxVisits {
			return e.store, &RunError{
				NodeID:   currentID,
				Category: CategoryRouting,
				Message:  fmt.Sprintf("cycle guard: node visited more than %d times", e.opts.MaxVisits),
			}
		}

		node, ok := e.flow.Nodes[currentID]
		if !ok {
			return e.store, &RunError{
				NodeID:   currentID,
				Category: CategoryRouting,
				Message:  "successor references unknown node",
			}
		}

		action, err := e.step(ctx, node)
		if err != nil {
			e.persist(currentID) // keep prior outputs resumable
			return e.store, err
		}

		nextID, ok := node.Successors[action]
		if !ok {
			e.log.Info("flow complete", "flow", e.flow.Name, "node", node.ID, "action", action)
			return e.store, nil
		}
		currentID = nextID
	}
}

// step executes (or replays) a single node and returns the action used to
// pick its successor.
func (e *Engine) step(ctx context.Context, node *CompiledNode) (string, error) {
	e.log.Debug("node state", "node", node.ID, "state", NodeResolving)

	rc := NewResolutionContext(e.opts.Inputs, e.store, e.flow.InputDefaults())
	effective := e.effectiveParams(node, rc)

	// Batch nodes fold the resolved collection into the cache key so a
	// changed item list re-executes the fan-out.
	hashInput := effective
	var batchItems []value.Value
	if node.Batch != nil {
		items, err := resolveBatchItems(node, rc)
		if err != nil {
			return "", &RunError{NodeID: node.ID, Category: CategoryLifecycle, Message: err.Error(), Err: err}
		}
		batchItems = items
		hashInput = effective.Clone()
		hashInput.Set(batchItemsParam, value.FromList(items))
	}

	hash, hashErr := ConfigHash(hashInput)
	if hashErr != nil {
		// Fail open: an unhashable config is executed for real.
		e.log.Warn("config hash failed; treating as cache miss", "node", node.ID, "error", hashErr)
		hash = ""
	}

	if hash != "" {
		if entry, hit := e.cache.Lookup(node.ID, hash); hit {
			e.replay(node, entry)
			return entry.Action, nil
		}
	}

	e.log.Info("executing node", "node", node.ID, "type", node.Type, "state", NodeExecuting)

	var outcome Outcome
	var err error
	if node.Batch != nil {
		outcome, err = e.runBatch(ctx, node, rc, batchItems)
	} else {
		outcome, err = e.invoke(ctx, node, effective)
	}
	if err != nil {
		e.log.Error("node failed", "node", node.ID, "state", NodeFailed, "error", err)
		return "", &RunError{
			NodeID:   node.ID,
			Category: CategoryLifecycle,
			Message:  err.Error(),
			Err:      err,
		}
	}

	action := outcome.Action
	if action == "" {
		action = DefaultAction
	}
	e.writeOutputs(node.ID, outcome.Outputs)
	e.log.Info("node succeeded", "node", node.ID, "state", NodeSucceeded, "action", action)

	if hash != "" {
		e.cache.Record(&CheckpointEntry{
			NodeID:     node.ID,
			ConfigHash: hash,
			Action:     action,
			Outputs:    outcome.Outputs,
		})
	}
	e.persist(node.ID)
	return action, nil
}

// invoke runs the three-phase lifecycle once per attempt, retrying only
// errors marked transient.
func (e *Engine) invoke(ctx context.Context, node *CompiledNode, params *value.Map) (Outcome, error) {
	attempts, delay := e.retryPolicy(node)
	inv := &Invocation{NodeID: node.ID, Params: params, Store: NewStoreView(e.store)}

	var outcome Outcome
	err := withRetry(ctx, attempts, delay, func() error {
		prep, err := node.Impl.Prep(ctx, inv)
		if err != nil {
			return fmt.Errorf("prep: %w", err)
		}
		exec, err := node.Impl.Exec(ctx, prep)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		outcome, err = node.Impl.Post(ctx, inv, prep, exec)
		if err != nil {
			return fmt.Errorf("post: %w", err)
		}
		return nil
	})
	return outcome, err
}

// replay writes a checkpoint entry's recorded outputs into the store
// exactly as the node's finalize phase would have, without invoking it.
func (e *Engine) replay(node *CompiledNode, entry *CheckpointEntry) {
	e.log.Info("checkpoint hit; replaying node", "node", node.ID, "state", NodeReplayed, "action", entry.Action)
	e.writeOutputs(node.ID, entry.Outputs)
}

func (e *Engine) writeOutputs(nodeID string, outputs *value.Map) {
	if outputs == nil {
		return
	}
	for _, k := range outputs.Keys() {
		v, _ := outputs.Get(k)
		e.store.Write(nodeID, k, v)
	}
}

// effectiveParams merges a node's static params with its freshly resolved
// templated params. Templated values win on key overlap.
func (e *Engine) effectiveParams(node *CompiledNode, rc *ResolutionContext) *value.Map {
	out := value.NewMap()
	for _, k := range node.StaticParams.Keys() {
		v, _ := node.StaticParams.Get(k)
		out.Set(k, v)
	}
	resolved := rc.ResolveMap(node.TemplateParams)
	for _, k := range resolved.Keys() {
		v, _ := resolved.Get(k)
		out.Set(k, v)
	}
	return out
}

// retryPolicy resolves the attempt budget for a node: static params
// "retries" and "retry_delay" override the engine-wide defaults.
func (e *Engine) retryPolicy(node *CompiledNode) (int, time.Duration) {
	attempts := e.opts.RetryAttempts
	if v, ok := node.StaticParams.Get("retries"); ok {
		if n, isNum := v.AsNumber(); isNum && int(n) >= 1 {
			attempts = int(n)
		} else if s, isStr := v.AsString(); isStr {
			// DOT documents carry every param as a string.
			if n, err := strconv.Atoi(s); err == nil && n >= 1 {
				attempts = n
			}
		}
	}
	delay := e.opts.RetryDelay
	if s := node.StaticParams.GetString("retry_delay"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			delay = d
		}
	}
	return attempts, delay
}

// persist saves the run state after a completed (or failed) node when
// on-disk state is enabled. Persistence failures are logged, not fatal:
// losing resumability must not fail a running flow.
func (e *Engine) persist(lastNode string) {
	if e.opts.StatePath == "" {
		return
	}
	if mc, ok := e.cache.(*MemoryCache); ok {
		e.state.Entries = mc.snapshot()
	}
	e.state.LastNode = lastNode
	e.state.Store = e.store.state()
	e.state.SavedAt = time.Now().UTC()
	if err := SaveRunState(e.opts.StatePath, e.state); err != nil {
		e.log.Warn("run state save failed", "path", e.opts.StatePath, "error", err)
	}
}

// Run compiles nothing and validates nothing: it executes an already
// compiled flow with the given inputs and returns the final shared store.
// It is the entry point for embedders that do not need engine-level
// options.
func (f *CompiledFlow) Run(ctx context.Context, inputs map[string]value.Value) (*SharedStore, error) {
	eng, err := NewEngine(f, Options{Inputs: inputs})
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx)
}
