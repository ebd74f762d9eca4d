// Package nodes provides the in-memory node registry and the reference
// node implementations shipped with the engine. The engine itself depends
// only on the flow.Registry and flow.Lifecycle contracts; everything here
// sits on the application side of that boundary.
package nodes

import (
	"fmt"
	"sort"
	"sync"

	"github.com/manifold-flow/manifold/pkg/flow"
)

// Registry maps node type names to implementations. It satisfies
// flow.Registry.
type Registry struct {
	mu    sync.RWMutex
	infos map[string]flow.NodeInfo
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{infos: make(map[string]flow.NodeInfo)}
}

// Register associates a type name with a node implementation factory.
func (r *Registry) Register(typeName string, info flow.NodeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos[typeName] = info
}

// Lookup returns the info for a type name.
func (r *Registry) Lookup(typeName string) (flow.NodeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infos[typeName]
	if !ok {
		return flow.NodeInfo{}, fmt.Errorf("no node registered for type %q", typeName)
	}
	return info, nil
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.infos))
	for t := range r.infos {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Config carries the shared settings the built-in nodes need.
type Config struct {
	// Workdir anchors relative paths for exec and file nodes.
	Workdir string
	// DefaultModel is the model the llm node uses when a node param does
	// not override it.
	DefaultModel string
}

// Default builds a registry with every built-in node type registered.
func Default(cfg Config) *Registry {
	r := NewRegistry()
	r.Register("set", flow.NodeInfo{
		New:            func() flow.Lifecycle { return &SetNode{} },
		DynamicOutputs: true, // writes whatever key the params name
	})
	r.Register("http", flow.NodeInfo{
		New:     func() flow.Lifecycle { return &HTTPNode{} },
		Outputs: []string{"status", "body"},
	})
	r.Register("exec", flow.NodeInfo{
		New:     func() flow.Lifecycle { return &ExecNode{Workdir: cfg.Workdir} },
		Outputs: []string{"stdout", "stderr", "exit_code"},
	})
	r.Register("read_file", flow.NodeInfo{
		New:     func() flow.Lifecycle { return &ReadFileNode{Workdir: cfg.Workdir} },
		Outputs: []string{"content"},
	})
	r.Register("write_file", flow.NodeInfo{
		New:     func() flow.Lifecycle { return &WriteFileNode{Workdir: cfg.Workdir} },
		Outputs: []string{"path", "bytes"},
	})
	r.Register("sleep", flow.NodeInfo{
		New:     func() flow.Lifecycle { return &SleepNode{} },
		Outputs: []string{"slept"},
	})
	r.Register("llm", flow.NodeInfo{
		New:     func() flow.Lifecycle { return &LLMNode{DefaultModel: cfg.DefaultModel} },
		Outputs: []string{"text", "model", "stop_reason"},
	})
	return r
}
