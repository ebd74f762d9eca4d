package flow

import (
	"sync"

	"github.com/manifold-flow/manifold/pkg/value"
)

// SharedStore is the per-execution data bus. Every node's writes land in a
// private namespace keyed by node id and are mirrored to a flat root view
// when no other node has claimed the same key, so simple graphs get simple
// ${key} ergonomics while qualified ${node.key} access always works.
//
// A store instance is exclusively owned by one execution. The mutex guards
// the only place multiple writers can exist today, batch item execution.
type SharedStore struct {
	mu    sync.RWMutex
	root  *value.Map
	owner map[string]string // root key → node id holding the mirror
	ns    map[string]*value.Map
	order []string // namespace creation order, for stable flattening
}

// NewSharedStore creates an empty store.
func NewSharedStore() *SharedStore {
	return &SharedStore{
		root:  value.NewMap(),
		owner: make(map[string]string),
		ns:    make(map[string]*value.Map),
	}
}

// Seed places an execution-time input into the root view. Seeded keys hold
// the root mirror so later node writes to the same key stay namespaced.
func (s *SharedStore) Seed(key string, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root.Set(key, v)
	s.owner[key] = ""
}

// Write records v under the node's namespace and mirrors it to the root
// view when the key is unclaimed or already owned by the same node.
// Root collisions are first-writer-wins and never overwritten.
func (s *SharedStore) Write(nodeID, key string, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.ns[nodeID]
	if !ok {
		m = value.NewMap()
		s.ns[nodeID] = m
		s.order = append(s.order, nodeID)
	}
	m.Set(key, v)

	holder, claimed := s.owner[key]
	if !claimed || holder == nodeID {
		s.root.Set(key, v)
		s.owner[key] = nodeID
	}
}

// Read retrieves a key from the flat root view.
func (s *SharedStore) Read(key string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root.Get(key)
}

// ReadNode retrieves a key from a specific node's namespace.
func (s *SharedStore) ReadNode(nodeID, key string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ns[nodeID].Get(key)
}

// Namespace returns the live namespace map for a node id, or nil. Callers
// must treat it as read-only.
func (s *SharedStore) Namespace(nodeID string) *value.Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ns[nodeID]
}

// Flatten produces the template-resolution view: every root entry plus a
// "node.key" qualified entry for every namespaced write, so a key stays
// reachable through its qualified path even after a root collision
// suppressed the unqualified mirror.
func (s *SharedStore) Flatten() map[string]value.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]value.Value, s.root.Len())
	for _, k := range s.root.Keys() {
		v, _ := s.root.Get(k)
		out[k] = v
	}
	for _, id := range s.order {
		m := s.ns[id]
		for _, k := range m.Keys() {
			v, _ := m.Get(k)
			out[id+"."+k] = v
		}
	}
	return out
}

// lookupRoot resolves a template root identifier against the store: a node
// id yields that node's namespace as a map value, otherwise the root view
// is consulted.
func (s *SharedStore) lookupRoot(name string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.ns[name]; ok {
		return value.FromMap(m), true
	}
	return s.root.Get(name)
}

// storeState is the JSON-serializable form of a store, for run-state files.
type storeState struct {
	Root       *value.Map            `json:"root"`
	Owners     map[string]string     `json:"owners"`
	Namespaces map[string]*value.Map `json:"namespaces"`
	Order      []string              `json:"order"`
}

func (s *SharedStore) state() storeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeState{
		Root:       s.root.Clone(),
		Owners:     cloneStringMap(s.owner),
		Namespaces: cloneNamespaces(s.ns),
		Order:      append([]string(nil), s.order...),
	}
}

func storeFromState(st storeState) *SharedStore {
	s := NewSharedStore()
	if st.Root != nil {
		s.root = st.Root
	}
	if st.Owners != nil {
		s.owner = st.Owners
	}
	if st.Namespaces != nil {
		s.ns = st.Namespaces
	}
	s.order = st.Order
	// Older state files may lack the order list; rebuild deterministically.
	if len(s.order) == 0 && len(s.ns) > 0 {
		for id := range s.ns {
			s.order = append(s.order, id)
		}
	}
	return s
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneNamespaces(in map[string]*value.Map) map[string]*value.Map {
	out := make(map[string]*value.Map, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

// StoreView is the read surface handed to node lifecycles. Nodes never
// write through it; outputs travel back through Outcome.
type StoreView struct {
	store *SharedStore
}

// NewStoreView wraps a store in a read-only view.
func NewStoreView(s *SharedStore) *StoreView { return &StoreView{store: s} }

// Get reads a key from the flat root view.
func (v *StoreView) Get(key string) (value.Value, bool) { return v.store.Read(key) }

// GetString reads a key and returns its string payload, or "".
func (v *StoreView) GetString(key string) string {
	val, ok := v.store.Read(key)
	if !ok {
		return ""
	}
	s, _ := val.AsString()
	return s
}

// GetNode reads a key from a node's namespace.
func (v *StoreView) GetNode(nodeID, key string) (value.Value, bool) {
	return v.store.ReadNode(nodeID, key)
}

// Flatten exposes the store's flattened view.
func (v *StoreView) Flatten() map[string]value.Value { return v.store.Flatten() }
