package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/manifold-flow/manifold/pkg/value"
)

// CheckpointEntry records one completed node execution: the hash of the
// fully resolved params it ran with, the action it returned, and the
// outputs it wrote. Replaying an entry writes the outputs through the store
// exactly like a real finalize and follows the recorded action, without
// invoking the node implementation.
type CheckpointEntry struct {
	NodeID     string     `json:"node_id"`
	ConfigHash string     `json:"config_hash"`
	Action     string     `json:"action"`
	Outputs    *value.Map `json:"outputs,omitempty"`
}

// CheckpointCache is consulted before every node execution and populated
// after every success.
type CheckpointCache interface {
	Lookup(nodeID, configHash string) (*CheckpointEntry, bool)
	Record(entry *CheckpointEntry)
}

// MemoryCache is the in-process CheckpointCache used for a single run
// attempt lineage. It keeps at most one entry per node id.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CheckpointEntry
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*CheckpointEntry)}
}

// Lookup returns the entry for nodeID when its recorded config hash
// matches. A changed hash means the node's resolved inputs changed, so the
// stale entry does not count as a hit.
func (c *MemoryCache) Lookup(nodeID, configHash string) (*CheckpointEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[nodeID]
	if !ok || e.ConfigHash != configHash {
		return nil, false
	}
	return e, true
}

// Record stores or replaces the entry for its node id.
func (c *MemoryCache) Record(entry *CheckpointEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.NodeID] = entry
}

func (c *MemoryCache) snapshot() map[string]*CheckpointEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*CheckpointEntry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// ConfigHash computes the cache key for a node: a sha256 over a canonical
// rendering of its fully resolved effective parameter set. Map keys are
// sorted so the hash reflects content, not insertion order.
func ConfigHash(params *value.Map) (string, error) {
	h := sha256.New()
	if params != nil {
		keys := append([]string(nil), params.Keys()...)
		sort.Strings(keys)
		for _, k := range keys {
			v, _ := params.Get(k)
			fmt.Fprintf(h, "%s=", k)
			h.Write(canonicalBytes(v))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func canonicalBytes(v value.Value) []byte {
	return appendCanonical(nil, v)
}

// appendCanonical renders v like compact JSON but with map keys sorted, so
// two maps with the same content always hash identically.
func appendCanonical(dst []byte, v value.Value) []byte {
	switch v.Kind() {
	case value.KindList:
		items, _ := v.AsList()
		dst = append(dst, '[')
		for i, item := range items {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = appendCanonical(dst, item)
		}
		return append(dst, ']')
	case value.KindMap:
		m, _ := v.AsMap()
		keys := append([]string(nil), m.Keys()...)
		sort.Strings(keys)
		dst = append(dst, '{')
		for i, k := range keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = value.String(k).AppendJSON(dst)
			dst = append(dst, ':')
			mv, _ := m.Get(k)
			dst = appendCanonical(dst, mv)
		}
		return append(dst, '}')
	default:
		return v.AppendJSON(dst)
	}
}

// RunState is the on-disk form of one run attempt lineage: the checkpoint
// entries plus the shared store contents, written after every completed
// node so a later invocation can resume past all unchanged work.
type RunState struct {
	RunID    string                      `json:"run_id"`
	Flow     string                      `json:"flow,omitempty"`
	LastNode string                      `json:"last_node,omitempty"`
	Entries  map[string]*CheckpointEntry `json:"entries"`
	Store    storeState                  `json:"store"`
	SavedAt  time.Time                   `json:"saved_at"`
}

// SaveRunState writes the run state as JSON. The write is atomic via a
// temp-file rename so an interrupted save never corrupts a resumable state.
func SaveRunState(path string, st *RunState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("run state marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("run state write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("run state rename: %w", err)
	}
	return nil
}

// LoadRunState reads a run state file written by SaveRunState.
func LoadRunState(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("run state read: %w", err)
	}
	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("run state unmarshal: %w", err)
	}
	return &st, nil
}

// cacheFromState rebuilds the in-memory cache from a loaded run state.
func cacheFromState(st *RunState) *MemoryCache {
	c := NewMemoryCache()
	for _, e := range st.Entries {
		c.Record(e)
	}
	return c
}
