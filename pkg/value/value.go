// Package value defines the tagged-union data model that flows between
// workflow nodes: null, bool, number, string, list, and insertion-ordered
// map. All resolver and compiler logic pattern-matches over this union
// instead of reflecting over arbitrary Go types.
package value

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is one datum in the workflow data model. The zero value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	l    []Value
	m    *Map
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64. Integers are represented exactly up to 2^53.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps an integer as a number Value.
func Int(i int64) Value { return Value{kind: KindNumber, n: float64(i)} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// ListOf builds a list Value from its arguments.
func ListOf(items ...Value) Value { return Value{kind: KindList, l: items} }

// FromList wraps an existing slice without copying.
func FromList(items []Value) Value { return Value{kind: KindList, l: items} }

// FromMap wraps an ordered map. A nil map yields null.
func FromMap(m *Map) Value {
	if m == nil {
		return Value{}
	}
	return Value{kind: KindMap, m: m}
}

// Kind reports which variant this Value holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the Value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload, with ok=false for other kinds.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload, with ok=false for other kinds.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string payload, with ok=false for other kinds.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns the underlying slice, with ok=false for other kinds.
func (v Value) AsList() ([]Value, bool) { return v.l, v.kind == KindList }

// AsMap returns the underlying ordered map, with ok=false for other kinds.
func (v Value) AsMap() (*Map, bool) { return v.m, v.kind == KindMap }

// IsContainer reports whether the Value is a list or a map.
func (v Value) IsContainer() bool { return v.kind == KindList || v.kind == KindMap }

// Stringify renders a Value for splicing into a larger string. Strings are
// returned verbatim, integral numbers without an exponent or decimal point,
// and containers as compact JSON.
func (v Value) Stringify() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	default:
		return string(v.AppendJSON(nil))
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Equal reports deep equality. Map comparison ignores key order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if v.m.Len() != o.m.Len() {
			return false
		}
		for _, k := range v.m.Keys() {
			ov, ok := o.m.Get(k)
			if !ok {
				return false
			}
			mv, _ := v.m.Get(k)
			if !mv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy. Lists and maps are copied recursively so the
// clone shares no mutable state with the original.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		out := make([]Value, len(v.l))
		for i, item := range v.l {
			out[i] = item.Clone()
		}
		return Value{kind: KindList, l: out}
	case KindMap:
		return Value{kind: KindMap, m: v.m.Clone()}
	default:
		return v
	}
}

// FromGo converts ordinary Go values (as produced by encoding/json and
// friends) into the Value union. Unrecognized types are stringified.
func FromGo(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromGo(e)
		}
		return FromList(items)
	case map[string]any:
		m := NewMap()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m.Set(k, FromGo(t[k]))
		}
		return FromMap(m)
	case []Value:
		return FromList(t)
	case *Map:
		return FromMap(t)
	case Value:
		return t
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// ToGo converts a Value back into plain Go types (map[string]any, []any,
// float64, string, bool, nil). Map key order is lost.
func (v Value) ToGo() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i, item := range v.l {
			out[i] = item.ToGo()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.m.Len())
		for _, k := range v.m.Keys() {
			mv, _ := v.m.Get(k)
			out[k] = mv.ToGo()
		}
		return out
	}
	return nil
}

// Map is a string-keyed map that remembers insertion order. Key order is
// semantically meaningless but preserved for stable serialization.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap creates an empty ordered map.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// MapOf builds an ordered map from alternating key, value pairs.
func MapOf(pairs ...any) *Map {
	m := NewMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		m.Set(k, FromGo(pairs[i+1]))
	}
	return m
}

// Set stores v under k, appending k to the key order on first insertion.
func (m *Map) Set(k string, v Value) {
	if _, exists := m.vals[k]; !exists {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
}

// Get retrieves the value stored under k.
func (m *Map) Get(k string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.vals[k]
	return v, ok
}

// GetString retrieves a string value, returning "" if absent or another kind.
func (m *Map) GetString(k string) string {
	v, ok := m.Get(k)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// Has reports whether k is present.
func (m *Map) Has(k string) bool {
	if m == nil {
		return false
	}
	_, ok := m.vals[k]
	return ok
}

// Keys returns the keys in insertion order. The slice must not be mutated.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns a deep copy of the map.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := &Map{
		keys: append([]string(nil), m.keys...),
		vals: make(map[string]Value, len(m.vals)),
	}
	for k, v := range m.vals {
		out.vals[k] = v.Clone()
	}
	return out
}
