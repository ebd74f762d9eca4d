package flow

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/manifold-flow/manifold/pkg/value"
)

// Template tokens have the form ${root.seg1.seg2} where each segment is an
// identifier: [A-Za-z_][A-Za-z0-9_-]*. A "$" immediately before "${" escapes
// the token: $${x} yields the literal text ${x} and is not resolved.
//
// Resolution never fails hard. An unresolvable token is left as its literal
// text in the output, keeping broken references visible for debugging; hard
// failures belong to compile-time validation.

// ResolutionContext is the flat lookup tokens resolve against. Lookup
// priority on root-name collision: per-item bindings (batch), execution
// inputs, the shared store, declared input defaults.
type ResolutionContext struct {
	bindings map[string]value.Value
	inputs   map[string]value.Value
	store    *SharedStore
	defaults map[string]value.Value
}

// NewResolutionContext builds a context from execution inputs, a shared
// store, and input-declaration defaults. Any of the three may be nil/empty.
func NewResolutionContext(inputs map[string]value.Value, store *SharedStore, defaults map[string]value.Value) *ResolutionContext {
	return &ResolutionContext{inputs: inputs, store: store, defaults: defaults}
}

// WithBinding returns a child context with one extra root binding that
// shadows everything else. The receiver is not modified.
func (rc *ResolutionContext) WithBinding(name string, v value.Value) *ResolutionContext {
	child := *rc
	child.bindings = map[string]value.Value{name: v}
	for k, val := range rc.bindings {
		if k != name {
			child.bindings[k] = val
		}
	}
	return &child
}

func (rc *ResolutionContext) lookupRoot(name string) (value.Value, bool) {
	if v, ok := rc.bindings[name]; ok {
		return v, true
	}
	if v, ok := rc.inputs[name]; ok {
		return v, true
	}
	if rc.store != nil {
		if v, ok := rc.store.lookupRoot(name); ok {
			return v, true
		}
	}
	v, ok := rc.defaults[name]
	return v, ok
}

// Resolve substitutes template tokens throughout v: in strings, and in
// every string nested inside lists and maps. Values without tokens are
// returned unchanged.
func (rc *ResolutionContext) Resolve(v value.Value) value.Value {
	return rc.resolve(v, false)
}

// ResolveMap resolves every entry of a parameter map, preserving key order.
func (rc *ResolutionContext) ResolveMap(m *value.Map) *value.Map {
	if m == nil {
		return nil
	}
	out := value.NewMap()
	for _, k := range m.Keys() {
		mv, _ := m.Get(k)
		out.Set(k, rc.Resolve(mv))
	}
	return out
}

func (rc *ResolutionContext) resolve(v value.Value, inContainer bool) value.Value {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return rc.resolveString(s, inContainer)
	case value.KindList:
		items, _ := v.AsList()
		out := make([]value.Value, len(items))
		for i, item := range items {
			out[i] = rc.resolve(item, true)
		}
		return value.FromList(out)
	case value.KindMap:
		m, _ := v.AsMap()
		out := value.NewMap()
		for _, k := range m.Keys() {
			mv, _ := m.Get(k)
			out.Set(k, rc.resolve(mv, true))
		}
		return value.FromMap(out)
	default:
		return v
	}
}

func (rc *ResolutionContext) resolveString(s string, inContainer bool) value.Value {
	// Whole-string single token: substitute with native type preserved.
	if segs, ok := wholeToken(s); ok {
		resolved, found := rc.walk(segs)
		if !found {
			return value.String(s)
		}
		// Inside a freshly-built container literal, a whole-token string
		// that resolved to serialized structured data is parsed before
		// substitution to avoid double-encoding. This deliberately never
		// fires for plain top-level string substitution.
		if inContainer {
			if str, isStr := resolved.AsString(); isStr {
				if parsed, ok := parseStructured(str); ok {
					return parsed
				}
			}
		}
		return resolved
	}

	if !strings.Contains(s, "${") {
		return value.String(s)
	}

	var b strings.Builder
	i := 0
	for i < len(s) {
		// Escaped token: $${...} → literal ${...}, not resolved.
		if strings.HasPrefix(s[i:], "$${") {
			if _, end, ok := scanToken(s, i+1); ok {
				b.WriteString(s[i+1 : end])
				i = end
				continue
			}
		}
		if strings.HasPrefix(s[i:], "${") {
			if segs, end, ok := scanToken(s, i); ok {
				if resolved, found := rc.walk(segs); found {
					b.WriteString(resolved.Stringify())
				} else {
					b.WriteString(s[i:end]) // leave unresolved token literal
				}
				i = end
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return value.String(b.String())
}

// walk resolves a token's segment path: the root is looked up in the
// context, then remaining segments index into maps, lazily parsing string
// values as structured data when further segments remain.
func (rc *ResolutionContext) walk(segs []string) (value.Value, bool) {
	cur, ok := rc.lookupRoot(segs[0])
	if !ok {
		return value.Value{}, false
	}
	for _, seg := range segs[1:] {
		if s, isStr := cur.AsString(); isStr {
			parsed, parsedOK := parseStructured(s)
			if !parsedOK {
				return value.Value{}, false
			}
			cur = parsed
		}
		m, isMap := cur.AsMap()
		if !isMap {
			return value.Value{}, false
		}
		next, found := m.Get(seg)
		if !found {
			return value.Value{}, false
		}
		cur = next
	}
	return cur, true
}

// parseStructured parses s as a JSON object or array. Anything else —
// including valid JSON scalars — is rejected: raw string outputs are never
// eagerly converted, only container access triggers parsing.
func parseStructured(s string) (value.Value, bool) {
	t := strings.TrimSpace(s)
	if len(t) == 0 || (t[0] != '{' && t[0] != '[') {
		return value.Value{}, false
	}
	if !gjson.Valid(t) {
		return value.Value{}, false
	}
	v, err := value.DecodeJSON([]byte(t))
	if err != nil || !v.IsContainer() {
		return value.Value{}, false
	}
	return v, true
}

// ─── token scanning ───────────────────────────────────────────────────────

// TokenRef locates one template token inside a parameter value.
type TokenRef struct {
	Path string   // parameter path, e.g. "url" or "body.items[2]"
	Raw  string   // literal token text including ${ }
	Segs []string // parsed segments; Segs[0] is the root identifier
}

// Root returns the token's root identifier.
func (t TokenRef) Root() string { return t.Segs[0] }

// wholeToken reports whether s consists of exactly one unescaped token and
// returns its segments.
func wholeToken(s string) ([]string, bool) {
	if !strings.HasPrefix(s, "${") {
		return nil, false
	}
	segs, end, ok := scanToken(s, 0)
	if !ok || end != len(s) {
		return nil, false
	}
	return segs, true
}

// scanToken parses a token starting at s[i] (which must be "${") and
// returns the segments and the index just past the closing brace.
func scanToken(s string, i int) (segs []string, end int, ok bool) {
	j := i + 2
	for {
		start := j
		if j >= len(s) || !isIdentStart(s[j]) {
			return nil, 0, false
		}
		j++
		for j < len(s) && isIdentRest(s[j]) {
			j++
		}
		segs = append(segs, s[start:j])
		if j < len(s) && s[j] == '.' {
			j++
			continue
		}
		break
	}
	if j >= len(s) || s[j] != '}' {
		return nil, 0, false
	}
	return segs, j + 1, true
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentRest(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

// Tokens collects every unescaped template token in v, recursing through
// lists and maps. path names the parameter being scanned.
func Tokens(path string, v value.Value) []TokenRef {
	var out []TokenRef
	collectTokens(path, v, &out)
	return out
}

func collectTokens(path string, v value.Value, out *[]TokenRef) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		i := 0
		for i < len(s) {
			if strings.HasPrefix(s[i:], "$${") {
				if _, end, ok := scanToken(s, i+1); ok {
					i = end
					continue
				}
			}
			if strings.HasPrefix(s[i:], "${") {
				if segs, end, ok := scanToken(s, i); ok {
					*out = append(*out, TokenRef{Path: path, Raw: s[i:end], Segs: segs})
					i = end
					continue
				}
			}
			i++
		}
	case value.KindList:
		items, _ := v.AsList()
		for i, item := range items {
			collectTokens(fmt.Sprintf("%s[%d]", path, i), item, out)
		}
	case value.KindMap:
		m, _ := v.AsMap()
		for _, k := range m.Keys() {
			mv, _ := m.Get(k)
			collectTokens(path+"."+k, mv, out)
		}
	}
}

// HasTokens reports whether v contains at least one unescaped token.
func HasTokens(v value.Value) bool {
	return len(Tokens("", v)) > 0
}
