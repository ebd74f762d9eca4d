package value_test

import (
	"testing"

	"github.com/manifold-flow/manifold/pkg/value"
)

func TestStringify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   value.Value
		want string
	}{
		{"null", value.Null(), "null"},
		{"true", value.Bool(true), "true"},
		{"false", value.Bool(false), "false"},
		{"integral number has no decimal point", value.Int(42), "42"},
		{"float keeps fraction", value.Number(3.5), "3.5"},
		{"string verbatim", value.String("hello ${world}"), "hello ${world}"},
		{"list as compact json", value.ListOf(value.Int(1), value.String("a")), `[1,"a"]`},
		{"map as compact json", value.FromMap(value.MapOf("x", 1, "y", "z")), `{"x":1,"y":"z"}`},
	}
	for _, tc := range cases {
		if got := tc.in.Stringify(); got != tc.want {
			t.Errorf("%s: Stringify() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEqualIgnoresMapKeyOrder(t *testing.T) {
	t.Parallel()
	a := value.NewMap()
	a.Set("x", value.Int(1))
	a.Set("y", value.Int(2))
	b := value.NewMap()
	b.Set("y", value.Int(2))
	b.Set("x", value.Int(1))

	if !value.FromMap(a).Equal(value.FromMap(b)) {
		t.Error("maps with same content in different order should be equal")
	}

	b.Set("x", value.Int(99))
	if value.FromMap(a).Equal(value.FromMap(b)) {
		t.Error("maps with different values should not be equal")
	}
}

func TestEqualKindMismatch(t *testing.T) {
	t.Parallel()
	if value.Int(1).Equal(value.String("1")) {
		t.Error("number and string must not compare equal")
	}
	if value.Null().Equal(value.Bool(false)) {
		t.Error("null and false must not compare equal")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	inner := value.NewMap()
	inner.Set("k", value.Int(1))
	orig := value.ListOf(value.FromMap(inner))

	clone := orig.Clone()
	cl, _ := clone.AsList()
	cm, _ := cl[0].AsMap()
	cm.Set("k", value.Int(2))

	got, _ := inner.Get("k")
	if !got.Equal(value.Int(1)) {
		t.Errorf("mutating clone changed original: %v", got.Stringify())
	}
}

func TestMapInsertionOrder(t *testing.T) {
	t.Parallel()
	m := value.NewMap()
	m.Set("zebra", value.Int(1))
	m.Set("alpha", value.Int(2))
	m.Set("zebra", value.Int(3)) // overwrite keeps original position

	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "zebra" || keys[1] != "alpha" {
		t.Errorf("Keys() = %v, want [zebra alpha]", keys)
	}
	v, _ := m.Get("zebra")
	if !v.Equal(value.Int(3)) {
		t.Errorf("zebra = %s, want 3", v.Stringify())
	}
}

func TestNilMapAccessors(t *testing.T) {
	t.Parallel()
	var m *value.Map
	if m.Len() != 0 || m.Has("x") || m.Keys() != nil {
		t.Error("nil map should behave as empty")
	}
	if _, ok := m.Get("x"); ok {
		t.Error("nil map Get should report absent")
	}
}

func TestFromGoSortsMapKeys(t *testing.T) {
	t.Parallel()
	v := value.FromGo(map[string]any{"b": 1, "a": 2, "c": 3})
	m, ok := v.AsMap()
	if !ok {
		t.Fatalf("FromGo(map) kind = %s", v.Kind())
	}
	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("keys = %v, want sorted [a b c]", keys)
	}
}

func TestToGoRoundTrip(t *testing.T) {
	t.Parallel()
	orig := value.FromMap(value.MapOf(
		"n", 1.5,
		"s", "text",
		"b", true,
		"l", []value.Value{value.Int(1), value.Null()},
	))
	back := value.FromGo(orig.ToGo())
	if !orig.Equal(back) {
		t.Errorf("round trip changed value: %s vs %s", orig.Stringify(), back.Stringify())
	}
}
