package flow_test

import (
	"testing"

	"github.com/manifold-flow/manifold/pkg/flow"
	"github.com/manifold-flow/manifold/pkg/value"
)

func TestStoreWriteMirrorsToRoot(t *testing.T) {
	t.Parallel()
	s := flow.NewSharedStore()
	s.Write("A", "result", value.Int(1))

	if v, ok := s.Read("result"); !ok || !v.Equal(value.Int(1)) {
		t.Errorf("root mirror missing: %v %v", v, ok)
	}
	if v, ok := s.ReadNode("A", "result"); !ok || !v.Equal(value.Int(1)) {
		t.Errorf("namespace entry missing: %v %v", v, ok)
	}
}

func TestStoreRootCollisionFirstWriterWins(t *testing.T) {
	t.Parallel()
	s := flow.NewSharedStore()
	s.Write("A", "result", value.String("first"))
	s.Write("B", "result", value.String("second"))

	if v, _ := s.Read("result"); !v.Equal(value.String("first")) {
		t.Errorf("root = %s, want first writer's value", v.Stringify())
	}
	if v, _ := s.ReadNode("B", "result"); !v.Equal(value.String("second")) {
		t.Errorf("B namespace = %s", v.Stringify())
	}

	// The holder may update its own mirror.
	s.Write("A", "result", value.String("updated"))
	if v, _ := s.Read("result"); !v.Equal(value.String("updated")) {
		t.Errorf("root = %s, holder update should propagate", v.Stringify())
	}
}

func TestStoreSeedHoldsMirror(t *testing.T) {
	t.Parallel()
	s := flow.NewSharedStore()
	s.Seed("count", value.Int(5))
	s.Write("N", "count", value.Int(99))

	if v, _ := s.Read("count"); !v.Equal(value.Int(5)) {
		t.Errorf("seeded root = %s, want 5", v.Stringify())
	}
	if v, _ := s.ReadNode("N", "count"); !v.Equal(value.Int(99)) {
		t.Errorf("N.count = %s, want 99", v.Stringify())
	}
}

func TestStoreFlattenQualifiedKeys(t *testing.T) {
	t.Parallel()
	s := flow.NewSharedStore()
	s.Seed("in", value.String("x"))
	s.Write("A", "out", value.Int(1))
	s.Write("B", "out", value.Int(2))

	flat := s.Flatten()
	checks := map[string]value.Value{
		"in":    value.String("x"),
		"out":   value.Int(1),
		"A.out": value.Int(1),
		"B.out": value.Int(2),
	}
	for k, want := range checks {
		got, ok := flat[k]
		if !ok || !got.Equal(want) {
			t.Errorf("flat[%q] = %v (present %v), want %s", k, got, ok, want.Stringify())
		}
	}
}

func TestStoreReadMissing(t *testing.T) {
	t.Parallel()
	s := flow.NewSharedStore()
	if _, ok := s.Read("nope"); ok {
		t.Error("Read should miss on empty store")
	}
	if _, ok := s.ReadNode("ghost", "key"); ok {
		t.Error("ReadNode should miss on unknown namespace")
	}
	if s.Namespace("ghost") != nil {
		t.Error("Namespace should be nil for unknown node")
	}
}

func TestStoreViewIsReadOnlySurface(t *testing.T) {
	t.Parallel()
	s := flow.NewSharedStore()
	s.Write("A", "msg", value.String("hi"))

	view := flow.NewStoreView(s)
	if view.GetString("msg") != "hi" {
		t.Errorf("GetString = %q", view.GetString("msg"))
	}
	if v, ok := view.GetNode("A", "msg"); !ok || !v.Equal(value.String("hi")) {
		t.Errorf("GetNode = %v %v", v, ok)
	}
	if view.GetString("absent") != "" {
		t.Error("absent key should read as empty string")
	}
	if _, ok := view.Get("absent"); ok {
		t.Error("Get should miss for absent key")
	}
}
