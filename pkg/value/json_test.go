package value_test

import (
	"encoding/json"
	"testing"

	"github.com/manifold-flow/manifold/pkg/value"
)

func TestDecodeJSONPreservesKeyOrder(t *testing.T) {
	t.Parallel()
	v, err := value.DecodeJSON([]byte(`{"zulu": 1, "alpha": {"second": 2, "first": 1}}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	m, ok := v.AsMap()
	if !ok {
		t.Fatalf("kind = %s, want map", v.Kind())
	}
	if keys := m.Keys(); keys[0] != "zulu" || keys[1] != "alpha" {
		t.Errorf("top-level keys = %v, want [zulu alpha]", keys)
	}
	inner, _ := m.Get("alpha")
	im, _ := inner.AsMap()
	if keys := im.Keys(); keys[0] != "second" || keys[1] != "first" {
		t.Errorf("nested keys = %v, want [second first]", keys)
	}
}

func TestDecodeJSONScalarsAndArrays(t *testing.T) {
	t.Parallel()
	v, err := value.DecodeJSON([]byte(`[null, true, 42, 1.25, "s"]`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	want := value.ListOf(
		value.Null(), value.Bool(true), value.Int(42), value.Number(1.25), value.String("s"),
	)
	if !v.Equal(want) {
		t.Errorf("got %s, want %s", v.Stringify(), want.Stringify())
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	t.Parallel()
	if _, err := value.DecodeJSON([]byte(`{"a":1}{"b":2}`)); err == nil {
		t.Error("expected error for second top-level document")
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := value.DecodeJSON([]byte(`{broken`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestMarshalJSONKeepsInsertionOrder(t *testing.T) {
	t.Parallel()
	m := value.NewMap()
	m.Set("z", value.Int(1))
	m.Set("a", value.String("two"))

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"z":1,"a":"two"}` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestJSONRoundTripThroughStruct(t *testing.T) {
	t.Parallel()
	type doc struct {
		Params *value.Map `json:"params"`
	}
	in := []byte(`{"params": {"url": "http://x", "retries": 3, "flags": [true, false]}}`)
	var d doc
	if err := json.Unmarshal(in, &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if d.Params.GetString("url") != "http://x" {
		t.Errorf("url = %q", d.Params.GetString("url"))
	}
	r, _ := d.Params.Get("retries")
	if !r.Equal(value.Int(3)) {
		t.Errorf("retries = %s, want 3", r.Stringify())
	}
	out, err := json.Marshal(d.Params)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"url":"http://x","retries":3,"flags":[true,false]}` {
		t.Errorf("Marshal = %s", out)
	}
}

func TestAppendJSONEscapesStrings(t *testing.T) {
	t.Parallel()
	got := string(value.String("a\"b\n").AppendJSON(nil))
	if got != `"a\"b\n"` {
		t.Errorf("AppendJSON = %s", got)
	}
}
