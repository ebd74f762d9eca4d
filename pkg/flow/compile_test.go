package flow_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/manifold-flow/manifold/pkg/flow"
	"github.com/manifold-flow/manifold/pkg/value"
)

func compileErrs(t *testing.T, err error) flow.CompileErrors {
	t.Helper()
	if err == nil {
		t.Fatal("expected compile errors, got nil")
	}
	var errs flow.CompileErrors
	if errors.As(err, &errs) {
		return errs
	}
	var single *flow.CompileError
	if errors.As(err, &single) {
		return flow.CompileErrors{single}
	}
	t.Fatalf("unexpected error type: %T (%v)", err, err)
	return nil
}

func noopRegistry(types ...string) stubRegistry {
	reg := stubRegistry{}
	for _, tn := range types {
		reg[tn] = sharedInfo(&funcNode{})
	}
	return reg
}

func TestCompileEmptyWorkflow(t *testing.T) {
	t.Parallel()
	_, err := flow.Compile(&flow.WorkflowIR{}, noopRegistry(), flow.CompileOptions{})
	errs := compileErrs(t, err)
	if errs[0].Phase != "structure" {
		t.Errorf("phase = %q, want structure", errs[0].Phase)
	}
}

func TestCompileDuplicateNodeID(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{Nodes: []flow.NodeSpec{
		{ID: "A", Type: "work"},
		{ID: "A", Type: "work"},
	}}
	_, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{})
	errs := compileErrs(t, err)
	if !strings.Contains(errs.Error(), "duplicate node id") {
		t.Errorf("errors = %v", errs)
	}
}

func TestCompileUnknownEdgeEndpoint(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{
		Nodes: []flow.NodeSpec{{ID: "fetch", Type: "work"}},
		Edges: []flow.Edge{{From: "fetch", To: "fech"}},
	}
	_, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{})
	errs := compileErrs(t, err)
	found := false
	for _, e := range errs {
		if strings.Contains(e.Message, `unknown target node "fech"`) && e.Suggestion == "fetch" {
			found = true
		}
	}
	if !found {
		t.Errorf("want unknown-target error suggesting \"fetch\", got %v", errs)
	}
}

func TestCompileRequiredInputMissing(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{
		Nodes:  []flow.NodeSpec{{ID: "A", Type: "work"}},
		Inputs: flow.InputDecls{{Name: "count", Required: true}},
	}
	_, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{})
	errs := compileErrs(t, err)
	if !strings.Contains(errs.Error(), `"inputs.count"`) {
		t.Errorf("error should name inputs.count: %v", errs)
	}

	// Providing the value satisfies the gate.
	opts := flow.CompileOptions{Inputs: map[string]value.Value{"count": value.Int(3)}}
	if _, err := flow.Compile(ir, noopRegistry("work"), opts); err != nil {
		t.Errorf("compile with provided input: %v", err)
	}

	// So does a declared default.
	def := value.Int(1)
	ir.Inputs[0].Default = &def
	if _, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{}); err != nil {
		t.Errorf("compile with default: %v", err)
	}
}

func TestCompileUnknownTemplateRootSuggestion(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{
		Nodes: []flow.NodeSpec{
			{ID: "seed", Type: "work"},
			{ID: "use", Type: "work", Params: value.MapOf("ref", "${sed.out}")},
		},
		Edges: []flow.Edge{{From: "seed", To: "use"}},
	}
	_, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{})
	errs := compileErrs(t, err)
	found := false
	for _, e := range errs {
		if e.Phase == "templates" && e.NodeID == "use" && e.Suggestion == "seed" {
			found = true
		}
	}
	if !found {
		t.Errorf("want template error on node use suggesting seed, got %v", errs)
	}
}

func TestCompileUnknownNodeTypeSuggestion(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{Nodes: []flow.NodeSpec{{ID: "A", Type: "htpt"}}}
	_, err := flow.Compile(ir, noopRegistry("http", "exec"), flow.CompileOptions{})
	errs := compileErrs(t, err)
	found := false
	for _, e := range errs {
		if e.Phase == "types" && e.Suggestion == "http" {
			found = true
		}
	}
	if !found {
		t.Errorf("want unknown-type error suggesting http, got %v", errs)
	}
}

func TestCompileDuplicateActionEdge(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{
		Nodes: []flow.NodeSpec{{ID: "A", Type: "work"}, {ID: "B", Type: "work"}, {ID: "C", Type: "work"}},
		Edges: []flow.Edge{
			{From: "A", To: "B"},
			{From: "A", To: "C"}, // same implicit default action
		},
	}
	_, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{})
	errs := compileErrs(t, err)
	if !strings.Contains(errs.Error(), "duplicate edge") {
		t.Errorf("errors = %v", errs)
	}

	// Distinct actions on the same pair of nodes are fine.
	ir.Edges[1].Action = "alt"
	if _, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{}); err != nil {
		t.Errorf("distinct actions rejected: %v", err)
	}
}

func TestCompilePartitionsParams(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{Nodes: []flow.NodeSpec{
		{ID: "up", Type: "work"},
		{ID: "A", Type: "work", Params: value.MapOf(
			"static", "fixed",
			"dynamic", "${up.out}",
			"escaped", "$${not.a.ref}",
		)},
	}}
	compiled := mustCompile(t, ir, noopRegistry("work"), flow.CompileOptions{})

	node := compiled.Nodes["A"]
	if !node.StaticParams.Has("static") || !node.StaticParams.Has("escaped") {
		t.Errorf("static params = %v", node.StaticParams.Keys())
	}
	if !node.TemplateParams.Has("dynamic") {
		t.Errorf("template params = %v", node.TemplateParams.Keys())
	}
	if node.StaticParams.Has("dynamic") {
		t.Error("templated param leaked into static set")
	}
}

func TestCompileBatchParamsPeeledOff(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{Nodes: []flow.NodeSpec{
		{ID: "seed", Type: "work"},
		{ID: "fan", Type: "work", Params: value.MapOf(
			"batch_items", "${seed.list}",
			"batch_var", "chunk",
			"text", "${chunk}",
		)},
	}}
	compiled := mustCompile(t, ir, noopRegistry("work"), flow.CompileOptions{})

	node := compiled.Nodes["fan"]
	if node.Batch == nil {
		t.Fatal("batch spec missing")
	}
	if node.Batch.Var != "chunk" {
		t.Errorf("batch var = %q", node.Batch.Var)
	}
	if node.StaticParams.Has("batch_items") || node.TemplateParams.Has("batch_items") {
		t.Error("batch_items should not reach node params")
	}
	if !node.TemplateParams.Has("text") {
		t.Error("item-referencing param should be templated")
	}
}

func TestCompileBatchVarNotFlaggedAsUnknownRoot(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{Nodes: []flow.NodeSpec{
		{ID: "seed", Type: "work"},
		{ID: "fan", Type: "work", Params: value.MapOf(
			"batch_items", "${seed.list}",
			"n", "${item}",
		)},
	}}
	if _, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{}); err != nil {
		t.Fatalf("default item binding rejected: %v", err)
	}
}

func TestCompileStartSelection(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{Nodes: []flow.NodeSpec{
		{ID: "first", Type: "work"},
		{ID: "second", Type: "work"},
	}}
	compiled := mustCompile(t, ir, noopRegistry("work"), flow.CompileOptions{})
	if compiled.Start != "first" {
		t.Errorf("default start = %q, want first declared node", compiled.Start)
	}

	ir.Start = "second"
	compiled = mustCompile(t, ir, noopRegistry("work"), flow.CompileOptions{})
	if compiled.Start != "second" {
		t.Errorf("designated start = %q", compiled.Start)
	}

	ir.Start = "secnd"
	_, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{})
	errs := compileErrs(t, err)
	if errs[0].Suggestion != "second" {
		t.Errorf("bad start suggestion = %q, want second", errs[0].Suggestion)
	}
}

func TestCompileUntraceableOutputWarns(t *testing.T) {
	t.Parallel()
	reg := stubRegistry{
		"work": {New: func() flow.Lifecycle { return &funcNode{} }, Outputs: []string{"result"}},
	}
	ir := &flow.WorkflowIR{
		Nodes:   []flow.NodeSpec{{ID: "A", Type: "work"}},
		Outputs: flow.OutputDecls{{Name: "result"}, {Name: "phantom"}},
	}
	compiled := mustCompile(t, ir, reg, flow.CompileOptions{})
	if len(compiled.Warnings) != 1 || !strings.Contains(compiled.Warnings[0].String(), "phantom") {
		t.Errorf("warnings = %v, want one about phantom", compiled.Warnings)
	}

	// A dynamic-output type makes every declared output traceable.
	reg["work"] = flow.NodeInfo{New: func() flow.Lifecycle { return &funcNode{} }, DynamicOutputs: true}
	compiled = mustCompile(t, ir, reg, flow.CompileOptions{})
	if len(compiled.Warnings) != 0 {
		t.Errorf("warnings with dynamic outputs = %v", compiled.Warnings)
	}
}

func TestCompileReportsAllErrorsAtOnce(t *testing.T) {
	t.Parallel()
	ir := &flow.WorkflowIR{
		Nodes: []flow.NodeSpec{
			{ID: "A", Type: "nope"},
			{ID: "B", Type: "work", Params: value.MapOf("x", "${ghost.y}")},
		},
		Inputs: flow.InputDecls{{Name: "n", Required: true}},
	}
	_, err := flow.Compile(ir, noopRegistry("work"), flow.CompileOptions{})
	errs := compileErrs(t, err)
	if len(errs) < 3 {
		t.Errorf("want input, template, and type errors together, got %d: %v", len(errs), errs)
	}
}
