package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
	"gopkg.in/yaml.v3"

	"github.com/manifold-flow/manifold/pkg/value"
)

// LoadFile parses a workflow document, picking the codec from the file
// extension: .json, .yaml/.yml, or .dot/.gv.
func LoadFile(path string) (*WorkflowIR, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(data)
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".dot", ".gv":
		return ParseDOT(string(data))
	default:
		return nil, fmt.Errorf("unsupported workflow format %q", filepath.Ext(path))
	}
}

// LoadJSON parses a JSON workflow document. Node params keep their key
// order.
func LoadJSON(data []byte) (*WorkflowIR, error) {
	var ir WorkflowIR
	if err := json.Unmarshal(data, &ir); err != nil {
		return nil, fmt.Errorf("workflow json: %w", err)
	}
	return &ir, nil
}

// LoadYAML parses a YAML workflow document.
func LoadYAML(data []byte) (*WorkflowIR, error) {
	var ir WorkflowIR
	if err := yaml.Unmarshal(data, &ir); err != nil {
		return nil, fmt.Errorf("workflow yaml: %w", err)
	}
	return &ir, nil
}

// ─── input/output declaration decoding ───────────────────────────────────────

// InputDecls decodes from either a list of declarations or an object keyed
// by input name ({"count": {"required": true}}), preserving document order.
type InputDecls []InputDecl

// OutputDecls mirrors InputDecls for output declarations.
type OutputDecls []OutputDecl

func (d *InputDecls) UnmarshalJSON(data []byte) error {
	v, err := value.DecodeJSON(data)
	if err != nil {
		return err
	}
	return d.fromValue(v)
}

func (d *InputDecls) UnmarshalYAML(n *yaml.Node) error {
	v, err := value.FromYAMLNode(n)
	if err != nil {
		return err
	}
	return d.fromValue(v)
}

func (d *InputDecls) fromValue(v value.Value) error {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindList:
		items, _ := v.AsList()
		for i, item := range items {
			m, ok := item.AsMap()
			if !ok {
				return fmt.Errorf("inputs[%d]: expected object", i)
			}
			decl := inputDeclFromMap(m.GetString("name"), m)
			if decl.Name == "" {
				return fmt.Errorf("inputs[%d]: missing name", i)
			}
			*d = append(*d, decl)
		}
		return nil
	case value.KindMap:
		m, _ := v.AsMap()
		for _, name := range m.Keys() {
			body, _ := m.Get(name)
			bm, ok := body.AsMap()
			if !ok {
				return fmt.Errorf("inputs.%s: expected object", name)
			}
			*d = append(*d, inputDeclFromMap(name, bm))
		}
		return nil
	default:
		return fmt.Errorf("inputs: expected list or object, got %s", v.Kind())
	}
}

func inputDeclFromMap(name string, m *value.Map) InputDecl {
	decl := InputDecl{
		Name:        name,
		Description: m.GetString("description"),
		TypeHint:    m.GetString("type"),
	}
	if b, ok := m.Get("required"); ok {
		req, _ := b.AsBool()
		decl.Required = req
	}
	if dv, ok := m.Get("default"); ok {
		d := dv.Clone()
		decl.Default = &d
	}
	return decl
}

func (d *OutputDecls) UnmarshalJSON(data []byte) error {
	v, err := value.DecodeJSON(data)
	if err != nil {
		return err
	}
	return d.fromValue(v)
}

func (d *OutputDecls) UnmarshalYAML(n *yaml.Node) error {
	v, err := value.FromYAMLNode(n)
	if err != nil {
		return err
	}
	return d.fromValue(v)
}

func (d *OutputDecls) fromValue(v value.Value) error {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindList:
		items, _ := v.AsList()
		for i, item := range items {
			m, ok := item.AsMap()
			if !ok {
				return fmt.Errorf("outputs[%d]: expected object", i)
			}
			name := m.GetString("name")
			if name == "" {
				return fmt.Errorf("outputs[%d]: missing name", i)
			}
			*d = append(*d, OutputDecl{
				Name:        name,
				Description: m.GetString("description"),
				TypeHint:    m.GetString("type"),
			})
		}
		return nil
	case value.KindMap:
		m, _ := v.AsMap()
		for _, name := range m.Keys() {
			body, _ := m.Get(name)
			bm, _ := body.AsMap()
			*d = append(*d, OutputDecl{
				Name:        name,
				Description: bm.GetString("description"),
				TypeHint:    bm.GetString("type"),
			})
		}
		return nil
	default:
		return fmt.Errorf("outputs: expected list or object, got %s", v.Kind())
	}
}

// ─── DOT authoring format ─────────────────────────────────────────────────────

// ParseDOT parses a Graphviz DOT description into a WorkflowIR: node
// attributes become string params, the "type" attribute names the node
// type, an edge's "label" is its action, and the graph-level "start"
// attribute designates the start node.
func ParseDOT(src string) (*WorkflowIR, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	// Permissive collector: accepts any attribute name without the strict
	// validation gographviz.Graph performs.
	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	ir := &WorkflowIR{
		Name:  collector.name,
		Start: collector.graphAttrs["start"],
	}

	for _, id := range collector.nodeOrder {
		attrs := collector.nodes[id]
		params := value.NewMap()
		nodeType := ""
		for _, k := range collector.attrOrder[id] {
			if k == "type" {
				nodeType = attrs[k]
				continue
			}
			params.Set(k, value.String(attrs[k]))
		}
		if nodeType == "" {
			return nil, fmt.Errorf("dot node %q: missing type attribute", id)
		}
		ir.Nodes = append(ir.Nodes, NodeSpec{ID: id, Type: nodeType, Params: params})
	}

	for _, e := range collector.edges {
		ir.Edges = append(ir.Edges, Edge{From: e.from, To: e.to, Action: e.action})
	}

	return ir, nil
}

type rawEdge struct {
	from, to string
	action   string
}

// dotCollector implements gographviz.Interface without attribute validation.
type dotCollector struct {
	name       string
	nodes      map[string]map[string]string
	nodeOrder  []string
	attrOrder  map[string][]string
	edges      []rawEdge
	graphAttrs map[string]string
}

func newDOTCollector() *dotCollector {
	return &dotCollector{
		nodes:      make(map[string]map[string]string),
		attrOrder:  make(map[string][]string),
		graphAttrs: make(map[string]string),
	}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.nodes[id] = make(map[string]string)
		c.nodeOrder = append(c.nodeOrder, id)
	}
	for k, v := range attrs {
		if _, seen := c.nodes[id][k]; !seen {
			c.attrOrder[id] = append(c.attrOrder[id], k)
		}
		c.nodes[id][k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, _ bool, attrs map[string]string) error {
	action := ""
	if lbl, ok := attrs["label"]; ok {
		action = unquote(lbl)
	}
	c.edges = append(c.edges, rawEdge{from: unquote(src), to: unquote(dst), action: action})
	return nil
}

func (c *dotCollector) AddPortEdge(src, _, dst, _ string, directed bool, attrs map[string]string) error {
	return c.AddEdge(src, dst, directed, attrs)
}

func (c *dotCollector) AddAttr(_ string, field, v string) error {
	c.graphAttrs[field] = unquote(v)
	return nil
}

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

// unquote strips surrounding double-quotes from a DOT attribute value.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
