package value

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FromYAMLNode converts a parsed YAML node into a Value. Mapping keys keep
// their document order (yaml.v3 reports them in order).
func FromYAMLNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return FromYAMLNode(n.Content[0])
	case yaml.AliasNode:
		return FromYAMLNode(n.Alias)
	case yaml.ScalarNode:
		return scalarFromYAML(n)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := FromYAMLNode(c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return FromList(items), nil
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			v, err := FromYAMLNode(valNode)
			if err != nil {
				return Value{}, err
			}
			m.Set(keyNode.Value, v)
		}
		return FromMap(m), nil
	}
	return Value{}, fmt.Errorf("unsupported YAML node kind %d at line %d", n.Kind, n.Line)
}

func scalarFromYAML(n *yaml.Node) (Value, error) {
	switch n.Tag {
	case "!!null":
		return Null(), nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return Value{}, fmt.Errorf("bool scalar %q at line %d: %w", n.Value, n.Line, err)
		}
		return Bool(b), nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("int scalar %q at line %d: %w", n.Value, n.Line, err)
		}
		return Int(i), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return Value{}, fmt.Errorf("float scalar %q at line %d: %w", n.Value, n.Line, err)
		}
		return Number(f), nil
	default:
		return String(n.Value), nil
	}
}

// UnmarshalYAML lets Value fields participate in struct-based YAML decoding.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	decoded, err := FromYAMLNode(n)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// UnmarshalYAML decodes a YAML mapping into the ordered map.
func (m *Map) UnmarshalYAML(n *yaml.Node) error {
	v, err := FromYAMLNode(n)
	if err != nil {
		return err
	}
	decoded, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("expected mapping at line %d, got %s", n.Line, v.Kind())
	}
	*m = *decoded
	return nil
}
