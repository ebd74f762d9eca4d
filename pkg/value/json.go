package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeJSON parses a JSON document into a Value, preserving object key
// order. encoding/json's map decoding would scramble keys, so this walks
// the token stream directly.
func DecodeJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	// Reject trailing garbage after the first document.
	if dec.More() {
		return Value{}, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, not string", keyTok)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(key, v)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return FromMap(m), nil
		case '[':
			var items []Value
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return FromList(items), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}

// MarshalJSON renders the Value as JSON with map keys in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.AppendJSON(nil), nil
}

// AppendJSON appends the compact JSON encoding of v to dst.
func (v Value) AppendJSON(dst []byte) []byte {
	switch v.kind {
	case KindNull:
		return append(dst, "null"...)
	case KindBool:
		return strconv.AppendBool(dst, v.b)
	case KindNumber:
		return append(dst, formatNumber(v.n)...)
	case KindString:
		b, _ := json.Marshal(v.s)
		return append(dst, b...)
	case KindList:
		dst = append(dst, '[')
		for i, item := range v.l {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = item.AppendJSON(dst)
		}
		return append(dst, ']')
	case KindMap:
		dst = append(dst, '{')
		for i, k := range v.m.Keys() {
			if i > 0 {
				dst = append(dst, ',')
			}
			kb, _ := json.Marshal(k)
			dst = append(dst, kb...)
			dst = append(dst, ':')
			mv, _ := v.m.Get(k)
			dst = mv.AppendJSON(dst)
		}
		return append(dst, '}')
	}
	return dst
}

// UnmarshalJSON decodes into the Value, preserving object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// MarshalJSON renders the ordered map as a JSON object.
func (m *Map) MarshalJSON() ([]byte, error) {
	return FromMap(m).AppendJSON(nil), nil
}

// UnmarshalJSON decodes a JSON object into the map, preserving key order.
func (m *Map) UnmarshalJSON(data []byte) error {
	v, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	decoded, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
	*m = *decoded
	return nil
}
