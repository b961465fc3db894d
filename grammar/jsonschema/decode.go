package jsonschema

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Unmarshal decodes a JSON or YAML schema document into a tree of plain
// values: objects decode to *Object (keys kept in declaration order),
// arrays to []any, numbers to float64, and strings, booleans and null to
// their Go equivalents.
//
// Documents that start with '{' or '[' and are valid JSON are decoded as
// JSON; everything else is handed to the YAML decoder.
func Unmarshal(data []byte) (any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty schema document")
	}

	switch data[0] {
	case '{', '[':
		if json.Valid(data) {
			return unmarshalJSON(data)
		}
	}
	return unmarshalYAML(data)
}

func unmarshalJSON(data []byte) (any, error) {
	value, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, err
	}
	return decodeJSON(value, typ)
}

func decodeJSON(data []byte, typ jsonparser.ValueType) (any, error) {
	switch typ {
	case jsonparser.Object:
		obj := NewObject()
		err := jsonparser.ObjectEach(data, func(key, value []byte, typ jsonparser.ValueType, _ int) error {
			// ObjectEach hands out keys already unescaped.
			k := string(key)
			v, err := decodeJSON(value, typ)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			obj.Set(k, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return obj, nil
	case jsonparser.Array:
		arr := []any{}
		var ierr error
		_, err := jsonparser.ArrayEach(data, func(value []byte, typ jsonparser.ValueType, _ int, err error) {
			if ierr != nil {
				return
			}
			if err != nil {
				ierr = err
				return
			}
			v, err := decodeJSON(value, typ)
			if err != nil {
				ierr = err
				return
			}
			arr = append(arr, v)
		})
		if err != nil {
			return nil, err
		}
		if ierr != nil {
			return nil, ierr
		}
		return arr, nil
	case jsonparser.String:
		return jsonparser.ParseString(data)
	case jsonparser.Number:
		return jsonparser.ParseFloat(data)
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(data)
	case jsonparser.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected JSON value %q", data)
	}
}

func unmarshalYAML(data []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return fromYAML(&doc)
}

func fromYAML(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromYAML(n.Content[0])
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.MappingNode:
		obj := NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			v, err := fromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Set(k.Value, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		case "!!int", "!!float":
			var f float64
			if err := n.Decode(&f); err != nil {
				return nil, err
			}
			return f, nil
		default:
			return n.Value, nil
		}
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}
