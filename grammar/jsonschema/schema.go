// Package jsonschema holds the document model the grammar converter works
// on: a generic JSON tree whose objects remember their key order.
package jsonschema

import (
	"bytes"

	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is a JSON object whose keys iterate in declaration order. The
// order of "properties" is significant to the generated grammar, so
// schemas are never decoded into plain maps.
type Object = orderedmap.OrderedMap[string, any]

// NewObject returns an empty Object.
func NewObject() *Object {
	return orderedmap.New[string, any]()
}

// AsObject reports whether v is a schema object.
func AsObject(v any) (*Object, bool) {
	o, ok := v.(*Object)
	return o, ok && o != nil
}

// Has reports whether key is present in o.
func Has(o *Object, key string) bool {
	_, ok := o.Get(key)
	return ok
}

// String returns the string value of key.
func String(o *Object, key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Array returns the array value of key.
func Array(o *Object, key string) ([]any, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := v.([]any)
	return a, ok
}

// Int returns the numeric value of key truncated to an int.
func Int(o *Object, key string) (int, bool) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Keys returns the keys of o in declaration order.
func Keys(o *Object) []string {
	keys := make([]string, 0, o.Len())
	for p := o.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Copy returns a shallow copy of o.
func Copy(o *Object) *Object {
	c := NewObject()
	for p := o.Oldest(); p != nil; p = p.Next() {
		c.Set(p.Key, p.Value)
	}
	return c
}

// Marshal encodes v as compact JSON without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(b.Bytes(), []byte("\n")), nil
}

// Sprint renders v as JSON for diagnostics. It never fails.
func Sprint(v any) string {
	b, err := Marshal(v)
	if err != nil {
		return "<unprintable>"
	}
	return string(b)
}
