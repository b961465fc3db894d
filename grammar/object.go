package grammar

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ollama/schema2grammar/grammar/jsonschema"
)

type property struct {
	name   string
	schema any
}

func (c *conversion) object(s *jsonschema.Object, ruleName, name string) (string, error) {
	props, ok := jsonschema.AsObject(field(s, "properties"))
	if !ok {
		return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: s}
	}

	var list []property
	for p := props.Oldest(); p != nil; p = p.Next() {
		list = append(list, property{name: p.Key, schema: p.Value})
	}

	required := make(map[string]bool)
	names, _ := jsonschema.Array(s, "required")
	for _, n := range names {
		if n, ok := n.(string); ok {
			required[n] = true
		}
	}

	body, err := c.buildObjectRule(list, required, name)
	if err != nil {
		return "", err
	}
	return c.define(ruleName, body), nil
}

// allOf merges the properties of every component into one object. The
// properties of a component are required, except inside an anyOf
// component where they are all optional.
func (c *conversion) allOf(s *jsonschema.Object, ruleName, name string) (string, error) {
	components, ok := jsonschema.Array(s, "allOf")
	if !ok {
		return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: s}
	}

	var list []property
	required := make(map[string]bool)
	add := func(component any, isRequired bool) error {
		o, ok := jsonschema.AsObject(component)
		if !ok {
			return &SchemaError{Err: ErrUnsupportedSchema, Schema: component}
		}
		if ref, ok := jsonschema.String(o, "$ref"); ok {
			target, ok := c.refs[ref]
			if !ok {
				return &SchemaError{Err: ErrReferenceResolution, Ref: ref}
			}
			if o, ok = jsonschema.AsObject(target); !ok {
				return &SchemaError{Err: ErrUnsupportedSchema, Ref: ref, Schema: target}
			}
		}
		props, ok := jsonschema.AsObject(field(o, "properties"))
		if !ok {
			return nil
		}
		for p := props.Oldest(); p != nil; p = p.Next() {
			list = append(list, property{name: p.Key, schema: p.Value})
			if isRequired {
				required[p.Key] = true
			}
		}
		return nil
	}

	for _, component := range components {
		if o, ok := jsonschema.AsObject(component); ok && jsonschema.Has(o, "anyOf") {
			alts, _ := jsonschema.Array(o, "anyOf")
			for _, alt := range alts {
				if err := add(alt, false); err != nil {
					return "", err
				}
			}
			continue
		}
		if err := add(component, true); err != nil {
			return "", err
		}
	}

	body, err := c.buildObjectRule(list, required, name)
	if err != nil {
		return "", err
	}
	return c.define(ruleName, body), nil
}

// dictionary matches an object whose keys are arbitrary strings and whose
// values all match additionalProperties.
func (c *conversion) dictionary(s *jsonschema.Object, ruleName, name string) (string, error) {
	additional := field(s, "additionalProperties")
	if b, ok := additional.(bool); ok && !b {
		return c.define(ruleName, `"{" space "}" space`), nil
	}
	if _, ok := jsonschema.AsObject(additional); !ok {
		additional = jsonschema.NewObject()
	}

	sub := subName(name, "additionalProperties")
	value, err := c.visit(additional, sub+"-value")
	if err != nil {
		return "", err
	}
	c.primitive("string", "string")
	kv := c.rules.add(sub+"-kv", `string ":" space `+value)
	return c.define(ruleName, fmt.Sprintf(`"{" space ( %s ( "," space %s )* )? "}" space`, kv, kv)), nil
}

// buildObjectRule returns the body of a rule matching an object with the
// given properties. Properties are emitted sorted by prop order, required
// ones first. Optional properties may start at any of them and continue in
// order until stopping; each continuation is a shared "-rest" rule.
func (c *conversion) buildObjectRule(props []property, required map[string]bool, name string) (string, error) {
	var names []string
	kv := make(map[string]string, len(props))
	for _, p := range props {
		if _, ok := kv[p.name]; ok {
			continue
		}

		sub := subName(name, p.name)
		value, err := c.visit(p.schema, sub)
		if err != nil {
			return "", err
		}
		lit, err := formatLiteral(p.name)
		if err != nil {
			return "", err
		}
		kv[p.name] = c.rules.add(sub+"-kv", fmt.Sprintf(`%s space ":" space %s`, lit, value))
		names = append(names, p.name)
	}

	slices.SortStableFunc(names, func(a, b string) int {
		return c.rank(a) - c.rank(b)
	})

	var req, opt []string
	for _, n := range names {
		if required[n] {
			req = append(req, n)
		} else {
			opt = append(opt, n)
		}
	}

	var sb strings.Builder
	sb.WriteString(`"{" space`)
	for i, n := range req {
		if i > 0 {
			sb.WriteString(` "," space`)
		}
		sb.WriteString(" " + kv[n])
	}

	if len(opt) > 0 {
		alts := make([]string, len(opt))
		for i := range opt {
			alts[i] = c.optionalRun(opt[i:], kv, name)
		}
		if len(req) > 0 {
			fmt.Fprintf(&sb, ` ( "," space ( %s ) )?`, strings.Join(alts, " | "))
		} else {
			fmt.Fprintf(&sb, ` ( %s )?`, strings.Join(alts, " | "))
		}
	}

	sb.WriteString(` "}" space`)
	return sb.String(), nil
}

// optionalRun matches keys[0] optionally followed by the run starting at
// keys[1].
func (c *conversion) optionalRun(keys []string, kv map[string]string, name string) string {
	run := kv[keys[0]]
	if len(keys) > 1 {
		rest := c.rules.add(subName(name, keys[0]+"-rest"), `"," space `+c.optionalRun(keys[1:], kv, name))
		run += " " + rest + "?"
	}
	return run
}

// rank orders property names by prop order; unlisted names rank last.
func (c *conversion) rank(name string) int {
	if i, ok := c.propOrder[name]; ok {
		return i
	}
	return len(c.propOrder)
}

func field(o *jsonschema.Object, key string) any {
	v, _ := o.Get(key)
	return v
}
