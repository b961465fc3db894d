// Package grammar converts JSON Schema documents into GBNF grammars that
// constrain a language model to emit JSON valid against the schema.
package grammar

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ollama/schema2grammar/grammar/jsonschema"
)

// Fetcher retrieves a remote schema document referenced by $ref. The
// returned value is a decoded JSON tree (see jsonschema.Unmarshal).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (any, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (any, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (any, error) {
	return f(ctx, url)
}

// DefaultMaxRepeat is the largest repetition count unrolled into a rule
// unless WithMaxRepeat sets another limit.
const DefaultMaxRepeat = 10000

type Option func(*Converter)

// WithPropOrder sets the precedence of property names. Listed names sort
// before unlisted ones in the order given; ties keep declaration order.
func WithPropOrder(names ...string) Option {
	return func(c *Converter) {
		c.propOrder = make(map[string]int, len(names))
		for i, name := range names {
			if _, ok := c.propOrder[name]; !ok {
				c.propOrder[name] = i
			}
		}
	}
}

// WithFetcher sets the collaborator used to retrieve remote references.
// Without one, remote references fail with ErrUnsupportedReference.
func WithFetcher(f Fetcher) Option {
	return func(c *Converter) {
		c.fetcher = f
	}
}

// WithMaxRepeat limits the minItems and maxItems of arrays and the counts
// of pattern repetitions. Larger counts fail with ErrUnsupportedSchema or
// ErrUnsupportedPattern. A limit below one keeps the default.
func WithMaxRepeat(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.maxRepeat = n
		}
	}
}

// Converter turns schemas into grammars. It is safe for concurrent use;
// every call to Convert gets its own rule table.
type Converter struct {
	propOrder map[string]int
	fetcher   Fetcher
	maxRepeat int
}

func New(opts ...Option) *Converter {
	c := &Converter{propOrder: map[string]int{}, maxRepeat: DefaultMaxRepeat}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromSchema decodes a JSON or YAML schema document and converts it.
func FromSchema(ctx context.Context, data []byte, opts ...Option) (*Grammar, error) {
	schema, err := jsonschema.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return New(opts...).Convert(ctx, schema, "")
}

// Convert generates the grammar for schema. url is the location the schema
// was loaded from and is used as the base of its local references; it may
// be empty.
func (c *Converter) Convert(ctx context.Context, schema any, url string) (*Grammar, error) {
	conv := &conversion{
		Converter: c,
		ctx:       ctx,
		rules:     newRegistry(),
		docs:      make(map[string]any),
		refs:      make(map[string]any),
		refRules:  make(map[string]string),
		resolving: make(map[string]string),
		owned:     make(map[string]int),
	}

	root, err := conv.resolveRefs(schema, url)
	if err != nil {
		return nil, err
	}
	conv.root, _ = jsonschema.AsObject(root)

	key := conv.rules.reserve("root")
	conv.rules.add("space", spaceRule)
	conv.owned[key] = conv.depth + 1

	name, err := conv.visit(root, "")
	if err != nil {
		return nil, err
	}
	if err := conv.settle(key, name); err != nil {
		return nil, err
	}

	g := conv.rules.grammar()
	slog.Debug("converted schema", "url", url, "rules", len(g.Rules))
	return g, nil
}

// conversion is the state of a single Convert call.
type conversion struct {
	*Converter

	ctx   context.Context
	rules *registry
	root  *jsonschema.Object

	// docs caches fetched remote documents by URL without fragment, refs
	// maps every resolved reference to its target schema.
	docs map[string]any
	refs map[string]any

	// refRules maps references to the rule generated for them and
	// resolving holds those still being generated, so recursive schemas
	// terminate.
	refRules  map[string]string
	resolving map[string]string

	// owned maps reserved rule names to the visit depth allowed to define
	// them.
	owned map[string]int
	depth int
}

func subName(name, suffix string) string {
	if name == "" {
		return suffix
	}
	return name + "-" + suffix
}

// define registers body under name, filling name's reservation when the
// current visit owns it.
func (c *conversion) define(name, body string) string {
	if key := sanitize(name); c.owns(key) {
		c.rules.fill(key, body)
		delete(c.owned, key)
		return key
	}
	return c.rules.add(name, body)
}

func (c *conversion) owns(key string) bool {
	d, ok := c.owned[key]
	return ok && d == c.depth
}

// settle completes the reservation key once its schema has been visited.
// A schema that produced a differently named rule is aliased.
func (c *conversion) settle(key, got string) error {
	delete(c.owned, key)
	if !c.rules.isPending(key) {
		return nil
	}
	if got == key {
		return &SchemaError{Err: ErrUnsupportedSchema, Ref: key}
	}
	c.rules.fill(key, got)
	return nil
}

// annotations do not constrain instances
var annotations = map[string]bool{
	"$schema":     true,
	"$id":         true,
	"$comment":    true,
	"$defs":       true,
	"definitions": true,
	"title":       true,
	"description": true,
	"default":     true,
	"examples":    true,
}

func (c *conversion) visit(schema any, name string) (string, error) {
	c.depth++
	defer func() { c.depth-- }()

	if err := c.ctx.Err(); err != nil {
		return "", err
	}

	ruleName := cmp.Or(name, "root")

	switch v := schema.(type) {
	case bool:
		if !v {
			return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
		}
		schema = jsonschema.NewObject()
	case nil:
		schema = jsonschema.NewObject()
	}

	s, ok := jsonschema.AsObject(schema)
	if !ok {
		return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
	}

	typ, _ := s.Get("type")
	typeName, _ := typ.(string)
	typeList, isList := typ.([]any)
	objectLike := typ == nil || typeName == "object"
	arrayLike := typ == nil || typeName == "array"
	stringLike := typ == nil || typeName == "string"

	switch {
	case jsonschema.Has(s, "$ref"):
		ref, ok := jsonschema.String(s, "$ref")
		if !ok {
			return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
		}
		return c.resolveRef(ref)

	case jsonschema.Has(s, "oneOf") || jsonschema.Has(s, "anyOf"):
		alts, ok := jsonschema.Array(s, "oneOf")
		if !ok || len(alts) == 0 {
			alts, ok = jsonschema.Array(s, "anyOf")
		}
		if !ok || len(alts) == 0 {
			return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
		}
		return c.union(ruleName, name, alts)

	case isList:
		alts := make([]any, len(typeList))
		for i, t := range typeList {
			if _, ok := t.(string); !ok {
				return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
			}
			alt := jsonschema.Copy(s)
			alt.Set("type", t)
			alts[i] = alt
		}
		if len(alts) == 0 {
			return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
		}
		return c.union(ruleName, name, alts)

	case jsonschema.Has(s, "const"):
		v, _ := s.Get("const")
		lit, err := formatLiteral(v)
		if err != nil {
			return "", err
		}
		return c.define(ruleName, lit), nil

	case jsonschema.Has(s, "enum"):
		values, ok := jsonschema.Array(s, "enum")
		if !ok || len(values) == 0 {
			return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
		}
		lits := make([]string, len(values))
		for i, v := range values {
			lit, err := formatLiteral(v)
			if err != nil {
				return "", err
			}
			lits[i] = lit
		}
		return c.define(ruleName, strings.Join(lits, " | ")), nil

	case objectLike && jsonschema.Has(s, "properties"):
		return c.object(s, ruleName, name)

	case objectLike && jsonschema.Has(s, "allOf"):
		return c.allOf(s, ruleName, name)

	case objectLike && jsonschema.Has(s, "additionalProperties"):
		return c.dictionary(s, ruleName, name)

	case arrayLike && (jsonschema.Has(s, "items") || jsonschema.Has(s, "prefixItems")),
		typeName == "array" && (jsonschema.Has(s, "minItems") || jsonschema.Has(s, "maxItems")):
		return c.array(s, ruleName, name)

	case stringLike && jsonschema.Has(s, "pattern"):
		pattern, ok := jsonschema.String(s, "pattern")
		if !ok {
			return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
		}
		return c.pattern(pattern, ruleName)

	case stringLike && jsonschema.Has(s, "format"):
		format, _ := jsonschema.String(s, "format")
		if fname, pattern, ok := formatPattern(format); ok {
			return c.pattern(pattern, fname)
		}
		if typeName == "" {
			return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
		}
		// unknown formats only constrain the type
		return c.primitiveRule(typeName, ruleName, schema)

	case isOpen(s, typeName):
		for _, t := range primitiveOrder {
			c.primitive(t, t)
		}
		if typeName == "object" {
			return "object", nil
		}
		return "value", nil

	default:
		return c.primitiveRule(typeName, ruleName, schema)
	}
}

func (c *conversion) primitiveRule(typeName, ruleName string, schema any) (string, error) {
	if _, ok := primitives[typeName]; !ok {
		return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: schema}
	}
	if c.owns(ruleName) {
		return c.primitive(ruleName, typeName), nil
	}
	return c.primitive(typeName, typeName), nil
}

// isOpen reports whether s accepts any value, or any object when its only
// constraint is "type": "object".
func isOpen(s *jsonschema.Object, typeName string) bool {
	n := 0
	for _, k := range jsonschema.Keys(s) {
		if !annotations[k] {
			n++
		}
	}
	return n == 0 || n == 1 && typeName == "object"
}

func (c *conversion) union(ruleName, name string, alts []any) (string, error) {
	parts := make([]string, len(alts))
	for i, alt := range alts {
		r, err := c.visit(alt, subName(name, strconv.Itoa(i)))
		if err != nil {
			return "", err
		}
		parts[i] = r
	}
	return c.define(ruleName, strings.Join(parts, " | ")), nil
}

// listRule matches a JSON array of between minItems and maxItems elements
// matching item. A negative maxItems is unbounded.
func listRule(item string, minItems, maxItems int) string {
	if maxItems == 0 {
		return `"[" space "]" space`
	}

	sep := fmt.Sprintf(`( "," space %s )`, item)
	parts := []string{item}
	for range max(minItems-1, 0) {
		parts = append(parts, sep)
	}
	if maxItems < 0 {
		parts = append(parts, sep+"*")
	} else {
		for range maxItems - max(minItems, 1) {
			parts = append(parts, sep+"?")
		}
	}

	if minItems == 0 {
		return fmt.Sprintf(`"[" space ( %s )? "]" space`, strings.Join(parts, " "))
	}
	return fmt.Sprintf(`"[" space %s "]" space`, strings.Join(parts, " "))
}

func (c *conversion) array(s *jsonschema.Object, ruleName, name string) (string, error) {
	minItems, _ := jsonschema.Int(s, "minItems")
	minItems = max(minItems, 0)
	maxItems, ok := jsonschema.Int(s, "maxItems")
	if !ok {
		maxItems = -1
	}
	if maxItems >= 0 && maxItems < minItems {
		return "", &SchemaError{Err: ErrUnsupportedSchema, Schema: s}
	}
	if maxItems == 0 {
		return c.define(ruleName, listRule("", 0, 0)), nil
	}

	items, _ := s.Get("items")
	prefix, _ := jsonschema.Array(s, "prefixItems")
	if list, ok := items.([]any); ok {
		prefix, items = list, nil
	}

	if len(prefix) > 0 {
		parts := make([]string, len(prefix))
		for i, item := range prefix {
			r, err := c.visit(item, subName(name, strconv.Itoa(i)))
			if err != nil {
				return "", err
			}
			parts[i] = r
		}
		body := `"[" space ` + strings.Join(parts, ` "," space `)
		if _, ok := jsonschema.AsObject(items); ok {
			r, err := c.visit(items, subName(name, "item"))
			if err != nil {
				return "", err
			}
			body += fmt.Sprintf(` ( "," space %s )*`, r)
		}
		return c.define(ruleName, body+` "]" space`), nil
	}

	if b, ok := items.(bool); ok && !b {
		return c.define(ruleName, listRule("", 0, 0)), nil
	}
	if n := max(minItems, maxItems); n > c.maxRepeat {
		return "", &SchemaError{Err: fmt.Errorf("%w: %d items exceeds the limit of %d", ErrUnsupportedSchema, n, c.maxRepeat), Schema: s}
	}
	if items == nil {
		items = jsonschema.NewObject()
	}
	item, err := c.visit(items, subName(name, "item"))
	if err != nil {
		return "", err
	}
	return c.define(ruleName, listRule(item, minItems, maxItems)), nil
}
