package grammar

// whitespace is constrained to a single optional space so generation
// cannot run away emitting blanks
const spaceRule = `" "?`

type primitive struct {
	body string
	deps []string
}

var primitives = map[string]primitive{
	"boolean": {body: `("true" | "false") space`},
	"number":  {body: `("-"? ([0-9] | [1-9] [0-9]*)) ("." [0-9]+)? ([eE] [-+]? [0-9]+)? space`},
	"integer": {body: `("-"? ([0-9] | [1-9] [0-9]*)) space`},
	"value": {
		body: `object | array | string | number | boolean | null`,
		deps: []string{"object", "array", "string", "number", "boolean", "null"},
	},
	"object": {
		body: `"{" space ( string ":" space value ("," space string ":" space value)* )? "}" space`,
		deps: []string{"string", "value"},
	},
	"array": {
		body: `"[" space ( value ("," space value)* )? "]" space`,
		deps: []string{"value"},
	},
	"string": {body: `"\"" ( [^"\\] | "\\" (["\\/bfnrt] | "u" [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F]) )* "\"" space`},
	"null":   {body: `"null" space`},
}

// primitiveOrder is the registration order used when every primitive is
// needed at once.
var primitiveOrder = []string{"boolean", "number", "integer", "value", "object", "array", "string", "null"}

// primitive registers the canned rule for typ under name, followed by every
// primitive it references.
func (c *conversion) primitive(name, typ string) string {
	p := primitives[typ]
	key := c.define(name, p.body)
	for _, dep := range p.deps {
		if _, ok := c.rules.get(dep); !ok {
			c.primitive(dep, dep)
		}
	}
	return key
}
