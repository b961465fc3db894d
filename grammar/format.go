package grammar

import (
	"fmt"
	"io"
	"strings"

	"github.com/ollama/schema2grammar/grammar/jsonschema"
)

// Rule is a single production of a GBNF grammar.
type Rule struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// Grammar is an ordered set of GBNF rules. The first rule is always root.
type Grammar struct {
	Rules []Rule
}

// Rule returns the body of the rule called name.
func (g *Grammar) Rule(name string) (string, bool) {
	for _, r := range g.Rules {
		if r.Name == name {
			return r.Body, true
		}
	}
	return "", false
}

// String renders the grammar text, one "name ::= body" line per rule.
func (g *Grammar) String() string {
	var sb strings.Builder
	g.WriteTo(&sb)
	return sb.String()
}

func (g *Grammar) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, r := range g.Rules {
		n, err := fmt.Fprintf(w, "%s ::= %s\n", r.Name, r.Body)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// formatLiteral renders v as a terminal matching its compact JSON encoding.
func formatLiteral(v any) (string, error) {
	b, err := jsonschema.Marshal(v)
	if err != nil {
		return "", err
	}
	return quote(string(b)), nil
}

// quote renders s as a double quoted GBNF terminal.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteString(escapeControl(r))
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// rangeChar renders r for use inside a GBNF character class.
func rangeChar(r rune) string {
	switch r {
	case '-', ']', '\\':
		return `\` + string(r)
	case '^':
		return `\x5E`
	}
	return escapeControl(r)
}

func escapeControl(r rune) string {
	switch r {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	}
	if r < 0x20 || r == 0x7f {
		return fmt.Sprintf(`\x%02X`, r)
	}
	return string(r)
}
