// Package gbnf parses the subset of GBNF the converter emits and decides
// whether a string is in the language of a grammar. It exists so generated
// grammars can be checked against real documents.
package gbnf

import (
	"fmt"
	"strconv"
	"strings"
)

type node interface{}

type (
	literal []rune
	ref     string
	alt     []node
	seq     []node
)

type class struct {
	negated bool
	ranges  [][2]rune
}

type repeat struct {
	node node
	min  int
	max  int // -1 is unbounded
}

// Grammar is a parsed set of rules.
type Grammar struct {
	rules map[string]node
}

// Parse parses grammar text made of "name ::= body" lines. Blank lines and
// lines starting with '#' are ignored.
func Parse(src string) (*Grammar, error) {
	g := &Grammar{rules: make(map[string]node)}
	for i, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, body, ok := strings.Cut(line, "::=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '::='", i+1)
		}
		name = strings.TrimSpace(name)
		if _, ok := g.rules[name]; ok {
			return nil, fmt.Errorf("line %d: duplicate rule %q", i+1, name)
		}

		p := &parser{src: []rune(body)}
		n, err := p.alternation()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if p.skipSpace(); p.pos < len(p.src) {
			return nil, fmt.Errorf("line %d: unexpected %q at %d", i+1, p.src[p.pos], p.pos)
		}
		g.rules[name] = n
	}

	for name, n := range g.rules {
		if err := g.check(n); err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
	}
	return g, nil
}

// check reports references to undefined rules.
func (g *Grammar) check(n node) error {
	switch n := n.(type) {
	case ref:
		if _, ok := g.rules[string(n)]; !ok {
			return fmt.Errorf("undefined rule %q", string(n))
		}
	case alt:
		for _, c := range n {
			if err := g.check(c); err != nil {
				return err
			}
		}
	case seq:
		for _, c := range n {
			if err := g.check(c); err != nil {
				return err
			}
		}
	case repeat:
		return g.check(n.node)
	}
	return nil
}

// Rules returns the names of all rules.
func (g *Grammar) Rules() []string {
	names := make([]string, 0, len(g.rules))
	for name := range g.rules {
		names = append(names, name)
	}
	return names
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) alternation() (node, error) {
	var alts alt
	for {
		s, err := p.sequence()
		if err != nil {
			return nil, err
		}
		alts = append(alts, s)
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '|' {
			break
		}
		p.pos++
	}
	if len(alts) == 1 {
		return alts[0], nil
	}
	return alts, nil
}

func (p *parser) sequence() (node, error) {
	var s seq
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] == '|' || p.src[p.pos] == ')' {
			break
		}
		n, err := p.primary()
		if err != nil {
			return nil, err
		}
	postfix:
		for p.pos < len(p.src) {
			switch p.src[p.pos] {
			case '*':
				n = repeat{node: n, min: 0, max: -1}
			case '+':
				n = repeat{node: n, min: 1, max: -1}
			case '?':
				n = repeat{node: n, min: 0, max: 1}
			default:
				break postfix
			}
			p.pos++
		}
		s = append(s, n)
	}
	if len(s) == 1 {
		return s[0], nil
	}
	return s, nil
}

func (p *parser) primary() (node, error) {
	switch r := p.src[p.pos]; {
	case r == '"':
		p.pos++
		var lit literal
		for {
			if p.pos >= len(p.src) {
				return nil, fmt.Errorf("unterminated string")
			}
			if p.src[p.pos] == '"' {
				p.pos++
				return lit, nil
			}
			c, err := p.char()
			if err != nil {
				return nil, err
			}
			lit = append(lit, c)
		}
	case r == '[':
		p.pos++
		var cl class
		if p.pos < len(p.src) && p.src[p.pos] == '^' {
			cl.negated = true
			p.pos++
		}
		for {
			if p.pos >= len(p.src) {
				return nil, fmt.Errorf("unterminated character class")
			}
			if p.src[p.pos] == ']' {
				p.pos++
				return cl, nil
			}
			lo, err := p.char()
			if err != nil {
				return nil, err
			}
			hi := lo
			if p.pos+1 < len(p.src) && p.src[p.pos] == '-' && p.src[p.pos+1] != ']' {
				p.pos++
				if hi, err = p.char(); err != nil {
					return nil, err
				}
			}
			cl.ranges = append(cl.ranges, [2]rune{lo, hi})
		}
	case r == '(':
		p.pos++
		n, err := p.alternation()
		if err != nil {
			return nil, err
		}
		if p.skipSpace(); p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return nil, fmt.Errorf("missing ')' at %d", p.pos)
		}
		p.pos++
		return n, nil
	case isNameRune(r):
		start := p.pos
		for p.pos < len(p.src) && isNameRune(p.src[p.pos]) {
			p.pos++
		}
		return ref(p.src[start:p.pos]), nil
	default:
		return nil, fmt.Errorf("unexpected %q at %d", r, p.pos)
	}
}

func isNameRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-'
}

// char reads one possibly escaped character of a string or class.
func (p *parser) char() (rune, error) {
	r := p.src[p.pos]
	p.pos++
	if r != '\\' {
		return r, nil
	}
	if p.pos >= len(p.src) {
		return 0, fmt.Errorf("trailing backslash")
	}
	e := p.src[p.pos]
	p.pos++
	switch e {
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case 'x':
		return p.hex(2)
	case 'u':
		return p.hex(4)
	case 'U':
		return p.hex(8)
	case '\\', '"', '[', ']', '-', '^':
		return e, nil
	}
	return 0, fmt.Errorf("unknown escape \\%c", e)
}

func (p *parser) hex(n int) (rune, error) {
	if p.pos+n > len(p.src) {
		return 0, fmt.Errorf("short hex escape")
	}
	v, err := strconv.ParseUint(string(p.src[p.pos:p.pos+n]), 16, 32)
	if err != nil {
		return 0, err
	}
	p.pos += n
	return rune(v), nil
}
