package regex

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

var (
	// ErrSyntax is returned for malformed patterns.
	ErrSyntax = errors.New("invalid regular expression")

	// ErrUnsupported is returned for well-formed constructs that have no
	// grammar equivalent (anchors inside the pattern, back references,
	// look-around, unicode classes).
	ErrUnsupported = errors.New("unsupported regular expression")
)

// Error describes a parse failure at a rune offset of the pattern.
type Error struct {
	Err error
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	digitRanges = []Range{{'0', '9'}}
	wordRanges  = []Range{{'a', 'z'}, {'A', 'Z'}, {'0', '9'}, {'_', '_'}}
	spaceRanges = []Range{{' ', ' '}, {'\t', '\r'}}
)

type parser struct {
	src []rune
	pos int
}

// Parse parses pattern, which must not include the surrounding '^' and
// '$' anchors.
func Parse(pattern string) (Node, error) {
	p := &parser{src: []rune(pattern)}
	n, err := p.alternation()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, p.errorf(ErrSyntax, "unbalanced ')'")
	}
	return n, nil
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) next() rune {
	r := p.src[p.pos]
	p.pos++
	return r
}

func (p *parser) errorf(err error, format string, args ...any) error {
	return &Error{Err: err, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) alternation() (Node, error) {
	var alts []Node
	for {
		seq, err := p.sequence()
		if err != nil {
			return nil, err
		}
		alts = append(alts, seq)
		if p.eof() || p.peek() != '|' {
			break
		}
		p.pos++
	}
	if len(alts) == 1 {
		return alts[0], nil
	}
	return Branch{Alternatives: alts}, nil
}

func (p *parser) sequence() (Sequence, error) {
	seq := Sequence{}
	for !p.eof() {
		switch p.peek() {
		case '|', ')':
			return seq, nil
		case '*', '+', '?':
			return nil, p.errorf(ErrSyntax, "nothing to repeat")
		case '{':
			if _, _, _, ok := p.braces(); ok {
				return nil, p.errorf(ErrSyntax, "nothing to repeat")
			}
		}

		atom, err := p.atom()
		if err != nil {
			return nil, err
		}
		atom, err = p.quantifier(atom)
		if err != nil {
			return nil, err
		}
		seq = append(seq, atom)
	}
	return seq, nil
}

func (p *parser) atom() (Node, error) {
	switch r := p.next(); r {
	case '(':
		if p.peek() == '?' {
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == ':' {
				p.pos += 2
			} else {
				return nil, p.errorf(ErrUnsupported, "unsupported group syntax")
			}
		}
		inner, err := p.alternation()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.next() != ')' {
			return nil, p.errorf(ErrSyntax, "missing ')'")
		}
		return Group{Node: inner}, nil
	case '[':
		return p.class()
	case '.':
		return Any{}, nil
	case '^', '$':
		return nil, p.errorf(ErrUnsupported, "anchor %q inside pattern", r)
	case '\\':
		return p.escape()
	default:
		return Literal{Rune: r}, nil
	}
}

// braces reports whether a counted repetition {m}, {m,} or {m,n} starts at
// the current position, without consuming it.
func (p *parser) braces() (min, max, width int, ok bool) {
	i := p.pos
	if i >= len(p.src) || p.src[i] != '{' {
		return 0, 0, 0, false
	}
	i++
	start := i
	for i < len(p.src) && p.src[i] >= '0' && p.src[i] <= '9' {
		i++
	}
	if i == start || i >= len(p.src) {
		return 0, 0, 0, false
	}
	min, err := strconv.Atoi(string(p.src[start:i]))
	if err != nil {
		return 0, 0, 0, false
	}
	max = min
	if p.src[i] == ',' {
		i++
		start = i
		for i < len(p.src) && p.src[i] >= '0' && p.src[i] <= '9' {
			i++
		}
		max = Unbounded
		if i > start {
			if max, err = strconv.Atoi(string(p.src[start:i])); err != nil {
				return 0, 0, 0, false
			}
		}
	}
	if i >= len(p.src) || p.src[i] != '}' {
		return 0, 0, 0, false
	}
	return min, max, i + 1 - p.pos, true
}

func (p *parser) quantifier(atom Node) (Node, error) {
	if p.eof() {
		return atom, nil
	}

	var min, max int
	switch p.peek() {
	case '*':
		min, max = 0, Unbounded
		p.pos++
	case '+':
		min, max = 1, Unbounded
		p.pos++
	case '?':
		min, max = 0, 1
		p.pos++
	case '{':
		var width int
		var ok bool
		if min, max, width, ok = p.braces(); !ok {
			return atom, nil
		}
		p.pos += width
	default:
		return atom, nil
	}

	if max != Unbounded && max < min {
		return nil, p.errorf(ErrSyntax, "min repeat greater than max repeat")
	}

	// lazy quantifiers accept the same language
	if !p.eof() && p.peek() == '?' {
		p.pos++
	}

	if !p.eof() {
		switch p.peek() {
		case '*', '+', '?':
			return nil, p.errorf(ErrSyntax, "multiple repeat")
		case '{':
			if _, _, _, ok := p.braces(); ok {
				return nil, p.errorf(ErrSyntax, "multiple repeat")
			}
		}
	}
	return Repeat{Min: min, Max: max, Node: atom}, nil
}

func (p *parser) escape() (Node, error) {
	if p.eof() {
		return nil, p.errorf(ErrSyntax, "trailing backslash")
	}
	switch r := p.peek(); r {
	case 'd', 'w', 's':
		p.pos++
		return CharClass{Ranges: shorthand(r)}, nil
	case 'D', 'W', 'S':
		p.pos++
		return CharClass{Negated: true, Ranges: shorthand(r + 'a' - 'A')}, nil
	}

	r, err := p.escapedRune()
	if err != nil {
		return nil, err
	}
	return Literal{Rune: r}, nil
}

// escapedRune decodes a single-character escape; the backslash has already
// been consumed.
func (p *parser) escapedRune() (rune, error) {
	switch r := p.next(); r {
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case 'f':
		return '\f', nil
	case 'v':
		return '\v', nil
	case 'x':
		return p.hex(2)
	case 'u':
		return p.hex(4)
	case 'b', 'B', 'A', 'Z', 'z', 'G':
		return 0, p.errorf(ErrUnsupported, "assertion \\%c", r)
	case 'p', 'P':
		return 0, p.errorf(ErrUnsupported, "unicode class \\%c", r)
	default:
		switch {
		case r >= '0' && r <= '9':
			return 0, p.errorf(ErrUnsupported, "back reference \\%c", r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return 0, p.errorf(ErrSyntax, "bad escape \\%c", r)
		}
		return r, nil
	}
}

func (p *parser) hex(n int) (rune, error) {
	if p.pos+n > len(p.src) {
		return 0, p.errorf(ErrSyntax, "incomplete escape")
	}
	v, err := strconv.ParseUint(string(p.src[p.pos:p.pos+n]), 16, 32)
	if err != nil {
		return 0, p.errorf(ErrSyntax, "bad hex escape")
	}
	p.pos += n
	return rune(v), nil
}

func (p *parser) class() (Node, error) {
	var cc CharClass
	if p.peek() == '^' {
		cc.Negated = true
		p.pos++
	}

	for first := true; ; first = false {
		if p.eof() {
			return nil, p.errorf(ErrSyntax, "unterminated character set")
		}
		r := p.next()
		if r == ']' && !first {
			break
		}

		lo := r
		if r == '\\' {
			if p.eof() {
				return nil, p.errorf(ErrSyntax, "unterminated character set")
			}
			switch s := p.peek(); s {
			case 'd', 'w', 's':
				p.pos++
				cc.Ranges = append(cc.Ranges, shorthand(s)...)
				continue
			case 'D', 'W', 'S':
				return nil, p.errorf(ErrUnsupported, "negated class \\%c inside a set", s)
			}
			var err error
			if lo, err = p.escapedRune(); err != nil {
				return nil, err
			}
		}

		hi := lo
		if p.peek() == '-' && p.pos+1 < len(p.src) && p.src[p.pos+1] != ']' {
			p.pos++
			hi = p.next()
			if hi == '\\' {
				if p.eof() {
					return nil, p.errorf(ErrSyntax, "unterminated character set")
				}
				switch p.peek() {
				case 'd', 'w', 's', 'D', 'W', 'S':
					return nil, p.errorf(ErrSyntax, "bad character range")
				}
				var err error
				if hi, err = p.escapedRune(); err != nil {
					return nil, err
				}
			}
			if hi < lo {
				return nil, p.errorf(ErrSyntax, "bad character range %c-%c", lo, hi)
			}
		}
		cc.Ranges = append(cc.Ranges, Range{Lo: lo, Hi: hi})
	}

	if len(cc.Ranges) == 1 && cc.Ranges[0].Lo == cc.Ranges[0].Hi {
		if cc.Negated {
			return NotLiteral{Rune: cc.Ranges[0].Lo}, nil
		}
		return Literal{Rune: cc.Ranges[0].Lo}, nil
	}
	return cc, nil
}

func shorthand(r rune) []Range {
	switch r {
	case 'd':
		return slices.Clone(digitRanges)
	case 'w':
		return slices.Clone(wordRanges)
	default:
		return slices.Clone(spaceRanges)
	}
}
