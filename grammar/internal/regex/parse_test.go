package regex

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestParse(t *testing.T) {
	cases := []struct {
		pattern string
		want    Node
	}{
		{"abc", Sequence{Literal{'a'}, Literal{'b'}, Literal{'c'}}},
		{"", Sequence{}},
		{"a|bc", Branch{Alternatives: []Node{
			Sequence{Literal{'a'}},
			Sequence{Literal{'b'}, Literal{'c'}},
		}}},
		{"[0-9]{3}-[0-9]{4}", Sequence{
			Repeat{Min: 3, Max: 3, Node: CharClass{Ranges: []Range{{'0', '9'}}}},
			Literal{'-'},
			Repeat{Min: 4, Max: 4, Node: CharClass{Ranges: []Range{{'0', '9'}}}},
		}},
		{"a*b+c?", Sequence{
			Repeat{Min: 0, Max: Unbounded, Node: Literal{'a'}},
			Repeat{Min: 1, Max: Unbounded, Node: Literal{'b'}},
			Repeat{Min: 0, Max: 1, Node: Literal{'c'}},
		}},
		{"x{2,}y{1,3}?", Sequence{
			Repeat{Min: 2, Max: Unbounded, Node: Literal{'x'}},
			Repeat{Min: 1, Max: 3, Node: Literal{'y'}},
		}},
		{"(ab)(?:c|d)", Sequence{
			Group{Node: Sequence{Literal{'a'}, Literal{'b'}}},
			Group{Node: Branch{Alternatives: []Node{Sequence{Literal{'c'}}, Sequence{Literal{'d'}}}}},
		}},
		{"[a][^b]", Sequence{Literal{'a'}, NotLiteral{'b'}}},
		{"[^a-z_]", Sequence{CharClass{Negated: true, Ranges: []Range{{'a', 'z'}, {'_', '_'}}}}},
		{"[]a-]", Sequence{CharClass{Ranges: []Range{{']', ']'}, {'a', 'a'}, {'-', '-'}}}}},
		{`\d\W`, Sequence{
			CharClass{Ranges: []Range{{'0', '9'}}},
			CharClass{Negated: true, Ranges: []Range{{'a', 'z'}, {'A', 'Z'}, {'0', '9'}, {'_', '_'}}},
		}},
		{`[\d\n.]`, Sequence{CharClass{Ranges: []Range{{'0', '9'}, {'\n', '\n'}, {'.', '.'}}}}},
		{`\.\x41é`, Sequence{Literal{'.'}, Literal{'A'}, Literal{'é'}}},
		{"a{x}", Sequence{Literal{'a'}, Literal{'{'}, Literal{'x'}, Literal{'}'}}},
		{".", Sequence{Any{}}},
	}

	for _, tt := range cases {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := Parse(tt.pattern)
			assert.NilError(t, err)
			assert.Check(t, is.DeepEqual(tt.want, got))
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		pattern string
		want    error
	}{
		{"(a", ErrSyntax},
		{"a)", ErrSyntax},
		{"*a", ErrSyntax},
		{"a**", ErrSyntax},
		{"a{3,1}", ErrSyntax},
		{"[abc", ErrSyntax},
		{"[z-a]", ErrSyntax},
		{`a\`, ErrSyntax},
		{`\q`, ErrSyntax},
		{`\x4`, ErrSyntax},
		{"a^b", ErrUnsupported},
		{"a$b", ErrUnsupported},
		{`(a)\1`, ErrUnsupported},
		{`\bword`, ErrUnsupported},
		{"(?=a)", ErrUnsupported},
		{`[\W]`, ErrUnsupported},
		{`\p{L}`, ErrUnsupported},
	}

	for _, tt := range cases {
		t.Run(tt.pattern, func(t *testing.T) {
			_, err := Parse(tt.pattern)
			assert.Assert(t, err != nil)
			assert.Assert(t, errors.Is(err, tt.want), "got %v", err)

			var perr *Error
			assert.Assert(t, errors.As(err, &perr))
		})
	}
}
