// Package regex parses the subset of regular expressions that can be
// compiled into grammar productions. It produces a small tagged AST and
// never consults the host regexp engine.
package regex

// Node is one of Literal, NotLiteral, Any, CharClass, Branch, Group,
// Repeat or Sequence.
type Node interface {
	node()
}

// Literal matches a single character.
type Literal struct {
	Rune rune
}

// NotLiteral matches any single character except Rune.
type NotLiteral struct {
	Rune rune
}

// Any is the unconstrained wildcard '.'.
type Any struct{}

// Range is an inclusive character range. Single characters have Lo == Hi.
type Range struct {
	Lo, Hi rune
}

// CharClass is a bracket expression.
type CharClass struct {
	Negated bool
	Ranges  []Range
}

// Branch is an alternation.
type Branch struct {
	Alternatives []Node
}

// Group is a parenthesized sub-pattern.
type Group struct {
	Node Node
}

// Unbounded is the Max of a Repeat without an upper limit.
const Unbounded = -1

// Repeat repeats Node between Min and Max times.
type Repeat struct {
	Min, Max int
	Node     Node
}

// Sequence is a concatenation.
type Sequence []Node

func (Literal) node()    {}
func (NotLiteral) node() {}
func (Any) node()        {}
func (CharClass) node()  {}
func (Branch) node()     {}
func (Group) node()      {}
func (Repeat) node()     {}
func (Sequence) node()   {}
