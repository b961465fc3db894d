package gbnf

import "sort"

type memoKey struct {
	rule string
	pos  int
}

type positions map[int]bool

type matcher struct {
	g    *Grammar
	in   []rune
	memo map[memoKey]positions
	busy map[memoKey]bool
}

// Match reports whether input, in full, is derived from the rule root.
func (g *Grammar) Match(root, input string) bool {
	if _, ok := g.rules[root]; !ok {
		return false
	}
	m := &matcher{
		g:    g,
		in:   []rune(input),
		memo: make(map[memoKey]positions),
		busy: make(map[memoKey]bool),
	}
	return m.match(ref(root), 0)[len(m.in)]
}

// Prefixes returns the lengths, in runes, of every prefix of input derived
// from root. It is mostly useful when debugging a failed Match.
func (g *Grammar) Prefixes(root, input string) []int {
	m := &matcher{
		g:    g,
		in:   []rune(input),
		memo: make(map[memoKey]positions),
		busy: make(map[memoKey]bool),
	}
	var ends []int
	for p := range m.match(ref(root), 0) {
		ends = append(ends, p)
	}
	sort.Ints(ends)
	return ends
}

// match returns every position at which n, started at pos, can end.
func (m *matcher) match(n node, pos int) positions {
	switch n := n.(type) {
	case literal:
		if pos+len(n) > len(m.in) {
			return nil
		}
		for i, r := range n {
			if m.in[pos+i] != r {
				return nil
			}
		}
		return positions{pos + len(n): true}

	case class:
		if pos >= len(m.in) {
			return nil
		}
		r := m.in[pos]
		in := false
		for _, rg := range n.ranges {
			if r >= rg[0] && r <= rg[1] {
				in = true
				break
			}
		}
		if in == n.negated {
			return nil
		}
		return positions{pos + 1: true}

	case ref:
		key := memoKey{string(n), pos}
		if ps, ok := m.memo[key]; ok {
			return ps
		}
		// left recursion never matches
		if m.busy[key] {
			return nil
		}
		m.busy[key] = true
		ps := m.match(m.g.rules[string(n)], pos)
		delete(m.busy, key)
		m.memo[key] = ps
		return ps

	case alt:
		out := positions{}
		for _, c := range n {
			for p := range m.match(c, pos) {
				out[p] = true
			}
		}
		return out

	case seq:
		cur := positions{pos: true}
		for _, c := range n {
			next := positions{}
			for p := range cur {
				for q := range m.match(c, p) {
					next[q] = true
				}
			}
			if len(next) == 0 {
				return nil
			}
			cur = next
		}
		return cur

	case repeat:
		out := positions{}
		if n.min == 0 {
			out[pos] = true
		}
		cur := positions{pos: true}
		seen := positions{}
		for count := 1; len(cur) > 0 && (n.max < 0 || count <= n.max); count++ {
			next := positions{}
			for p := range cur {
				for q := range m.match(n.node, p) {
					if count > n.min && seen[q] {
						continue
					}
					next[q] = true
				}
			}
			if count >= n.min {
				for q := range next {
					out[q] = true
					seen[q] = true
				}
			}
			cur = next
		}
		return out
	}
	return nil
}
