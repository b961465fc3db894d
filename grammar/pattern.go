package grammar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ollama/schema2grammar/grammar/internal/regex"
)

const (
	uuidPattern     = `^([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`
	datePattern     = `^([0-9]{4}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01]))$`
	timePattern     = `^(([01][0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9](\.[0-9]+)?(Z|[+-]([01][0-9]|2[0-3]):[0-5][0-9]))$`
	dateTimePattern = `^([0-9]{4}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])T([01][0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9](\.[0-9]+)?(Z|[+-]([01][0-9]|2[0-3]):[0-5][0-9]))$`
)

// formatPattern returns the rule name and pattern for a string format.
func formatPattern(format string) (name, pattern string, ok bool) {
	switch format {
	case "uuid", "uuid1", "uuid2", "uuid3", "uuid4", "uuid5":
		return "uuid", uuidPattern, true
	case "date":
		return "date", datePattern, true
	case "time":
		return "time", timePattern, true
	case "date-time":
		return "date-time", dateTimePattern, true
	}
	return "", "", false
}

// pattern defines name as a JSON string whose contents match pattern.
func (c *conversion) pattern(pattern, name string) (string, error) {
	body, err := c.compilePattern(pattern, name)
	if err != nil {
		return "", &PatternError{Err: err, Pattern: pattern}
	}
	return c.define(name, `"\"" `+body+` "\"" space`), nil
}

func (c *conversion) compilePattern(pattern, name string) (string, error) {
	if len(pattern) < 2 || !strings.HasPrefix(pattern, "^") || !strings.HasSuffix(pattern, "$") {
		return "", fmt.Errorf(`%w: must start with "^" and end with "$"`, ErrInvalidPattern)
	}

	node, err := regex.Parse(pattern[1 : len(pattern)-1])
	switch {
	case errors.Is(err, regex.ErrUnsupported):
		return "", fmt.Errorf("%w: %w", ErrUnsupportedPattern, err)
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	pc := patternCompiler{conversion: c, name: name, subRules: make(map[string]string)}
	return pc.compile(node)
}

// patternCompiler translates one regular expression. Repeated
// sub-expressions are hoisted into rules named {name}-1, {name}-2, ...
// and shared when identical.
type patternCompiler struct {
	*conversion
	name     string
	subRules map[string]string
}

func (pc *patternCompiler) compile(n regex.Node) (string, error) {
	switch n := n.(type) {
	case regex.Literal:
		return quote(stringChar(n.Rune)), nil
	case regex.NotLiteral:
		return "[^" + rangeChar(n.Rune) + stringExcluded + "]", nil
	case regex.Any:
		return "", fmt.Errorf(`%w: "." is not supported`, ErrUnsupportedPattern)
	case regex.CharClass:
		if n.Negated {
			return "[^" + writeRanges(n.Ranges) + stringExcluded + "]", nil
		}
		plain, escaped := splitRanges(n.Ranges)
		var alts []string
		if len(plain) > 0 {
			alts = append(alts, "["+writeRanges(plain)+"]")
		}
		for _, r := range escaped {
			alts = append(alts, quote(stringChar(r)))
		}
		if len(alts) == 1 {
			return alts[0], nil
		}
		return "(" + strings.Join(alts, " | ") + ")", nil
	case regex.Branch:
		alts := make([]string, len(n.Alternatives))
		for i, alt := range n.Alternatives {
			s, err := pc.compile(alt)
			if err != nil {
				return "", err
			}
			alts[i] = s
		}
		return "(" + strings.Join(alts, " | ") + ")", nil
	case regex.Group:
		s, err := pc.compile(n.Node)
		if err != nil {
			return "", err
		}
		// sequences and branches come back parenthesized
		if strings.HasPrefix(s, "(") {
			return s, nil
		}
		return "(" + s + ")", nil
	case regex.Repeat:
		return pc.repeat(n)
	case regex.Sequence:
		return pc.sequence(n)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedPattern, n)
	}
}

func (pc *patternCompiler) repeat(n regex.Repeat) (string, error) {
	if count := max(n.Min, n.Max); count > pc.maxRepeat {
		return "", fmt.Errorf("%w: repetition count %d exceeds the limit of %d", ErrUnsupportedPattern, count, pc.maxRepeat)
	}

	sub, err := pc.compile(n.Node)
	if err != nil {
		return "", err
	}
	id, ok := pc.subRules[sub]
	if !ok {
		id = pc.rules.add(fmt.Sprintf("%s-%d", pc.name, len(pc.subRules)+1), sub)
		pc.subRules[sub] = id
	}

	switch {
	case n.Min == 0 && n.Max == regex.Unbounded:
		return id + "*", nil
	case n.Min == 0 && n.Max == 1:
		return id + "?", nil
	case n.Min == 1 && n.Max == regex.Unbounded:
		return id + "+", nil
	}

	var parts []string
	for range n.Min {
		parts = append(parts, id)
	}
	if n.Max == regex.Unbounded {
		parts = append(parts, id+"*")
	} else {
		for range n.Max - n.Min {
			parts = append(parts, id+"?")
		}
	}
	if len(parts) == 0 {
		return `""`, nil
	}
	return strings.Join(parts, " "), nil
}

// sequence merges runs of literals into single terminals.
func (pc *patternCompiler) sequence(seq regex.Sequence) (string, error) {
	var out []string
	for i := 0; i < len(seq); {
		var run strings.Builder
		for ; i < len(seq); i++ {
			lit, ok := seq[i].(regex.Literal)
			if !ok {
				break
			}
			run.WriteString(stringChar(lit.Rune))
		}
		if run.Len() > 0 {
			out = append(out, quote(run.String()))
			continue
		}

		s, err := pc.compile(seq[i])
		if err != nil {
			return "", err
		}
		out = append(out, s)
		i++
	}

	switch len(out) {
	case 0:
		return `""`, nil
	case 1:
		return out[0], nil
	}
	return "(" + strings.Join(out, " ") + ")", nil
}

// Pattern rules sit inside a JSON string, so the characters JSON requires
// escaped never match raw.
const stringExcluded = `"\\\x00-\x1F`

// stringChar renders r as it appears inside a JSON string.
func stringChar(r rune) string {
	switch r {
	case '"':
		return `\"`
	case '\\':
		return `\\`
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	}
	if r < 0x20 {
		return fmt.Sprintf(`\u%04x`, r)
	}
	return string(r)
}

// splitRanges separates the characters JSON requires escaped from the
// ranges that can match raw.
func splitRanges(ranges []regex.Range) (plain []regex.Range, escaped []rune) {
	for _, rg := range ranges {
		lo, hi := rg.Lo, rg.Hi
		for r := lo; r <= min(hi, 0x1f); r++ {
			escaped = append(escaped, r)
		}
		lo = max(lo, 0x20)
		for _, cut := range []rune{'"', '\\'} {
			if cut < lo || cut > hi {
				continue
			}
			if cut > lo {
				plain = append(plain, regex.Range{Lo: lo, Hi: cut - 1})
			}
			escaped = append(escaped, cut)
			lo = cut + 1
		}
		if lo <= hi {
			plain = append(plain, regex.Range{Lo: lo, Hi: hi})
		}
	}
	return plain, escaped
}

func writeRanges(ranges []regex.Range) string {
	var sb strings.Builder
	for _, r := range ranges {
		sb.WriteString(rangeChar(r.Lo))
		if r.Hi != r.Lo {
			sb.WriteByte('-')
			sb.WriteString(rangeChar(r.Hi))
		}
	}
	return sb.String()
}
