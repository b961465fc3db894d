package jsonschema

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PointerError reports a JSON pointer segment that does not exist in its
// target.
type PointerError struct {
	Pointer string
	Segment string
	Target  any
}

func (e *PointerError) Error() string {
	return fmt.Sprintf("%s: %q not in %s", e.Pointer, e.Segment, Sprint(e.Target))
}

// Walk resolves the JSON pointer fragment (the part of a reference after
// '#') against doc. The empty fragment addresses doc itself.
func Walk(doc any, fragment string) (any, error) {
	if fragment == "" {
		return doc, nil
	}
	if !strings.HasPrefix(fragment, "/") {
		return nil, fmt.Errorf("%s: pointer must start with '/'", fragment)
	}

	target := doc
	for _, seg := range strings.Split(fragment[1:], "/") {
		seg = unescape(seg)
		switch t := target.(type) {
		case *Object:
			v, ok := t.Get(seg)
			if !ok {
				return nil, &PointerError{Pointer: fragment, Segment: seg, Target: t}
			}
			target = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t) {
				return nil, &PointerError{Pointer: fragment, Segment: seg, Target: t}
			}
			target = t[i]
		default:
			return nil, &PointerError{Pointer: fragment, Segment: seg, Target: t}
		}
	}
	return target, nil
}

func unescape(seg string) string {
	if s, err := url.PathUnescape(seg); err == nil {
		seg = s
	}
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(seg)
}
