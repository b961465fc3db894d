package grammar

import (
	"log/slog"
	"strings"

	"github.com/ollama/schema2grammar/grammar/jsonschema"
)

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

// resolveRefs walks schema, fetching remote documents and rewriting local
// references to absolute form ({url}#/...) so that every reference can be
// looked up in c.refs. url is the location schema was loaded from.
func (c *conversion) resolveRefs(schema any, url string) (any, error) {
	var walk func(n any) error
	walk = func(n any) error {
		switch n := n.(type) {
		case []any:
			for _, v := range n {
				if err := walk(v); err != nil {
					return err
				}
			}
		case *jsonschema.Object:
			if v, ok := n.Get("$ref"); ok {
				ref, ok := v.(string)
				if !ok {
					return &SchemaError{Err: ErrUnsupportedReference, Schema: n}
				}
				if _, seen := c.refs[ref]; !seen {
					abs, target, err := c.lookup(schema, url, ref)
					if err != nil {
						return err
					}
					if abs != ref {
						n.Set("$ref", abs)
						ref = abs
					}
					c.refs[ref] = target
				}
			}
			for pair := n.Oldest(); pair != nil; pair = pair.Next() {
				if err := walk(pair.Value); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// lookup returns the absolute form of ref and the schema it points at.
func (c *conversion) lookup(doc any, url, ref string) (string, any, error) {
	switch {
	case isRemote(ref):
		base, fragment, _ := strings.Cut(ref, "#")
		target, err := c.document(base)
		if err != nil {
			return "", nil, err
		}
		node, err := jsonschema.Walk(target, fragment)
		if err != nil {
			return "", nil, refError(ref, err)
		}
		return ref, node, nil

	case strings.HasPrefix(ref, "#"):
		abs := url + ref
		node, err := jsonschema.Walk(doc, strings.TrimPrefix(ref, "#"))
		if err != nil {
			return "", nil, refError(abs, err)
		}
		return abs, node, nil

	default:
		return "", nil, &SchemaError{Err: ErrUnsupportedReference, Ref: ref}
	}
}

// document returns the remote document at url, fetching it once per
// conversion. References inside it are resolved against url.
func (c *conversion) document(url string) (any, error) {
	if doc, ok := c.docs[url]; ok {
		return doc, nil
	}
	if c.fetcher == nil {
		return nil, &SchemaError{Err: ErrUnsupportedReference, Ref: url}
	}

	slog.Debug("fetching remote schema", "url", url)
	doc, err := c.fetcher.Fetch(c.ctx, url)
	if err != nil {
		return nil, err
	}
	// cache before resolving so that documents referring back to each
	// other are fetched once
	c.docs[url] = doc
	if _, err := c.resolveRefs(doc, url); err != nil {
		return nil, err
	}
	return doc, nil
}

func refError(ref string, err error) error {
	slog.Debug("unresolved reference", "ref", ref, "error", err)
	return &SchemaError{Err: ErrReferenceResolution, Ref: ref}
}

// resolveRef returns the rule generated for a resolved reference.
func (c *conversion) resolveRef(ref string) (string, error) {
	if name, ok := c.refRules[ref]; ok {
		return name, nil
	}
	if name, ok := c.resolving[ref]; ok {
		return name, nil
	}

	target, ok := c.refs[ref]
	if !ok {
		return "", &SchemaError{Err: ErrReferenceResolution, Ref: ref}
	}
	if t, ok := jsonschema.AsObject(target); ok && t == c.root {
		return "root", nil
	}

	key := c.rules.reserve(refName(ref))
	c.resolving[ref] = key
	c.owned[key] = c.depth + 1

	got, err := c.visit(target, key)
	delete(c.resolving, ref)
	if err != nil {
		return "", err
	}
	if err := c.settle(key, got); err != nil {
		return "", err
	}
	c.refRules[ref] = key
	return key, nil
}

// refName derives a rule name from the last segment of a reference.
func refName(ref string) string {
	ref = strings.TrimRight(ref, "#/")
	if i := strings.LastIndexAny(ref, "/#"); i >= 0 {
		ref = ref[i+1:]
	}
	if ref == "" {
		return "ref"
	}
	return ref
}
