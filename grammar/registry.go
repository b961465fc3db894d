package grammar

import (
	"regexp"
	"strconv"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/ollama/schema2grammar/logutil"
)

var invalidRuleChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

func sanitize(name string) string {
	return invalidRuleChars.ReplaceAllString(name, "-")
}

// registry maps rule names to bodies in first-registered order.
//
// Adding an identical (name, body) pair twice yields one rule. A name that
// is taken by a different body is disambiguated by probing name0, name1,
// ... until a free name or one holding the same body is found. Names of
// the canned primitive rules only ever hold their canned bodies.
//
// A name may be reserved before its body is known; it stays unusable for
// other bodies until filled.
type registry struct {
	rules   *linkedhashmap.Map
	pending map[string]bool
}

func newRegistry() *registry {
	return &registry{
		rules:   linkedhashmap.New(),
		pending: make(map[string]bool),
	}
}

func (r *registry) add(name, body string) string {
	key := sanitize(name)
	if !r.reusable(key, body) {
		base := key
		for i := 0; ; i++ {
			key = base + strconv.Itoa(i)
			if r.reusable(key, body) {
				break
			}
		}
	}
	r.rules.Put(key, body)
	logutil.Trace("grammar: rule", "name", key, "body", body)
	return key
}

func (r *registry) reusable(key, body string) bool {
	if p, ok := primitives[key]; ok && p.body != body {
		return false
	}
	v, ok := r.rules.Get(key)
	if !ok {
		return true
	}
	return !r.pending[key] && v.(string) == body
}

// reserve claims a free name derived from name for a rule whose body will
// be supplied later with fill.
func (r *registry) reserve(name string) string {
	key := sanitize(name)
	base := key
	for i := 0; r.taken(key); i++ {
		key = base + strconv.Itoa(i)
	}
	r.rules.Put(key, "")
	r.pending[key] = true
	return key
}

func (r *registry) taken(key string) bool {
	if _, ok := primitives[key]; ok {
		return true
	}
	_, ok := r.rules.Get(key)
	return ok
}

func (r *registry) fill(key, body string) {
	r.rules.Put(key, body)
	delete(r.pending, key)
	logutil.Trace("grammar: rule", "name", key, "body", body)
}

func (r *registry) isPending(key string) bool {
	return r.pending[key]
}

func (r *registry) get(key string) (string, bool) {
	v, ok := r.rules.Get(key)
	if !ok || r.pending[key] {
		return "", false
	}
	return v.(string), true
}

func (r *registry) grammar() *Grammar {
	g := &Grammar{Rules: make([]Rule, 0, r.rules.Size())}
	it := r.rules.Iterator()
	for it.Next() {
		g.Rules = append(g.Rules, Rule{Name: it.Key().(string), Body: it.Value().(string)})
	}
	return g
}
