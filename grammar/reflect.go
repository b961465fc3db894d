package grammar

import (
	"context"

	"github.com/goccy/go-json"
	invopop "github.com/invopop/jsonschema"
)

// ForType returns the grammar for the JSON encoding of v's type, derived
// from the schema reflected from its struct tags.
func ForType(ctx context.Context, v any, opts ...Option) (*Grammar, error) {
	r := invopop.Reflector{
		Anonymous:      true,
		ExpandedStruct: true,
	}
	data, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, err
	}
	return FromSchema(ctx, data, opts...)
}
