package jsonschema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalk(t *testing.T) {
	doc, err := Unmarshal([]byte(`{
		"$defs": {
			"a/b": {"type": "string"},
			"m~n": {"type": "number"},
			"sp ace": {"type": "null"}
		},
		"items": [{"type": "boolean"}, {"type": "integer"}]
	}`))
	require.NoError(t, err)

	cases := []struct {
		fragment string
		want     string
	}{
		{"/$defs/a~1b", "string"},
		{"/$defs/m~0n", "number"},
		{"/$defs/sp%20ace", "null"},
		{"/items/1", "integer"},
	}
	for _, tt := range cases {
		t.Run(tt.fragment, func(t *testing.T) {
			v, err := Walk(doc, tt.fragment)
			require.NoError(t, err)
			typ, ok := String(v.(*Object), "type")
			require.True(t, ok)
			assert.Equal(t, tt.want, typ)
		})
	}

	v, err := Walk(doc, "")
	require.NoError(t, err)
	assert.Same(t, doc, v)
}

func TestWalkMissing(t *testing.T) {
	doc, err := Unmarshal([]byte(`{"$defs": {"a": {}}, "items": []}`))
	require.NoError(t, err)

	for _, fragment := range []string{"/$defs/b", "/items/0", "/items/x", "/$defs/a/type/x"} {
		_, err := Walk(doc, fragment)
		var perr *PointerError
		assert.True(t, errors.As(err, &perr), "fragment %s: %v", fragment, err)
	}

	_, err = Walk(doc, "$defs")
	assert.Error(t, err)
}
