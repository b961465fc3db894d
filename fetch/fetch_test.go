package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/schema2grammar/grammar"
	"github.com/ollama/schema2grammar/grammar/jsonschema"
)

var _ grammar.Fetcher = (*Client)(nil)

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "schema2grammar/"))
		switch r.URL.Path {
		case "/schema.json":
			w.Write([]byte(`{"type": "object", "properties": {"b": {}, "a": {}}}`))
		case "/schema.yaml":
			w.Write([]byte("type: string\n"))
		case "/broken.json":
			w.Write([]byte(`{"type": `))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := &Client{Timeout: time.Second}

	doc, err := c.Fetch(context.Background(), ts.URL+"/schema.json")
	require.NoError(t, err)
	o, ok := jsonschema.AsObject(doc)
	require.True(t, ok)
	props, _ := o.Get("properties")
	p, _ := jsonschema.AsObject(props)
	assert.Equal(t, []string{"b", "a"}, jsonschema.Keys(p))

	doc, err = c.Fetch(context.Background(), ts.URL+"/schema.yaml")
	require.NoError(t, err)
	o, _ = jsonschema.AsObject(doc)
	typ, _ := jsonschema.String(o, "type")
	assert.Equal(t, "string", typ)

	_, err = c.Fetch(context.Background(), ts.URL+"/missing.json")
	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, http.StatusNotFound, ferr.StatusCode)
	assert.Equal(t, ts.URL+"/missing.json", ferr.URL)

	_, err = c.Fetch(context.Background(), ts.URL+"/broken.json")
	require.ErrorAs(t, err, &ferr)
	assert.Zero(t, ferr.StatusCode)
}

func TestFetchTooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"description": "` + strings.Repeat("x", 100) + `"}`))
	}))
	defer ts.Close()

	c := &Client{MaxBytes: 64}
	_, err := c.Fetch(context.Background(), ts.URL)
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "limit is 64 B")

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
}

func TestFetchTimeout(t *testing.T) {
	done := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(done)

	c := &Client{Timeout: 50 * time.Millisecond}
	_, err := c.Fetch(context.Background(), ts.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchPropagatesThroughConverter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	schema := `{"$ref": "` + ts.URL + `/schema.json"}`
	_, err := grammar.FromSchema(context.Background(), []byte(schema), grammar.WithFetcher(&Client{}))

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, http.StatusInternalServerError, ferr.StatusCode)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(path, []byte("\xef\xbb\xbf{\"type\": \"string\"}"), 0o644))

	c := &Client{}

	data, err := c.Load(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"type": "string"}`, string(data))

	data, err = c.Load(context.Background(), "-", strings.NewReader("type: integer"))
	require.NoError(t, err)
	assert.Equal(t, "type: integer", string(data))

	_, err = c.Load(context.Background(), filepath.Join(dir, "missing.json"), nil)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/s.json"))
	assert.True(t, IsURL("http://example.com/s.json"))
	assert.False(t, IsURL("file:///s.json"))
	assert.False(t, IsURL("schema.json"))
}
