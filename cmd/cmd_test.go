package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/schema2grammar/fetch"
	"github.com/ollama/schema2grammar/grammar"
	"github.com/ollama/schema2grammar/server"
)

const objectSchema = `{"type": "object", "properties": {"a": {"type": "integer"}}, "required": ["a"]}`

const objectGrammar = `root ::= "{" space a-kv "}" space
space ::= " "?
integer ::= ("-"? ([0-9] | [1-9] [0-9]*)) space
a-kv ::= "\"a\"" space ":" space integer
`

func writeSchema(t *testing.T, dir, name, schema string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(schema), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCLI()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConvertFile(t *testing.T) {
	path := writeSchema(t, t.TempDir(), "schema.json", objectSchema)

	out, err := run(t, "", path)
	require.NoError(t, err)
	assert.Equal(t, objectGrammar, out)
}

func TestConvertStdin(t *testing.T) {
	out, err := run(t, "enum: [red, green]\n", "-")
	require.NoError(t, err)
	assert.Equal(t, "root ::= \"\\\"red\\\"\" | \"\\\"green\\\"\"\nspace ::= \" \"?\n", out)
}

func TestConvertMany(t *testing.T) {
	dir := t.TempDir()
	a := writeSchema(t, dir, "a.json", objectSchema)
	b := writeSchema(t, dir, "b.json", `{"const": true}`)

	out, err := run(t, "", "--jobs", "2", a, b)
	require.NoError(t, err)

	want := "# " + a + "\n" + objectGrammar + "\n# " + b + "\nroot ::= \"true\"\nspace ::= \" \"?\n"
	assert.Equal(t, want, out)
}

func TestConvertPropOrder(t *testing.T) {
	path := writeSchema(t, t.TempDir(), "schema.json",
		`{"type": "object", "properties": {"b": {"type": "integer"}, "a": {"type": "boolean"}}, "required": ["a", "b"]}`)

	out, err := run(t, "", "--prop-order", "a,b", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `root ::= "{" space a-kv "," space b-kv "}" space`+"\n"), out)
}

func TestConvertTable(t *testing.T) {
	path := writeSchema(t, t.TempDir(), "schema.json", objectSchema)

	out, err := run(t, "", "--table", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"NAME", "RULE"}, strings.Fields(lines[0]))
	assert.Equal(t, "a-kv", strings.Fields(lines[4])[0])
	assert.Contains(t, out, `"\"a\"" space ":" space integer`)
}

func TestConvertURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/person.json":
			w.Write([]byte(`{"type": "object", "properties": {"age": {"$ref": "#/$defs/age"}}, "required": ["age"], "$defs": {"age": {"type": "integer"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	out, err := run(t, "", ts.URL+"/person.json")
	require.NoError(t, err)
	assert.Contains(t, out, `age-kv ::= "\"age\"" space ":" space age`)
	assert.Contains(t, out, "age ::= (\"-\"? ([0-9] | [1-9] [0-9]*)) space\n")

	_, err = run(t, "", ts.URL+"/missing.json")
	var fetchErr *fetch.Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestBaseLocation(t *testing.T) {
	dir := t.TempDir()

	got, err := baseLocation(filepath.Join(dir, "schema.json"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "schema.json")), got)

	got, err = baseLocation("-")
	require.NoError(t, err)
	assert.Equal(t, "stdin", got)

	got, err = baseLocation("https://example.com/a.json")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.json", got)
}

func TestConvertLocalRefError(t *testing.T) {
	path := writeSchema(t, t.TempDir(), "schema.json", `{"$ref": "#/$defs/missing"}`)

	_, err := run(t, "", path)
	require.ErrorIs(t, err, grammar.ErrReferenceResolution)
	assert.Contains(t, err.Error(), `"file://`+filepath.ToSlash(path)+`#/$defs/missing"`)

	_, err = run(t, `{"$ref": "#/$defs/missing"}`, "-")
	require.ErrorIs(t, err, grammar.ErrReferenceResolution)
	assert.Contains(t, err.Error(), `"stdin#/$defs/missing"`)
}

func TestConvertServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ts := httptest.NewServer((&server.Server{}).GenerateRoutes())
	defer ts.Close()
	t.Setenv("SCHEMA2GRAMMAR_HOST", ts.URL)

	path := writeSchema(t, t.TempDir(), "schema.yaml", "type: object\nproperties:\n  a: {type: integer}\nrequired: [a]\n")

	out, err := run(t, "", "--server", path)
	require.NoError(t, err)
	assert.Equal(t, objectGrammar, out)
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeSchema(t, dir, "bad.json", `{"type": "string", "pattern": "^.*$"}`)

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no args", nil, "requires at least 1 arg"},
		{"missing file", []string{filepath.Join(dir, "missing.json")}, "missing.json"},
		{"stdin twice", []string{"-", "-"}, "standard input"},
		{"bad jobs", []string{"--jobs", "0", bad}, "--jobs"},
		{"unsupported pattern", []string{bad}, "unsupported pattern"},
		{"watch stdin", []string{"--watch", "-"}, "--watch needs schema files"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "{}", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchSchemas(t *testing.T) {
	path := writeSchema(t, t.TempDir(), "schema.json", objectSchema)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out, errOut syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- watchSchemas(ctx, &out, &errOut, []string{path}, &convertOptions{jobs: 1, fetcher: fetch.NewClient()})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "a-kv")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`{"const": "changed"}`), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `root ::= "\"changed\""`)
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`{"type": "float"}`), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(errOut.String(), "unsupported schema")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
