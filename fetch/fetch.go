// Package fetch retrieves schema documents from HTTP(S) URLs, files and
// standard input.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ollama/schema2grammar/envconfig"
	"github.com/ollama/schema2grammar/format"
	"github.com/ollama/schema2grammar/grammar/jsonschema"
	"github.com/ollama/schema2grammar/version"
)

// ErrTooLarge is returned for documents over the client's size limit.
var ErrTooLarge = errors.New("schema document too large")

// Error reports a failed retrieval of a schema document. StatusCode is set
// when the server answered with a non-200 status.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client fetches schema documents. The zero value uses http.DefaultClient
// with no timeout or size limit.
type Client struct {
	HTTP     *http.Client
	Timeout  time.Duration
	MaxBytes int64
}

// NewClient returns a client configured from the environment.
func NewClient() *Client {
	return &Client{
		HTTP:     http.DefaultClient,
		Timeout:  envconfig.FetchTimeout,
		MaxBytes: envconfig.MaxSchemaBytes,
	}
}

// Fetch retrieves and decodes the document at url. It satisfies
// grammar.Fetcher.
func (c *Client) Fetch(ctx context.Context, url string) (any, error) {
	data, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.Unmarshal(data)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/schema+json, application/json, application/yaml;q=0.9, */*;q=0.1")
	req.Header.Set("User-Agent", "schema2grammar/"+version.Version)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := c.read(resp.Body)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	slog.Debug("fetched schema", "url", url, "size", format.HumanBytes(int64(len(data))), "duration", time.Since(start))
	return data, nil
}

func (c *Client) read(r io.Reader) ([]byte, error) {
	if c.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, c.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.MaxBytes {
		return nil, fmt.Errorf("%w: limit is %s", ErrTooLarge, format.HumanBytes(c.MaxBytes))
	}
	return data, nil
}

// IsURL reports whether location names an HTTP(S) document.
func IsURL(location string) bool {
	return strings.HasPrefix(location, "https://") || strings.HasPrefix(location, "http://")
}

// Load reads the raw document named by location: "-" for stdin, an
// HTTP(S) URL, or a file path.
func (c *Client) Load(ctx context.Context, location string, stdin io.Reader) ([]byte, error) {
	switch {
	case location == "-":
		return c.read(stdin)
	case IsURL(location):
		return c.get(ctx, location)
	default:
		f, err := os.Open(location)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		data, err := c.read(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", location, err)
		}
		return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), nil
	}
}
