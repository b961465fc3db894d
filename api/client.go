package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/ollama/schema2grammar/envconfig"
	"github.com/ollama/schema2grammar/version"
)

// Client talks to a running grammar service.
type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{base: base, http: http}
}

// ClientFromEnvironment returns a client for the service address in
// SCHEMA2GRAMMAR_HOST.
func ClientFromEnvironment() (*Client, error) {
	host, err := envconfig.Host()
	if err != nil {
		return nil, err
	}
	return &Client{
		base: &url.URL{Scheme: "http", Host: host},
		http: http.DefaultClient,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var body io.Reader
	if reqData != nil {
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", "schema2grammar/"+version.Version)

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode >= http.StatusBadRequest {
		statusErr := StatusError{StatusCode: response.StatusCode, Status: response.Status}
		if err := json.Unmarshal(data, &statusErr); err != nil {
			statusErr.ErrorMessage = string(data)
		}
		return statusErr
	}

	if respData != nil {
		if err := json.Unmarshal(data, respData); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Grammar converts a schema on the service.
func (c *Client) Grammar(ctx context.Context, req *GrammarRequest) (*GrammarResponse, error) {
	var resp GrammarResponse
	if err := c.do(ctx, http.MethodPost, "/api/grammar", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the version of the service.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Heartbeat checks that the service is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}
