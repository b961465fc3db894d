package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// GrammarRequest asks the service to convert a schema. Schema holds the
// schema itself, either as a JSON value or as a string containing a JSON
// or YAML document. When Schema is empty the document is fetched from
// Location, which must be an http(s) URL; otherwise Location is only the
// base for the schema's local references.
type GrammarRequest struct {
	Schema   json.RawMessage `json:"schema,omitempty"`
	Location string          `json:"location,omitempty"`

	// Options are decoded into the Options struct.
	Options map[string]any `json:"options,omitempty"`
}

// Options tune a conversion.
type Options struct {
	PropOrder   []string `mapstructure:"prop_order"`
	AllowRemote bool     `mapstructure:"allow_remote"`
}

type Rule struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

type GrammarResponse struct {
	Grammar string `json:"grammar"`
	Rules   []Rule `json:"rules"`
}

type VersionResponse struct {
	Version string `json:"version"`
}

// ErrorKind identifies the class of a failed conversion.
type ErrorKind string

const (
	ErrKindUnsupportedReference ErrorKind = "unsupported_reference"
	ErrKindReferenceResolution  ErrorKind = "reference_resolution"
	ErrKindUnsupportedSchema    ErrorKind = "unsupported_schema"
	ErrKindInvalidPattern       ErrorKind = "invalid_pattern"
	ErrKindUnsupportedPattern   ErrorKind = "unsupported_pattern"
	ErrKindFetch                ErrorKind = "fetch"
	ErrKindBadRequest           ErrorKind = "bad_request"
	ErrKindGeneral              ErrorKind = "general"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string    `json:"error"`
	Kind    ErrorKind `json:"kind,omitempty"`
}

func (e ErrorResponse) Error() string {
	return e.Message
}

// StatusError is an error with an HTTP status code and message,
// it is parsed on the client-side and not returned from the API
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string    `json:"error"`
	Kind         ErrorKind `json:"kind"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return fmt.Sprintf("%d %s", e.StatusCode, strings.ToLower(http.StatusText(e.StatusCode)))
	}
}
