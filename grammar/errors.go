package grammar

import (
	"errors"
	"fmt"

	"github.com/ollama/schema2grammar/grammar/jsonschema"
)

var (
	// ErrUnsupportedReference is returned for a $ref that is neither a
	// local fragment nor a remote http(s) document.
	ErrUnsupportedReference = errors.New("unsupported reference")

	// ErrReferenceResolution is returned when a $ref pointer does not
	// exist in its target document.
	ErrReferenceResolution = errors.New("unable to resolve reference")

	// ErrUnsupportedSchema is returned for a schema node whose shape
	// matches no generation strategy.
	ErrUnsupportedSchema = errors.New("unsupported schema")

	// ErrInvalidPattern is returned for a pattern that is not anchored
	// with '^' and '$' or is not a well-formed regular expression.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrUnsupportedPattern is returned for a pattern that uses a
	// construct with no grammar equivalent, such as '.'.
	ErrUnsupportedPattern = errors.New("unsupported pattern")
)

// SchemaError carries the schema fragment or reference a conversion
// failed on.
type SchemaError struct {
	Err    error
	Ref    string
	Schema any
}

func (e *SchemaError) Error() string {
	switch {
	case e.Ref != "" && e.Schema != nil:
		return fmt.Sprintf("%v %q: %s", e.Err, e.Ref, jsonschema.Sprint(e.Schema))
	case e.Ref != "":
		return fmt.Sprintf("%v %q", e.Err, e.Ref)
	default:
		return fmt.Sprintf("%v: %s", e.Err, jsonschema.Sprint(e.Schema))
	}
}

func (e *SchemaError) Unwrap() error { return e.Err }

// PatternError carries the pattern a regular expression compile failed on.
type PatternError struct {
	Err     error
	Pattern string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("error processing pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }
