package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"

	"github.com/ollama/schema2grammar/api"
	"github.com/ollama/schema2grammar/envconfig"
	"github.com/ollama/schema2grammar/fetch"
	"github.com/ollama/schema2grammar/format"
	"github.com/ollama/schema2grammar/grammar"
	"github.com/ollama/schema2grammar/grammar/jsonschema"
	"github.com/ollama/schema2grammar/version"
)

var errRemoteDisabled = errors.New("remote schemas are disabled")

type Server struct {
	// fetcher retrieves remote documents when both the server and the
	// request allow it.
	fetcher grammar.Fetcher
}

func (s *Server) GenerateRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), limitBody(envconfig.MaxSchemaBytes))

	r.HEAD("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "schema2grammar is running") })

	r.HEAD("/api/version", s.VersionHandler)
	r.GET("/api/version", s.VersionHandler)
	r.POST("/api/grammar", s.GrammarHandler)

	return r
}

func (s *Server) VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version})
}

func (s *Server) GrammarHandler(c *gin.Context) {
	var req api.GrammarRequest
	var maxErr *http.MaxBytesError
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, api.ErrKindBadRequest, "missing request body")
		return
	} else if errors.As(err, &maxErr) {
		abort(c, http.StatusRequestEntityTooLarge, api.ErrKindBadRequest, "request body exceeds "+format.HumanBytes(maxErr.Limit))
		return
	} else if err != nil {
		abort(c, http.StatusBadRequest, api.ErrKindBadRequest, err.Error())
		return
	}

	var opts api.Options
	if err := decodeOptions(req.Options, &opts); err != nil {
		abort(c, http.StatusBadRequest, api.ErrKindBadRequest, err.Error())
		return
	}

	propOrder := opts.PropOrder
	if len(propOrder) == 0 {
		propOrder = envconfig.PropOrder
	}
	remote := envconfig.AllowRemote && opts.AllowRemote

	convOpts := []grammar.Option{grammar.WithPropOrder(propOrder...), grammar.WithMaxRepeat(envconfig.MaxRepeat)}
	if remote {
		convOpts = append(convOpts, grammar.WithFetcher(s.fetcher))
	}

	ctx := c.Request.Context()
	schema, err := s.schema(ctx, &req, remote)
	if err != nil {
		abortError(c, err)
		return
	}

	g, err := grammar.New(convOpts...).Convert(ctx, schema, req.Location)
	if err != nil {
		abortError(c, err)
		return
	}

	rules := make([]api.Rule, len(g.Rules))
	for i, r := range g.Rules {
		rules[i] = api.Rule{Name: r.Name, Body: r.Body}
	}
	c.JSON(http.StatusOK, api.GrammarResponse{Grammar: g.String(), Rules: rules})
}

// schema decodes the request's schema. A JSON string holds the text of a
// JSON or YAML document; without a schema the document at Location is
// fetched.
func (s *Server) schema(ctx context.Context, req *api.GrammarRequest, remote bool) (any, error) {
	raw := bytes.TrimSpace(req.Schema)
	switch {
	case len(raw) > 0 && raw[0] == '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, badRequest(err)
		}
		return decodeSchema([]byte(text))
	case len(raw) > 0:
		return decodeSchema(raw)
	case req.Location == "":
		return nil, badRequest(errors.New("schema or location is required"))
	case !fetch.IsURL(req.Location):
		return nil, badRequest(fmt.Errorf("location %q is not an http(s) URL", req.Location))
	case !remote:
		return nil, errRemoteDisabled
	}
	return s.fetcher.Fetch(ctx, req.Location)
}

func decodeSchema(data []byte) (any, error) {
	schema, err := jsonschema.Unmarshal(data)
	if err != nil {
		return nil, badRequest(fmt.Errorf("invalid schema: %w", err))
	}
	return schema, nil
}

// decodeOptions reads the request's option map. Unknown keys are an error.
func decodeOptions(m map[string]any, opts *api.Options) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           opts,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err} }

// errorStatus maps a conversion error to its response status and kind.
func errorStatus(err error) (int, api.ErrorKind) {
	var fetchErr *fetch.Error
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, api.ErrKindBadRequest
	case errors.Is(err, errRemoteDisabled):
		return http.StatusForbidden, api.ErrKindUnsupportedReference
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, api.ErrKindFetch
	case errors.Is(err, grammar.ErrUnsupportedReference):
		return http.StatusUnprocessableEntity, api.ErrKindUnsupportedReference
	case errors.Is(err, grammar.ErrReferenceResolution):
		return http.StatusUnprocessableEntity, api.ErrKindReferenceResolution
	case errors.Is(err, grammar.ErrUnsupportedSchema):
		return http.StatusUnprocessableEntity, api.ErrKindUnsupportedSchema
	case errors.Is(err, grammar.ErrInvalidPattern):
		return http.StatusUnprocessableEntity, api.ErrKindInvalidPattern
	case errors.Is(err, grammar.ErrUnsupportedPattern):
		return http.StatusUnprocessableEntity, api.ErrKindUnsupportedPattern
	default:
		return http.StatusInternalServerError, api.ErrKindGeneral
	}
}

func abortError(c *gin.Context, err error) {
	status, kind := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("conversion failed", "error", err)
	}
	abort(c, status, kind, err.Error())
}

func abort(c *gin.Context, status int, kind api.ErrorKind, msg string) {
	c.AbortWithStatusJSON(status, api.ErrorResponse{Message: msg, Kind: kind})
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
	}
}

// Serve runs the grammar service on ln until ctx is done.
func Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("server config", "env", envconfig.Values())

	if envconfig.Debug == 0 {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{fetcher: fetch.NewClient()}
	srvr := &http.Server{
		Handler:           s.GenerateRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srvr.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	if err := srvr.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
