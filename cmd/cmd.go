package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ollama/schema2grammar/api"
	"github.com/ollama/schema2grammar/envconfig"
	"github.com/ollama/schema2grammar/fetch"
	"github.com/ollama/schema2grammar/grammar"
	"github.com/ollama/schema2grammar/grammar/jsonschema"
	"github.com/ollama/schema2grammar/logutil"
	"github.com/ollama/schema2grammar/server"
	"github.com/ollama/schema2grammar/version"
)

type convertOptions struct {
	propOrder []string
	table     bool
	jobs      int

	fetcher *fetch.Client

	// client is set when conversions run on the grammar service.
	client *api.Client
}

func newConvertOptions(cmd *cobra.Command) (*convertOptions, error) {
	propOrder, err := cmd.Flags().GetStringSlice("prop-order")
	if err != nil {
		return nil, err
	}
	table, err := cmd.Flags().GetBool("table")
	if err != nil {
		return nil, err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return nil, err
	}
	if jobs < 1 {
		return nil, fmt.Errorf("--jobs must be at least 1, got %d", jobs)
	}

	opts := &convertOptions{
		propOrder: propOrder,
		table:     table,
		jobs:      jobs,
		fetcher:   fetch.NewClient(),
	}

	if useServer, _ := cmd.Flags().GetBool("server"); useServer {
		if opts.client, err = api.ClientFromEnvironment(); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

func ConvertHandler(cmd *cobra.Command, args []string) error {
	opts, err := newConvertOptions(cmd)
	if err != nil {
		return err
	}

	stdin := 0
	for _, arg := range args {
		if arg == "-" {
			stdin++
		}
	}
	if stdin > 1 {
		return errors.New("standard input can only be read once")
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		return watchSchemas(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args, opts)
	}
	return convertAll(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), args, opts)
}

// convertAll converts every schema concurrently and prints the grammars in
// argument order. Each conversion has its own converter state.
func convertAll(ctx context.Context, w io.Writer, stdin io.Reader, locations []string, opts *convertOptions) error {
	results := make([]*grammar.Grammar, len(locations))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.jobs)
	for i, location := range locations {
		g.Go(func() error {
			gr, err := convert(ctx, location, stdin, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", location, err)
			}
			results[i] = gr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, gr := range results {
		if len(results) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "# %s\n", locations[i])
		}
		if opts.table {
			writeTable(w, gr)
			continue
		}
		if _, err := gr.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

func convert(ctx context.Context, location string, stdin io.Reader, opts *convertOptions) (*grammar.Grammar, error) {
	data, err := opts.fetcher.Load(ctx, location, stdin)
	if err != nil {
		return nil, err
	}

	if opts.client != nil {
		// the service only resolves against http(s) locations
		var base string
		if fetch.IsURL(location) {
			base = location
		}
		return convertRemote(ctx, data, base, opts)
	}

	base, err := baseLocation(location)
	if err != nil {
		return nil, err
	}

	schema, err := jsonschema.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	conv := grammar.New(
		grammar.WithPropOrder(opts.propOrder...),
		grammar.WithFetcher(opts.fetcher),
		grammar.WithMaxRepeat(envconfig.MaxRepeat),
	)
	return conv.Convert(ctx, schema, base)
}

// baseLocation names the document that local references resolve against:
// the URL itself, a file:// URL for files, and "stdin" for standard input.
func baseLocation(location string) (string, error) {
	switch {
	case fetch.IsURL(location):
		return location, nil
	case location == "-":
		return "stdin", nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// convertRemote sends the document text to the grammar service.
func convertRemote(ctx context.Context, data []byte, base string, opts *convertOptions) (*grammar.Grammar, error) {
	text, err := json.Marshal(string(data))
	if err != nil {
		return nil, err
	}

	req := &api.GrammarRequest{
		Schema:   text,
		Location: base,
		Options: map[string]any{
			"prop_order":   opts.propOrder,
			"allow_remote": true,
		},
	}
	resp, err := opts.client.Grammar(ctx, req)
	if err != nil {
		return nil, err
	}

	g := &grammar.Grammar{Rules: make([]grammar.Rule, len(resp.Rules))}
	for i, r := range resp.Rules {
		g.Rules[i] = grammar.Rule{Name: r.Name, Body: r.Body}
	}
	return g, nil
}

func writeTable(w io.Writer, g *grammar.Grammar) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "RULE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("\t")

	for _, r := range g.Rules {
		table.Append([]string{r.Name, r.Body})
	}
	table.Render()
}

func RunServer(cmd *cobra.Command, _ []string) error {
	host, err := envconfig.Host()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", host)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, ln)
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-32s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "schema2grammar [flags] SCHEMA...",
		Short: "Convert JSON Schema documents to GBNF grammars",
		Long: `Convert JSON Schema documents to GBNF grammars.

Each SCHEMA is a file path, an http(s) URL, or "-" for standard input.
Documents may be JSON or YAML.`,
		Args:    cobra.MinimumNArgs(1),
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			logutil.Setup(os.Stderr, envconfig.LogLevel(), envconfig.LogFormat)
		},
		RunE: ConvertHandler,
	}

	rootCmd.Flags().StringSlice("prop-order", envconfig.PropOrder, "Comma separated property names emitted first")
	rootCmd.Flags().Bool("table", false, "List rules as a table")
	rootCmd.Flags().BoolP("watch", "w", false, "Convert again whenever a schema file changes")
	rootCmd.Flags().IntP("jobs", "j", runtime.NumCPU(), "Number of schemas converted in parallel")
	rootCmd.Flags().Bool("server", false, "Convert using the grammar service at SCHEMA2GRAMMAR_HOST")

	cobra.EnableCommandSorting = false

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the grammar service",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}

	envVars := envconfig.AsMap()
	appendEnvDocs(rootCmd, []envconfig.EnvVar{envVars["SCHEMA2GRAMMAR_DEBUG"], envVars["SCHEMA2GRAMMAR_LOG_FORMAT"], envVars["SCHEMA2GRAMMAR_PROP_ORDER"], envVars["SCHEMA2GRAMMAR_FETCH_TIMEOUT"], envVars["SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES"], envVars["SCHEMA2GRAMMAR_MAX_REPEAT"], envVars["SCHEMA2GRAMMAR_HOST"]})
	appendEnvDocs(serveCmd, []envconfig.EnvVar{envVars["SCHEMA2GRAMMAR_DEBUG"], envVars["SCHEMA2GRAMMAR_LOG_FORMAT"], envVars["SCHEMA2GRAMMAR_HOST"], envVars["SCHEMA2GRAMMAR_ALLOW_REMOTE"], envVars["SCHEMA2GRAMMAR_PROP_ORDER"], envVars["SCHEMA2GRAMMAR_FETCH_TIMEOUT"], envVars["SCHEMA2GRAMMAR_MAX_SCHEMA_BYTES"], envVars["SCHEMA2GRAMMAR_MAX_REPEAT"]})

	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
